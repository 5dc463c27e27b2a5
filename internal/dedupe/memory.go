package dedupe

import (
	"context"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

// MemoryDedupe is the single-instance Deduper, used when redis is not configured.
type MemoryDedupe struct {
	log logger.Logger
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	claims  map[string]time.Time // id -> expiry
	stopCh  chan struct{}
	stopped bool
}

// NewInMemoryDedupe remembers a claim for ttl. janitorEvery > 0 starts a collector
// for expired claims; without it they are replaced lazily on the next Seen.
func NewInMemoryDedupe(log logger.Logger, ttl, janitorEvery time.Duration) *MemoryDedupe {
	m := &MemoryDedupe{
		log:    log,
		ttl:    ttl,
		now:    time.Now,
		claims: make(map[string]time.Time, 256),
		stopCh: make(chan struct{}),
	}

	if janitorEvery > 0 {
		go m.janitor(janitorEvery)
	}
	return m
}

func (m *MemoryDedupe) Seen(_ context.Context, id string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.claims[id]; ok && exp.After(now) {
		return true, nil
	}
	m.claims[id] = now.Add(m.ttl)
	return false, nil
}

func (m *MemoryDedupe) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.claims, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryDedupe) Health(context.Context) error {
	return nil
}

// Len counts claims held, expired ones included until collected.
func (m *MemoryDedupe) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.claims)
}

func (m *MemoryDedupe) collect() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, exp := range m.claims {
		if !exp.After(now) {
			delete(m.claims, id)
			removed++
		}
	}
	return removed
}

func (m *MemoryDedupe) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			if n := m.collect(); n > 0 {
				m.log.Debugf("Dedupe janitor removed %d expired keys", n)
			}
		}
	}
}

// Close stops the janitor. Safe to call twice.
func (m *MemoryDedupe) Close() {
	m.mu.Lock()
	if !m.stopped {
		close(m.stopCh)
		m.stopped = true
	}
	m.mu.Unlock()
}
