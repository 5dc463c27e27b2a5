package ledger

import (
	"context"
	"sync"
)

// Memory keeps snapshots in process; for tests and single-node dev runs.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte, 16)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)

	m.mu.Lock()
	m.items[key] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Update(_ context.Context, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cur []byte
	if v, ok := m.items[key]; ok {
		cur = make([]byte, len(v))
		copy(cur, v)
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	m.items[key] = next
	return nil
}

func (m *Memory) Health(context.Context) error {
	return nil
}
