package monitor

import (
	"context"
	"fmt"
	"oraclehub/internal/domain"
	"oraclehub/internal/metrics"
	"oraclehub/internal/resolver"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gitlab.com/nevasik7/alerting/logger"
)

// Target is the part of the oracle service the monitor polls.
type Target interface {
	TrackedAssets(ctx context.Context) ([]domain.Asset, error)
	Price(ctx context.Context, asset domain.Asset, ts uint64) (resolver.Result, error)
	Now() uint64
}

// Freshness resolves every tracked asset at wall-clock now on a cron schedule
// and exports the age of each answer.
type Freshness struct {
	log     logger.Logger
	target  Target
	metrics *metrics.Metrics
	timeout time.Duration

	cron *cron.Cron
	mu   sync.Mutex
	last map[domain.Asset]error
}

func New(log logger.Logger, target Target, m *metrics.Metrics, schedule string) (*Freshness, error) {
	f := &Freshness{
		log:     log,
		target:  target,
		metrics: m,
		timeout: 10 * time.Second,
		cron:    cron.New(cron.WithSeconds()),
		last:    make(map[domain.Asset]error),
	}

	if _, err := f.cron.AddFunc(schedule, func() { f.Check(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid monitor schedule %q: %w", schedule, err)
	}
	return f, nil
}

func (f *Freshness) Start() {
	f.cron.Start()
	f.log.Infof("Freshness monitor started")
}

// Stop waits for a running check to finish or ctx to expire.
func (f *Freshness) Stop(ctx context.Context) {
	done := f.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		f.log.Warnf("Freshness monitor stop timed out, error=%v", ctx.Err())
	}
}

// Check runs one pass. State transitions are logged once, not on every tick.
func (f *Freshness) Check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	assets, err := f.target.TrackedAssets(ctx)
	if err != nil {
		f.log.Errorf("Failed to list tracked assets, error=%v", err)
		return
	}

	now := f.target.Now()
	for _, a := range assets {
		label := a.String()
		res, err := f.target.Price(ctx, a, now)
		if err != nil {
			f.metrics.PriceFresh.WithLabelValues(label).Set(0)
		} else {
			f.metrics.PriceFresh.WithLabelValues(label).Set(1)
			age := float64(0)
			if now > res.Price.Timestamp {
				age = float64(now - res.Price.Timestamp)
			}
			f.metrics.PriceAge.WithLabelValues(label).Set(age)
		}
		f.transition(a, err)
	}
}

// Last returns the outcome of the most recent check for asset.
func (f *Freshness) Last(asset domain.Asset) (checked bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	err, checked = f.last[asset]
	return checked, err
}

func (f *Freshness) transition(a domain.Asset, err error) {
	f.mu.Lock()
	prev, seen := f.last[a]
	f.last[a] = err
	f.mu.Unlock()

	switch {
	case err != nil && (!seen || prev == nil):
		f.log.Warnf("Price for %s is not resolvable, error=%v", a, err)
	case err == nil && seen && prev != nil:
		f.log.Infof("Price for %s is fresh again", a)
	}
}
