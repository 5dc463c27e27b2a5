// Package source defines what the aggregator needs from a price source and keeps the
// directory that turns registered oracle ids into callable sources.
package source

import (
	"context"
	"errors"
	"fmt"
	"oraclehub/internal/domain"
	"sort"
	"sync"
)

var ErrUnknownSource = errors.New("unknown source")

// Source is the read interface of a price store. LastPrice returns nil for an asset
// the source has no record of.
type Source interface {
	Decimals(ctx context.Context) (uint32, error)
	LastPrice(ctx context.Context, asset domain.Asset) (*domain.PriceData, error)
	Prices(ctx context.Context, asset domain.Asset, records uint32) ([]domain.PriceData, error)
}

// Directory maps oracle ids to sources. Ids registered with the aggregator but missing
// here surface as failing sources at query time.
type Directory struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewDirectory() *Directory {
	return &Directory{sources: make(map[string]Source, 8)}
}

func (d *Directory) Register(id string, s Source) error {
	if id == "" {
		return errors.New("source id is required")
	}
	if s == nil {
		return fmt.Errorf("source %s is nil", id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sources[id]; ok {
		return fmt.Errorf("source %s already registered", id)
	}
	d.sources[id] = s
	return nil
}

func (d *Directory) Lookup(id string) (Source, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sources[id]
	return s, ok
}

// Resolve returns a source that fails every call when id is unknown.
func (d *Directory) Resolve(id string) Source {
	if s, ok := d.Lookup(id); ok {
		return s
	}
	return missing(id)
}

func (d *Directory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.sources))
	for id := range d.sources {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type missing string

func (m missing) Decimals(context.Context) (uint32, error) {
	return 0, fmt.Errorf("%w: %s", ErrUnknownSource, string(m))
}

func (m missing) LastPrice(context.Context, domain.Asset) (*domain.PriceData, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, string(m))
}

func (m missing) Prices(context.Context, domain.Asset, uint32) ([]domain.PriceData, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, string(m))
}
