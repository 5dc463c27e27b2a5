package config

import (
	"errors"
	"fmt"
	"oraclehub/internal/domain"
	"strings"
)

var ErrInvalid = errors.New("invalid config")

// Validate checks the oracle topology: ids are unique, assets parse, and the aggregator
// references only oracles that exist.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Ledger.Backend {
	case "redis", "memory":
	default:
		add("ledger.backend %q, want redis|memory", c.Ledger.Backend)
	}

	if c.Dedupe.Enabled {
		switch c.Dedupe.Backend {
		case "redis", "memory":
		default:
			add("dedupe.backend %q, want redis|memory", c.Dedupe.Backend)
		}
	}

	ids := make(map[string]struct{}, len(c.Oracle.Stores)+len(c.Oracle.Remote))
	claim := func(kind, id string) {
		if id == "" {
			add("%s without id", kind)
			return
		}
		if _, dup := ids[id]; dup {
			add("duplicate source id %q", id)
		}
		ids[id] = struct{}{}
	}

	for i, s := range c.Oracle.Stores {
		claim(fmt.Sprintf("stores[%d]", i), s.ID)
		if s.Admin == "" {
			add("store %q: admin is required", s.ID)
		}
		if _, err := domain.ParseAssets(s.Assets); err != nil {
			add("store %q: %v", s.ID, err)
		}
		switch s.OutOfOrder {
		case "", "reject", "accept":
		default:
			add("store %q: out_of_order %q, want reject|accept", s.ID, s.OutOfOrder)
		}
	}

	for i, r := range c.Oracle.Remote {
		claim(fmt.Sprintf("remote[%d]", i), r.ID)
		if r.URL == "" {
			add("remote %q: url is required", r.ID)
		}
	}

	agg := c.Oracle.Aggregator
	if agg.Admin == "" {
		add("aggregator: admin is required")
	}
	if _, err := domain.ParseAsset(agg.BaseAsset); err != nil {
		add("aggregator: base_asset: %v", err)
	}
	if _, err := domain.ParseAssets(agg.BaseAssets); err != nil {
		add("aggregator: base_assets: %v", err)
	}
	for _, a := range agg.Assets {
		if _, err := domain.ParseAsset(a.Asset); err != nil {
			add("aggregator: assets: %v", err)
		}
		if a.Source != "" && !contains(agg.Oracles, a.Source) {
			add("aggregator: asset %s pinned to unlisted oracle %q", a.Asset, a.Source)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
