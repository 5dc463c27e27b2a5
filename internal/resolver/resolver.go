// Package resolver picks the freshest valid price across sources and rescales it.
// Everything here is a function of its arguments: no clock, no caching.
package resolver

import (
	"context"
	"math/big"
	"oraclehub/internal/domain"
	"oraclehub/internal/source"
	"sort"
)

// Handle is one registered oracle in registration order.
type Handle struct {
	ID     string
	Source source.Source
}

type Query struct {
	Asset     domain.Asset
	Timestamp uint64
	MaxAge    uint64
	Decimals  uint32
}

// Skip reasons
const (
	SkipFailed   = "failed"
	SkipMissing  = "missing"
	SkipStale    = "stale"
	SkipFuture   = "future"
	SkipDecimals = "decimals"
)

type Skip struct {
	OracleID string
	Reason   string
	Err      error
}

type Result struct {
	Price    domain.PriceData
	OracleID string
	Skipped  []Skip
}

// Window returns the inclusive [from, to] range of acceptable observation times.
func (q Query) Window() (from, to uint64) {
	if q.MaxAge < q.Timestamp {
		from = q.Timestamp - q.MaxAge
	}
	return from, q.Timestamp
}

func (q Query) check(ts uint64) string {
	from, to := q.Window()
	switch {
	case ts > to:
		return SkipFuture
	case ts < from:
		return SkipStale
	}
	return ""
}

type candidate struct {
	id       string
	price    domain.PriceData
	decimals uint32
}

// Resolve asks every handle for its latest price and keeps the greatest timestamp inside
// the query window; on a tie the earlier handle wins. Failing sources are skipped.
func Resolve(ctx context.Context, handles []Handle, q Query) (Result, error) {
	const op = "price"

	var (
		best    *candidate
		skipped []Skip
	)

	for _, h := range handles {
		p, err := h.Source.LastPrice(ctx, q.Asset)
		if err != nil {
			skipped = append(skipped, Skip{OracleID: h.ID, Reason: SkipFailed, Err: err})
			continue
		}
		if p == nil || p.Price == nil {
			skipped = append(skipped, Skip{OracleID: h.ID, Reason: SkipMissing})
			continue
		}
		if reason := q.check(p.Timestamp); reason != "" {
			skipped = append(skipped, Skip{OracleID: h.ID, Reason: reason})
			continue
		}
		dec, err := h.Source.Decimals(ctx)
		if err != nil {
			skipped = append(skipped, Skip{OracleID: h.ID, Reason: SkipDecimals, Err: err})
			continue
		}

		if best == nil || p.Timestamp > best.price.Timestamp {
			best = &candidate{id: h.ID, price: *p, decimals: dec}
		}
	}

	if best == nil {
		return Result{Skipped: skipped}, domain.Errorf(op, domain.ErrStaleOrMissing, "%s at %d", q.Asset, q.Timestamp)
	}

	scaled, err := Rescale(best.price.Price, best.decimals, q.Decimals)
	if err != nil {
		return Result{Skipped: skipped}, err
	}

	return Result{
		Price:    domain.PriceData{Price: scaled, Timestamp: best.price.Timestamp},
		OracleID: best.id,
		Skipped:  skipped,
	}, nil
}

// ResolveHistory merges each handle's recent history: records outside the query window are
// dropped, each timestamp keeps the earliest handle's record, output is newest first.
func ResolveHistory(ctx context.Context, handles []Handle, q Query, records uint32) ([]domain.PriceData, []Skip, error) {
	const op = "prices"

	var skipped []Skip
	merged := make(map[uint64]domain.PriceData, records)

	for _, h := range handles {
		history, err := h.Source.Prices(ctx, q.Asset, records)
		if err != nil {
			skipped = append(skipped, Skip{OracleID: h.ID, Reason: SkipFailed, Err: err})
			continue
		}
		if len(history) == 0 {
			skipped = append(skipped, Skip{OracleID: h.ID, Reason: SkipMissing})
			continue
		}
		dec, err := h.Source.Decimals(ctx)
		if err != nil {
			skipped = append(skipped, Skip{OracleID: h.ID, Reason: SkipDecimals, Err: err})
			continue
		}

		for _, rec := range history {
			if rec.Price == nil || q.check(rec.Timestamp) != "" {
				continue
			}
			if _, taken := merged[rec.Timestamp]; taken {
				continue
			}
			scaled, err := Rescale(rec.Price, dec, q.Decimals)
			if err != nil {
				return nil, skipped, err
			}
			merged[rec.Timestamp] = domain.PriceData{Price: scaled, Timestamp: rec.Timestamp}
		}
	}

	if len(merged) == 0 {
		return nil, skipped, domain.Errorf(op, domain.ErrStaleOrMissing, "%s at %d", q.Asset, q.Timestamp)
	}

	out := make([]domain.PriceData, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if uint32(len(out)) > records {
		out = out[:records]
	}
	return out, skipped, nil
}

// Identity is the price of a base asset: exactly one unit at the given precision.
func Identity(decimals uint32, ts uint64) domain.PriceData {
	return domain.PriceData{Price: domain.Pow10(decimals), Timestamp: ts}
}

// Rescale converts p from one precision to another. Going down truncates toward zero;
// going up fails with ArithmeticOverflow when the result leaves the int128 range.
func Rescale(p *big.Int, from, to uint32) (*big.Int, error) {
	const op = "rescale"

	if !domain.FitsInt128(p) {
		return nil, domain.Errorf(op, domain.ErrArithmeticOverflow, "input %v outside int128", p)
	}

	switch {
	case from == to:
		return new(big.Int).Set(p), nil
	case from > to:
		return new(big.Int).Quo(p, domain.Pow10(from-to)), nil
	}

	out := new(big.Int).Mul(p, domain.Pow10(to-from))
	if !domain.FitsInt128(out) {
		return nil, domain.Errorf(op, domain.ErrArithmeticOverflow, "%s * 10^%d", p, to-from)
	}
	return out, nil
}
