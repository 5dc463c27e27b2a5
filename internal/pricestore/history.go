package pricestore

import (
	"errors"
	"oraclehub/internal/domain"
	"sort"
)

// DefaultDepth is the number of snapshots retained per asset unless configured otherwise.
const DefaultDepth = 100

var errOlderThanLatest = errors.New("timestamp is older than the latest record")

// History is a fixed-capacity ring of observations for one asset.
// Head points at the most recent record; index 0 of every read is the most recent one.
// Timestamps are unique and strictly decreasing from Head backwards.
type History struct {
	Slots []domain.PriceData
	Head  int
	Len   int
}

func NewHistory(depth int) *History {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &History{Slots: make([]domain.PriceData, depth)}
}

func (h *History) Cap() int {
	return len(h.Slots)
}

// At returns the i-th most recent record.
func (h *History) At(i int) (domain.PriceData, bool) {
	if i < 0 || i >= h.Len {
		return domain.PriceData{}, false
	}
	c := h.Cap()
	return h.Slots[(h.Head-i+c)%c], true
}

func (h *History) Latest() (domain.PriceData, bool) {
	return h.At(0)
}

func (h *History) Find(ts uint64) (domain.PriceData, bool) {
	for i := 0; i < h.Len; i++ {
		p, _ := h.At(i)
		if p.Timestamp == ts {
			return p, true
		}
		if p.Timestamp < ts {
			break
		}
	}
	return domain.PriceData{}, false
}

// Recent copies up to n records, most recent first.
func (h *History) Recent(n int) []domain.PriceData {
	if n > h.Len {
		n = h.Len
	}
	if n <= 0 {
		return []domain.PriceData{}
	}

	out := make([]domain.PriceData, 0, n)
	for i := 0; i < n; i++ {
		p, _ := h.At(i)
		out = append(out, p.Clone())
	}
	return out
}

// Push prepends p, evicting the oldest record when the ring is full.
func (h *History) Push(p domain.PriceData) {
	if h.Cap() == 0 {
		h.Slots = make([]domain.PriceData, DefaultDepth)
	}
	if h.Len > 0 {
		h.Head = (h.Head + 1) % h.Cap()
	}
	h.Slots[h.Head] = p
	if h.Len < h.Cap() {
		h.Len++
	}
}

// Upsert writes p keeping one record per timestamp. An equal timestamp replaces the record in place.
// A timestamp older than the latest fails unless allowOlder, in which case p is inserted in order.
// kept is false when p is older than everything a full ring retains and was dropped.
func (h *History) Upsert(p domain.PriceData, allowOlder bool) (kept bool, err error) {
	latest, ok := h.Latest()
	switch {
	case !ok || p.Timestamp > latest.Timestamp:
		h.Push(p)
		return true, nil
	case p.Timestamp == latest.Timestamp:
		h.Slots[h.Head] = p
		return true, nil
	case !allowOlder:
		return false, errOlderThanLatest
	}

	c := h.Cap()
	for i := 0; i < h.Len; i++ {
		idx := (h.Head - i + c) % c
		if h.Slots[idx].Timestamp == p.Timestamp {
			h.Slots[idx] = p
			return true, nil
		}
	}

	if h.Len == c {
		if oldest, _ := h.At(c - 1); p.Timestamp < oldest.Timestamp {
			return false, nil
		}
	}

	records := append(h.Recent(h.Len), p)
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp > records[j].Timestamp })
	if len(records) > c {
		records = records[:c]
	}
	h.rebuild(records)
	return true, nil
}

// CheckUpsert reports whether Upsert(p, allowOlder) would succeed, without writing.
func (h *History) CheckUpsert(p domain.PriceData, allowOlder bool) error {
	latest, ok := h.Latest()
	if ok && p.Timestamp < latest.Timestamp && !allowOlder {
		return errOlderThanLatest
	}
	return nil
}

func (h *History) rebuild(newestFirst []domain.PriceData) {
	slots := make([]domain.PriceData, h.Cap())
	n := len(newestFirst)
	for i := 0; i < n; i++ {
		slots[n-1-i] = newestFirst[i]
	}
	h.Slots = slots
	h.Len = n
	h.Head = 0
	if n > 0 {
		h.Head = n - 1
	}
}
