package pricestore

import (
	"oraclehub/internal/domain"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timestamps(records []domain.PriceData) []uint64 {
	out := make([]uint64, 0, len(records))
	for _, r := range records {
		out = append(out, r.Timestamp)
	}
	return out
}

func TestHistory_PushEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for ts := uint64(60); ts <= 300; ts += 60 {
		h.Push(domain.NewPriceData(int64(ts), ts))
	}

	assert.Equal(t, 3, h.Len)
	assert.Equal(t, []uint64{300, 240, 180}, timestamps(h.Recent(10)))

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, "300", latest.Price.String())

	_, ok = h.At(3)
	assert.False(t, ok)
}

func TestHistory_UpsertSameTimestampReplaces(t *testing.T) {
	h := NewHistory(4)
	_, err := h.Upsert(domain.NewPriceData(1, 60), false)
	require.NoError(t, err)
	kept, err := h.Upsert(domain.NewPriceData(2, 60), false)
	require.NoError(t, err)
	assert.True(t, kept)

	assert.Equal(t, 1, h.Len)
	latest, _ := h.Latest()
	assert.Equal(t, "2", latest.Price.String())
}

func TestHistory_UpsertOlder(t *testing.T) {
	tests := []struct {
		name       string
		allowOlder bool
		depth      int
		write      uint64
		wantErr    bool
		wantKept   bool
		want       []uint64
	}{
		{name: "reject policy", write: 90, depth: 4, wantErr: true, want: []uint64{180, 120, 60}},
		{name: "accept inserts sorted", allowOlder: true, depth: 4, write: 90, wantKept: true, want: []uint64{180, 120, 90, 60}},
		{name: "accept replaces existing", allowOlder: true, depth: 4, write: 120, wantKept: true, want: []uint64{180, 120, 60}},
		{name: "accept drops what a full ring cannot hold", allowOlder: true, depth: 3, write: 30, want: []uint64{180, 120, 60}},
		{name: "accept evicts oldest when full", allowOlder: true, depth: 3, write: 90, wantKept: true, want: []uint64{180, 120, 90}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistory(tt.depth)
			for _, ts := range []uint64{60, 120, 180} {
				_, err := h.Upsert(domain.NewPriceData(int64(ts), ts), false)
				require.NoError(t, err)
			}

			kept, err := h.Upsert(domain.NewPriceData(7, tt.write), tt.allowOlder)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantKept, kept)
			assert.Equal(t, tt.want, timestamps(h.Recent(10)))
		})
	}
}

func TestHistory_FindAfterWrap(t *testing.T) {
	h := NewHistory(2)
	for _, ts := range []uint64{10, 20, 30} {
		h.Push(domain.NewPriceData(int64(ts*2), ts))
	}

	p, ok := h.Find(20)
	require.True(t, ok)
	assert.Equal(t, "40", p.Price.String())

	_, ok = h.Find(10)
	assert.False(t, ok, "evicted record must not be found")
}

func TestHistory_RecentReturnsCopies(t *testing.T) {
	h := NewHistory(2)
	h.Push(domain.NewPriceData(5, 1))

	got := h.Recent(1)
	got[0].Price.SetInt64(99)

	latest, _ := h.Latest()
	assert.Equal(t, "5", latest.Price.String())
	assert.Empty(t, NewHistory(2).Recent(5))
}
