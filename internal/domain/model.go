package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

// MaxDecimals bounds the precision a component may declare.
const MaxDecimals = 18

var (
	one = big.NewInt(1)

	// MaxInt128 = 2^127 - 1
	MaxInt128 = new(big.Int).Sub(new(big.Int).Lsh(one, 127), one)
	// MinInt128 = -2^127
	MinInt128 = new(big.Int).Neg(new(big.Int).Lsh(one, 127))
)

// FitsInt128 reports whether v is inside the signed 128-bit range.
func FitsInt128(v *big.Int) bool {
	return v != nil && v.Cmp(MinInt128) >= 0 && v.Cmp(MaxInt128) <= 0
}

func Pow10(n uint32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ParsePrice parses a base-10 integer and checks it fits the signed 128-bit range.
func ParsePrice(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidPrice, s)
	}
	if !FitsInt128(v) {
		return nil, fmt.Errorf("%w: %s overflows int128", ErrInvalidPrice, s)
	}
	return v, nil
}

// PriceData is one observation: Price in the owner's decimals, Timestamp in unix seconds.
type PriceData struct {
	Price     *big.Int
	Timestamp uint64
}

func NewPriceData(price int64, ts uint64) PriceData {
	return PriceData{Price: big.NewInt(price), Timestamp: ts}
}

func (p PriceData) Clone() PriceData {
	out := PriceData{Timestamp: p.Timestamp}
	if p.Price != nil {
		out.Price = new(big.Int).Set(p.Price)
	}
	return out
}

func (p PriceData) Equal(o PriceData) bool {
	if p.Timestamp != o.Timestamp {
		return false
	}
	if p.Price == nil || o.Price == nil {
		return p.Price == o.Price
	}
	return p.Price.Cmp(o.Price) == 0
}

type priceDataJSON struct {
	Price     string `json:"price"`
	Timestamp uint64 `json:"timestamp"`
}

// MarshalJSON writes the price as a decimal string so 128-bit values survive JS consumers.
func (p PriceData) MarshalJSON() ([]byte, error) {
	out := priceDataJSON{Timestamp: p.Timestamp, Price: "0"}
	if p.Price != nil {
		out.Price = p.Price.String()
	}
	return json.Marshal(out)
}

func (p *PriceData) UnmarshalJSON(b []byte) error {
	var raw struct {
		Price     json.RawMessage `json:"price"`
		Timestamp uint64          `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	s := string(raw.Price)
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}

	v, err := ParsePrice(s)
	if err != nil {
		return err
	}

	p.Price = v
	p.Timestamp = raw.Timestamp
	return nil
}

type EventKind string

const (
	EventInitialized    EventKind = "initialized"
	EventPriceSet       EventKind = "price_set"
	EventAdminProposed  EventKind = "admin_proposed"
	EventAdminChanged   EventKind = "admin_changed"
	EventOracleAdded    EventKind = "oracle_added"
	EventAssetAdded     EventKind = "asset_added"
	EventBaseAssetAdded EventKind = "base_asset_added"
)

// Event is emitted on every successful mutation. Events are append-only and never read back internally.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	Component string    `json:"component"`
	Asset     *Asset    `json:"asset,omitempty"`
	Price     *big.Int  `json:"price,omitempty"`
	Timestamp uint64    `json:"timestamp,omitempty"`
	Target    string    `json:"target,omitempty"` // new admin, oracle id
	Actor     Address   `json:"actor"`
	EmittedAt time.Time `json:"emitted_at"`
}

// MarshalJSON writes Price as a decimal string, the same way PriceData does.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	out := struct {
		plain
		Price string `json:"price,omitempty"`
	}{plain: plain(e)}
	if e.Price != nil {
		out.Price = e.Price.String()
	}
	return json.Marshal(out)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	type plain Event
	aux := struct {
		*plain
		Price string `json:"price,omitempty"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	e.Price = nil
	if aux.Price == "" {
		return nil
	}
	v, err := ParsePrice(aux.Price)
	if err != nil {
		return err
	}
	e.Price = v
	return nil
}

func (e Event) Subject(prefix string) string {
	if prefix == "" {
		return e.Component + "." + string(e.Kind)
	}
	return prefix + "." + e.Component + "." + string(e.Kind)
}
