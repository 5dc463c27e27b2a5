package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Address identifies a caller (admin, publisher) or a registered source.
type Address string

// AssetKind tags the Asset variant.
type AssetKind uint8

const (
	AssetNative   AssetKind = iota + 1 // protocol-internal symbol
	AssetContract                      // reference to an external tokenized asset
)

func (k AssetKind) String() string {
	switch k {
	case AssetNative:
		return "native"
	case AssetContract:
		return "contract"
	default:
		return "unknown"
	}
}

var ErrInvalidAssetID = errors.New("invalid asset identifier")

// Asset is a closed tagged variant: Native(symbol) or Contract(address).
// Values are comparable and usable as map keys; build them with Native or Contract.
type Asset struct {
	Kind AssetKind
	ID   string
}

func Native(symbol string) Asset {
	return Asset{Kind: AssetNative, ID: symbol}
}

func Contract(address string) Asset {
	return Asset{Kind: AssetContract, ID: address}
}

func (a Asset) IsZero() bool {
	return a.Kind == 0 && a.ID == ""
}

func (a Asset) Validate() error {
	if a.Kind != AssetNative && a.Kind != AssetContract {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidAssetID, a.Kind)
	}
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: empty %s id", ErrInvalidAssetID, a.Kind)
	}
	return nil
}

// String renders the canonical form "<kind>:<id>", e.g. "native:USDC"
func (a Asset) String() string {
	return a.Kind.String() + ":" + a.ID
}

// Compare orders by kind first, then by id.
func (a Asset) Compare(b Asset) int {
	switch {
	case a.Kind < b.Kind:
		return -1
	case a.Kind > b.Kind:
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}

// MarshalText renders the zero Asset as empty text so unset fields round-trip.
func (a Asset) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return []byte(a.String()), nil
}

func (a *Asset) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*a = Asset{}
		return nil
	}
	parsed, err := ParseAsset(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAsset accepts "native:<symbol>" or "contract:<address>"
func ParseAsset(s string) (Asset, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return Asset{}, fmt.Errorf("%w: %q, want <kind>:<id>", ErrInvalidAssetID, s)
	}

	var out Asset
	switch strings.ToLower(parts[0]) {
	case "native":
		out = Native(parts[1])
	case "contract":
		out = Contract(parts[1])
	default:
		return Asset{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidAssetID, parts[0])
	}

	if err := out.Validate(); err != nil {
		return Asset{}, err
	}
	return out, nil
}

// ParseAssets parses a list, stopping on the first malformed entry.
func ParseAssets(ss []string) ([]Asset, error) {
	out := make([]Asset, 0, len(ss))
	for _, s := range ss {
		a, err := ParseAsset(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func ContainsAsset(list []Asset, a Asset) bool {
	return IndexAsset(list, a) >= 0
}

func IndexAsset(list []Asset, a Asset) int {
	for i := range list {
		if list[i] == a {
			return i
		}
	}
	return -1
}
