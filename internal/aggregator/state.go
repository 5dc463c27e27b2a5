package aggregator

import (
	"oraclehub/internal/access"
	"oraclehub/internal/domain"
	"slices"
)

type Params struct {
	Admin     domain.Address
	BaseAsset domain.Asset
	Decimals  uint32
	MaxAge    uint64
}

// AssetEntry is a resolvable asset. A non-empty Source pins it to that oracle only.
type AssetEntry struct {
	Asset  domain.Asset `json:"asset"`
	Source string       `json:"source,omitempty"`
}

// State is the persisted registry. Mutations validate first, so an error leaves it untouched.
type State struct {
	Initialized bool
	Admin       access.Admin
	BaseAsset   domain.Asset
	Decimals    uint32
	MaxAge      uint64
	Oracles     []string
	Assets      []AssetEntry
	BaseAssets  []domain.Asset
}

func (s *State) Init(p Params) ([]domain.Event, error) {
	const op = "init"

	if s.Initialized {
		return nil, domain.E(op, domain.ErrAlreadyInitialized)
	}
	if p.Admin == "" {
		return nil, domain.Errorf(op, domain.ErrInvalidConfig, "admin is required")
	}
	if err := p.BaseAsset.Validate(); err != nil {
		return nil, domain.Errorf(op, domain.ErrInvalidAssets, "base asset: %v", err)
	}
	if p.Decimals > domain.MaxDecimals {
		return nil, domain.Errorf(op, domain.ErrInvalidConfig, "decimals %d above %d", p.Decimals, domain.MaxDecimals)
	}

	*s = State{
		Initialized: true,
		Admin:       access.New(p.Admin),
		BaseAsset:   p.BaseAsset,
		Decimals:    p.Decimals,
		MaxAge:      p.MaxAge,
	}
	return []domain.Event{{Kind: domain.EventInitialized, Target: string(p.Admin), Actor: p.Admin}}, nil
}

func (s *State) authorize(op string, caller domain.Address) error {
	if !s.Initialized {
		return domain.E(op, domain.ErrNotInitialized)
	}
	return s.Admin.Require(op, caller)
}

// AddOracle appends id unless already registered. The target is not probed here;
// a bad id only shows up as a skipped source when prices are resolved.
func (s *State) AddOracle(caller domain.Address, id string) ([]domain.Event, error) {
	const op = "add_oracle"

	if err := s.authorize(op, caller); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, domain.Errorf(op, domain.ErrInvalidConfig, "empty oracle id")
	}
	if slices.Contains(s.Oracles, id) {
		return nil, nil
	}

	s.Oracles = append(s.Oracles, id)
	return []domain.Event{{Kind: domain.EventOracleAdded, Target: id, Actor: caller}}, nil
}

func (s *State) AddAsset(caller domain.Address, asset domain.Asset) ([]domain.Event, error) {
	return s.addAsset("add_asset", caller, asset, "")
}

// AddAssetWithSource registers asset pinned to one already registered oracle.
// Re-adding an asset with a different oracle moves the pin.
func (s *State) AddAssetWithSource(caller domain.Address, asset domain.Asset, oracleID string) ([]domain.Event, error) {
	return s.addAsset("add_asset", caller, asset, oracleID)
}

func (s *State) addAsset(op string, caller domain.Address, asset domain.Asset, oracleID string) ([]domain.Event, error) {
	if err := s.authorize(op, caller); err != nil {
		return nil, err
	}
	if err := asset.Validate(); err != nil {
		return nil, domain.Errorf(op, domain.ErrInvalidAssets, "%v", err)
	}
	if oracleID != "" && !slices.Contains(s.Oracles, oracleID) {
		return nil, domain.Errorf(op, domain.ErrOracleNotFound, "%s", oracleID)
	}

	if i := s.assetIndex(asset); i >= 0 {
		if oracleID == "" || s.Assets[i].Source == oracleID {
			return nil, nil
		}
		s.Assets[i].Source = oracleID
	} else {
		s.Assets = append(s.Assets, AssetEntry{Asset: asset, Source: oracleID})
	}

	a := asset
	return []domain.Event{{Kind: domain.EventAssetAdded, Asset: &a, Target: oracleID, Actor: caller}}, nil
}

// AddBaseAsset registers asset and pegs it to the base asset.
func (s *State) AddBaseAsset(caller domain.Address, asset domain.Asset) ([]domain.Event, error) {
	const op = "add_base_asset"

	if err := s.authorize(op, caller); err != nil {
		return nil, err
	}
	if err := asset.Validate(); err != nil {
		return nil, domain.Errorf(op, domain.ErrInvalidAssets, "%v", err)
	}

	changed := false
	if s.assetIndex(asset) < 0 {
		s.Assets = append(s.Assets, AssetEntry{Asset: asset})
		changed = true
	}
	if !domain.ContainsAsset(s.BaseAssets, asset) {
		s.BaseAssets = append(s.BaseAssets, asset)
		changed = true
	}
	if !changed {
		return nil, nil
	}

	a := asset
	return []domain.Event{{Kind: domain.EventBaseAssetAdded, Asset: &a, Actor: caller}}, nil
}

func (s *State) ProposeAdmin(caller, next domain.Address) ([]domain.Event, error) {
	if !s.Initialized {
		return nil, domain.E("propose_admin", domain.ErrNotInitialized)
	}
	if err := s.Admin.Propose(caller, next); err != nil {
		return nil, err
	}
	return []domain.Event{{Kind: domain.EventAdminProposed, Target: string(next), Actor: caller}}, nil
}

func (s *State) AcceptAdmin(caller domain.Address) ([]domain.Event, error) {
	if !s.Initialized {
		return nil, domain.E("accept_admin", domain.ErrNotInitialized)
	}
	if _, err := s.Admin.Accept(caller); err != nil {
		return nil, err
	}
	return []domain.Event{{Kind: domain.EventAdminChanged, Target: string(caller), Actor: caller}}, nil
}

func (s *State) SetAdmin(caller, next domain.Address) ([]domain.Event, error) {
	if !s.Initialized {
		return nil, domain.E("set_admin", domain.ErrNotInitialized)
	}
	if err := s.Admin.Set(caller, next); err != nil {
		return nil, err
	}
	return []domain.Event{{Kind: domain.EventAdminChanged, Target: string(next), Actor: caller}}, nil
}

func (s *State) IsBase(asset domain.Asset) bool {
	return asset == s.BaseAsset || domain.ContainsAsset(s.BaseAssets, asset)
}

func (s *State) assetIndex(asset domain.Asset) int {
	for i := range s.Assets {
		if s.Assets[i].Asset == asset {
			return i
		}
	}
	return -1
}

// plan is what one resolution needs from the registry, copied out so sources are
// queried without holding the registry lock.
type plan struct {
	identity bool
	oracles  []string
	decimals uint32
	maxAge   uint64
}

func (s *State) plan(op string, asset domain.Asset) (plan, error) {
	if !s.Initialized {
		return plan{}, domain.E(op, domain.ErrNotInitialized)
	}
	p := plan{decimals: s.Decimals, maxAge: s.MaxAge}
	if s.IsBase(asset) {
		p.identity = true
		return p, nil
	}

	i := s.assetIndex(asset)
	if i < 0 {
		return plan{}, domain.Errorf(op, domain.ErrAssetNotFound, "%s", asset)
	}
	if src := s.Assets[i].Source; src != "" {
		p.oracles = []string{src}
	} else {
		p.oracles = slices.Clone(s.Oracles)
	}
	return p, nil
}
