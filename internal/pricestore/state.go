package pricestore

import (
	"math/big"
	"oraclehub/internal/access"
	"oraclehub/internal/domain"
)

// OutOfOrder decides what happens to a write older than an asset's latest record.
type OutOfOrder string

const (
	RejectOlder OutOfOrder = "reject"
	AcceptOlder OutOfOrder = "accept"
)

func (p OutOfOrder) Valid() bool {
	return p == RejectOlder || p == AcceptOlder
}

// Params is the one-time configuration of a store.
type Params struct {
	Admin      domain.Address
	Assets     []domain.Asset
	Decimals   uint32
	Resolution uint32
	Depth      int
	OutOfOrder OutOfOrder
}

// State is everything one store persists. Operations on it are pure: they validate the whole
// request before touching any field, so a returned error means nothing changed.
type State struct {
	Initialized   bool
	Admin         access.Admin
	Assets        []domain.Asset
	Decimals      uint32
	Resolution    uint32
	Depth         int
	OutOfOrder    OutOfOrder
	LastTimestamp uint64
	History       map[domain.Asset]*History
}

func (s *State) Init(p Params) ([]domain.Event, error) {
	const op = "init"

	if s.Initialized {
		return nil, domain.E(op, domain.ErrAlreadyInitialized)
	}
	if p.Admin == "" {
		return nil, domain.Errorf(op, domain.ErrInvalidConfig, "admin is required")
	}
	if len(p.Assets) == 0 {
		return nil, domain.Errorf(op, domain.ErrInvalidAssets, "asset list is empty")
	}
	seen := make(map[domain.Asset]struct{}, len(p.Assets))
	for _, a := range p.Assets {
		if err := a.Validate(); err != nil {
			return nil, domain.Errorf(op, domain.ErrInvalidAssets, "%v", err)
		}
		if _, dup := seen[a]; dup {
			return nil, domain.Errorf(op, domain.ErrInvalidAssets, "duplicate asset %s", a)
		}
		seen[a] = struct{}{}
	}
	if p.Resolution == 0 {
		return nil, domain.Errorf(op, domain.ErrInvalidConfig, "resolution must be positive")
	}
	if p.Decimals > domain.MaxDecimals {
		return nil, domain.Errorf(op, domain.ErrInvalidConfig, "decimals %d above %d", p.Decimals, domain.MaxDecimals)
	}
	if p.Depth <= 0 {
		p.Depth = DefaultDepth
	}
	if p.OutOfOrder == "" {
		p.OutOfOrder = RejectOlder
	}
	if !p.OutOfOrder.Valid() {
		return nil, domain.Errorf(op, domain.ErrInvalidConfig, "unknown out-of-order policy %q", p.OutOfOrder)
	}

	*s = State{
		Initialized: true,
		Admin:       access.New(p.Admin),
		Assets:      append([]domain.Asset(nil), p.Assets...),
		Decimals:    p.Decimals,
		Resolution:  p.Resolution,
		Depth:       p.Depth,
		OutOfOrder:  p.OutOfOrder,
		History:     make(map[domain.Asset]*History, len(p.Assets)),
	}

	return []domain.Event{{Kind: domain.EventInitialized, Target: string(p.Admin), Actor: p.Admin}}, nil
}

// SetPrice writes prices[i] for Assets[i], all at ts.
func (s *State) SetPrice(caller domain.Address, prices []*big.Int, ts uint64) ([]domain.Event, error) {
	const op = "set_price"

	if err := s.authorize(op, caller); err != nil {
		return nil, err
	}
	if err := s.checkTimestamp(op, ts); err != nil {
		return nil, err
	}
	if len(prices) != len(s.Assets) {
		return nil, domain.Errorf(op, domain.ErrLengthMismatch, "got %d prices for %d assets", len(prices), len(s.Assets))
	}
	return s.write(op, caller, s.Assets, prices, ts)
}

// SetPrices writes prices[i] for assets[i]; assets is any subset of the configured list.
func (s *State) SetPrices(caller domain.Address, assets []domain.Asset, prices []*big.Int, ts uint64) ([]domain.Event, error) {
	const op = "set_prices"

	if err := s.authorize(op, caller); err != nil {
		return nil, err
	}
	if err := s.checkTimestamp(op, ts); err != nil {
		return nil, err
	}
	if len(assets) != len(prices) {
		return nil, domain.Errorf(op, domain.ErrLengthMismatch, "got %d prices for %d assets", len(prices), len(assets))
	}
	seen := make(map[domain.Asset]struct{}, len(assets))
	for _, a := range assets {
		if !domain.ContainsAsset(s.Assets, a) {
			return nil, domain.Errorf(op, domain.ErrAssetNotFound, "%s", a)
		}
		if _, dup := seen[a]; dup {
			return nil, domain.Errorf(op, domain.ErrInvalidAssets, "duplicate asset %s", a)
		}
		seen[a] = struct{}{}
	}
	return s.write(op, caller, assets, prices, ts)
}

func (s *State) authorize(op string, caller domain.Address) error {
	if !s.Initialized {
		return domain.E(op, domain.ErrNotInitialized)
	}
	return s.Admin.Require(op, caller)
}

// checkTimestamp runs ahead of every other argument check.
func (s *State) checkTimestamp(op string, ts uint64) error {
	if ts == 0 || ts%uint64(s.Resolution) != 0 {
		return domain.Errorf(op, domain.ErrInvalidTimestamp, "%d is not a positive multiple of %d", ts, s.Resolution)
	}
	return nil
}

func (s *State) write(op string, caller domain.Address, assets []domain.Asset, prices []*big.Int, ts uint64) ([]domain.Event, error) {
	for i, p := range prices {
		if !domain.FitsInt128(p) {
			return nil, domain.Errorf(op, domain.ErrInvalidPrice, "price #%d outside int128", i)
		}
	}

	allowOlder := s.OutOfOrder == AcceptOlder
	for _, a := range assets {
		h, ok := s.History[a]
		if !ok {
			continue
		}
		if err := h.CheckUpsert(domain.PriceData{Timestamp: ts}, allowOlder); err != nil {
			return nil, domain.Errorf(op, domain.ErrInvalidTimestamp, "%s: %v", a, err)
		}
	}

	if s.History == nil {
		s.History = make(map[domain.Asset]*History, len(s.Assets))
	}

	events := make([]domain.Event, 0, len(assets))
	for i, a := range assets {
		h, ok := s.History[a]
		if !ok {
			h = NewHistory(s.Depth)
			s.History[a] = h
		}

		rec := domain.PriceData{Price: new(big.Int).Set(prices[i]), Timestamp: ts}
		// validated above, cannot fail
		if kept, _ := h.Upsert(rec, allowOlder); !kept {
			continue
		}

		asset := a
		events = append(events, domain.Event{
			Kind:      domain.EventPriceSet,
			Asset:     &asset,
			Price:     new(big.Int).Set(prices[i]),
			Timestamp: ts,
			Actor:     caller,
		})
	}

	if ts > s.LastTimestamp {
		s.LastTimestamp = ts
	}
	return events, nil
}

// LastPrice returns nil for an unknown asset or one without records.
func (s *State) LastPrice(asset domain.Asset) (*domain.PriceData, error) {
	if !s.Initialized {
		return nil, domain.E("lastprice", domain.ErrNotInitialized)
	}
	h, ok := s.History[asset]
	if !ok {
		return nil, nil
	}
	p, ok := h.Latest()
	if !ok {
		return nil, nil
	}
	out := p.Clone()
	return &out, nil
}

// Price returns the record written exactly at ts, nil when there is none.
func (s *State) Price(asset domain.Asset, ts uint64) (*domain.PriceData, error) {
	if !s.Initialized {
		return nil, domain.E("price", domain.ErrNotInitialized)
	}
	h, ok := s.History[asset]
	if !ok {
		return nil, nil
	}
	p, ok := h.Find(ts)
	if !ok {
		return nil, nil
	}
	out := p.Clone()
	return &out, nil
}

// Prices returns up to records entries, most recent first.
func (s *State) Prices(asset domain.Asset, records uint32) ([]domain.PriceData, error) {
	if !s.Initialized {
		return nil, domain.E("prices", domain.ErrNotInitialized)
	}
	h, ok := s.History[asset]
	if !ok {
		return []domain.PriceData{}, nil
	}
	return h.Recent(int(records)), nil
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
