package pricestore

import (
	"context"
	"errors"
	"math/big"
	"oraclehub/internal/domain"
	"oraclehub/internal/ledger"

	"gitlab.com/nevasik7/alerting/logger"
)

// Info is the read-only view of a store's configuration.
type Info struct {
	ID            string         `json:"id"`
	Admin         domain.Address `json:"admin"`
	PendingAdmin  domain.Address `json:"pending_admin,omitempty"`
	Assets        []domain.Asset `json:"assets"`
	Decimals      uint32         `json:"decimals"`
	Resolution    uint32         `json:"resolution"`
	HistoryDepth  int            `json:"history_depth"`
	OutOfOrder    OutOfOrder     `json:"out_of_order"`
	LastTimestamp uint64         `json:"last_timestamp"`
}

// Store hosts one price store: every call loads the persisted state, runs one operation
// and commits the result as a single snapshot write.
type Store struct {
	id   string
	cell *ledger.Cell[State]
	log  logger.Logger
}

func New(id string, l ledger.Ledger, log logger.Logger) (*Store, error) {
	if id == "" {
		return nil, errors.New("store id is required")
	}
	if l == nil {
		return nil, errors.New("ledger is required to the price store")
	}
	return &Store{id: id, cell: ledger.NewCell[State](l, "store:"+id), log: log}, nil
}

func (s *Store) ID() string {
	return s.id
}

func (s *Store) Init(ctx context.Context, p Params) ([]domain.Event, error) {
	return s.mutate(ctx, "init", func(st *State) ([]domain.Event, error) { return st.Init(p) })
}

func (s *Store) SetPrice(ctx context.Context, caller domain.Address, prices []*big.Int, ts uint64) ([]domain.Event, error) {
	return s.mutate(ctx, "set_price", func(st *State) ([]domain.Event, error) { return st.SetPrice(caller, prices, ts) })
}

func (s *Store) SetPrices(ctx context.Context, caller domain.Address, assets []domain.Asset, prices []*big.Int, ts uint64) ([]domain.Event, error) {
	return s.mutate(ctx, "set_prices", func(st *State) ([]domain.Event, error) {
		return st.SetPrices(caller, assets, prices, ts)
	})
}

func (s *Store) ProposeAdmin(ctx context.Context, caller, next domain.Address) ([]domain.Event, error) {
	return s.mutate(ctx, "propose_admin", func(st *State) ([]domain.Event, error) { return st.ProposeAdmin(caller, next) })
}

func (s *Store) AcceptAdmin(ctx context.Context, caller domain.Address) ([]domain.Event, error) {
	return s.mutate(ctx, "accept_admin", func(st *State) ([]domain.Event, error) { return st.AcceptAdmin(caller) })
}

func (s *Store) SetAdmin(ctx context.Context, caller, next domain.Address) ([]domain.Event, error) {
	return s.mutate(ctx, "set_admin", func(st *State) ([]domain.Event, error) { return st.SetAdmin(caller, next) })
}

func (s *Store) LastPrice(ctx context.Context, asset domain.Asset) (out *domain.PriceData, err error) {
	err = s.cell.View(ctx, func(st *State) error {
		out, err = st.LastPrice(asset)
		return err
	})
	return out, err
}

func (s *Store) Price(ctx context.Context, asset domain.Asset, ts uint64) (out *domain.PriceData, err error) {
	err = s.cell.View(ctx, func(st *State) error {
		out, err = st.Price(asset, ts)
		return err
	})
	return out, err
}

func (s *Store) Prices(ctx context.Context, asset domain.Asset, records uint32) (out []domain.PriceData, err error) {
	err = s.cell.View(ctx, func(st *State) error {
		out, err = st.Prices(asset, records)
		return err
	})
	return out, err
}

func (s *Store) Decimals(ctx context.Context) (uint32, error) {
	info, err := s.Info(ctx)
	return info.Decimals, err
}

func (s *Store) Resolution(ctx context.Context) (uint32, error) {
	info, err := s.Info(ctx)
	return info.Resolution, err
}

func (s *Store) Admin(ctx context.Context) (domain.Address, error) {
	info, err := s.Info(ctx)
	return info.Admin, err
}

func (s *Store) LastTimestamp(ctx context.Context) (uint64, error) {
	info, err := s.Info(ctx)
	return info.LastTimestamp, err
}

func (s *Store) Assets(ctx context.Context) ([]domain.Asset, error) {
	info, err := s.Info(ctx)
	return info.Assets, err
}

func (s *Store) Info(ctx context.Context) (info Info, err error) {
	err = s.cell.View(ctx, func(st *State) error {
		if !st.Initialized {
			return domain.E("config", domain.ErrNotInitialized)
		}
		info = Info{
			ID:            s.id,
			Admin:         st.Admin.Current,
			PendingAdmin:  st.Admin.Pending,
			Assets:        append([]domain.Asset(nil), st.Assets...),
			Decimals:      st.Decimals,
			Resolution:    st.Resolution,
			HistoryDepth:  st.Depth,
			OutOfOrder:    st.OutOfOrder,
			LastTimestamp: st.LastTimestamp,
		}
		return nil
	})
	return info, err
}

// Snapshot returns the committed state bytes, nil before the first commit.
func (s *Store) Snapshot(ctx context.Context) ([]byte, error) {
	return s.cell.Raw(ctx)
}

func (s *Store) mutate(ctx context.Context, op string, fn func(st *State) ([]domain.Event, error)) ([]domain.Event, error) {
	var events []domain.Event
	err := s.cell.Update(ctx, func(st *State) error {
		var err error
		events, err = fn(st)
		return err
	})
	if err != nil {
		s.log.Debugf("Store %s: %s rejected, error=%v", s.id, op, err)
		return nil, err
	}

	for i := range events {
		events[i].Component = s.id
	}
	s.log.Debugf("Store %s: %s committed, events=%d", s.id, op, len(events))
	return events, nil
}
