// Package aggregator hosts the oracle registry and serves one canonical price per asset.
package aggregator

import (
	"context"
	"errors"
	"oraclehub/internal/domain"
	"oraclehub/internal/ledger"
	"oraclehub/internal/resolver"
	"oraclehub/internal/source"

	"gitlab.com/nevasik7/alerting/logger"
)

type Info struct {
	ID           string         `json:"id"`
	Admin        domain.Address `json:"admin"`
	PendingAdmin domain.Address `json:"pending_admin,omitempty"`
	BaseAsset    domain.Asset   `json:"base_asset"`
	Decimals     uint32         `json:"decimals"`
	MaxAge       uint64         `json:"max_age"`
	Oracles      []string       `json:"oracles"`
	Assets       []AssetEntry   `json:"assets"`
	BaseAssets   []domain.Asset `json:"base_assets"`
}

type Aggregator struct {
	id   string
	cell *ledger.Cell[State]
	dir  *source.Directory
	log  logger.Logger
}

func New(id string, l ledger.Ledger, dir *source.Directory, log logger.Logger) (*Aggregator, error) {
	if id == "" {
		return nil, errors.New("aggregator id is required")
	}
	if l == nil || dir == nil {
		return nil, errors.New("ledger and source directory are required to the aggregator")
	}
	return &Aggregator{id: id, cell: ledger.NewCell[State](l, "aggregator:"+id), dir: dir, log: log}, nil
}

func (a *Aggregator) ID() string {
	return a.id
}

func (a *Aggregator) Init(ctx context.Context, p Params) ([]domain.Event, error) {
	return a.mutate(ctx, "init", func(st *State) ([]domain.Event, error) { return st.Init(p) })
}

func (a *Aggregator) AddOracle(ctx context.Context, caller domain.Address, id string) ([]domain.Event, error) {
	return a.mutate(ctx, "add_oracle", func(st *State) ([]domain.Event, error) { return st.AddOracle(caller, id) })
}

func (a *Aggregator) AddAsset(ctx context.Context, caller domain.Address, asset domain.Asset) ([]domain.Event, error) {
	return a.mutate(ctx, "add_asset", func(st *State) ([]domain.Event, error) { return st.AddAsset(caller, asset) })
}

func (a *Aggregator) AddAssetWithSource(ctx context.Context, caller domain.Address, asset domain.Asset, oracleID string) ([]domain.Event, error) {
	return a.mutate(ctx, "add_asset", func(st *State) ([]domain.Event, error) {
		return st.AddAssetWithSource(caller, asset, oracleID)
	})
}

func (a *Aggregator) AddBaseAsset(ctx context.Context, caller domain.Address, asset domain.Asset) ([]domain.Event, error) {
	return a.mutate(ctx, "add_base_asset", func(st *State) ([]domain.Event, error) { return st.AddBaseAsset(caller, asset) })
}

func (a *Aggregator) ProposeAdmin(ctx context.Context, caller, next domain.Address) ([]domain.Event, error) {
	return a.mutate(ctx, "propose_admin", func(st *State) ([]domain.Event, error) { return st.ProposeAdmin(caller, next) })
}

func (a *Aggregator) AcceptAdmin(ctx context.Context, caller domain.Address) ([]domain.Event, error) {
	return a.mutate(ctx, "accept_admin", func(st *State) ([]domain.Event, error) { return st.AcceptAdmin(caller) })
}

func (a *Aggregator) SetAdmin(ctx context.Context, caller, next domain.Address) ([]domain.Event, error) {
	return a.mutate(ctx, "set_admin", func(st *State) ([]domain.Event, error) { return st.SetAdmin(caller, next) })
}

// Price resolves asset as of ts. Base assets answer with the identity price without
// touching any source.
func (a *Aggregator) Price(ctx context.Context, asset domain.Asset, ts uint64) (resolver.Result, error) {
	p, err := a.plan(ctx, "price", asset)
	if err != nil {
		return resolver.Result{}, err
	}
	if p.identity {
		return resolver.Result{Price: resolver.Identity(p.decimals, ts)}, nil
	}

	res, err := resolver.Resolve(ctx, a.handles(p), a.query(p, asset, ts))
	for _, s := range res.Skipped {
		a.log.Debugf("Aggregator %s: skipped oracle %s for %s, reason=%s, error=%v", a.id, s.OracleID, asset, s.Reason, s.Err)
	}
	return res, err
}

// Prices returns up to records resolved prices, newest first.
func (a *Aggregator) Prices(ctx context.Context, asset domain.Asset, records uint32, ts uint64) ([]domain.PriceData, error) {
	p, err := a.plan(ctx, "prices", asset)
	if err != nil {
		return nil, err
	}
	if records == 0 {
		return []domain.PriceData{}, nil
	}
	if p.identity {
		return []domain.PriceData{resolver.Identity(p.decimals, ts)}, nil
	}

	out, skipped, err := resolver.ResolveHistory(ctx, a.handles(p), a.query(p, asset, ts), records)
	for _, s := range skipped {
		a.log.Debugf("Aggregator %s: skipped oracle %s history for %s, reason=%s, error=%v", a.id, s.OracleID, asset, s.Reason, s.Err)
	}
	return out, err
}

func (a *Aggregator) Decimals(ctx context.Context) (uint32, error) {
	info, err := a.Info(ctx)
	return info.Decimals, err
}

func (a *Aggregator) BaseAsset(ctx context.Context) (domain.Asset, error) {
	info, err := a.Info(ctx)
	return info.BaseAsset, err
}

func (a *Aggregator) MaxAge(ctx context.Context) (uint64, error) {
	info, err := a.Info(ctx)
	return info.MaxAge, err
}

func (a *Aggregator) Oracles(ctx context.Context) ([]string, error) {
	info, err := a.Info(ctx)
	return info.Oracles, err
}

func (a *Aggregator) Assets(ctx context.Context) ([]AssetEntry, error) {
	info, err := a.Info(ctx)
	return info.Assets, err
}

func (a *Aggregator) Admin(ctx context.Context) (domain.Address, error) {
	info, err := a.Info(ctx)
	return info.Admin, err
}

func (a *Aggregator) Info(ctx context.Context) (info Info, err error) {
	err = a.cell.View(ctx, func(st *State) error {
		if !st.Initialized {
			return domain.E("config", domain.ErrNotInitialized)
		}
		info = Info{
			ID:           a.id,
			Admin:        st.Admin.Current,
			PendingAdmin: st.Admin.Pending,
			BaseAsset:    st.BaseAsset,
			Decimals:     st.Decimals,
			MaxAge:       st.MaxAge,
			Oracles:      append([]string{}, st.Oracles...),
			Assets:       append([]AssetEntry{}, st.Assets...),
			BaseAssets:   append([]domain.Asset{}, st.BaseAssets...),
		}
		return nil
	})
	return info, err
}

func (a *Aggregator) Snapshot(ctx context.Context) ([]byte, error) {
	return a.cell.Raw(ctx)
}

func (a *Aggregator) plan(ctx context.Context, op string, asset domain.Asset) (p plan, err error) {
	err = a.cell.View(ctx, func(st *State) error {
		p, err = st.plan(op, asset)
		return err
	})
	return p, err
}

func (a *Aggregator) handles(p plan) []resolver.Handle {
	out := make([]resolver.Handle, 0, len(p.oracles))
	for _, id := range p.oracles {
		out = append(out, resolver.Handle{ID: id, Source: a.dir.Resolve(id)})
	}
	return out
}

func (a *Aggregator) query(p plan, asset domain.Asset, ts uint64) resolver.Query {
	return resolver.Query{Asset: asset, Timestamp: ts, MaxAge: p.maxAge, Decimals: p.decimals}
}

func (a *Aggregator) mutate(ctx context.Context, op string, fn func(st *State) ([]domain.Event, error)) ([]domain.Event, error) {
	var events []domain.Event
	err := a.cell.Update(ctx, func(st *State) error {
		var err error
		events, err = fn(st)
		return err
	})
	if err != nil {
		a.log.Debugf("Aggregator %s: %s rejected, error=%v", a.id, op, err)
		return nil, err
	}

	for i := range events {
		events[i].Component = a.id
	}
	a.log.Debugf("Aggregator %s: %s committed, events=%d", a.id, op, len(events))
	return events, nil
}
