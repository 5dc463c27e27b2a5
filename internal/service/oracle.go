package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"oraclehub/internal/aggregator"
	"oraclehub/internal/domain"
	"oraclehub/internal/metrics"
	"oraclehub/internal/pricestore"
	"oraclehub/internal/pubsub"
	"oraclehub/internal/resolver"
	"oraclehub/internal/stores/clickhouse"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
)

var (
	ErrStoreNotFound   = errors.New("store not found")
	ErrUnknownAdminOp  = errors.New("unknown admin operation")
	ErrMissingNewAdmin = errors.New("new admin address is required")
)

// AdminOp names a step of the admin handover.
type AdminOp string

const (
	AdminPropose AdminOp = "propose"
	AdminAccept  AdminOp = "accept"
	AdminSet     AdminOp = "set"
)

// HealthChecker is an infra dependency probed by readiness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// OracleService is the single entry point for HTTP, bootstrap and the monitor.
// It runs the component operation, then fans the resulting events out:
// NATS broadcast and the ClickHouse archive are best effort and never fail a committed write.
type OracleService struct {
	log         logger.Logger
	stores      map[string]*pricestore.Store
	order       []string
	agg         *aggregator.Aggregator
	broadcaster pubsub.Broadcaster
	archive     clickhouse.PriceWriter // nil when the archive is disabled
	metrics     *metrics.Metrics
	deps        map[string]HealthChecker
	now         func() time.Time
}

type Deps struct {
	Log         logger.Logger
	Stores      []*pricestore.Store
	Aggregator  *aggregator.Aggregator
	Broadcaster pubsub.Broadcaster
	Archive     clickhouse.PriceWriter
	Metrics     *metrics.Metrics
	Health      map[string]HealthChecker
	Now         func() time.Time
}

func NewOracleService(d Deps) (*OracleService, error) {
	if d.Log == nil {
		return nil, errors.New("logger is required to the oracle service")
	}
	if d.Aggregator == nil {
		return nil, errors.New("aggregator is required to the oracle service")
	}

	s := &OracleService{
		log:         d.Log,
		stores:      make(map[string]*pricestore.Store, len(d.Stores)),
		agg:         d.Aggregator,
		broadcaster: d.Broadcaster,
		archive:     d.Archive,
		metrics:     d.Metrics,
		deps:        d.Health,
		now:         d.Now,
	}
	for _, st := range d.Stores {
		if _, dup := s.stores[st.ID()]; dup {
			return nil, fmt.Errorf("duplicate store %s", st.ID())
		}
		s.stores[st.ID()] = st
		s.order = append(s.order, st.ID())
	}
	// sane defaults
	if s.broadcaster == nil {
		s.broadcaster = pubsub.Noop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Now is the wall clock used when a caller asks for "the current" price.
func (s *OracleService) Now() uint64 {
	return uint64(s.now().Unix())
}

func (s *OracleService) Aggregator() *aggregator.Aggregator {
	return s.agg
}

func (s *OracleService) Store(id string) (*pricestore.Store, error) {
	st, ok := s.stores[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, id)
	}
	return st, nil
}

// Stores lists every store's configuration; stores not yet initialized are omitted.
func (s *OracleService) Stores(ctx context.Context) ([]pricestore.Info, error) {
	out := make([]pricestore.Info, 0, len(s.order))
	for _, id := range s.order {
		info, err := s.stores[id].Info(ctx)
		if errors.Is(err, domain.ErrNotInitialized) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (s *OracleService) StoreInfo(ctx context.Context, id string) (pricestore.Info, error) {
	st, err := s.Store(id)
	if err != nil {
		return pricestore.Info{}, err
	}
	return st.Info(ctx)
}

func (s *OracleService) StoreDecimals(ctx context.Context, id string) (uint32, error) {
	st, err := s.Store(id)
	if err != nil {
		return 0, err
	}
	return st.Decimals(ctx)
}

func (s *OracleService) AggregatorDecimals(ctx context.Context) (uint32, error) {
	return s.agg.Decimals(ctx)
}

func (s *OracleService) LastPrice(ctx context.Context, id string, asset domain.Asset) (*domain.PriceData, error) {
	st, err := s.Store(id)
	if err != nil {
		return nil, err
	}
	return st.LastPrice(ctx, asset)
}

func (s *OracleService) StorePrice(ctx context.Context, id string, asset domain.Asset, ts uint64) (*domain.PriceData, error) {
	st, err := s.Store(id)
	if err != nil {
		return nil, err
	}
	return st.Price(ctx, asset, ts)
}

func (s *OracleService) StorePrices(ctx context.Context, id string, asset domain.Asset, records uint32) ([]domain.PriceData, error) {
	st, err := s.Store(id)
	if err != nil {
		return nil, err
	}
	return st.Prices(ctx, asset, records)
}

func (s *OracleService) InitStore(ctx context.Context, id string, p pricestore.Params) error {
	st, err := s.Store(id)
	if err != nil {
		return err
	}
	events, err := st.Init(ctx, p)
	s.observe(id, "init", err)
	if err != nil {
		return err
	}
	s.emit(ctx, events, 0)
	return nil
}

func (s *OracleService) SetPrice(ctx context.Context, id string, caller domain.Address, prices []*big.Int, ts uint64) error {
	st, err := s.Store(id)
	if err != nil {
		return err
	}
	events, err := st.SetPrice(ctx, caller, prices, ts)
	s.observe(id, "set_price", err)
	if err != nil {
		return err
	}
	s.emitPrices(ctx, st, events)
	return nil
}

func (s *OracleService) SetPrices(ctx context.Context, id string, caller domain.Address, assets []domain.Asset, prices []*big.Int, ts uint64) error {
	st, err := s.Store(id)
	if err != nil {
		return err
	}
	events, err := st.SetPrices(ctx, caller, assets, prices, ts)
	s.observe(id, "set_prices", err)
	if err != nil {
		return err
	}
	s.emitPrices(ctx, st, events)
	return nil
}

func (s *OracleService) StoreAdmin(ctx context.Context, id string, op AdminOp, caller, next domain.Address) error {
	st, err := s.Store(id)
	if err != nil {
		return err
	}
	return s.admin(ctx, id, op, caller, next, st)
}

func (s *OracleService) AggregatorAdmin(ctx context.Context, op AdminOp, caller, next domain.Address) error {
	return s.admin(ctx, s.agg.ID(), op, caller, next, s.agg)
}

type adminTarget interface {
	ProposeAdmin(ctx context.Context, caller, next domain.Address) ([]domain.Event, error)
	AcceptAdmin(ctx context.Context, caller domain.Address) ([]domain.Event, error)
	SetAdmin(ctx context.Context, caller, next domain.Address) ([]domain.Event, error)
}

func (s *OracleService) admin(ctx context.Context, component string, op AdminOp, caller, next domain.Address, t adminTarget) error {
	var (
		events []domain.Event
		err    error
	)
	switch op {
	case AdminPropose:
		if next == "" {
			return ErrMissingNewAdmin
		}
		events, err = t.ProposeAdmin(ctx, caller, next)
	case AdminAccept:
		events, err = t.AcceptAdmin(ctx, caller)
	case AdminSet:
		if next == "" {
			return ErrMissingNewAdmin
		}
		events, err = t.SetAdmin(ctx, caller, next)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAdminOp, op)
	}

	s.observe(component, string(op)+"_admin", err)
	if err != nil {
		return err
	}
	s.emit(ctx, events, 0)
	return nil
}

func (s *OracleService) AggregatorInfo(ctx context.Context) (aggregator.Info, error) {
	return s.agg.Info(ctx)
}

// TrackedAssets lists the aggregator's sourced assets; base assets always resolve and are left out.
func (s *OracleService) TrackedAssets(ctx context.Context) ([]domain.Asset, error) {
	info, err := s.agg.Info(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Asset, 0, len(info.Assets))
	for _, e := range info.Assets {
		if e.Asset == info.BaseAsset || domain.ContainsAsset(info.BaseAssets, e.Asset) {
			continue
		}
		out = append(out, e.Asset)
	}
	return out, nil
}

func (s *OracleService) InitAggregator(ctx context.Context, p aggregator.Params) error {
	events, err := s.agg.Init(ctx, p)
	s.observe(s.agg.ID(), "init", err)
	if err != nil {
		return err
	}
	s.emit(ctx, events, 0)
	return nil
}

func (s *OracleService) AddOracle(ctx context.Context, caller domain.Address, id string) error {
	events, err := s.agg.AddOracle(ctx, caller, id)
	s.observe(s.agg.ID(), "add_oracle", err)
	if err != nil {
		return err
	}
	s.emit(ctx, events, 0)
	return nil
}

// AddAsset registers asset, pinned to oracleID when it is not empty.
func (s *OracleService) AddAsset(ctx context.Context, caller domain.Address, asset domain.Asset, oracleID string) error {
	var (
		events []domain.Event
		err    error
	)
	if oracleID == "" {
		events, err = s.agg.AddAsset(ctx, caller, asset)
	} else {
		events, err = s.agg.AddAssetWithSource(ctx, caller, asset, oracleID)
	}
	s.observe(s.agg.ID(), "add_asset", err)
	if err != nil {
		return err
	}
	s.emit(ctx, events, 0)
	return nil
}

func (s *OracleService) AddBaseAsset(ctx context.Context, caller domain.Address, asset domain.Asset) error {
	events, err := s.agg.AddBaseAsset(ctx, caller, asset)
	s.observe(s.agg.ID(), "add_base_asset", err)
	if err != nil {
		return err
	}
	s.emit(ctx, events, 0)
	return nil
}

func (s *OracleService) Price(ctx context.Context, asset domain.Asset, ts uint64) (resolver.Result, error) {
	started := time.Now()
	res, err := s.agg.Price(ctx, asset, ts)
	s.metrics.ResolveDuration.WithLabelValues("price").Observe(time.Since(started).Seconds())

	s.metrics.Resolutions.WithLabelValues(resultLabel(err)).Inc()
	for _, sk := range res.Skipped {
		s.metrics.SourceSkips.WithLabelValues(sk.OracleID, sk.Reason).Inc()
	}
	return res, err
}

func (s *OracleService) Prices(ctx context.Context, asset domain.Asset, records uint32, ts uint64) ([]domain.PriceData, error) {
	started := time.Now()
	out, err := s.agg.Prices(ctx, asset, records, ts)
	s.metrics.ResolveDuration.WithLabelValues("prices").Observe(time.Since(started).Seconds())
	return out, err
}

// CheckDependency probes every infra dependency and reports all failures at once.
func (s *OracleService) CheckDependency(ctx context.Context) error {
	errDependency := make([]string, 0, len(s.deps))

	for name, dep := range s.deps {
		if err := dep.Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(errDependency) > 0 {
		return fmt.Errorf("dependency check failed: %v", strings.Join(errDependency, "; "))
	}

	s.log.Debugf("All dependency check passed")
	return nil
}

// FormatPrice renders an integer price at the given precision, e.g. 10000000 at 6 -> "10".
func FormatPrice(p *big.Int, decimals uint32) string {
	if p == nil {
		return ""
	}
	return decimal.NewFromBigInt(p, -int32(decimals)).String()
}

func (s *OracleService) emitPrices(ctx context.Context, st *pricestore.Store, events []domain.Event) {
	dec, err := st.Decimals(ctx)
	if err != nil {
		s.log.Warnf("Failed to read decimals of %s for archive, error=%v", st.ID(), err)
	}
	s.emit(ctx, events, dec)
}

func (s *OracleService) emit(ctx context.Context, events []domain.Event, decimals uint32) {
	for i := range events {
		ev := &events[i]
		ev.ID = uuid.NewString()
		ev.EmittedAt = s.now().UTC()

		if err := s.broadcaster.Publish(ctx, ev.Subject(""), ev); err != nil {
			s.metrics.EventsPublished.WithLabelValues("nats", "error").Inc()
			s.log.Errorf("Failed to broadcast %s event of %s, error=%v", ev.Kind, ev.Component, err)
		} else {
			s.metrics.EventsPublished.WithLabelValues("nats", "ok").Inc()
		}

		if ev.Kind != domain.EventPriceSet || s.archive == nil {
			continue
		}
		row := clickhouse.PriceRow{
			EventID:      ev.ID,
			EmittedAt:    ev.EmittedAt,
			Component:    ev.Component,
			Asset:        ev.Asset.String(),
			Price:        ev.Price,
			PriceDecimal: FormatPrice(ev.Price, decimals),
			Decimals:     uint8(decimals),
			Timestamp:    ev.Timestamp,
			Actor:        string(ev.Actor),
		}
		if err := s.archive.Enqueue(row); err != nil {
			s.metrics.EventsPublished.WithLabelValues("clickhouse", "error").Inc()
			s.log.Errorf("Failed to archive price event %s, error=%v", ev.ID, err)
		} else {
			s.metrics.EventsPublished.WithLabelValues("clickhouse", "ok").Inc()
		}
	}
}

func (s *OracleService) observe(component, op string, err error) {
	s.metrics.Mutations.WithLabelValues(component, op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if k := domain.KindOf(err); k != nil {
		return strings.ReplaceAll(k.Error(), " ", "_")
	}
	return "error"
}
