package aggregator

import (
	"context"
	"math/big"
	"oraclehub/internal/domain"
	"oraclehub/internal/ledger"
	"oraclehub/internal/pricestore"
	"oraclehub/internal/source"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

const (
	admin    domain.Address = "GADMIN"
	stranger domain.Address = "GSTRANGER"
)

var (
	usdc = domain.Native("USDC")
	blnd = domain.Native("BLND")
	xlm  = domain.Native("XLM")
	eurc = domain.Contract("CEURC")
)

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

type fixture struct {
	ctx    context.Context
	ledger *ledger.Memory
	dir    *source.Directory
	agg    *Aggregator
}

func newFixture(t *testing.T, maxAge uint64) *fixture {
	t.Helper()

	f := &fixture{ctx: context.Background(), ledger: ledger.NewMemory(), dir: source.NewDirectory()}

	agg, err := New("main", f.ledger, f.dir, newTestLogger())
	require.NoError(t, err)
	_, err = agg.Init(f.ctx, Params{Admin: admin, BaseAsset: usdc, Decimals: 7, MaxAge: maxAge})
	require.NoError(t, err)

	f.agg = agg
	return f
}

// addStore creates an initialized price store, registers it as a source and as an oracle.
func (f *fixture) addStore(t *testing.T, id string, decimals uint32, assets ...domain.Asset) *pricestore.Store {
	t.Helper()

	s, err := pricestore.New(id, f.ledger, newTestLogger())
	require.NoError(t, err)
	_, err = s.Init(f.ctx, pricestore.Params{Admin: admin, Assets: assets, Decimals: decimals, Resolution: 1})
	require.NoError(t, err)
	require.NoError(t, f.dir.Register(id, s))

	_, err = f.agg.AddOracle(f.ctx, admin, id)
	require.NoError(t, err)
	return s
}

func set(t *testing.T, s *pricestore.Store, ts uint64, prices ...int64) {
	t.Helper()

	vs := make([]*big.Int, 0, len(prices))
	for _, p := range prices {
		vs = append(vs, big.NewInt(p))
	}
	_, err := s.SetPrice(context.Background(), admin, vs, ts)
	require.NoError(t, err)
}

func TestAggregator_MaxAgeScenario(t *testing.T) {
	f := newFixture(t, 300)
	s := f.addStore(t, "feed", 7, blnd)
	_, err := f.agg.AddAsset(f.ctx, admin, blnd)
	require.NoError(t, err)

	set(t, s, 1000, 2_500_000)

	res, err := f.agg.Price(f.ctx, blnd, 1250)
	require.NoError(t, err)
	assert.True(t, domain.NewPriceData(2_500_000, 1000).Equal(res.Price))
	assert.Equal(t, "feed", res.OracleID)

	_, err = f.agg.Price(f.ctx, blnd, 1400)
	require.ErrorIs(t, err, domain.ErrStaleOrMissing)
}

func TestAggregator_BaseAssetIdentity(t *testing.T) {
	f := newFixture(t, 0)
	s := f.addStore(t, "feed", 6, usdc)
	set(t, s, 10, 999)

	_, err := f.agg.AddBaseAsset(f.ctx, admin, eurc)
	require.NoError(t, err)

	for _, ts := range []uint64{0, 10, 1 << 40} {
		for _, a := range []domain.Asset{usdc, eurc} {
			res, err := f.agg.Price(f.ctx, a, ts)
			require.NoError(t, err)
			assert.Equal(t, "10000000", res.Price.Price.String())
			assert.Equal(t, ts, res.Price.Timestamp)
			assert.Empty(t, res.OracleID)
		}
	}

	history, err := f.agg.Prices(f.ctx, eurc, 5, 77)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, uint64(77), history[0].Timestamp)
}

func TestAggregator_UnknownAsset(t *testing.T) {
	f := newFixture(t, 300)
	f.addStore(t, "feed", 7, blnd)

	_, err := f.agg.Price(f.ctx, xlm, 1000)
	require.ErrorIs(t, err, domain.ErrAssetNotFound)
	assert.True(t, domain.IsReadMiss(err))
}

func TestAggregator_RescalesAndPicksFreshest(t *testing.T) {
	f := newFixture(t, 600)
	slow := f.addStore(t, "slow", 6, blnd, xlm)
	fast := f.addStore(t, "fast", 8, blnd)
	_, err := f.agg.AddAsset(f.ctx, admin, blnd)
	require.NoError(t, err)
	_, err = f.agg.AddAsset(f.ctx, admin, xlm)
	require.NoError(t, err)

	set(t, slow, 900, 250_000, 120_000)
	set(t, fast, 960, 25_123_456)

	res, err := f.agg.Price(f.ctx, blnd, 1000)
	require.NoError(t, err)
	assert.Equal(t, "fast", res.OracleID)
	assert.Equal(t, "2512345", res.Price.Price.String())

	// the fast store has never heard of XLM, the slow one is used
	res, err = f.agg.Price(f.ctx, xlm, 1000)
	require.NoError(t, err)
	assert.Equal(t, "slow", res.OracleID)
	assert.Equal(t, "1200000", res.Price.Price.String())
	require.Len(t, res.Skipped, 1)
}

func TestAggregator_UnreachableOracleIsSkipped(t *testing.T) {
	f := newFixture(t, 300)
	_, err := f.agg.AddOracle(f.ctx, admin, "ghost")
	require.NoError(t, err)
	s := f.addStore(t, "feed", 7, blnd)
	_, err = f.agg.AddAsset(f.ctx, admin, blnd)
	require.NoError(t, err)
	set(t, s, 1000, 42)

	res, err := f.agg.Price(f.ctx, blnd, 1000)
	require.NoError(t, err)
	assert.Equal(t, "feed", res.OracleID)
	assert.Equal(t, "ghost", res.Skipped[0].OracleID)
}

func TestAggregator_SourceAffinity(t *testing.T) {
	f := newFixture(t, 300)
	a := f.addStore(t, "a", 7, blnd)
	b := f.addStore(t, "b", 7, blnd)
	set(t, a, 1000, 1)
	set(t, b, 990, 2)

	_, err := f.agg.AddAssetWithSource(f.ctx, admin, blnd, "missing")
	require.ErrorIs(t, err, domain.ErrOracleNotFound)

	_, err = f.agg.AddAssetWithSource(f.ctx, admin, blnd, "b")
	require.NoError(t, err)

	res, err := f.agg.Price(f.ctx, blnd, 1000)
	require.NoError(t, err)
	assert.Equal(t, "b", res.OracleID)
	assert.Equal(t, "2", res.Price.Price.String())
}

func TestAggregator_RegistryIsIdempotent(t *testing.T) {
	f := newFixture(t, 300)

	events, err := f.agg.AddOracle(f.ctx, admin, "feed")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "main", events[0].Component)

	events, err = f.agg.AddOracle(f.ctx, admin, "feed")
	require.NoError(t, err)
	assert.Empty(t, events)

	for i := 0; i < 2; i++ {
		_, err = f.agg.AddAsset(f.ctx, admin, blnd)
		require.NoError(t, err)
		_, err = f.agg.AddBaseAsset(f.ctx, admin, eurc)
		require.NoError(t, err)
	}

	info, err := f.agg.Info(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"feed"}, info.Oracles)
	assert.Equal(t, []AssetEntry{{Asset: blnd}, {Asset: eurc}}, info.Assets)
	assert.Equal(t, []domain.Asset{eurc}, info.BaseAssets)
}

func TestAggregator_UnauthorizedLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, 300)
	_, err := f.agg.AddOracle(f.ctx, admin, "feed")
	require.NoError(t, err)

	before, err := f.agg.Snapshot(f.ctx)
	require.NoError(t, err)

	_, err = f.agg.AddOracle(f.ctx, stranger, "evil")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.agg.AddAsset(f.ctx, stranger, blnd)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.agg.AddBaseAsset(f.ctx, stranger, blnd)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.agg.SetAdmin(f.ctx, stranger, stranger)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	after, err := f.agg.Snapshot(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAggregator_InitRules(t *testing.T) {
	ctx := context.Background()
	agg, err := New("x", ledger.NewMemory(), source.NewDirectory(), newTestLogger())
	require.NoError(t, err)

	_, err = agg.Price(ctx, usdc, 1)
	require.ErrorIs(t, err, domain.ErrNotInitialized)

	_, err = agg.Init(ctx, Params{Admin: admin, BaseAsset: usdc, Decimals: 19})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = agg.Init(ctx, Params{Admin: admin, BaseAsset: usdc, Decimals: 7, MaxAge: 300})
	require.NoError(t, err)

	_, err = agg.Init(ctx, Params{Admin: admin, BaseAsset: xlm, Decimals: 6})
	require.ErrorIs(t, err, domain.ErrAlreadyInitialized)

	dec, err := agg.Decimals(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), dec)

	base, err := agg.BaseAsset(ctx)
	require.NoError(t, err)
	assert.Equal(t, usdc, base)
}

func TestAggregator_Prices(t *testing.T) {
	f := newFixture(t, 1000)
	a := f.addStore(t, "a", 6, blnd)
	b := f.addStore(t, "b", 7, blnd)
	_, err := f.agg.AddAsset(f.ctx, admin, blnd)
	require.NoError(t, err)

	set(t, a, 100, 1)
	set(t, a, 200, 2)
	set(t, b, 200, 99)
	set(t, b, 300, 3)

	got, err := f.agg.Prices(f.ctx, blnd, 10, 300)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"3", "20", "10"}, []string{got[0].Price.String(), got[1].Price.String(), got[2].Price.String()})

	got, err = f.agg.Prices(f.ctx, blnd, 0, 300)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAggregator_AdminHandover(t *testing.T) {
	f := newFixture(t, 300)

	_, err := f.agg.AcceptAdmin(f.ctx, "GNEXT")
	require.ErrorIs(t, err, domain.ErrNoPendingAdmin)

	_, err = f.agg.ProposeAdmin(f.ctx, admin, "GNEXT")
	require.NoError(t, err)
	_, err = f.agg.AcceptAdmin(f.ctx, "GNEXT")
	require.NoError(t, err)

	_, err = f.agg.AddOracle(f.ctx, admin, "feed")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.agg.AddOracle(f.ctx, "GNEXT", "feed")
	require.NoError(t, err)
}
