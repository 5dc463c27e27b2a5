package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"oraclehub/internal/domain"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

type fixed struct {
	decimals uint32
	last     *domain.PriceData
}

func (f fixed) Decimals(context.Context) (uint32, error) { return f.decimals, nil }
func (f fixed) LastPrice(context.Context, domain.Asset) (*domain.PriceData, error) {
	return f.last, nil
}
func (f fixed) Prices(context.Context, domain.Asset, uint32) ([]domain.PriceData, error) {
	return nil, nil
}

func TestDirectory(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Register("b", fixed{decimals: 7}))
	require.NoError(t, d.Register("a", fixed{decimals: 6}))
	require.Error(t, d.Register("a", fixed{}))
	require.Error(t, d.Register("", fixed{}))
	require.Error(t, d.Register("c", nil))

	assert.Equal(t, []string{"a", "b"}, d.IDs())

	dec, err := d.Resolve("b").Decimals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(7), dec)

	_, err = d.Resolve("ghost").LastPrice(context.Background(), domain.Native("USDC"))
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func newRemote(t *testing.T, handler http.HandlerFunc) *HTTPSource {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewHTTPSource(newTestLogger(), HTTPConfig{
		BaseURL:          srv.URL,
		StoreID:          "remote",
		Timeout:          time.Second,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	})
	require.NoError(t, err)
	return s
}

func TestHTTPSource_Reads(t *testing.T) {
	var infoCalls atomic.Int32

	s := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/stores/remote":
			infoCalls.Add(1)
			_, _ = w.Write([]byte(`{"status":"ok","data":{"id":"remote","decimals":7}}`))
		case "/api/stores/remote/lastprice":
			if r.URL.Query().Get("asset") != "native:USDC" {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"status":"error","error":{"code":"price_not_found","message":"no price"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"ok","data":{"price":"10000000","timestamp":1000}}`))
		case "/api/stores/remote/prices":
			assert.Equal(t, "2", r.URL.Query().Get("records"))
			_, _ = w.Write([]byte(`{"status":"ok","data":{"asset":"native:USDC","records":[{"price":"2","timestamp":120},{"price":"1","timestamp":60}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		dec, err := s.Decimals(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint32(7), dec)
	}
	assert.Equal(t, int32(1), infoCalls.Load(), "decimals are fetched once")

	last, err := s.LastPrice(ctx, domain.Native("USDC"))
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, domain.NewPriceData(10_000_000, 1000).Equal(*last))

	none, err := s.LastPrice(ctx, domain.Native("BLND"))
	require.NoError(t, err)
	assert.Nil(t, none)

	history, err := s.Prices(ctx, domain.Native("USDC"), 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(120), history[0].Timestamp)
}

func TestHTTPSource_BreakerOpens(t *testing.T) {
	var calls atomic.Int32

	s := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","error":{"code":"internal","message":"boom"}}`))
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := s.LastPrice(ctx, domain.Native("USDC"))
		require.ErrorIs(t, err, ErrUnexpectedStatus)
	}
	assert.Equal(t, gobreaker.StateOpen, s.State())

	_, err := s.LastPrice(ctx, domain.Native("USDC"))
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not reach the remote")
}
