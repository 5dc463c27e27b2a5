package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"oraclehub/internal/domain"
	"oraclehub/pkg/httputil"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"gitlab.com/nevasik7/alerting/logger"
)

var ErrUnexpectedStatus = errors.New("unexpected status code")

type HTTPConfig struct {
	BaseURL          string
	StoreID          string
	Timeout          time.Duration
	Retries          int
	FailureThreshold uint32        // consecutive failures that open the breaker
	OpenTimeout      time.Duration // how long the breaker stays open
}

// HTTPSource reads a price store served by another node. Calls run behind a circuit
// breaker; an open breaker fails fast and the resolver skips the source.
type HTTPSource struct {
	log     logger.Logger
	storeID string
	client  *resty.Client
	cb      *gobreaker.CircuitBreaker

	mu       sync.Mutex
	decimals *uint32
}

type storeInfo struct {
	Decimals uint32 `json:"decimals"`
}

type history struct {
	Records []domain.PriceData `json:"records"`
}

func NewHTTPSource(log logger.Logger, cfg HTTPConfig) (*HTTPSource, error) {
	if cfg.BaseURL == "" || cfg.StoreID == "" {
		return nil, errors.New("remote source needs base url and store id")
	}
	// sane defaults
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetHeader("Accept", "application/json")

	threshold := cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "source:" + cfg.StoreID,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("Circuit breaker %s changed state %s -> %s", name, from, to)
		},
	})

	return &HTTPSource{log: log, storeID: cfg.StoreID, client: client, cb: cb}, nil
}

func (s *HTTPSource) Decimals(ctx context.Context) (uint32, error) {
	s.mu.Lock()
	cached := s.decimals
	s.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	info, err := get[storeInfo](ctx, s, "/api/stores/{id}", nil)
	if err != nil {
		return 0, err
	}

	// decimals never change after init
	s.mu.Lock()
	s.decimals = &info.Decimals
	s.mu.Unlock()
	return info.Decimals, nil
}

func (s *HTTPSource) LastPrice(ctx context.Context, asset domain.Asset) (*domain.PriceData, error) {
	return get[*domain.PriceData](ctx, s, "/api/stores/{id}/lastprice", url.Values{"asset": {asset.String()}})
}

func (s *HTTPSource) Prices(ctx context.Context, asset domain.Asset, records uint32) ([]domain.PriceData, error) {
	h, err := get[history](ctx, s, "/api/stores/{id}/prices", url.Values{
		"asset":   {asset.String()},
		"records": {strconv.FormatUint(uint64(records), 10)},
	})
	if err != nil {
		return nil, err
	}
	return h.Records, nil
}

func (s *HTTPSource) State() gobreaker.State {
	return s.cb.State()
}

func get[T any](ctx context.Context, s *HTTPSource, path string, query url.Values) (T, error) {
	var zero T

	res, err := s.cb.Execute(func() (interface{}, error) {
		var out httputil.Response[T]
		resp, err := s.client.R().
			SetContext(ctx).
			SetPathParam("id", s.storeID).
			SetQueryParamsFromValues(query).
			SetResult(&out).
			SetError(&out).
			Get(path)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", path, err)
		}
		if resp.StatusCode() == http.StatusNotFound && out.Error != nil && out.Error.Code == "price_not_found" {
			// absent record, not a failure of the remote node
			return nil, nil
		}
		if resp.StatusCode() != http.StatusOK {
			msg := ""
			if out.Error != nil {
				msg = out.Error.Message
			}
			return nil, fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode(), msg)
		}
		return out.Data, nil
	})
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	return res.(T), nil
}
