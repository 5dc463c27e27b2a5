package http

import (
	"net/http"
	"oraclehub/internal/api/http/handlers"
	"oraclehub/internal/api/http/mw"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Middlewares struct {
	Log       *mw.LoggingMiddleware
	Gzip      *mw.GzipMiddleware
	CORS      *mw.CORSMiddleware
	RateLimit *mw.RateLimitMiddleware   // nil - disabled
	JWT       *mw.JWTMiddleware         // nil - caller taken from mw.CallerHeader
	Idem      *mw.IdempotencyMiddleware // nil - replays are not guarded
}

func BuildRouter(h *handlers.Handler, m Middlewares, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	// RemoteAddr stays the peer; the rate limiter resolves proxy headers itself

	if m.Log != nil {
		r.Use(m.Log.Handler)
	}
	if m.Gzip != nil {
		r.Use(m.Gzip.Handler)
	}
	if m.CORS != nil {
		r.Use(m.CORS.Handler())
	}

	// tech endpoints, no auth
	r.Get("/healthz", h.Healthz)
	r.Get("/readiness", h.Readiness)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		// public reads, rate limited
		api.Group(func(pub chi.Router) {
			if m.RateLimit != nil {
				pub.Use(m.RateLimit.Handler)
			}

			pub.Get("/stores", h.ListStores)
			pub.Get("/stores/{id}", h.StoreInfo)
			pub.Get("/stores/{id}/lastprice", h.StoreLastPrice)
			pub.Get("/stores/{id}/price", h.StorePrice)
			pub.Get("/stores/{id}/prices", h.StorePrices)

			pub.Get("/aggregator", h.AggregatorInfo)
			pub.Get("/aggregator/price", h.AggregatorPrice)
			pub.Get("/aggregator/prices", h.AggregatorPrices)
		})

		// admin interface, caller identity required
		api.Group(func(adm chi.Router) {
			if m.JWT != nil {
				adm.Use(m.JWT.Handler)
			} else {
				adm.Use(mw.HeaderCaller)
			}
			if m.RateLimit != nil {
				adm.Use(m.RateLimit.Handler)
			}
			if m.Idem != nil {
				adm.Use(m.Idem.Handler)
			}

			adm.Post("/stores/{id}/prices", h.SetPrice)
			adm.Post("/stores/{id}/prices/batch", h.SetPrices)
			adm.Post("/stores/{id}/admin/{op}", h.StoreAdmin)

			adm.Post("/aggregator/oracles", h.AddOracle)
			adm.Post("/aggregator/assets", h.AddAsset)
			adm.Post("/aggregator/base-assets", h.AddBaseAsset)
			adm.Post("/aggregator/admin/{op}", h.AggregatorAdmin)
		})
	})

	return r
}
