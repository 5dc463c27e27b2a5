package app

import (
	"context"
	"fmt"
	"oraclehub/internal/aggregator"
	"oraclehub/internal/api/http"
	"oraclehub/internal/api/http/handlers"
	"oraclehub/internal/api/http/mw"
	"oraclehub/internal/config"
	"oraclehub/internal/dedupe"
	dedupeRedis "oraclehub/internal/dedupe/redis"
	"oraclehub/internal/ledger"
	"oraclehub/internal/metrics"
	"oraclehub/internal/monitor"
	"oraclehub/internal/pricestore"
	"oraclehub/internal/pubsub"
	"oraclehub/internal/pubsub/nats"
	"oraclehub/internal/security"
	"oraclehub/internal/service"
	"oraclehub/internal/source"
	"oraclehub/internal/stores/clickhouse"
	"oraclehub/internal/stores/redis"
	"strings"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

type Container struct {
	app *App
	log logger.Logger

	// infra
	redis     *redis.Client
	ch        *clickhouse.Conn
	chWriter  *clickhouse.Writer
	nc        *nats.Client
	memDedupe *dedupe.MemoryDedupe

	// services
	oracle  *service.OracleService
	monitor *monitor.Freshness

	// servers
	httpSrv *http.Server

	// metrics
	profiler *pyroscope.Profiler
}

func (c *Container) Start() error {
	return c.app.Start()
}

// Errors reports a server that died after Start.
func (c *Container) Errors() <-chan error {
	return c.app.Errors()
}

func (c *Container) Stop(ctx context.Context) error {
	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}
	return nil
}

// Build constructs the whole application. The returned cleanup releases infra
// in reverse order and is safe to call when Build failed halfway.
func Build(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Infof("Successfully initialize logger")

	c := &Container{log: lg}
	cleanup := c.cleanup

	profiler, err := metrics.InitPProf(cfg.App.InstanceID, cfg.App.Env, &cfg.Metrics.Pyroscope)
	if err != nil {
		return nil, cleanup, fmt.Errorf("pyroscope initialize failed: %w", err)
	}
	c.profiler = profiler
	if profiler != nil {
		lg.Infof("Successfully initialize Pyroscope to %s as %s", cfg.Metrics.Pyroscope.ServerAddr, cfg.Metrics.Pyroscope.AppName)
	}

	health := make(map[string]service.HealthChecker)

	// Redis client, shared by the ledger, the rate limiter and the deduper
	if needsRedis(cfg) {
		if c.redis, err = redis.New(ctx, &cfg.Stores.Redis); err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize redis client: %w", err)
		}
		health["redis"] = c.redis
		lg.Infof("Successfully initialize redis client, addr=%s", cfg.Stores.Redis.Addr)
	}

	// Ledger
	var l ledger.Ledger
	if cfg.Ledger.Backend == "redis" {
		if l, err = ledger.NewRedis(c.redis, cfg.Ledger.Prefix); err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize ledger: %w", err)
		}
	} else {
		lg.Warnf("Memory ledger in use, state is lost on restart")
		l = ledger.NewMemory()
	}
	health["ledger"] = l
	lg.Infof("Successfully initialize %s ledger", cfg.Ledger.Backend)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// NATS Broadcaster
	var bc pubsub.Broadcaster = pubsub.Noop{}
	if cfg.PubSub.NATS.Enabled {
		if c.nc, err = nats.Connect(&cfg.PubSub.NATS, lg); err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize nats client: %w", err)
		}
		bc = c.nc
		health["nats"] = c.nc
		lg.Infof("Successfully initialize nats client, url=%s", cfg.PubSub.NATS.URL)
	}

	// ClickHouse archive
	var archive clickhouse.PriceWriter
	if cfg.Stores.ClickHouse.Enabled {
		if c.ch, err = clickhouse.New(ctx, &cfg.Stores.ClickHouse); err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize clickhouse client: %w", err)
		}
		if err = c.ch.EnsureSchema(ctx, cfg.Stores.ClickHouse.Table); err != nil {
			return nil, cleanup, err
		}
		url := strings.Split(cfg.Stores.ClickHouse.DSN, "?")
		lg.Infof("Successfully initialize clickhouse client, url=%s", url[0])

		c.chWriter = clickhouse.NewWriter(lg, c.ch.Native, cfg.Stores.ClickHouse.Table, cfg.Stores.ClickHouse.Writer)
		archive = c.chWriter
		health["clickhouse"] = c.chWriter
		lg.Infof("Successfully initialize clickhouse writer")
	}

	// Service Layer
	c.oracle, err = buildOracle(lg, l, &cfg.Oracle, service.Deps{
		Log:         lg,
		Broadcaster: bc,
		Archive:     archive,
		Metrics:     m,
		Health:      health,
	})
	if err != nil {
		return nil, cleanup, err
	}
	if err = Bootstrap(ctx, lg, c.oracle, &cfg.Oracle); err != nil {
		return nil, cleanup, err
	}
	lg.Infof("Successfully initialize oracle service")

	if cfg.Monitor.Enabled {
		if c.monitor, err = monitor.New(lg, c.oracle, m, cfg.Monitor.Schedule); err != nil {
			return nil, cleanup, fmt.Errorf("failed to initialize freshness monitor: %w", err)
		}
		lg.Infof("Successfully initialize freshness monitor, schedule=%q", cfg.Monitor.Schedule)
	}

	mws, err := buildMiddlewares(lg, cfg, c.redis)
	if err != nil {
		return nil, cleanup, err
	}

	// Deduper
	if cfg.Dedupe.Enabled {
		var d dedupe.Deduper
		if cfg.Dedupe.Backend == "redis" {
			if d, err = dedupeRedis.NewRedisDeduper(lg, &cfg.Dedupe, c.redis); err != nil {
				return nil, cleanup, fmt.Errorf("failed to initialize redis deduper: %w", err)
			}
		} else {
			c.memDedupe = dedupe.NewInMemoryDedupe(lg, cfg.Dedupe.TTL, time.Minute)
			d = c.memDedupe
		}
		if mws.Idem, err = mw.NewIdempotency(lg, d); err != nil {
			return nil, cleanup, err
		}
		lg.Infof("Successfully initialize %s deduper by prefix %s", cfg.Dedupe.Backend, cfg.Dedupe.Prefix)
	}

	// HTTP Server
	router := http.BuildRouter(handlers.NewHandler(lg, c.oracle), mws, metrics.Handler(reg))
	c.httpSrv = http.NewServer(lg, &cfg.API.HTTP, router)
	lg.Infof("Successfully initialize HTTP server")

	var jobs []Background
	if c.monitor != nil {
		jobs = append(jobs, c.monitor)
	}
	c.app = New(lg, c.httpSrv, jobs...)

	lg.Infof("Successfully initialize Wiring")
	return c, cleanup, nil
}

// buildOracle registers local stores and remote sources in one directory and puts
// the aggregator on top of it.
func buildOracle(lg logger.Logger, l ledger.Ledger, oc *config.OracleConfig, d service.Deps) (*service.OracleService, error) {
	dir := source.NewDirectory()

	for _, sc := range oc.Stores {
		st, err := pricestore.New(sc.ID, l, lg)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", sc.ID, err)
		}
		if err = dir.Register(sc.ID, st); err != nil {
			return nil, err
		}
		d.Stores = append(d.Stores, st)
	}

	for _, rc := range oc.Remote {
		src, err := source.NewHTTPSource(lg, source.HTTPConfig{
			BaseURL:          rc.URL,
			StoreID:          rc.StoreID,
			Timeout:          rc.Timeout,
			Retries:          rc.Retries,
			FailureThreshold: rc.FailureThreshold,
			OpenTimeout:      rc.OpenTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("remote %s: %w", rc.ID, err)
		}
		if err = dir.Register(rc.ID, src); err != nil {
			return nil, err
		}
		lg.Infof("Remote source %s registered, url=%s, store=%s", rc.ID, rc.URL, rc.StoreID)
	}

	agg, err := aggregator.New(oc.Aggregator.ID, l, dir, lg)
	if err != nil {
		return nil, fmt.Errorf("aggregator: %w", err)
	}
	d.Aggregator = agg

	return service.NewOracleService(d)
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Ledger.Backend == "redis" ||
		cfg.RateLimit.Enabled ||
		(cfg.Dedupe.Enabled && cfg.Dedupe.Backend == "redis")
}

func buildMiddlewares(lg logger.Logger, cfg *config.Config, rdb *redis.Client) (http.Middlewares, error) {
	out := http.Middlewares{
		Log:  mw.NewLogging(lg),
		Gzip: mw.NewGzip(cfg.API.HTTP.GzipLevel, lg),
	}
	if cfg.API.HTTP.CORS.Enabled {
		out.CORS = mw.NewCORS(&cfg.API.HTTP.CORS)
	}

	var verifier *security.RS256Verifier
	if cfg.Security.JWT.Enabled {
		var err error
		if verifier, err = security.NewRS256Verifier(&cfg.Security.JWT); err != nil {
			return out, fmt.Errorf("failed to initialize JWT verifier: %w", err)
		}
		if out.JWT, err = mw.NewJWTMiddleware(verifier); err != nil {
			return out, err
		}
		lg.Infof("Successfully initialize JWT-Verifier")
	} else {
		lg.Warnf("JWT disabled, admin caller is taken from %s header", mw.CallerHeader)
	}

	if cfg.RateLimit.Enabled {
		out.RateLimit = mw.NewRateLimit(&cfg.RateLimit, rdb, verifier)
		lg.Infof("Successfully initialize rate limiter")
	}
	return out, nil
}

func (c *Container) cleanup() {
	ctxClean, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if c.chWriter != nil {
		if err := c.chWriter.Close(ctxClean); err != nil {
			c.log.Errorf("Failed to close by cleanupF clickhouse writer: %v", err)
		}
	}

	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			c.log.Errorf("Failed to close by cleanupF clickhouse client: %v", err)
		}
	}

	if c.nc != nil {
		if err := c.nc.Close(); err != nil {
			c.log.Errorf("Failed to close by cleanupF nats client: %v", err)
		}
	}

	if c.memDedupe != nil {
		c.memDedupe.Close()
	}

	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.log.Errorf("Failed to close by cleanupF redis client: %v", err)
		}
	}

	if c.profiler != nil {
		if err := c.profiler.Stop(); err != nil {
			c.log.Errorf("Failed to stop profiler: %v", err)
		}
	}

	c.log.Infof("Successfully cleaned up dependency")
}
