package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Stores    StoresConfig    `yaml:"stores"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Oracle    OracleConfig    `yaml:"oracle"`
}

type AppConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	Env             string        `yaml:"env"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type JWTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Alg            string        `yaml:"alg"` // RS256
	PublicKeyPath  string        `yaml:"public_key_path"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Audience       string        `yaml:"audience"`
	Issuer         string        `yaml:"issuer"`
	Leeway         time.Duration `yaml:"leeway"`
	TTL            time.Duration `yaml:"ttl"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

type RateBucket struct {
	RefillPerSec int           `yaml:"refill_per_sec"` // tokens added every second
	Burst        int           `yaml:"burst"`          // bucket size
	TTL          time.Duration `yaml:"ttl"`            // idle key lifetime
}

type RateLimitConfig struct {
	Enabled            bool       `yaml:"enabled"`
	ByJWT              RateBucket `yaml:"by_jwt"`
	ByIP               RateBucket `yaml:"by_ip"`
	TrustedProxiesList []string   `yaml:"trusted_proxies"` // ips or cidrs allowed to set X-Forwarded-For
}

// DedupeConfig guards admin writes carrying an Idempotency-Key header.
type DedupeConfig struct {
	Enabled bool          `yaml:"enabled"`
	Backend string        `yaml:"backend"` // redis|memory
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"` // how long a key is remembered
}

// LedgerConfig selects where component state snapshots live.
type LedgerConfig struct {
	Backend string `yaml:"backend"` // redis|memory
	Prefix  string `yaml:"prefix"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	Enabled bool                   `yaml:"enabled"`
	DSN     string                 `yaml:"dsn"`
	Table   string                 `yaml:"table"`
	Writer  ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	BroadcastPrefix string `yaml:"broadcast_prefix"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	GzipLevel    int           `yaml:"gzip_level"`
	CORS         CORSConfig    `yaml:"cors"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
}

// MonitorConfig drives the periodic freshness check over aggregator assets.
type MonitorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron spec with seconds, e.g. "*/30 * * * * *"
}

type StoreConfig struct {
	ID           string   `yaml:"id"`
	Admin        string   `yaml:"admin"`
	Assets       []string `yaml:"assets"` // native:<symbol> | contract:<address>
	Decimals     uint32   `yaml:"decimals"`
	Resolution   uint32   `yaml:"resolution"`
	HistoryDepth int      `yaml:"history_depth"`
	OutOfOrder   string   `yaml:"out_of_order"` // reject|accept
}

// RemoteSourceConfig is a price store served by another node's HTTP API.
type RemoteSourceConfig struct {
	ID               string        `yaml:"id"`
	URL              string        `yaml:"url"`
	StoreID          string        `yaml:"store_id"`
	Timeout          time.Duration `yaml:"timeout"`
	Retries          int           `yaml:"retries"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

type AggregatorAsset struct {
	Asset  string `yaml:"asset"`
	Source string `yaml:"source"`
}

type AggregatorConfig struct {
	ID         string            `yaml:"id"`
	Admin      string            `yaml:"admin"`
	BaseAsset  string            `yaml:"base_asset"`
	Decimals   uint32            `yaml:"decimals"`
	MaxAge     uint64            `yaml:"max_age"`
	Oracles    []string          `yaml:"oracles"`
	Assets     []AggregatorAsset `yaml:"assets"`
	BaseAssets []string          `yaml:"base_assets"`
}

type OracleConfig struct {
	Stores     []StoreConfig        `yaml:"stores"`
	Remote     []RemoteSourceConfig `yaml:"remote"`
	Aggregator AggregatorConfig     `yaml:"aggregator"`
}

// secrets are taken from the environment (or .env) over whatever the YAML says.
type secrets struct {
	RedisAddr      string `env:"ORACLE_REDIS_ADDR"`
	RedisPassword  string `env:"ORACLE_REDIS_PASSWORD"`
	ClickHouseDSN  string `env:"ORACLE_CLICKHOUSE_DSN"`
	NATSURL        string `env:"ORACLE_NATS_URL"`
	HTTPAddr       string `env:"ORACLE_HTTP_ADDR"`
	LogLevel       string `env:"ORACLE_LOG_LEVEL"`
	PyroscopeToken string `env:"ORACLE_PYROSCOPE_TOKEN"`
}

func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if err = cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var s secrets
	if err := envdecode.Decode(&s); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return fmt.Errorf("failed decode env: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Stores.Redis.Addr, s.RedisAddr)
	set(&c.Stores.Redis.Password, s.RedisPassword)
	set(&c.Stores.ClickHouse.DSN, s.ClickHouseDSN)
	set(&c.PubSub.NATS.URL, s.NATSURL)
	set(&c.API.HTTP.Addr, s.HTTPAddr)
	set(&c.Logging.Level, s.LogLevel)
	set(&c.Metrics.Pyroscope.AuthToken, s.PyroscopeToken)
	return nil
}

// applyDefaults fills sane defaults for everything optional
func (c *Config) applyDefaults() {
	if c.App.InstanceID == "" {
		c.App.InstanceID = "oracled-0"
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "redis"
	}
	if c.Ledger.Prefix == "" {
		c.Ledger.Prefix = "oracle:state:"
	}
	if c.API.HTTP.Addr == "" {
		c.API.HTTP.Addr = ":8080"
	}
	if c.PubSub.NATS.BroadcastPrefix == "" {
		c.PubSub.NATS.BroadcastPrefix = "oracle"
	}
	if c.Stores.ClickHouse.Table == "" {
		c.Stores.ClickHouse.Table = "oracle_prices"
	}
	if c.Dedupe.Backend == "" {
		c.Dedupe.Backend = "redis"
	}
	if c.Dedupe.Prefix == "" {
		c.Dedupe.Prefix = "oracle:idem:"
	}
	if c.Dedupe.TTL <= 0 {
		c.Dedupe.TTL = 24 * time.Hour
	}
	if c.Monitor.Schedule == "" {
		c.Monitor.Schedule = "*/30 * * * * *"
	}
	if c.Oracle.Aggregator.ID == "" {
		c.Oracle.Aggregator.ID = "main"
	}
}
