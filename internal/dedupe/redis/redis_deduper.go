package redis

import (
	"context"
	"fmt"
	"oraclehub/internal/config"
	"oraclehub/internal/dedupe"
	rdb "oraclehub/internal/stores/redis"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

var _ dedupe.Deduper = (*RedisDedupe)(nil)

type RedisDedupe struct {
	log    logger.Logger
	rdb    *rdb.Client
	ttl    time.Duration
	prefix string
}

// Cluster dedupe for Redis SETNX + TTL
// prefix example "oracle:idem:"
func NewRedisDeduper(log logger.Logger, cfg *config.DedupeConfig, rdb *rdb.Client) (*RedisDedupe, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required to the redis deduper")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required to the redis deduper")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "dedupe:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisDedupe{
		log:    log,
		rdb:    rdb,
		ttl:    ttl,
		prefix: prefix,
	}, nil
}

func (d *RedisDedupe) Seen(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		d.log.Errorf("Redis SetNX error=%v", err)
		return false, fmt.Errorf("redis SetNX error=%w", err)
	}

	// ok=true -> new key("not seen"); ok=false -> "seen"
	return !ok, nil
}

func (d *RedisDedupe) Forget(ctx context.Context, id string) error {
	if err := d.rdb.Del(ctx, d.prefix+id).Err(); err != nil {
		return fmt.Errorf("redis DEL error=%w", err)
	}
	return nil
}

func (d *RedisDedupe) Health(ctx context.Context) error {
	return d.rdb.Health(ctx)
}
