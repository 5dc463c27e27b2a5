package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	rdb "oraclehub/internal/stores/redis"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const maxTxAttempts = 32

// Redis stores each component snapshot under a single key. Update commits with
// WATCH/MULTI so hosts sharing the ledger never overwrite each other.
type Redis struct {
	rdb    *rdb.Client
	prefix string
}

func NewRedis(client *rdb.Client, prefix string) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required to the ledger")
	}
	if prefix == "" {
		prefix = "oracle:state:"
	}
	return &Redis{rdb: client, prefix: prefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return b, nil
}

func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	if err := r.rdb.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Update(ctx context.Context, key string, fn UpdateFunc) error {
	full := r.prefix + key

	txf := func(tx *goredis.Tx) error {
		cur, err := tx.Get(ctx, full).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
			cur = nil
		case err != nil:
			return fmt.Errorf("redis GET %s: %w", key, err)
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, full, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := r.rdb.Watch(ctx, txf, full)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}

		// lost the race, reload and retry
		wait := time.Duration(rand.IntN(1000*(attempt+1))) * time.Microsecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("redis UPDATE %s: %w", key, ErrConflict)
}

func (r *Redis) Health(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
