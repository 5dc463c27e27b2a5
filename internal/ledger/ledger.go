// Package ledger persists component state as whole snapshots.
// One successful Put is the commit point of an invocation: a failed operation never reaches it.
package ledger

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("ledger: key not found")
	ErrConflict = errors.New("ledger: concurrent update retries exhausted")
)

// UpdateFunc receives the committed bytes (nil when the key is absent) and returns
// the bytes to commit. It may run more than once when a concurrent writer wins.
type UpdateFunc func(cur []byte) ([]byte, error)

type Ledger interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Update is a read-modify-write that commits only if key did not change
	// since it was read, across every process sharing the ledger.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Health(ctx context.Context) error
}
