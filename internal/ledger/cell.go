package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Cell is the persisted state of one component. Update serializes invocations in
// process and applies fn to a freshly decoded copy, writing it back only when fn
// succeeds and nobody else committed in between.
type Cell[T any] struct {
	mu  sync.RWMutex
	l   Ledger
	key string
}

func NewCell[T any](l Ledger, key string) *Cell[T] {
	return &Cell[T]{l: l, key: key}
}

func (c *Cell[T]) Key() string {
	return c.key
}

// Update runs fn under the write lock. A missing snapshot yields the zero state.
// fn may run again on a fresh copy when another host commits first.
func (c *Cell[T]) Update(ctx context.Context, fn func(st *T) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.l.Update(ctx, c.key, func(cur []byte) ([]byte, error) {
		st, err := c.decode(cur)
		if err != nil {
			return nil, err
		}
		if err = fn(st); err != nil {
			return nil, err
		}
		return Encode(st)
	})
}

// View runs fn against a private copy; changes made by fn are discarded.
func (c *Cell[T]) View(ctx context.Context, fn func(st *T) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, err := c.load(ctx)
	if err != nil {
		return err
	}
	return fn(st)
}

// Raw returns the committed bytes, nil when nothing was committed yet.
func (c *Cell[T]) Raw(ctx context.Context) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, err := c.l.Get(ctx, c.key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return b, err
}

func (c *Cell[T]) load(ctx context.Context) (*T, error) {
	b, err := c.l.Get(ctx, c.key)
	if errors.Is(err, ErrNotFound) {
		return new(T), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c.key, err)
	}
	return Decode[T](b)
}

func (c *Cell[T]) decode(b []byte) (*T, error) {
	if b == nil {
		return new(T), nil
	}
	st, err := Decode[T](b)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c.key, err)
	}
	return st, nil
}
