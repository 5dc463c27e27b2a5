package pubsub

import (
	"context"
)

type Broadcaster interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Health(ctx context.Context) error
}

// Noop drops everything; used when NATS is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, string, interface{}) error { return nil }

func (Noop) Health(context.Context) error { return nil }
