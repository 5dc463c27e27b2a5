package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"oraclehub/internal/config"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/nevasik7/alerting/logger"
)

var ErrNotConnected = errors.New("nats connection not ready")

type Client struct {
	nc     *nats.Conn
	log    logger.Logger
	prefix string
}

func Connect(cfg *config.NATSConfig, log logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	url := cfg.URL
	if url == "" {
		return nil, errors.New("nats url is required")
	}

	opts := []nats.Option{
		nats.Name("oraclehub"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1), // endless reconnected
		nats.ReconnectWait(2 * time.Second),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Infof("Connected to NATS successfully, url=%s", url)
	return &Client{nc: nc, log: log, prefix: cfg.BroadcastPrefix}, nil
}

// Subject prefixes s with the configured broadcast prefix.
func (c *Client) Subject(s string) string {
	if c.prefix == "" {
		return s
	}
	return c.prefix + "." + s
}

// Publish sends data as JSON on the prefixed subject.
func (c *Client) Publish(_ context.Context, subject string, data interface{}) error {
	if !c.Ready() {
		return ErrNotConnected
	}

	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", subject, err)
	}
	if err = c.nc.Publish(c.Subject(subject), b); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

func (c *Client) Health(ctx context.Context) error {
	if !c.Ready() {
		return ErrNotConnected
	}
	// round trip to the server
	done := make(chan error, 1)
	go func() { done <- c.nc.Flush() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Conn exposes the raw connection for subscribers.
func (c *Client) Conn() *nats.Conn {
	return c.nc
}

func (c *Client) Ready() bool {
	if c.nc == nil {
		return false
	}
	return c.nc.Status() == nats.CONNECTED
}

func (c *Client) Status() nats.Status {
	if c.nc == nil {
		return nats.DISCONNECTED
	}
	return c.nc.Status()
}

func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}

	// check not close this conn
	if c.nc.Status() == nats.CLOSED {
		return nil
	}

	if err := c.nc.Drain(); err != nil {
		c.log.Errorf("Failed to drain connection to NATS, error=%v", err)
		c.nc.Close()
		return fmt.Errorf("failed to drain connection to NATS: %w", err)
	}

	c.nc.Close()
	c.log.Infof("NATS connection closed gracefully")
	return nil
}
