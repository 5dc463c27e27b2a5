package clickhouse

import (
	"context"
	"errors"
	"math/big"
	"oraclehub/internal/config"
	"sync"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

// fakeBatch records appended rows; unused driver.Batch methods are left to the embedded nil interface.
type fakeBatch struct {
	driver.Batch
	conn *fakeConn
	rows [][]any
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Abort() error { return nil }

func (b *fakeBatch) Send() error {
	b.conn.mu.Lock()
	defer b.conn.mu.Unlock()

	if b.conn.failSends > 0 {
		b.conn.failSends--
		return errors.New("connection reset")
	}
	b.conn.sent = append(b.conn.sent, b.rows...)
	return nil
}

type fakeConn struct {
	mu        sync.Mutex
	queries   []string
	sent      [][]any
	failSends int
}

func (c *fakeConn) PrepareBatch(_ context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	c.mu.Lock()
	c.queries = append(c.queries, query)
	c.mu.Unlock()
	return &fakeBatch{conn: c}, nil
}

func (c *fakeConn) Ping(context.Context) error { return nil }

func (c *fakeConn) sentRows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func row(id string) PriceRow {
	return PriceRow{EventID: id, Component: "usd-feed", Asset: "native:USDC", Price: big.NewInt(10_000_000), Decimals: 6, Timestamp: 60}
}

func TestWriter_FlushesFullBatch(t *testing.T) {
	conn := &fakeConn{}
	w := NewWriter(newTestLogger(), conn, "prices_test", config.ClickHouseWriterConfig{BatchMaxRows: 2, BatchMaxInterval: time.Hour})

	require.NoError(t, w.Enqueue(row("a")))
	require.NoError(t, w.Enqueue(row("b")))

	require.Eventually(t, func() bool { return conn.sentRows() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, conn.queries[0], "INSERT INTO prices_test")

	require.NoError(t, w.Close(context.Background()))
}

func TestWriter_CloseFlushesRemainder(t *testing.T) {
	conn := &fakeConn{}
	w := NewWriter(newTestLogger(), conn, "", config.ClickHouseWriterConfig{BatchMaxRows: 100, BatchMaxInterval: time.Hour})

	require.NoError(t, w.Enqueue(row("a")))
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, 1, conn.sentRows())
	assert.ErrorIs(t, w.Enqueue(row("b")), ErrWriterClosed)
	require.NoError(t, w.Close(context.Background()), "close is idempotent")
}

func TestWriter_RetriesFailedSend(t *testing.T) {
	conn := &fakeConn{failSends: 1}
	w := NewWriter(newTestLogger(), conn, "", config.ClickHouseWriterConfig{
		BatchMaxRows:     1,
		BatchMaxInterval: time.Hour,
		MaxRetries:       2,
		RetryBackoff:     time.Millisecond,
	})

	require.NoError(t, w.Enqueue(row("a")))
	require.Eventually(t, func() bool { return conn.sentRows() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Close(context.Background()))
}
