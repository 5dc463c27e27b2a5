package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"oraclehub/internal/config"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"gitlab.com/nevasik7/alerting/logger"
)

var ErrWriterClosed = errors.New("clickhouse writer closed")

// PriceRow is one archived price_set event.
type PriceRow struct {
	EventID      string
	EmittedAt    time.Time
	Component    string
	Asset        string
	Price        *big.Int // Int128
	PriceDecimal string   // human readable, scaled by Decimals
	Decimals     uint8
	Timestamp    uint64
	Actor        string
}

// PriceWriter is what the service needs from the archive.
type PriceWriter interface {
	Enqueue(row PriceRow) error
	Health(ctx context.Context) error
}

// Batcher is the part of driver.Conn the writer uses.
type Batcher interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Ping(ctx context.Context) error
}

type Writer struct {
	log logger.Logger

	conn  Batcher
	cfg   config.ClickHouseWriterConfig
	table string

	inCh      chan PriceRow
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWriter(log logger.Logger, conn Batcher, table string, cfg config.ClickHouseWriterConfig) *Writer {
	// sane defaults
	if cfg.BatchMaxRows <= 0 {
		cfg.BatchMaxRows = 1000
	}
	if cfg.BatchMaxInterval <= 0 {
		cfg.BatchMaxInterval = 200 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if table == "" {
		table = "oracle_prices"
	}

	w := &Writer{
		log:      log,
		conn:     conn,
		cfg:      cfg,
		table:    table,
		inCh:     make(chan PriceRow, 4096),
		closedCh: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w
}

func (w *Writer) Enqueue(row PriceRow) error {
	select {
	case <-w.closedCh:
		return ErrWriterClosed
	default:
	}

	select {
	case w.inCh <- row:
		return nil
	case <-w.closedCh:
		return ErrWriterClosed
	}
}

func (w *Writer) Health(ctx context.Context) error {
	return w.conn.Ping(ctx)
}

// Close stops accepting rows, flushes what is buffered and waits for the loop.
func (w *Writer) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.closedCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	batch := make([]PriceRow, 0, w.cfg.BatchMaxRows)
	ticker := time.NewTicker(w.cfg.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		if err := w.insertBatch(context.Background(), batch); err != nil {
			w.log.Errorf("Failed insert [%d] rows by batch to clickhouse, error=%v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case row := <-w.inCh:
			batch = append(batch, row)
			if len(batch) >= w.cfg.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.closedCh:
			// drain what producers managed to enqueue
			for {
				select {
				case row := <-w.inCh:
					batch = append(batch, row)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) insertBatch(ctx context.Context, rows []PriceRow) error {
	if len(rows) == 0 {
		return nil
	}

	// repeat with exponential delay
	backoff := w.cfg.RetryBackoff
	query := fmt.Sprintf(`INSERT INTO %s (event_id, emitted_at, component, asset, price, price_decimal, decimals, ts, actor)`, w.table)

	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if lastErr = w.send(ctx, query, rows); lastErr == nil {
			return nil
		}
		if attempt == w.cfg.MaxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}

	return lastErr
}

func (w *Writer) send(ctx context.Context, query string, rows []PriceRow) error {
	batch, err := w.conn.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}

	for i := range rows {
		r := &rows[i]
		if err = batch.Append(
			r.EventID,
			r.EmittedAt,
			r.Component,
			r.Asset,
			r.Price,
			r.PriceDecimal,
			r.Decimals,
			r.Timestamp,
			r.Actor,
		); err != nil {
			_ = batch.Abort()
			return err
		}
	}

	return batch.Send()
}
