package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/market-stream/internal/broadcast"
	"github.com/rickgao/market-stream/internal/config"
	"github.com/rickgao/market-stream/internal/model"
)

// closeTimeout bounds the final flush performed by Close.
const closeTimeout = 10 * time.Second

var _ broadcast.Sink = (*Writer)(nil)

// BatchSender sends a queued batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Stats counts rows by outcome.
type Stats struct {
	Inserts   int64 `json:"inserts"`
	Conflicts int64 `json:"conflicts"`
	Errors    int64 `json:"errors"`
	Flushes   int64 `json:"flushes"`
	Skipped   int64 `json:"skipped"` // Order books and error events
	Pending   int   `json:"pending"`
}

// Writer batches trades and quotes into Postgres.
type Writer struct {
	cfg    config.WriterConfig
	db     BatchSender
	logger *slog.Logger
	now    func() time.Time

	// Batching
	mu     sync.Mutex
	trades []tradeRow
	quotes []quoteRow
	stats  Stats
	closed bool

	// flushMu serializes flushes so rows reach the database in batch order.
	flushMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Writer. Call Start to enable interval flushing; without it
// rows are flushed only when a batch fills or on Close.
func New(cfg config.WriterConfig, db BatchSender, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = config.DefaultWriterBatch
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = config.DefaultWriterFlush
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger.With("component", "writer"),
		now:    time.Now,
		trades: make([]tradeRow, 0, cfg.BatchSize),
		quotes: make([]quoteRow, 0, cfg.BatchSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins periodic flushing. The loop ends when ctx is cancelled or
// the writer is closed.
func (w *Writer) Start(ctx context.Context) {
	w.mu.Lock()
	if w.done != nil || w.closed {
		w.mu.Unlock()
		return
	}
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.flushLoop(ctx)

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
}

// Publish buffers a trade or quote. Other kinds are skipped. A full batch is
// flushed before Publish returns and its error, if any, is returned.
func (w *Writer) Publish(ctx context.Context, ev model.Event) error {
	receivedAt := w.now().UnixMicro()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return broadcast.ErrClosed
	}
	switch {
	case ev.Kind == model.KindTrade && ev.Trade != nil:
		w.trades = append(w.trades, transformTrade(ev.Exchange, *ev.Trade, receivedAt))
	case ev.Kind == model.KindQuote && ev.Quote != nil:
		w.quotes = append(w.quotes, transformQuote(ev.Exchange, *ev.Quote, receivedAt))
	default:
		w.stats.Skipped++
		w.mu.Unlock()
		return nil
	}
	full := len(w.trades)+len(w.quotes) >= w.cfg.BatchSize
	w.mu.Unlock()

	if full {
		return w.flush(ctx)
	}
	return nil
}

// Flush writes all pending rows.
func (w *Writer) Flush(ctx context.Context) error {
	return w.flush(ctx)
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Pending = len(w.trades) + len(w.quotes)
	return s
}

// Close stops the flush loop and writes what is left. Publish fails with
// broadcast.ErrClosed afterwards.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	done := w.done
	w.mu.Unlock()

	w.cancel()
	if done != nil {
		<-done
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := w.flush(ctx)
	w.logger.Info("writer stopped", "stats", w.Stats())
	return err
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.flush(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("interval flush failed", "error", err)
			}
		}
	}
}

// flush takes ownership of the pending rows and inserts them in one batch.
// A failed batch is dropped and counted.
func (w *Writer) flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	trades, quotes := w.trades, w.quotes
	if len(trades) == 0 && len(quotes) == 0 {
		w.mu.Unlock()
		return nil
	}
	w.trades = make([]tradeRow, 0, w.cfg.BatchSize)
	w.quotes = make([]quoteRow, 0, w.cfg.BatchSize)
	w.mu.Unlock()

	start := time.Now()
	n := len(trades) + len(quotes)

	conflicts, err := w.batchInsert(ctx, trades, quotes)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", n)
		w.mu.Lock()
		w.stats.Errors += int64(n)
		w.mu.Unlock()
		return fmt.Errorf("insert %d rows: %w", n, err)
	}

	w.mu.Lock()
	w.stats.Inserts += int64(n - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed batch",
		"trades", len(trades),
		"quotes", len(quotes),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}

// batchInsert queues every row into one pgx.Batch and counts rows that hit
// ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, trades []tradeRow, quotes []quoteRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range trades {
		r.queue(batch)
	}
	for _, r := range quotes {
		r.queue(batch)
	}

	results := w.db.SendBatch(ctx, batch)
	defer func() {
		if cerr := results.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for range batch.Len() {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
