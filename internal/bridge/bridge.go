// Package bridge drains a market stream into a broadcast sink.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rickgao/market-stream/internal/broadcast"
	"github.com/rickgao/market-stream/internal/metrics"
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/stream"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("bridge already started")

// Source yields events until the stream ends.
type Source interface {
	NextEvent(ctx context.Context) (model.Event, error)
}

// Stats contains runtime statistics.
type Stats struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Ended     bool  `json:"ended"`
}

// Bridge runs one goroutine that forwards every event from a Source to a
// Sink. It never restarts the source: once the stream ends the bridge exits.
type Bridge struct {
	name    string
	src     Source
	sink    broadcast.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	started   bool
	published int64
	failed    int64
	ended     bool
}

// New creates a bridge named after the credential whose stream it drains.
func New(name string, src Source, sink broadcast.Sink, m *metrics.Metrics, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		name:    name,
		src:     src,
		sink:    sink,
		metrics: m,
		logger:  logger.With("bridge", name),
		done:    make(chan struct{}),
	}
}

// Start launches the forwarding loop.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrAlreadyStarted
	}
	b.started = true

	b.ctx, b.cancel = context.WithCancel(ctx)
	go b.run()

	b.logger.Info("bridge started")
	return nil
}

// Stop cancels the loop and waits for it, bounded by ctx.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("bridge stop timed out")
		return ctx.Err()
	}
}

// Done is closed when the loop exits.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Stats returns current statistics.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Published: b.published,
		Failed:    b.failed,
		Ended:     b.ended,
	}
}

func (b *Bridge) run() {
	defer close(b.done)

	for {
		ev, err := b.src.NextEvent(b.ctx)
		if err != nil {
			switch {
			case errors.Is(err, stream.ErrStreamEnded):
				b.mu.Lock()
				b.ended = true
				b.mu.Unlock()
				b.logger.Info("stream ended, bridge exiting")
			case b.ctx.Err() != nil:
				b.logger.Info("bridge stopped")
			default:
				b.logger.Warn("next event failed, bridge exiting", "error", err)
			}
			return
		}

		if ev.Kind == model.KindError {
			b.logger.Warn("stream error event", "exchange", ev.Exchange, "leg", ev.Leg, "error", ev.Message)
		}

		err = b.sink.Publish(b.ctx, ev)
		b.metrics.PublishResult(b.name, err)

		b.mu.Lock()
		if err != nil {
			b.failed++
		} else {
			b.published++
		}
		b.mu.Unlock()

		if err != nil {
			b.logger.Warn("publish failed", "ticker", ev.Ticker(), "kind", ev.Kind, "error", err)
		}
	}
}
