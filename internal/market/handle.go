package market

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/rickgao/market-stream/internal/metrics"
	"github.com/rickgao/market-stream/internal/model"
)

// Stream is the upstream a Handle drives. *stream.Unified implements it.
type Stream interface {
	Subscribe(ctx context.Context, symbol string) error
	Unsubscribe(ctx context.Context, symbol string) error
	NextEvent(ctx context.Context) (model.Event, error)
}

// Handle reference-counts subscriptions over a Stream. Only the first
// subscriber and the last unsubscriber of a symbol reach the upstream.
//
// Edge transitions of one symbol are serialized by a per-symbol lock; the
// upstream call runs outside mu, so readers and other symbols never wait on
// exchange I/O.
type Handle struct {
	id      string
	stream  Stream
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.RWMutex
	refs  map[string]int
	edges map[string]*edgeLock
}

// edgeLock serializes the edges of one symbol. users counts holders and
// waiters so the lock can be dropped once idle.
type edgeLock struct {
	mu    sync.Mutex
	users int
}

// NewHandle wraps s. id labels logs and metrics.
func NewHandle(id string, s Stream, m *metrics.Metrics, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{
		id:      id,
		stream:  s,
		metrics: m,
		logger:  logger.With("credential", id),
		refs:    make(map[string]int),
		edges:   make(map[string]*edgeLock),
	}
}

// ID returns the credential id the handle belongs to.
func (h *Handle) ID() string { return h.id }

func (h *Handle) lockSymbol(symbol string) {
	h.mu.Lock()
	l, ok := h.edges[symbol]
	if !ok {
		l = &edgeLock{}
		h.edges[symbol] = l
	}
	l.users++
	h.mu.Unlock()

	l.mu.Lock()
}

func (h *Handle) unlockSymbol(symbol string) {
	h.mu.Lock()
	l := h.edges[symbol]
	l.users--
	if l.users == 0 {
		delete(h.edges, symbol)
	}
	h.mu.Unlock()

	l.mu.Unlock()
}

// Subscribe adds a reference to symbol. On the 0 to 1 edge the upstream is
// subscribed and the reference is recorded only if that succeeds.
func (h *Handle) Subscribe(ctx context.Context, symbol string) error {
	h.lockSymbol(symbol)
	defer h.unlockSymbol(symbol)

	h.mu.Lock()
	if h.refs[symbol] > 0 {
		h.refs[symbol]++
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	if err := h.stream.Subscribe(ctx, symbol); err != nil {
		h.logger.Warn("subscribe failed", "symbol", symbol, "error", err)
		return err
	}

	h.mu.Lock()
	h.refs[symbol] = 1
	n := len(h.refs)
	h.mu.Unlock()

	h.metrics.SetSubscriptions(h.id, n)
	h.logger.Info("symbol subscribed", "symbol", symbol, "symbols", n)
	return nil
}

// Unsubscribe drops a reference to symbol. On the 1 to 0 edge the upstream
// is unsubscribed and the last reference stays until that succeeds. Unknown
// symbols are ignored.
func (h *Handle) Unsubscribe(ctx context.Context, symbol string) error {
	h.lockSymbol(symbol)
	defer h.unlockSymbol(symbol)

	h.mu.Lock()
	n, ok := h.refs[symbol]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	if n > 1 {
		h.refs[symbol] = n - 1
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	if err := h.stream.Unsubscribe(ctx, symbol); err != nil {
		h.logger.Warn("unsubscribe failed", "symbol", symbol, "error", err)
		return err
	}

	h.mu.Lock()
	delete(h.refs, symbol)
	left := len(h.refs)
	h.mu.Unlock()

	h.metrics.SetSubscriptions(h.id, left)
	h.logger.Info("symbol unsubscribed", "symbol", symbol, "symbols", left)
	return nil
}

// SubscribedSymbols returns the symbols with a positive count, sorted.
func (h *Handle) SubscribedSymbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.refs))
	for s := range h.refs {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// SubscribedCount returns the number of distinct subscribed symbols.
func (h *Handle) SubscribedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.refs)
}

// RefCount returns the reference count of symbol.
func (h *Handle) RefCount(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.refs[symbol]
}

// NextEvent returns the next event from the underlying stream.
func (h *Handle) NextEvent(ctx context.Context) (model.Event, error) {
	return h.stream.NextEvent(ctx)
}
