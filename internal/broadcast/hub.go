package broadcast

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/rickgao/market-stream/internal/model"
)

// HubConfig sizes per-subscriber queues.
type HubConfig struct {
	InitialBuffer int // Default: 64
	MaxBuffer     int // Default: 65536; oldest events are dropped beyond this
}

// DefaultHubConfig returns default configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		InitialBuffer: 64,
		MaxBuffer:     65536,
	}
}

// Filter selects the events a subscription receives. nil accepts everything.
type Filter func(model.Event) bool

// ForTickers accepts events for the given tickers.
func ForTickers(tickers ...string) Filter {
	return func(ev model.Event) bool {
		return slices.Contains(tickers, ev.Ticker())
	}
}

// ForKinds accepts events of the given kinds.
func ForKinds(kinds ...model.EventKind) Filter {
	return func(ev model.Event) bool {
		return slices.Contains(kinds, ev.Kind)
	}
}

// Hub is an in-process Sink. Each subscriber owns a Queue, so a slow reader
// never stalls Publish.
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewHub creates an empty hub.
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InitialBuffer <= 0 {
		cfg.InitialBuffer = DefaultHubConfig().InitialBuffer
	}
	return &Hub{
		cfg:    cfg,
		logger: logger.With("component", "hub"),
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscribe registers a new subscriber. On a closed hub the returned
// subscription is already closed.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s := &Subscription{
		id:     h.nextID,
		hub:    h,
		filter: filter,
		queue:  NewQueue[model.Event](h.cfg.InitialBuffer, h.cfg.MaxBuffer),
	}
	if h.closed {
		s.queue.Close()
		return s
	}
	h.subs[s.id] = s
	h.logger.Debug("subscriber added", "id", s.id, "subscribers", len(h.subs))
	return s
}

// Publish enqueues ev for every matching subscriber.
func (h *Hub) Publish(_ context.Context, ev model.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}
	for _, s := range h.subs {
		if s.filter == nil || s.filter(ev) {
			s.queue.Push(ev)
		}
	}
	return nil
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription. Pending events remain readable.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for id, s := range h.subs {
		s.queue.Close()
		delete(h.subs, id)
	}
	return nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Subscription is one reader of a Hub.
type Subscription struct {
	id     uint64
	hub    *Hub
	filter Filter
	queue  *Queue[model.Event]
}

// Next blocks until an event arrives. It returns false once the subscription
// is closed and drained.
func (s *Subscription) Next() (model.Event, bool) {
	return s.queue.Pop()
}

// TryNext returns a queued event without blocking.
func (s *Subscription) TryNext() (model.Event, bool) {
	return s.queue.TryPop()
}

// Stats returns queue statistics for this subscriber.
func (s *Subscription) Stats() QueueStats {
	return s.queue.Stats()
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.remove(s.id)
	s.queue.Close()
}
