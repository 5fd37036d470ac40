package market

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/market-stream/internal/bridge"
	"github.com/rickgao/market-stream/internal/broadcast"
	"github.com/rickgao/market-stream/internal/connection"
	"github.com/rickgao/market-stream/internal/credential"
	"github.com/rickgao/market-stream/internal/metrics"
	"github.com/rickgao/market-stream/internal/stream"
)

// Errors
var (
	ErrNotFound = errors.New("stream not found")
	ErrClosed   = errors.New("registry closed")
)

// Registry maps credential ids to live streams. Entries stay until Release
// or Close.
type Registry struct {
	resolver credential.Resolver
	cfg      Config
	sink     broadcast.Sink
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// newDialer builds the transport for a session endpoint.
	newDialer func(url string) connection.Dialer

	ctx    context.Context
	cancel context.CancelFunc

	// creating deduplicates concurrent GetOrCreate calls per id.
	creating singleflight.Group

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool
}

type entry struct {
	cred      credential.Credential
	handle    *Handle
	stream    *stream.Unified
	sessions  []*connection.Session
	bridge    *bridge.Bridge
	cancel    context.CancelFunc
	createdAt time.Time
}

// EntryStats describes one registry entry.
type EntryStats struct {
	ID        string                    `json:"id"`
	Family    string                    `json:"family"`
	Legs      []string                  `json:"legs"`
	Symbols   []string                  `json:"symbols"`
	Sessions  []connection.SessionStats `json:"sessions,omitempty"`
	Bridge    *bridge.Stats             `json:"bridge,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
}

// NewRegistry creates an empty registry. sink and m may be nil; with a sink,
// every stream gets a bridge that publishes its events.
func NewRegistry(resolver credential.Resolver, cfg Config, sink broadcast.Sink, m *metrics.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		resolver: resolver,
		cfg:      cfg,
		sink:     sink,
		metrics:  m,
		logger:   logger.With("component", "registry"),
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
	}
	r.newDialer = func(url string) connection.Dialer {
		cc := connection.DefaultClientConfig()
		cc.URL = url
		return connection.NewDialer(cc, logger)
	}
	return r
}

// GetOrCreate returns the handle for id, building and starting its stream on
// first use. Concurrent calls for the same id share one creation; the
// registry lock is only taken to look up and insert.
func (r *Registry) GetOrCreate(ctx context.Context, id string) (*Handle, error) {
	if h, ok, err := r.lookup(id); ok || err != nil {
		return h, err
	}

	v, err, _ := r.creating.Do(id, func() (any, error) {
		if h, ok, err := r.lookup(id); ok || err != nil {
			return h, err
		}
		return r.create(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (r *Registry) lookup(id string) (*Handle, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[id]; ok {
		return e.handle, true, nil
	}
	if r.closed {
		return nil, false, ErrClosed
	}
	return nil, false, nil
}

// create resolves, builds and starts the stream for id without holding mu.
func (r *Registry) create(ctx context.Context, id string) (*Handle, error) {
	cred, err := r.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve credential %s: %w", id, err)
	}

	e, err := r.build(cred)
	if err != nil {
		return nil, err
	}

	entryCtx, cancel := context.WithCancel(r.ctx)
	e.cancel = cancel
	if err := e.stream.Start(entryCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start stream %s: %w", id, err)
	}
	if r.sink != nil {
		e.bridge = bridge.New(id, e.handle, r.sink, r.metrics, r.logger)
		if err := e.bridge.Start(entryCtx); err != nil {
			e.stream.Stop()
			cancel()
			return nil, err
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.stop(ctx, id, e)
		return nil, ErrClosed
	}
	if existing, ok := r.entries[id]; ok {
		r.mu.Unlock()
		r.stop(ctx, id, e)
		return existing.handle, nil
	}
	r.entries[id] = e
	n := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetStreams(n)
	r.logger.Info("stream created", "credential", id, "family", cred.Family, "legs", e.stream.Legs())
	return e.handle, nil
}

// Get returns the handle for id if it exists.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Release stops the stream for id and removes it. Sessions are cancelled;
// the bridge drains until the stream reports its end or ctx expires.
func (r *Registry) Release(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		r.metrics.SetStreams(len(r.entries))
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	return r.stop(ctx, id, e)
}

// Close releases every entry and rejects further GetOrCreate calls.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.metrics.SetStreams(0)
	r.mu.Unlock()

	var errs []error
	for id, e := range entries {
		if err := r.stop(ctx, id, e); err != nil {
			errs = append(errs, err)
		}
	}
	r.cancel()
	return errors.Join(errs...)
}

func (r *Registry) stop(ctx context.Context, id string, e *entry) error {
	e.stream.Stop()
	e.cancel()

	var err error
	if e.bridge != nil {
		if err = e.bridge.Stop(ctx); err != nil {
			err = fmt.Errorf("stop bridge %s: %w", id, err)
		}
	}
	r.logger.Info("stream released", "credential", id)
	return err
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Stats describes every entry, ordered by id.
func (r *Registry) Stats() []EntryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EntryStats, 0, len(r.entries))
	for id, e := range r.entries {
		st := EntryStats{
			ID:        id,
			Family:    e.cred.Family,
			Legs:      e.stream.Legs(),
			Symbols:   e.handle.SubscribedSymbols(),
			CreatedAt: e.createdAt,
		}
		for _, s := range e.sessions {
			st.Sessions = append(st.Sessions, s.Stats())
		}
		if e.bridge != nil {
			bs := e.bridge.Stats()
			st.Bridge = &bs
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b EntryStats) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
