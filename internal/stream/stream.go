package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/market-stream/internal/model"
)

// Errors
var (
	ErrStreamEnded    = errors.New("stream ended")
	ErrAlreadyStarted = errors.New("stream already started")
	ErrNotStarted     = errors.New("stream not started")
)

// Well-known leg names.
const (
	LegKR   = "KR"
	LegUS   = "US"
	LegMock = "mock"
)

// Leg is one event source inside a Unified stream.
// *connection.Session and *MockLeg implement it.
type Leg interface {
	Name() string
	Start(ctx context.Context) error
	Events() <-chan model.Event
	Subscribe(ctx context.Context, symbols []string) error
	Unsubscribe(ctx context.Context, symbols []string) error
}

// Unified merges several legs.
type Unified struct {
	logger *slog.Logger

	mu       sync.RWMutex
	legs     []Leg
	byName   map[string]Leg
	mockMode bool
	started  bool

	merged chan model.Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUnified creates an empty stream. bufferSize bounds the merged channel.
func NewUnified(bufferSize int, logger *slog.Logger) *Unified {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Unified{
		logger: logger,
		byName: make(map[string]Leg),
		merged: make(chan model.Event, bufferSize),
	}
}

// AttachLeg adds a leg. Legs must be attached before Start.
func (u *Unified) AttachLeg(leg Leg) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.started {
		return ErrAlreadyStarted
	}
	if _, ok := u.byName[leg.Name()]; ok {
		return fmt.Errorf("leg %q attached twice: %w", leg.Name(), model.ErrConfiguration)
	}
	u.legs = append(u.legs, leg)
	u.byName[leg.Name()] = leg
	return nil
}

// SetMockMode routes every subscription call to the mock leg.
func (u *Unified) SetMockMode(on bool) {
	u.mu.Lock()
	u.mockMode = on
	u.mu.Unlock()
}

// Legs returns the attached leg names in attach order.
func (u *Unified) Legs() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	names := make([]string, len(u.legs))
	for i, l := range u.legs {
		names[i] = l.Name()
	}
	return names
}

// Leg returns the named leg.
func (u *Unified) Leg(name string) (Leg, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	l, ok := u.byName[name]
	return l, ok
}

// Start starts every leg and the forwarders feeding the merged channel.
// The legs run until ctx is cancelled or Stop is called.
func (u *Unified) Start(ctx context.Context) error {
	u.mu.Lock()
	if u.started {
		u.mu.Unlock()
		return ErrAlreadyStarted
	}
	u.started = true
	legs := append([]Leg(nil), u.legs...)
	u.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	u.cancel = cancel

	g, gctx := errgroup.WithContext(runCtx)
	for _, leg := range legs {
		g.Go(func() error {
			if err := leg.Start(runCtx); err != nil {
				return fmt.Errorf("start leg %s: %w", leg.Name(), err)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		cancel()
		return err
	}

	for _, leg := range legs {
		u.wg.Add(1)
		go u.forward(runCtx, leg)
	}
	go func() {
		u.wg.Wait()
		close(u.merged)
	}()

	u.logger.Info("unified stream started", "legs", len(legs))
	return nil
}

// forward copies one leg's events into the merged channel until the leg
// closes its channel.
func (u *Unified) forward(ctx context.Context, leg Leg) {
	defer u.wg.Done()

	for ev := range leg.Events() {
		if ev.Leg == "" {
			ev.Leg = leg.Name()
		}
		select {
		case u.merged <- ev:
		case <-ctx.Done():
			// Keep draining so the leg can observe cancellation and close.
		}
	}
	u.logger.Info("leg ended", "leg", leg.Name())
}

// Stop cancels every leg. NextEvent returns ErrStreamEnded once all legs
// have closed.
func (u *Unified) Stop() {
	if u.cancel != nil {
		u.cancel()
	}
}

// Events returns the merged channel, closed when every leg has ended.
func (u *Unified) Events() <-chan model.Event {
	return u.merged
}

// NextEvent returns the next event from any leg.
func (u *Unified) NextEvent(ctx context.Context) (model.Event, error) {
	u.mu.RLock()
	started := u.started
	u.mu.RUnlock()
	if !started {
		return model.Event{}, ErrNotStarted
	}

	select {
	case ev, ok := <-u.merged:
		if !ok {
			return model.Event{}, ErrStreamEnded
		}
		return ev, nil
	case <-ctx.Done():
		return model.Event{}, ctx.Err()
	}
}

// Subscribe routes symbol to its leg.
func (u *Unified) Subscribe(ctx context.Context, symbol string) error {
	leg, err := u.route(symbol)
	if err != nil {
		return err
	}
	return leg.Subscribe(ctx, []string{symbol})
}

// Unsubscribe routes symbol to its leg.
func (u *Unified) Unsubscribe(ctx context.Context, symbol string) error {
	leg, err := u.route(symbol)
	if err != nil {
		return err
	}
	return leg.Unsubscribe(ctx, []string{symbol})
}

func (u *Unified) route(symbol string) (Leg, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.mockMode {
		if leg, ok := u.byName[LegMock]; ok {
			return leg, nil
		}
		return nil, fmt.Errorf("mock mode without a mock leg: %w", model.ErrUnsupported)
	}
	if len(u.legs) == 1 {
		return u.legs[0], nil
	}
	if leg, ok := u.byName[Route(symbol)]; ok {
		return leg, nil
	}
	return nil, fmt.Errorf("no leg for symbol %q: %w", symbol, model.ErrUnsupported)
}

// Route returns the leg name for a symbol: six-digit numeric codes trade on
// the domestic (KR) leg, everything else on the overseas (US) leg.
func Route(symbol string) string {
	if len(symbol) != 6 {
		return LegUS
	}
	for i := 0; i < len(symbol); i++ {
		if symbol[i] < '0' || symbol[i] > '9' {
			return LegUS
		}
	}
	return LegKR
}
