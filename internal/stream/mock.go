package stream

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/market-stream/internal/connection"
	"github.com/rickgao/market-stream/internal/model"
	"github.com/rickgao/market-stream/internal/sim"
)

// MockLeg is a synthetic leg that steps a simulator for every subscribed
// symbol on each tick.
type MockLeg struct {
	name   string
	sim    *sim.Simulator
	logger *slog.Logger

	events chan model.Event

	mu      sync.RWMutex
	symbols []string
	started bool
	closed  bool
}

// NewMockLeg creates a mock leg named LegMock.
func NewMockLeg(s *sim.Simulator, bufferSize int, logger *slog.Logger) *MockLeg {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &MockLeg{
		name:   LegMock,
		sim:    s,
		logger: logger.With("leg", LegMock),
		events: make(chan model.Event, bufferSize),
	}
}

func (m *MockLeg) Name() string { return m.name }

func (m *MockLeg) Events() <-chan model.Event { return m.events }

// Start begins ticking in a new goroutine until ctx is cancelled.
func (m *MockLeg) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return connection.ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	go m.run(ctx)
	return nil
}

func (m *MockLeg) run(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.events)
	}()

	ticker := time.NewTicker(m.sim.Interval())
	defer ticker.Stop()

	m.logger.Info("mock leg started", "interval", m.sim.Interval())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range m.Symbols() {
				for _, ev := range m.sim.Step(sym) {
					ev.Leg = m.name
					select {
					case m.events <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}
}

// Subscribe adds symbols to the tick set.
func (m *MockLeg) Subscribe(_ context.Context, symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return connection.ErrSessionClosed
	}
	for _, s := range symbols {
		if !slices.Contains(m.symbols, s) {
			m.symbols = append(m.symbols, s)
		}
	}
	return nil
}

// Unsubscribe removes symbols from the tick set.
func (m *MockLeg) Unsubscribe(_ context.Context, symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return connection.ErrSessionClosed
	}
	m.symbols = slices.DeleteFunc(m.symbols, func(s string) bool {
		return slices.Contains(symbols, s)
	})
	return nil
}

// Symbols returns the subscribed symbols.
func (m *MockLeg) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.symbols)
}
