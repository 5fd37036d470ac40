package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/market-stream/internal/codec"
	"github.com/rickgao/market-stream/internal/metrics"
	"github.com/rickgao/market-stream/internal/model"
)

// ErrAlreadyStarted is returned by Start and Run on a second call.
var ErrAlreadyStarted = errors.New("session already started")

// errDrained ends a connection whose last symbol was removed on a full-state
// wire. The exchange would otherwise keep streaming the old set.
var errDrained = errors.New("subscription set drained")

// Session is a self-healing connection to one exchange endpoint.
//
// All socket I/O and subscription changes happen on the goroutine running
// Run. Subscribe and Unsubscribe hand a command to that goroutine and wait
// for its reply.
type Session struct {
	cfg     SessionConfig
	dialer  Dialer
	wire    codec.Wire
	token   TokenFunc
	logger  *slog.Logger
	metrics *metrics.Metrics

	limiter *rate.Limiter
	delay   delayPolicy

	events   chan model.Event
	commands chan command
	done     chan struct{}

	mu          sync.RWMutex
	state       State
	started     bool
	active      []string // Ordered; replayed on every connect
	attempts    int
	connectedAt time.Time

	connects atomic.Int64
	frames   atomic.Int64
	dropped  atomic.Int64
	emitted  atomic.Int64
}

// NewSession creates a session. It does nothing until Start or Run.
func NewSession(cfg SessionConfig, dialer Dialer, wire codec.Wire, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultSessionConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Exchange == "" {
		cfg.Exchange = wire.Exchange
	}

	limit := rate.Inf
	if cfg.MinSpacing > 0 {
		limit = rate.Every(cfg.MinSpacing)
	}

	return &Session{
		cfg:      cfg,
		dialer:   dialer,
		wire:     wire,
		logger:   logger.With("leg", cfg.Name, "exchange", cfg.Exchange),
		limiter:  rate.NewLimiter(limit, 1),
		delay:    newDelayPolicy(cfg),
		events:   make(chan model.Event, cfg.BufferSize),
		commands: make(chan command),
		done:     make(chan struct{}),
	}
}

// UseToken sets the approval key source. Call before Start.
func (s *Session) UseToken(fn TokenFunc) { s.token = fn }

// UseMetrics sets the metrics sink. Call before Start.
func (s *Session) UseMetrics(m *metrics.Metrics) { s.metrics = m }

// Name returns the leg name.
func (s *Session) Name() string { return s.cfg.Name }

// Events returns the outbound event channel. It is closed when the session
// terminates.
func (s *Session) Events() <-chan model.Event { return s.events }

// Done is closed when the session terminates.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Start runs the session in a new goroutine.
func (s *Session) Start(ctx context.Context) error {
	if !s.markStarted() {
		return ErrAlreadyStarted
	}
	go func() {
		if err := s.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("session terminated", "error", err)
		}
	}()
	return nil
}

// Run drives the connection state machine until ctx is cancelled or the
// retry budget is exhausted. It returns model.ErrMaxRetries in the latter case.
func (s *Session) Run(ctx context.Context) error {
	if !s.markStarted() {
		return ErrAlreadyStarted
	}
	return s.run(ctx)
}

func (s *Session) markStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.started = true
	return true
}

func (s *Session) run(ctx context.Context) error {
	defer s.terminate()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(StateConnecting)
		err := s.connectAndServe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, errDrained) {
			s.logger.Info("no active subscriptions, closing connection")
			if err := s.idle(ctx); err != nil {
				return err
			}
			continue
		}

		attempts := s.failAttempt()
		if err == nil {
			s.logger.Info("stream ended normally", "attempt", attempts)
		} else {
			s.logger.Warn("connection lost", "error", err, "attempt", attempts, "max_retries", s.cfg.MaxRetries)
		}

		if attempts > s.cfg.MaxRetries {
			s.logger.Error("max reconnect attempts reached", "attempts", attempts)
			s.emit(ctx, model.ErrorEvent(fmt.Errorf("%s: %w", s.cfg.Name, model.ErrMaxRetries)))
			return model.ErrMaxRetries
		}

		s.setState(StateReconnecting)
		s.metrics.Reconnect(s.cfg.Name)
		if err := s.wait(ctx, s.delay.Duration()); err != nil {
			return err
		}
	}
}

// connectAndServe performs one connection attempt. It returns nil when the
// peer closed the stream normally.
func (s *Session) connectAndServe(ctx context.Context) error {
	if s.token != nil {
		tok, err := s.token(ctx)
		if err != nil {
			return fmt.Errorf("approval key: %w", err)
		}
		s.wire.Token = tok
	}

	c, err := s.dialer.Dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	s.markConnected()

	if err := s.replay(ctx, c); err != nil {
		return err
	}
	return s.serve(ctx, c)
}

func (s *Session) serve(ctx context.Context, c Client) error {
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	msgs := c.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-msgs:
			if !ok {
				if err := c.Err(); err != nil {
					return fmt.Errorf("read: %v: %w", err, model.ErrNetwork)
				}
				return nil
			}
			s.handleFrame(ctx, c, msg)

		case cmd := <-s.commands:
			err := s.apply(ctx, c, cmd)
			cmd.reply <- err
			if err == nil && cmd.op == opUnsubscribe && s.wire.FullState() && len(s.snapshot()) == 0 {
				return errDrained
			}

		case <-heartbeat.C:
			if err := c.Ping(); err != nil {
				return fmt.Errorf("ping: %v: %w", err, model.ErrNetwork)
			}
			if s.cfg.PongTimeout > 0 && time.Since(c.LastActivity()) > s.cfg.PongTimeout {
				return ErrStaleConnection
			}
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, c Client, msg TimestampedMessage) {
	s.frames.Add(1)
	s.metrics.FrameReceived(s.cfg.Name)

	if reply, ok := codec.PingReply(s.cfg.Exchange, msg.Data); ok {
		if err := c.Send(reply); err != nil {
			s.logger.Debug("failed to answer ping", "error", err)
		}
		return
	}

	events, err := codec.Parse(s.cfg.Exchange, msg.Data)
	if err != nil {
		s.dropped.Add(1)
		s.metrics.FrameDropped(s.cfg.Name)
		s.logger.Debug("dropping frame", "error", err, "bytes", len(msg.Data))
		return
	}

	for _, ev := range events {
		ev.Leg = s.cfg.Name
		stamp(ev, msg.ReceivedAt.UnixMicro())
		if !s.emit(ctx, ev) {
			return
		}
	}
}

// emit blocks until the consumer takes ev or ctx ends.
func (s *Session) emit(ctx context.Context, ev model.Event) bool {
	select {
	case s.events <- ev:
		s.emitted.Add(1)
		s.metrics.Event(s.cfg.Name, string(ev.Kind))
		return true
	case <-ctx.Done():
		return false
	}
}

// stamp fills a zero payload timestamp with the receive time.
func stamp(ev model.Event, us int64) {
	switch {
	case ev.Quote != nil && ev.Quote.Timestamp == 0:
		ev.Quote.Timestamp = us
	case ev.OrderBook != nil && ev.OrderBook.Timestamp == 0:
		ev.OrderBook.Timestamp = us
	case ev.Trade != nil && ev.Trade.Timestamp == 0:
		ev.Trade.Timestamp = us
	}
}

func (s *Session) replay(ctx context.Context, c Client) error {
	active := s.snapshot()
	if len(active) == 0 {
		return nil
	}

	frames, err := s.wire.SubscribeFrames(active, active)
	if err != nil {
		return err
	}
	s.logger.Info("replaying subscriptions", "symbols", len(active), "frames", len(frames))
	return s.send(ctx, c, frames)
}

// send writes frames in order, spaced by the exchange minimum.
func (s *Session) send(ctx context.Context, c Client, frames [][]byte) error {
	for _, f := range frames {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.Send(f); err != nil {
			return fmt.Errorf("send: %v: %w", err, model.ErrNetwork)
		}
	}
	return nil
}

// apply handles a command while connected.
func (s *Session) apply(ctx context.Context, c Client, cmd command) error {
	active, changed := s.update(cmd.op, cmd.symbols)
	if len(changed) == 0 {
		return nil
	}

	var (
		frames [][]byte
		err    error
	)
	if cmd.op == opSubscribe {
		frames, err = s.wire.SubscribeFrames(active, changed)
	} else {
		frames, err = s.wire.UnsubscribeFrames(active, changed)
	}
	if err != nil {
		s.revert(cmd.op, changed)
		return err
	}

	if err := s.send(ctx, c, frames); err != nil {
		// The state change stands and is replayed after reconnect.
		s.logger.Warn("subscription frames not sent", "error", err, "symbols", changed)
	}
	return nil
}

// update applies a command to the active list and returns the new list and
// the symbols that actually changed.
func (s *Session) update(op commandOp, symbols []string) (active, changed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.updateLocked(op, symbols)
	return slices.Clone(s.active), changed
}

func (s *Session) updateLocked(op commandOp, symbols []string) []string {
	var changed []string
	for _, sym := range symbols {
		i := slices.Index(s.active, sym)
		switch {
		case op == opSubscribe && i < 0:
			s.active = append(s.active, sym)
			changed = append(changed, sym)
		case op == opUnsubscribe && i >= 0:
			s.active = slices.Delete(s.active, i, i+1)
			changed = append(changed, sym)
		}
	}
	return changed
}

func (s *Session) revert(op commandOp, changed []string) {
	inverse := opUnsubscribe
	if op == opUnsubscribe {
		inverse = opSubscribe
	}
	s.update(inverse, changed)
}

// wait sleeps out the reconnect delay. Commands received meanwhile only
// update the active list.
func (s *Session) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case cmd := <-s.commands:
			s.update(cmd.op, cmd.symbols)
			cmd.reply <- nil
		}
	}
}

// idle holds the session disconnected until a command leaves symbols active.
func (s *Session) idle(ctx context.Context) error {
	s.setState(StateDisconnected)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.commands:
			active, _ := s.update(cmd.op, cmd.symbols)
			cmd.reply <- nil
			if len(active) > 0 {
				return nil
			}
		}
	}
}

// Subscribe adds symbols to the session. Symbols already active are ignored.
func (s *Session) Subscribe(ctx context.Context, symbols []string) error {
	return s.do(ctx, opSubscribe, symbols)
}

// Unsubscribe removes symbols from the session. Unknown symbols are ignored.
func (s *Session) Unsubscribe(ctx context.Context, symbols []string) error {
	return s.do(ctx, opUnsubscribe, symbols)
}

func (s *Session) do(ctx context.Context, op commandOp, symbols []string) error {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if !s.started {
		// Picked up by the first replay.
		s.updateLocked(op, symbols)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	cmd := command{op: op, symbols: symbols, reply: make(chan error, 1)}

	select {
	case s.commands <- cmd:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-s.done:
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the symbols currently subscribed, in subscription order.
func (s *Session) Active() []string {
	return s.snapshot()
}

func (s *Session) snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.active)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.metrics.SetState(s.cfg.Name, int(st))
}

func (s *Session) markConnected() {
	s.mu.Lock()
	s.state = StateConnected
	s.attempts = 0
	s.connectedAt = time.Now()
	s.mu.Unlock()

	s.delay.Reset()
	n := s.connects.Add(1)
	s.metrics.SetState(s.cfg.Name, int(StateConnected))
	s.logger.Info("connected", "connects", n)
}

func (s *Session) failAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

func (s *Session) terminate() {
	s.setState(StateTerminated)
	close(s.done)
	close(s.events)
}

// Stats returns current session statistics.
func (s *Session) Stats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reconnects := s.connects.Load() - 1
	if reconnects < 0 {
		reconnects = 0
	}

	return SessionStats{
		Name:          s.cfg.Name,
		Exchange:      s.cfg.Exchange,
		State:         s.state.String(),
		Attempts:      s.attempts,
		Reconnects:    reconnects,
		Frames:        s.frames.Load(),
		Dropped:       s.dropped.Load(),
		Events:        s.emitted.Load(),
		Subscriptions: len(s.active),
		ConnectedAt:   s.connectedAt,
	}
}
