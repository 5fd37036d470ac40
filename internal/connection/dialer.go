package connection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"github.com/rickgao/market-stream/internal/model"
)

// Dialer opens a connected Client. Sessions dial through it on every attempt.
type Dialer interface {
	Dial(ctx context.Context) (Client, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Client, error)

func (f DialerFunc) Dial(ctx context.Context) (Client, error) {
	return f(ctx)
}

// NewDialer returns a Dialer that opens a fresh WebSocket client per call.
func NewDialer(cfg ClientConfig, logger *slog.Logger) Dialer {
	return DialerFunc(func(ctx context.Context) (Client, error) {
		c := NewClient(cfg, logger)
		if err := c.Connect(ctx); err != nil {
			return nil, fmt.Errorf("dial %s: %v: %w", cfg.URL, err, model.ErrNetwork)
		}
		return c, nil
	})
}

// delayPolicy yields the wait before the next connection attempt.
// *backoff.Backoff satisfies it.
type delayPolicy interface {
	Duration() time.Duration
	Reset()
}

type fixedDelay time.Duration

func (d fixedDelay) Duration() time.Duration { return time.Duration(d) }
func (fixedDelay) Reset()                    {}

func newDelayPolicy(cfg SessionConfig) delayPolicy {
	if cfg.Backoff == BackoffExponential {
		return &backoff.Backoff{
			Min:    cfg.ReconnectDelay,
			Max:    cfg.BackoffMax,
			Factor: 2,
			Jitter: true,
		}
	}
	return fixedDelay(cfg.ReconnectDelay)
}
