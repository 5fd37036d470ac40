// Package auth provides the approval keys sessions attach to subscribe frames.
//
// Issuance is rate limited by the broker, so sources are wrapped in
// RateLimited and shared by every leg of one credential.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrNoToken is returned by a source that has nothing to issue.
var ErrNoToken = errors.New("no approval key configured")

// TokenSource issues approval keys.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Static always returns the same key.
type Static string

func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// RateLimited caches the key from an upstream source and refreshes it at
// most once per interval, however many legs ask.
type RateLimited struct {
	src     TokenSource
	ttl     time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	token    string
	issuedAt time.Time
	issued   int
}

// NewRateLimited wraps src. interval is the minimum gap between upstream
// calls; ttl is how long a key is reused before refreshing (0 = forever).
func NewRateLimited(src TokenSource, interval, ttl time.Duration, logger *slog.Logger) *RateLimited {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimited{
		src:     src,
		ttl:     ttl,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
		now:     time.Now,
	}
}

// Token returns the cached key, or waits for the limiter and fetches a new
// one. Concurrent callers share a single fetch.
func (r *RateLimited) Token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && (r.ttl == 0 || r.now().Sub(r.issuedAt) < r.ttl) {
		return r.token, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		if r.token != "" {
			// Limiter would exceed ctx; a stale key beats none.
			return r.token, nil
		}
		return "", fmt.Errorf("approval key rate limit: %w", err)
	}

	tok, err := r.src.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("issue approval key: %w", err)
	}

	r.token = tok
	r.issuedAt = r.now()
	r.issued++
	r.logger.Info("approval key issued", "count", r.issued)
	return tok, nil
}

// Invalidate drops the cached key so the next Token call refreshes it,
// still subject to the rate limit.
func (r *RateLimited) Invalidate() {
	r.mu.Lock()
	r.token = ""
	r.mu.Unlock()
}

// Issued returns how many keys were fetched upstream.
func (r *RateLimited) Issued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.issued
}
