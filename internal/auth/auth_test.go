package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func counting() (TokenSource, *atomic.Int32) {
	var n atomic.Int32
	return TokenFunc(func(context.Context) (string, error) {
		return fmt.Sprintf("key-%d", n.Add(1)), nil
	}), &n
}

func TestStatic(t *testing.T) {
	if tok, err := Static("abc").Token(context.Background()); err != nil || tok != "abc" {
		t.Errorf("Static = %q, %v", tok, err)
	}
	if _, err := Static("").Token(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("empty Static = %v, want ErrNoToken", err)
	}
}

func TestRateLimited_SharedAcrossLegs(t *testing.T) {
	src, calls := counting()
	rl := NewRateLimited(src, time.Minute, 0, nil)

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := rl.Token(context.Background())
			if err != nil {
				t.Errorf("Token: %v", err)
			}
			tokens[i] = tok
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
	for _, tok := range tokens {
		if tok != "key-1" {
			t.Errorf("token = %q, want key-1", tok)
		}
	}
}

func TestRateLimited_RefreshWithinInterval(t *testing.T) {
	src, calls := counting()
	rl := NewRateLimited(src, time.Minute, 0, nil)

	if _, err := rl.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	rl.Invalidate()

	// The limiter holds the next issuance for a minute.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := rl.Token(ctx); err == nil {
		t.Error("expected rate limit error within the interval")
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestRateLimited_TTL(t *testing.T) {
	src, calls := counting()
	rl := NewRateLimited(src, time.Millisecond, time.Hour, nil)

	now := time.Now()
	rl.now = func() time.Time { return now }

	first, _ := rl.Token(context.Background())

	now = now.Add(2 * time.Hour)
	time.Sleep(5 * time.Millisecond)
	second, err := rl.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}

	if first == second || calls.Load() != 2 {
		t.Errorf("expired key not refreshed: %q %q calls=%d", first, second, calls.Load())
	}
	if rl.Issued() != 2 {
		t.Errorf("Issued = %d", rl.Issued())
	}
}

func TestRateLimited_StaleKeyOnLimit(t *testing.T) {
	src, _ := counting()
	rl := NewRateLimited(src, time.Minute, time.Hour, nil)

	now := time.Now()
	rl.now = func() time.Time { return now }
	first, _ := rl.Token(context.Background())

	now = now.Add(2 * time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	tok, err := rl.Token(ctx)
	if err != nil || tok != first {
		t.Errorf("Token = %q, %v; want stale %q", tok, err, first)
	}
}

func TestRateLimited_UpstreamError(t *testing.T) {
	rl := NewRateLimited(Static(""), time.Millisecond, 0, nil)
	if _, err := rl.Token(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("err = %v, want wrapped ErrNoToken", err)
	}
}
