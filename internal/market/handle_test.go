package market

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

type call struct {
	op     string
	symbol string
}

type fakeStream struct {
	mu      sync.Mutex
	calls   []call
	failSub map[string]bool
	failUns map[string]bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{failSub: map[string]bool{}, failUns: map[string]bool{}}
}

func (f *fakeStream) Subscribe(_ context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSub[symbol] {
		return model.ErrNetwork
	}
	f.calls = append(f.calls, call{"sub", symbol})
	return nil
}

func (f *fakeStream) Unsubscribe(_ context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUns[symbol] {
		return model.ErrNetwork
	}
	f.calls = append(f.calls, call{"unsub", symbol})
	return nil
}

func (f *fakeStream) NextEvent(ctx context.Context) (model.Event, error) {
	<-ctx.Done()
	return model.Event{}, ctx.Err()
}

func (f *fakeStream) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func TestHandle_SharedSubscription(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStream()
	h := NewHandle("cred", fs, nil, nil)

	if err := h.Subscribe(ctx, "005930"); err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	if got := fs.count("sub"); got != 1 {
		t.Fatalf("upstream subscribes = %d, want 1", got)
	}

	if err := h.Subscribe(ctx, "005930"); err != nil {
		t.Fatalf("second Subscribe: %v", err)
	}
	if got := fs.count("sub"); got != 1 {
		t.Errorf("second Subscribe reached upstream (%d calls)", got)
	}
	if h.RefCount("005930") != 2 {
		t.Errorf("RefCount = %d, want 2", h.RefCount("005930"))
	}

	h.Unsubscribe(ctx, "005930")
	if fs.count("unsub") != 0 {
		t.Error("Unsubscribe with remaining reference reached upstream")
	}
	h.Unsubscribe(ctx, "005930")
	if fs.count("unsub") != 1 {
		t.Errorf("upstream unsubscribes = %d, want 1", fs.count("unsub"))
	}
	if h.SubscribedCount() != 0 || h.RefCount("005930") != 0 {
		t.Errorf("count = %d, refs = %d after full release", h.SubscribedCount(), h.RefCount("005930"))
	}
}

func TestHandle_SubscribeRollback(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStream()
	fs.failSub["AAPL"] = true
	h := NewHandle("cred", fs, nil, nil)

	err := h.Subscribe(ctx, "AAPL")
	if !errors.Is(err, model.ErrNetwork) {
		t.Fatalf("Subscribe error = %v, want ErrNetwork", err)
	}
	if h.RefCount("AAPL") != 0 || h.SubscribedCount() != 0 {
		t.Errorf("failed subscribe left refs = %d, count = %d", h.RefCount("AAPL"), h.SubscribedCount())
	}

	fs.failSub["AAPL"] = false
	if err := h.Subscribe(ctx, "AAPL"); err != nil {
		t.Fatalf("retry Subscribe: %v", err)
	}
	if h.RefCount("AAPL") != 1 {
		t.Errorf("RefCount = %d, want 1", h.RefCount("AAPL"))
	}
}

func TestHandle_UnsubscribeRollback(t *testing.T) {
	ctx := context.Background()
	fs := newFakeStream()
	h := NewHandle("cred", fs, nil, nil)
	h.Subscribe(ctx, "AAPL")

	fs.failUns["AAPL"] = true
	if err := h.Unsubscribe(ctx, "AAPL"); err == nil {
		t.Fatal("expected unsubscribe error")
	}
	if h.RefCount("AAPL") != 1 {
		t.Errorf("RefCount = %d after failed unsubscribe, want 1", h.RefCount("AAPL"))
	}
	if got := h.SubscribedSymbols(); len(got) != 1 || got[0] != "AAPL" {
		t.Errorf("SubscribedSymbols() = %v", got)
	}
}

func TestHandle_UnsubscribeUnknownIsNoop(t *testing.T) {
	fs := newFakeStream()
	h := NewHandle("cred", fs, nil, nil)

	if err := h.Unsubscribe(context.Background(), "MSFT"); err != nil {
		t.Errorf("Unsubscribe unknown = %v", err)
	}
	if len(fs.calls) != 0 {
		t.Errorf("upstream calls = %v, want none", fs.calls)
	}
}

func TestHandle_ConcurrentFirstSubscribe(t *testing.T) {
	fs := newFakeStream()
	h := NewHandle("cred", fs, nil, nil)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Subscribe(context.Background(), "KRW-BTC")
		}()
	}
	wg.Wait()

	if fs.count("sub") != 1 {
		t.Errorf("upstream subscribes = %d, want 1", fs.count("sub"))
	}
	if h.RefCount("KRW-BTC") != 50 {
		t.Errorf("RefCount = %d, want 50", h.RefCount("KRW-BTC"))
	}
}

// Random sequences: the upstream sees exactly one subscribe per 0 to 1 edge
// and one unsubscribe per 1 to 0 edge, and counts never go negative.
func TestHandle_EdgeProperty(t *testing.T) {
	symbols := []string{"005930", "000660", "AAPL", "TSLA"}
	rng := rand.New(rand.NewPCG(7, 11))

	for trial := range 20 {
		fs := newFakeStream()
		h := NewHandle("cred", fs, nil, nil)
		want := map[string]int{}
		edgesUp, edgesDown := 0, 0

		for range 200 {
			sym := symbols[rng.IntN(len(symbols))]
			if rng.IntN(2) == 0 {
				if want[sym] == 0 {
					edgesUp++
				}
				want[sym]++
				h.Subscribe(context.Background(), sym)
			} else {
				if want[sym] == 1 {
					edgesDown++
				}
				if want[sym] > 0 {
					want[sym]--
				}
				h.Unsubscribe(context.Background(), sym)
			}
		}

		for _, sym := range symbols {
			if got := h.RefCount(sym); got != want[sym] {
				t.Fatalf("trial %d: RefCount(%s) = %d, want %d", trial, sym, got, want[sym])
			}
		}
		if fs.count("sub") != edgesUp || fs.count("unsub") != edgesDown {
			t.Fatalf("trial %d: upstream sub/unsub = %d/%d, want %d/%d",
				trial, fs.count("sub"), fs.count("unsub"), edgesUp, edgesDown)
		}
	}
}

// gatedStream blocks upstream calls for gated symbols until released.
type gatedStream struct {
	fakeStream
	gate    chan struct{}
	entered chan string
	gated   map[string]bool
}

func newGatedStream(symbols ...string) *gatedStream {
	g := &gatedStream{
		fakeStream: fakeStream{failSub: map[string]bool{}, failUns: map[string]bool{}},
		gate:       make(chan struct{}),
		entered:    make(chan string, 4),
		gated:      map[string]bool{},
	}
	for _, s := range symbols {
		g.gated[s] = true
	}
	return g
}

func (g *gatedStream) Subscribe(ctx context.Context, symbol string) error {
	if g.gated[symbol] {
		g.entered <- symbol
		<-g.gate
	}
	return g.fakeStream.Subscribe(ctx, symbol)
}

func (g *gatedStream) Unsubscribe(ctx context.Context, symbol string) error {
	if g.gated[symbol] {
		g.entered <- symbol
		<-g.gate
	}
	return g.fakeStream.Unsubscribe(ctx, symbol)
}

func within(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("%s blocked behind an in-flight upstream call", what)
	}
}

func TestHandle_UpstreamCallDoesNotBlockOthers(t *testing.T) {
	gs := newGatedStream("005930")
	h := NewHandle("cred", gs, nil, nil)

	first := make(chan error, 1)
	go func() { first <- h.Subscribe(context.Background(), "005930") }()
	<-gs.entered

	within(t, "SubscribedCount", func() { h.SubscribedCount() })
	within(t, "SubscribedSymbols", func() { h.SubscribedSymbols() })
	within(t, "Subscribe(AAPL)", func() {
		if err := h.Subscribe(context.Background(), "AAPL"); err != nil {
			t.Errorf("Subscribe(AAPL): %v", err)
		}
	})

	// A second caller for the same symbol waits for the edge to settle.
	second := make(chan error, 1)
	go func() { second <- h.Subscribe(context.Background(), "005930") }()

	if got := h.RefCount("005930"); got != 0 {
		t.Errorf("RefCount before upstream completes = %d, want 0", got)
	}

	close(gs.gate)
	if err := <-first; err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second Subscribe: %v", err)
	}

	if got := h.RefCount("005930"); got != 2 {
		t.Errorf("RefCount = %d, want 2", got)
	}
	if got := gs.count("sub"); got != 2 {
		t.Errorf("upstream subscribes = %d, want one per symbol", got)
	}
}

func TestHandle_UnsubscribeInFlightKeepsReference(t *testing.T) {
	gs := newGatedStream("TSLA")
	close(gs.gate)
	h := NewHandle("cred", gs, nil, nil)
	if err := h.Subscribe(context.Background(), "TSLA"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	<-gs.entered

	gs.gate = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- h.Unsubscribe(context.Background(), "TSLA") }()
	<-gs.entered

	within(t, "RefCount", func() {
		if got := h.RefCount("TSLA"); got != 1 {
			t.Errorf("RefCount during unsubscribe = %d, want 1", got)
		}
	})

	close(gs.gate)
	if err := <-done; err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if got := h.SubscribedCount(); got != 0 {
		t.Errorf("SubscribedCount = %d, want 0", got)
	}
}
