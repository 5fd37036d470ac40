package sim

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rickgao/market-stream/internal/model"
)

func TestSimulator_Step(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 42
	s := New(cfg, nil)
	s.SetPrice("BTC", decimal.NewFromInt(50000))

	for i := 0; i < 100; i++ {
		events := s.Step("BTC")
		if len(events) != 3 {
			t.Fatalf("Step returned %d events, want 3", len(events))
		}

		q, book, trade := events[0].Quote, events[1].OrderBook, events[2].Trade
		if q == nil || book == nil || trade == nil {
			t.Fatalf("unexpected kinds: %v %v %v", events[0].Kind, events[1].Kind, events[2].Kind)
		}
		if !q.CurrentPrice.Equal(trade.Price) {
			t.Errorf("quote %s != trade %s", q.CurrentPrice, trade.Price)
		}
		if !model.ValidBook(*book) {
			t.Fatalf("invalid book at step %d: %+v", i, book)
		}
		if !book.Asks[0].Price.GreaterThan(book.Bids[0].Price) {
			t.Errorf("crossed book: ask %s bid %s", book.Asks[0].Price, book.Bids[0].Price)
		}
		if q.High.LessThan(q.CurrentPrice) || q.Low.GreaterThan(q.CurrentPrice) {
			t.Errorf("price %s outside [%s, %s]", q.CurrentPrice, q.Low, q.High)
		}
		if events[0].Exchange != model.ExchangeMock {
			t.Errorf("Exchange = %q, want mock", events[0].Exchange)
		}
	}
}

func TestSimulator_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 7

	a, b := New(cfg, nil), New(cfg, nil)
	for i := 0; i < 20; i++ {
		pa := a.Step("ETH")[0].Quote.CurrentPrice
		pb := b.Step("ETH")[0].Quote.CurrentPrice
		if !pa.Equal(pb) {
			t.Fatalf("step %d: %s != %s with the same seed", i, pa, pb)
		}
	}
}

func TestSimulator_DefaultPrice(t *testing.T) {
	s := New(Config{}, nil)

	q := s.Quote("NEW")
	if !q.CurrentPrice.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("CurrentPrice = %s, want default 10000", q.CurrentPrice)
	}
	if s.Interval() != DefaultConfig().Interval {
		t.Errorf("Interval = %v", s.Interval())
	}
}
