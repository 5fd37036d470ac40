package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func level(price, qty string) PriceLevel {
	return PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestNormalizeBook(t *testing.T) {
	b := OrderBook{
		Ticker: "KRW-BTC",
		Asks: []PriceLevel{
			level("101", "1"),
			level("100", "2"),
			level("0", "5"),
			level("103", "0"),
			level("102", "-1"),
			level("100", "3"),
		},
		Bids: []PriceLevel{
			level("97", "1"),
			level("99", "2"),
			level("-1", "2"),
			level("98", "4"),
		},
	}

	got := NormalizeBook(b)

	if len(got.Asks) != 2 {
		t.Fatalf("Asks = %d levels, want 2", len(got.Asks))
	}
	if !got.Asks[0].Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Asks[0].Price = %s, want 100", got.Asks[0].Price)
	}
	if !got.Asks[0].Quantity.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Asks[0].Quantity = %s, want 5 (merged)", got.Asks[0].Quantity)
	}
	if len(got.Bids) != 3 {
		t.Fatalf("Bids = %d levels, want 3", len(got.Bids))
	}
	if !got.Bids[0].Price.Equal(decimal.NewFromInt(99)) {
		t.Errorf("Bids[0].Price = %s, want 99", got.Bids[0].Price)
	}
	if !ValidBook(got) {
		t.Errorf("normalized book is not valid: %+v", got)
	}
}

func TestValidBook(t *testing.T) {
	tests := []struct {
		name string
		book OrderBook
		want bool
	}{
		{"empty", OrderBook{}, true},
		{"sorted", OrderBook{Asks: []PriceLevel{level("1", "1"), level("2", "1")}, Bids: []PriceLevel{level("0.9", "1"), level("0.8", "1")}}, true},
		{"asks descending", OrderBook{Asks: []PriceLevel{level("2", "1"), level("1", "1")}}, false},
		{"bids equal", OrderBook{Bids: []PriceLevel{level("1", "1"), level("1", "1")}}, false},
		{"zero quantity", OrderBook{Asks: []PriceLevel{level("1", "0")}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidBook(tt.book); got != tt.want {
				t.Errorf("ValidBook() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventTicker(t *testing.T) {
	if got := QuoteEvent(Quote{Ticker: "KRW-BTC"}).Ticker(); got != "KRW-BTC" {
		t.Errorf("quote Ticker() = %q", got)
	}
	if got := OrderBookEvent(OrderBook{Ticker: "005930"}).Ticker(); got != "005930" {
		t.Errorf("orderbook Ticker() = %q", got)
	}
	if got := TradeEvent(Trade{Ticker: "AAPL"}).Ticker(); got != "AAPL" {
		t.Errorf("trade Ticker() = %q", got)
	}

	ev := ErrorEvent(ErrMaxRetries)
	if ev.Ticker() != "" {
		t.Errorf("error Ticker() = %q, want empty", ev.Ticker())
	}
	if !errors.Is(ev.Err, ErrMaxRetries) {
		t.Errorf("Err = %v, want ErrMaxRetries", ev.Err)
	}
	if ev.Message != ErrMaxRetries.Error() {
		t.Errorf("Message = %q", ev.Message)
	}
}
