package model

import (
	"github.com/shopspring/decimal"
)

// Exchange identifies a wire protocol family. It is the routing key for codec dispatch.
type Exchange string

const (
	ExchangeUpbit   Exchange = "upbit"
	ExchangeBithumb Exchange = "bithumb"
	ExchangeKIS     Exchange = "kis"
	ExchangeMock    Exchange = "mock"
)

// Side is the aggressor side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// -----------------------------------------------------------------------------
// Normalized payloads
// -----------------------------------------------------------------------------

// Quote is a normalized ticker update.
type Quote struct {
	Ticker        string          `json:"ticker"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	PriceChange   decimal.Decimal `json:"price_change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Open          decimal.Decimal `json:"open"`
	PrevClose     decimal.Decimal `json:"prev_close"`
	Volume        decimal.Decimal `json:"volume"`
	TradingValue  decimal.Decimal `json:"trading_value"`
	Timestamp     int64           `json:"timestamp"` // µs since epoch
}

// PriceLevel is a single (price, quantity) rung of an order book ladder.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBook is a full order book snapshot.
// Asks are strictly ascending by price, bids strictly descending; see NormalizeBook.
type OrderBook struct {
	Ticker    string       `json:"ticker"`
	Asks      []PriceLevel `json:"asks"`
	Bids      []PriceLevel `json:"bids"`
	Timestamp int64        `json:"timestamp"` // µs since epoch
}

// Trade is a single executed trade.
type Trade struct {
	Ticker    string          `json:"ticker"`
	ID        string          `json:"id"` // Exchange-assigned, used for dedup
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Side      Side            `json:"side"`
	Timestamp int64           `json:"timestamp"` // µs since epoch
}

// -----------------------------------------------------------------------------
// Event envelope
// -----------------------------------------------------------------------------

// EventKind discriminates the Event union.
type EventKind string

const (
	KindQuote     EventKind = "quote"
	KindOrderBook EventKind = "orderbook"
	KindTrade     EventKind = "trade"
	KindError     EventKind = "error"
)

// Event is a tagged union of normalized market data. Exactly one of Quote,
// OrderBook, Trade or Err is set, matching Kind.
type Event struct {
	Kind     EventKind `json:"kind"`
	Exchange Exchange  `json:"exchange,omitempty"`
	Leg      string    `json:"leg,omitempty"`

	Quote     *Quote     `json:"quote,omitempty"`
	OrderBook *OrderBook `json:"orderbook,omitempty"`
	Trade     *Trade     `json:"trade,omitempty"`

	Err     error  `json:"-"`
	Message string `json:"error,omitempty"`
}

// QuoteEvent wraps a quote.
func QuoteEvent(q Quote) Event {
	return Event{Kind: KindQuote, Quote: &q}
}

// OrderBookEvent wraps an order book snapshot.
func OrderBookEvent(b OrderBook) Event {
	return Event{Kind: KindOrderBook, OrderBook: &b}
}

// TradeEvent wraps a trade.
func TradeEvent(t Trade) Event {
	return Event{Kind: KindTrade, Trade: &t}
}

// ErrorEvent wraps an out-of-band error such as reconnect exhaustion.
func ErrorEvent(err error) Event {
	return Event{Kind: KindError, Err: err, Message: err.Error()}
}

// Ticker returns the symbol the event refers to, or "" for error events.
func (e Event) Ticker() string {
	switch e.Kind {
	case KindQuote:
		if e.Quote != nil {
			return e.Quote.Ticker
		}
	case KindOrderBook:
		if e.OrderBook != nil {
			return e.OrderBook.Ticker
		}
	case KindTrade:
		if e.Trade != nil {
			return e.Trade.Ticker
		}
	}
	return ""
}
