// Package sim is an in-memory trading simulator. It produces random-walk
// quotes, order books and trades for the synthetic mock leg.
package sim

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/market-stream/internal/model"
)

// Config configures a Simulator.
type Config struct {
	Interval     time.Duration   // Tick period used by the mock leg
	Volatility   decimal.Decimal // Max relative move per tick, e.g. 0.002
	DefaultPrice decimal.Decimal // Starting price for symbols without SetPrice
	Depth        int             // Order book levels per side
	Seed         uint64          // 0 picks a time-based seed
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     500 * time.Millisecond,
		Volatility:   decimal.RequireFromString("0.002"),
		DefaultPrice: decimal.NewFromInt(10000),
		Depth:        5,
	}
}

type instrument struct {
	open, prev, last decimal.Decimal
	high, low        decimal.Decimal
	volume, value    decimal.Decimal
	trades           int64
}

// Simulator holds per-symbol state. It is safe for concurrent use.
type Simulator struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	rng         *rand.Rand
	instruments map[string]*instrument
}

var (
	minPrice = decimal.RequireFromString("0.01")
	hundred  = decimal.NewFromInt(100)
)

// New creates a simulator.
func New(cfg Config, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if !cfg.DefaultPrice.IsPositive() {
		cfg.DefaultPrice = def.DefaultPrice
	}
	if cfg.Depth <= 0 {
		cfg.Depth = def.Depth
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &Simulator{
		cfg:         cfg,
		logger:      logger,
		rng:         rand.New(rand.NewPCG(seed, seed>>1|1)),
		instruments: make(map[string]*instrument),
	}
}

// Interval returns the configured tick period.
func (s *Simulator) Interval() time.Duration { return s.cfg.Interval }

// SetPrice resets a symbol to price, making it the new session open.
func (s *Simulator) SetPrice(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments[symbol] = newInstrument(price)
}

func newInstrument(price decimal.Decimal) *instrument {
	return &instrument{
		open: price, prev: price, last: price,
		high: price, low: price,
	}
}

// Quote returns the current quote for symbol without advancing it.
func (s *Simulator) Quote(symbol string) model.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quoteLocked(symbol, s.get(symbol), time.Now().UnixMicro())
}

// Step advances symbol by one tick and returns a quote, an order book and
// a trade, in that order.
func (s *Simulator) Step(symbol string) []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := s.get(symbol)
	now := time.Now().UnixMicro()

	move := s.cfg.Volatility.Mul(decimal.NewFromFloat(s.rng.Float64()*2 - 1))
	price := in.last.Mul(decimal.NewFromInt(1).Add(move)).Round(2)
	if price.LessThan(minPrice) {
		price = minPrice
	}

	qty := decimal.NewFromFloat(0.1 + s.rng.Float64()*9.9).Round(4)
	side := model.SideBuy
	if price.LessThan(in.last) {
		side = model.SideSell
	}

	in.last = price
	in.high = decimal.Max(in.high, price)
	in.low = decimal.Min(in.low, price)
	in.volume = in.volume.Add(qty)
	in.value = in.value.Add(qty.Mul(price))
	in.trades++

	trade := model.Trade{
		Ticker:    symbol,
		ID:        fmt.Sprintf("%s-%d", symbol, in.trades),
		Price:     price,
		Quantity:  qty,
		Side:      side,
		Timestamp: now,
	}

	events := []model.Event{
		model.QuoteEvent(s.quoteLocked(symbol, in, now)),
		model.OrderBookEvent(s.bookLocked(symbol, price, now)),
		model.TradeEvent(trade),
	}
	for i := range events {
		events[i].Exchange = model.ExchangeMock
	}
	return events
}

func (s *Simulator) get(symbol string) *instrument {
	in, ok := s.instruments[symbol]
	if !ok {
		in = newInstrument(s.cfg.DefaultPrice)
		s.instruments[symbol] = in
		s.logger.Debug("simulating new symbol", "symbol", symbol, "price", in.last)
	}
	return in
}

func (s *Simulator) quoteLocked(symbol string, in *instrument, now int64) model.Quote {
	change := in.last.Sub(in.prev)
	pct := decimal.Zero
	if in.prev.IsPositive() {
		pct = change.Div(in.prev).Mul(hundred).Round(4)
	}
	return model.Quote{
		Ticker:        symbol,
		CurrentPrice:  in.last,
		PriceChange:   change,
		ChangePercent: pct,
		High:          in.high,
		Low:           in.low,
		Open:          in.open,
		PrevClose:     in.prev,
		Volume:        in.volume,
		TradingValue:  in.value,
		Timestamp:     now,
	}
}

// bookLocked builds a symmetric ladder around mid with a 5bp tick.
func (s *Simulator) bookLocked(symbol string, mid decimal.Decimal, now int64) model.OrderBook {
	tick := mid.Mul(decimal.RequireFromString("0.0005")).Round(2)
	if tick.LessThan(minPrice) {
		tick = minPrice
	}

	book := model.OrderBook{
		Ticker:    symbol,
		Asks:      make([]model.PriceLevel, 0, s.cfg.Depth),
		Bids:      make([]model.PriceLevel, 0, s.cfg.Depth),
		Timestamp: now,
	}
	for i := 1; i <= s.cfg.Depth; i++ {
		offset := tick.Mul(decimal.NewFromInt(int64(i)))
		book.Asks = append(book.Asks, model.PriceLevel{
			Price:    mid.Add(offset),
			Quantity: decimal.NewFromInt(int64(1 + s.rng.IntN(100))),
		})
		book.Bids = append(book.Bids, model.PriceLevel{
			Price:    mid.Sub(offset),
			Quantity: decimal.NewFromInt(int64(1 + s.rng.IntN(100))),
		})
	}
	return model.NormalizeBook(book)
}
