package codec

import (
	"bytes"
	"encoding/json"

	"github.com/rickgao/market-stream/internal/model"
)

// Wire types for Upbit DEFAULT-format frames.

type upbitEnvelope struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

type upbitTickerWire struct {
	Code              string `json:"code"`
	Change            string `json:"change"` // "RISE", "EVEN", "FALL"
	TradePrice        number `json:"trade_price"`
	ChangePrice       number `json:"change_price"`
	ChangeRate        number `json:"change_rate"`
	HighPrice         number `json:"high_price"`
	LowPrice          number `json:"low_price"`
	OpeningPrice      number `json:"opening_price"`
	PrevClosingPrice  number `json:"prev_closing_price"`
	AccTradeVolume24h number `json:"acc_trade_volume_24h"`
	AccTradePrice24h  number `json:"acc_trade_price_24h"`
	Timestamp         int64  `json:"timestamp"` // ms
}

type upbitOrderbookWire struct {
	Code           string `json:"code"`
	Timestamp      int64  `json:"timestamp"` // ms
	OrderbookUnits []struct {
		AskPrice number `json:"ask_price"`
		BidPrice number `json:"bid_price"`
		AskSize  number `json:"ask_size"`
		BidSize  number `json:"bid_size"`
	} `json:"orderbook_units"`
}

type upbitTradeWire struct {
	Code           string      `json:"code"`
	TradePrice     number      `json:"trade_price"`
	TradeVolume    number      `json:"trade_volume"`
	AskBid         string      `json:"ask_bid"` // "ASK" = sell, "BID" = buy
	SequentialID   json.Number `json:"sequential_id"`
	TradeTimestamp int64       `json:"trade_timestamp"` // ms
	Timestamp      int64       `json:"timestamp"`       // ms
}

func parseUpbit(frame []byte) ([]model.Event, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 || frame[0] != '{' {
		return nil, parseErr(model.ExchangeUpbit, "not a JSON object")
	}

	var env upbitEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, parseErr(model.ExchangeUpbit, "envelope: %v", err)
	}

	switch env.Type {
	case "ticker":
		return decodeUpbitTicker(frame)
	case "orderbook":
		return decodeUpbitOrderbook(frame)
	case "trade":
		return decodeUpbitTrade(frame)
	default:
		// {"status":"UP"} heartbeats, {"error":{...}} acks, unknown types.
		return nil, nil
	}
}

func decodeUpbitTicker(frame []byte) ([]model.Event, error) {
	var wire upbitTickerWire
	if err := json.Unmarshal(frame, &wire); err != nil {
		return nil, parseErr(model.ExchangeUpbit, "ticker: %v", err)
	}
	if wire.Code == "" {
		return nil, parseErr(model.ExchangeUpbit, "ticker without code")
	}

	change := wire.ChangePrice.Decimal
	rate := wire.ChangeRate.Decimal
	if wire.Change == "FALL" {
		// change_price and change_rate are absolute values on the wire.
		change = change.Abs().Neg()
		rate = rate.Abs().Neg()
	}

	return []model.Event{model.QuoteEvent(model.Quote{
		Ticker:        wire.Code,
		CurrentPrice:  wire.TradePrice.Decimal,
		PriceChange:   change,
		ChangePercent: rate,
		High:          wire.HighPrice.Decimal,
		Low:           wire.LowPrice.Decimal,
		Open:          wire.OpeningPrice.Decimal,
		PrevClose:     wire.PrevClosingPrice.Decimal,
		Volume:        wire.AccTradeVolume24h.Decimal,
		TradingValue:  wire.AccTradePrice24h.Decimal,
		Timestamp:     wire.Timestamp * 1000, // ms → µs
	})}, nil
}

func decodeUpbitOrderbook(frame []byte) ([]model.Event, error) {
	var wire upbitOrderbookWire
	if err := json.Unmarshal(frame, &wire); err != nil {
		return nil, parseErr(model.ExchangeUpbit, "orderbook: %v", err)
	}
	if wire.Code == "" {
		return nil, parseErr(model.ExchangeUpbit, "orderbook without code")
	}

	book := model.OrderBook{
		Ticker:    wire.Code,
		Asks:      make([]model.PriceLevel, 0, len(wire.OrderbookUnits)),
		Bids:      make([]model.PriceLevel, 0, len(wire.OrderbookUnits)),
		Timestamp: wire.Timestamp * 1000,
	}
	for _, u := range wire.OrderbookUnits {
		book.Asks = append(book.Asks, model.PriceLevel{Price: u.AskPrice.Decimal, Quantity: u.AskSize.Decimal})
		book.Bids = append(book.Bids, model.PriceLevel{Price: u.BidPrice.Decimal, Quantity: u.BidSize.Decimal})
	}

	return []model.Event{model.OrderBookEvent(model.NormalizeBook(book))}, nil
}

func decodeUpbitTrade(frame []byte) ([]model.Event, error) {
	var wire upbitTradeWire
	if err := json.Unmarshal(frame, &wire); err != nil {
		return nil, parseErr(model.ExchangeUpbit, "trade: %v", err)
	}
	if wire.Code == "" {
		return nil, parseErr(model.ExchangeUpbit, "trade without code")
	}

	side := model.SideBuy
	if wire.AskBid == "ASK" {
		side = model.SideSell
	}

	ts := wire.TradeTimestamp
	if ts == 0 {
		ts = wire.Timestamp
	}

	return []model.Event{model.TradeEvent(model.Trade{
		Ticker:    wire.Code,
		ID:        wire.SequentialID.String(),
		Price:     wire.TradePrice.Decimal,
		Quantity:  wire.TradeVolume.Decimal,
		Side:      side,
		Timestamp: ts * 1000,
	})}, nil
}
