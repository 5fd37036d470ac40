package codec

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

var kst = time.FixedZone("KST", 9*60*60)

type bithumbEnvelope struct {
	Type    string          `json:"type"`
	Status  string          `json:"status"`
	Content json.RawMessage `json:"content"`
}

type bithumbTickerWire struct {
	Symbol         string `json:"symbol"`
	ClosePrice     number `json:"closePrice"`
	ChgAmt         number `json:"chgAmt"`
	ChgRate        number `json:"chgRate"`
	HighPrice      number `json:"highPrice"`
	LowPrice       number `json:"lowPrice"`
	OpenPrice      number `json:"openPrice"`
	PrevClosePrice number `json:"prevClosePrice"`
	Volume         number `json:"volume"`
	Value          number `json:"value"`
	Date           string `json:"date"` // YYYYMMDD
	Time           string `json:"time"` // HHMMSS
}

type bithumbTransactionWire struct {
	List []struct {
		Symbol    string `json:"symbol"`
		BuySellGb string `json:"buySellGb"` // "1" = sell, "2" = buy
		ContPrice number `json:"contPrice"`
		ContQty   number `json:"contQty"`
		ContDtm   string `json:"contDtm"` // "2006-01-02 15:04:05.000000"
	} `json:"list"`
}

func parseBithumb(frame []byte) ([]model.Event, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 || frame[0] != '{' {
		return nil, parseErr(model.ExchangeBithumb, "not a JSON object")
	}

	var env bithumbEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, parseErr(model.ExchangeBithumb, "envelope: %v", err)
	}

	switch env.Type {
	case "ticker":
		return decodeBithumbTicker(env.Content)
	case "transaction":
		return decodeBithumbTransactions(env.Content)
	default:
		// Connection and subscription status frames, orderbookdepth deltas.
		return nil, nil
	}
}

func decodeBithumbTicker(content json.RawMessage) ([]model.Event, error) {
	var wire bithumbTickerWire
	if err := json.Unmarshal(content, &wire); err != nil {
		return nil, parseErr(model.ExchangeBithumb, "ticker: %v", err)
	}
	if wire.Symbol == "" {
		return nil, parseErr(model.ExchangeBithumb, "ticker without symbol")
	}

	return []model.Event{model.QuoteEvent(model.Quote{
		Ticker:        wire.Symbol,
		CurrentPrice:  wire.ClosePrice.Decimal,
		PriceChange:   wire.ChgAmt.Decimal,
		ChangePercent: wire.ChgRate.Decimal,
		High:          wire.HighPrice.Decimal,
		Low:           wire.LowPrice.Decimal,
		Open:          wire.OpenPrice.Decimal,
		PrevClose:     wire.PrevClosePrice.Decimal,
		Volume:        wire.Volume.Decimal,
		TradingValue:  wire.Value.Decimal,
		Timestamp:     bithumbTickerTime(wire.Date, wire.Time),
	})}, nil
}

func decodeBithumbTransactions(content json.RawMessage) ([]model.Event, error) {
	var wire bithumbTransactionWire
	if err := json.Unmarshal(content, &wire); err != nil {
		return nil, parseErr(model.ExchangeBithumb, "transaction: %v", err)
	}

	events := make([]model.Event, 0, len(wire.List))
	for _, t := range wire.List {
		if t.Symbol == "" {
			continue
		}
		side := model.SideBuy
		if t.BuySellGb == "1" {
			side = model.SideSell
		}
		events = append(events, model.TradeEvent(model.Trade{
			Ticker:    t.Symbol,
			ID:        strings.Join([]string{t.ContDtm, t.ContPrice.String(), t.ContQty.String()}, "|"),
			Price:     t.ContPrice.Decimal,
			Quantity:  t.ContQty.Decimal,
			Side:      side,
			Timestamp: bithumbContTime(t.ContDtm),
		}))
	}
	return events, nil
}

// bithumbTickerTime returns µs since epoch, or 0 if the date is missing.
func bithumbTickerTime(date, clock string) int64 {
	if date == "" {
		return 0
	}
	if clock == "" {
		clock = "000000"
	}
	t, err := time.ParseInLocation("20060102150405", date+clock, kst)
	if err != nil {
		return 0
	}
	return t.UnixMicro()
}

func bithumbContTime(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05.999999", s, kst)
	if err != nil {
		return 0
	}
	return t.UnixMicro()
}
