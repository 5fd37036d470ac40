package codec

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/market-stream/internal/model"
)

// Transaction codes. Only the prefix is matched, so trailing variant digits
// (H0STCNT0, H0STCNT1, ...) all decode the same way.
const (
	kisDomesticTick      = "H0STCNT"
	kisDomesticOrderbook = "H0STASP"
	kisOverseasTick      = "HDFSCNT"
	kisOverseasOrderbook = "HDFSASP"
)

// Minimum caret-delimited column counts per payload layout.
const (
	kisDomesticTickFields      = 22
	kisDomesticOrderbookFields = 42
	kisOverseasTickFields      = 22
	kisOverseasOrderbookFields = 17
)

// Full record widths. A frame carrying several records repeats the layout
// back to back, so record i occupies columns [i*width, (i+1)*width).
const (
	kisDomesticTickWidth      = 46
	kisDomesticOrderbookWidth = 59
	kisOverseasTickWidth      = 26
	kisOverseasOrderbookWidth = 17
)

const kisBookDepth = 5

type kisControl struct {
	Header struct {
		TrID string `json:"tr_id"`
	} `json:"header"`
}

func parseKIS(frame []byte) ([]model.Event, error) {
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return nil, parseErr(model.ExchangeKIS, "empty frame")
	}
	if frame[0] == '{' {
		// PINGPONG and subscribe acknowledgements.
		return nil, nil
	}

	parts := strings.SplitN(string(frame), "|", 4)
	if len(parts) < 4 {
		return nil, parseErr(model.ExchangeKIS, "expected 4 pipe-separated parts, got %d", len(parts))
	}
	if parts[0] != "0" {
		return nil, parseErr(model.ExchangeKIS, "encrypted payload for %s", parts[1])
	}

	tr, payload := parts[1], parts[3]
	count, err := strconv.Atoi(parts[2])
	if err != nil || count < 1 {
		return nil, parseErr(model.ExchangeKIS, "bad record count %q", parts[2])
	}

	var (
		decode func([]string) ([]model.Event, error)
		width  int
	)
	switch {
	case strings.HasPrefix(tr, kisDomesticTick):
		decode, width = decodeKISDomesticTick, kisDomesticTickWidth
	case strings.HasPrefix(tr, kisDomesticOrderbook):
		decode, width = decodeKISDomesticOrderbook, kisDomesticOrderbookWidth
	case strings.HasPrefix(tr, kisOverseasTick):
		decode, width = decodeKISOverseasTick, kisOverseasTickWidth
	case strings.HasPrefix(tr, kisOverseasOrderbook):
		decode, width = decodeKISOverseasOrderbook, kisOverseasOrderbookWidth
	default:
		return nil, nil
	}

	fields := strings.Split(payload, "^")
	if count == 1 {
		return decode(fields)
	}
	if len(fields) < count*width {
		return nil, parseErr(model.ExchangeKIS, "%s: %d records need %d fields, got %d", tr, count, count*width, len(fields))
	}
	var events []model.Event
	for i := range count {
		evs, err := decode(fields[i*width : (i+1)*width])
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

// Domestic tick columns: 0 symbol, 1 HHMMSS, 2 price, 3 sign, 4 change,
// 5 rate, 7 open, 8 high, 9 low, 12 trade qty, 13 acc volume,
// 14 acc value, 21 aggressor (1 buy, 5 sell).
func decodeKISDomesticTick(f []string) ([]model.Event, error) {
	if len(f) < kisDomesticTickFields {
		return nil, parseErr(model.ExchangeKIS, "domestic tick: %d fields", len(f))
	}
	if f[0] == "" {
		return nil, parseErr(model.ExchangeKIS, "domestic tick without symbol")
	}

	price := parseDecimal(f[2])
	change := parseDecimal(f[4])

	side := model.SideBuy
	if f[21] == "5" {
		side = model.SideSell
	}

	quote := model.Quote{
		Ticker:        f[0],
		CurrentPrice:  price,
		PriceChange:   change,
		ChangePercent: parseDecimal(f[5]),
		Open:          parseDecimal(f[7]),
		High:          parseDecimal(f[8]),
		Low:           parseDecimal(f[9]),
		PrevClose:     price.Sub(change),
		Volume:        parseDecimal(f[13]),
		TradingValue:  parseDecimal(f[14]),
	}
	trade := model.Trade{
		Ticker:   f[0],
		ID:       f[0] + "-" + f[1] + "-" + f[13],
		Price:    price,
		Quantity: parseDecimal(f[12]),
		Side:     side,
	}

	return []model.Event{model.QuoteEvent(quote), model.TradeEvent(trade)}, nil
}

// Domestic orderbook columns: 0 symbol, 3..7 ask prices, 13..17 bid prices,
// 23..27 ask quantities, 33..37 bid quantities.
func decodeKISDomesticOrderbook(f []string) ([]model.Event, error) {
	if len(f) < kisDomesticOrderbookFields {
		return nil, parseErr(model.ExchangeKIS, "domestic orderbook: %d fields", len(f))
	}
	if f[0] == "" {
		return nil, parseErr(model.ExchangeKIS, "domestic orderbook without symbol")
	}

	book := model.OrderBook{
		Ticker: f[0],
		Asks:   make([]model.PriceLevel, 0, kisBookDepth),
		Bids:   make([]model.PriceLevel, 0, kisBookDepth),
	}
	for i := 0; i < kisBookDepth; i++ {
		book.Asks = append(book.Asks, model.PriceLevel{Price: parseDecimal(f[3+i]), Quantity: parseDecimal(f[23+i])})
		book.Bids = append(book.Bids, model.PriceLevel{Price: parseDecimal(f[13+i]), Quantity: parseDecimal(f[33+i])})
	}

	return []model.Event{model.OrderBookEvent(model.NormalizeBook(book))}, nil
}

// Overseas tick columns: 1 symbol, 4 local date, 5 local time, 8 open,
// 9 high, 10 low, 11 last, 12 sign, 13 diff, 14 rate, 15 bid, 16 ask,
// 19 trade qty, 20 volume, 21 value.
func decodeKISOverseasTick(f []string) ([]model.Event, error) {
	if len(f) < kisOverseasTickFields {
		return nil, parseErr(model.ExchangeKIS, "overseas tick: %d fields", len(f))
	}
	if f[1] == "" {
		return nil, parseErr(model.ExchangeKIS, "overseas tick without symbol")
	}

	last := parseDecimal(f[11])
	diff := parseDecimal(f[13]).Abs()
	rate := parseDecimal(f[14]).Abs()
	if f[12] == "4" || f[12] == "5" {
		diff = diff.Neg()
		rate = rate.Neg()
	}

	side := model.SideSell
	if ask := parseDecimal(f[16]); ask.IsPositive() && last.GreaterThanOrEqual(ask) {
		side = model.SideBuy
	}

	ts := kisOverseasTime(f[4], f[5])
	quote := model.Quote{
		Ticker:        f[1],
		CurrentPrice:  last,
		PriceChange:   diff,
		ChangePercent: rate,
		Open:          parseDecimal(f[8]),
		High:          parseDecimal(f[9]),
		Low:           parseDecimal(f[10]),
		PrevClose:     last.Sub(diff),
		Volume:        parseDecimal(f[20]),
		TradingValue:  parseDecimal(f[21]),
		Timestamp:     ts,
	}
	trade := model.Trade{
		Ticker:    f[1],
		ID:        f[1] + "-" + f[4] + f[5] + "-" + f[20],
		Price:     last,
		Quantity:  parseDecimal(f[19]),
		Side:      side,
		Timestamp: ts,
	}

	return []model.Event{model.QuoteEvent(quote), model.TradeEvent(trade)}, nil
}

// Overseas orderbook columns: 1 symbol, 11 best bid, 12 best ask,
// 13 bid quantity, 14 ask quantity. Only the top level is streamed.
func decodeKISOverseasOrderbook(f []string) ([]model.Event, error) {
	if len(f) < kisOverseasOrderbookFields {
		return nil, parseErr(model.ExchangeKIS, "overseas orderbook: %d fields", len(f))
	}
	if f[1] == "" {
		return nil, parseErr(model.ExchangeKIS, "overseas orderbook without symbol")
	}

	book := model.OrderBook{
		Ticker: f[1],
		Asks:   []model.PriceLevel{{Price: parseDecimal(f[12]), Quantity: parseDecimal(f[14])}},
		Bids:   []model.PriceLevel{{Price: parseDecimal(f[11]), Quantity: parseDecimal(f[13])}},
	}
	return []model.Event{model.OrderBookEvent(model.NormalizeBook(book))}, nil
}

func kisOverseasTime(date, clock string) int64 {
	if len(date) != 8 || len(clock) != 6 {
		return 0
	}
	// Exchange-local wall clock; the feed carries no zone, so UTC is assumed.
	t, err := time.Parse("20060102150405", date+clock)
	if err != nil {
		return 0
	}
	return t.UnixMicro()
}

// PingReply returns the frame to echo back for an application-level ping, if
// the exchange uses one. KIS sends {"header":{"tr_id":"PINGPONG"}} and expects
// the same frame back.
func PingReply(ex model.Exchange, frame []byte) ([]byte, bool) {
	if ex != model.ExchangeKIS {
		return nil, false
	}
	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 || frame[0] != '{' {
		return nil, false
	}
	var ctl kisControl
	if err := json.Unmarshal(frame, &ctl); err != nil {
		return nil, false
	}
	if ctl.Header.TrID != "PINGPONG" {
		return nil, false
	}
	return frame, true
}
