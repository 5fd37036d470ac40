package writer

import (
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/market-stream/internal/model"
)

const insertTrade = `
	INSERT INTO trades (exchange, ticker, trade_id, price, quantity, side, exchange_ts, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (exchange, trade_id) DO NOTHING`

type tradeRow struct {
	Exchange   string
	Ticker     string
	TradeID    string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Side       string
	ExchangeTs int64
	ReceivedAt int64
}

func transformTrade(ex model.Exchange, t model.Trade, receivedAt int64) tradeRow {
	id := t.ID
	if id == "" {
		// Fallback key: identical prints at the same microsecond collapse.
		id = t.Ticker + "-" + strconv.FormatInt(t.Timestamp, 10) + "-" + t.Price.String() + "-" + t.Quantity.String()
	}
	return tradeRow{
		Exchange:   exchangeName(ex),
		Ticker:     t.Ticker,
		TradeID:    id,
		Price:      t.Price,
		Quantity:   t.Quantity,
		Side:       string(t.Side),
		ExchangeTs: t.Timestamp,
		ReceivedAt: receivedAt,
	}
}

func (r tradeRow) queue(b *pgx.Batch) {
	b.Queue(insertTrade,
		r.Exchange, r.Ticker, r.TradeID, r.Price.String(), r.Quantity.String(),
		r.Side, r.ExchangeTs, r.ReceivedAt)
}

func exchangeName(ex model.Exchange) string {
	if ex == "" {
		return "unknown"
	}
	return string(ex)
}
