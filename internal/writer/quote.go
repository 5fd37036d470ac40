package writer

import (
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/market-stream/internal/model"
)

const insertQuote = `
	INSERT INTO quotes (exchange, ticker, price, price_change, change_percent, high, low, open,
		prev_close, volume, trading_value, exchange_ts, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (exchange, ticker, exchange_ts) DO NOTHING`

type quoteRow struct {
	Exchange      string
	Ticker        string
	Price         decimal.Decimal
	PriceChange   decimal.Decimal
	ChangePercent decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Open          decimal.Decimal
	PrevClose     decimal.Decimal
	Volume        decimal.Decimal
	TradingValue  decimal.Decimal
	ExchangeTs    int64
	ReceivedAt    int64
}

func transformQuote(ex model.Exchange, q model.Quote, receivedAt int64) quoteRow {
	return quoteRow{
		Exchange:      exchangeName(ex),
		Ticker:        q.Ticker,
		Price:         q.CurrentPrice,
		PriceChange:   q.PriceChange,
		ChangePercent: q.ChangePercent,
		High:          q.High,
		Low:           q.Low,
		Open:          q.Open,
		PrevClose:     q.PrevClose,
		Volume:        q.Volume,
		TradingValue:  q.TradingValue,
		ExchangeTs:    q.Timestamp,
		ReceivedAt:    receivedAt,
	}
}

func (r quoteRow) queue(b *pgx.Batch) {
	b.Queue(insertQuote,
		r.Exchange, r.Ticker,
		r.Price.String(), r.PriceChange.String(), r.ChangePercent.String(),
		r.High.String(), r.Low.String(), r.Open.String(), r.PrevClose.String(),
		r.Volume.String(), r.TradingValue.String(),
		r.ExchangeTs, r.ReceivedAt)
}
