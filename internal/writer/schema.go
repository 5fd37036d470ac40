package writer

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the tables the Writer inserts into.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	exchange    TEXT    NOT NULL,
	ticker      TEXT    NOT NULL,
	trade_id    TEXT    NOT NULL,
	price       NUMERIC NOT NULL,
	quantity    NUMERIC NOT NULL,
	side        TEXT    NOT NULL,
	exchange_ts BIGINT  NOT NULL,
	received_at BIGINT  NOT NULL,
	PRIMARY KEY (exchange, trade_id)
);

CREATE TABLE IF NOT EXISTS quotes (
	exchange       TEXT    NOT NULL,
	ticker         TEXT    NOT NULL,
	price          NUMERIC NOT NULL,
	price_change   NUMERIC NOT NULL,
	change_percent NUMERIC NOT NULL,
	high           NUMERIC NOT NULL,
	low            NUMERIC NOT NULL,
	open           NUMERIC NOT NULL,
	prev_close     NUMERIC NOT NULL,
	volume         NUMERIC NOT NULL,
	trading_value  NUMERIC NOT NULL,
	exchange_ts    BIGINT  NOT NULL,
	received_at    BIGINT  NOT NULL,
	PRIMARY KEY (exchange, ticker, exchange_ts)
);
`

// Execer runs a statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db Execer) error {
	_, err := db.Exec(ctx, Schema)
	return err
}
