package writer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/rickgao/market-stream/internal/broadcast"
	"github.com/rickgao/market-stream/internal/config"
	"github.com/rickgao/market-stream/internal/model"
)

// fakeDB records every batch. conflictAt marks statement indexes (within a
// batch) that report zero rows affected.
type fakeDB struct {
	mu         sync.Mutex
	batches    [][]*pgx.QueuedQuery
	conflictAt map[int]bool
	execErr    error
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b.QueuedQueries)
	return &fakeResults{db: f}
}

func (f *fakeDB) sent() [][]*pgx.QueuedQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]*pgx.QueuedQuery(nil), f.batches...)
}

type fakeResults struct {
	db  *fakeDB
	pos int
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.execErr != nil {
		return pgconn.CommandTag{}, r.db.execErr
	}
	i := r.pos
	r.pos++
	if r.db.conflictAt[i] {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

func trade(id string) model.Event {
	ev := model.TradeEvent(model.Trade{
		Ticker:    "KRW-BTC",
		ID:        id,
		Price:     decimal.RequireFromString("50000000.5"),
		Quantity:  decimal.RequireFromString("0.01"),
		Side:      model.SideBuy,
		Timestamp: 1705320000000000,
	})
	ev.Exchange = model.ExchangeUpbit
	return ev
}

func quote() model.Event {
	ev := model.QuoteEvent(model.Quote{
		Ticker:       "005930",
		CurrentPrice: decimal.NewFromInt(71000),
		Volume:       decimal.NewFromInt(1200),
		Timestamp:    1705320000000001,
	})
	ev.Exchange = model.ExchangeKIS
	return ev
}

func TestTransformTrade(t *testing.T) {
	ev := trade("42")
	row := transformTrade(ev.Exchange, *ev.Trade, 99)

	if row.Exchange != "upbit" || row.Ticker != "KRW-BTC" || row.TradeID != "42" {
		t.Errorf("row identity = %+v", row)
	}
	if !row.Price.Equal(decimal.RequireFromString("50000000.5")) {
		t.Errorf("Price = %s", row.Price)
	}
	if row.Side != "buy" || row.ExchangeTs != 1705320000000000 || row.ReceivedAt != 99 {
		t.Errorf("row = %+v", row)
	}
}

func TestTransformTrade_FallbackID(t *testing.T) {
	ev := trade("")
	row := transformTrade("", *ev.Trade, 0)

	if row.Exchange != "unknown" {
		t.Errorf("Exchange = %q, want unknown", row.Exchange)
	}
	want := "KRW-BTC-1705320000000000-50000000.5-0.01"
	if row.TradeID != want {
		t.Errorf("TradeID = %q, want %q", row.TradeID, want)
	}
}

func TestTransformQuote(t *testing.T) {
	ev := quote()
	row := transformQuote(ev.Exchange, *ev.Quote, 7)

	if row.Exchange != "kis" || row.Ticker != "005930" {
		t.Errorf("row identity = %+v", row)
	}
	if !row.Price.Equal(decimal.NewFromInt(71000)) || !row.Volume.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("row values = %+v", row)
	}
	if row.ExchangeTs != 1705320000000001 || row.ReceivedAt != 7 {
		t.Errorf("row timestamps = %+v", row)
	}
}

func TestWriter_FlushesAtBatchSize(t *testing.T) {
	db := &fakeDB{conflictAt: map[int]bool{1: true}}
	w := New(config.WriterConfig{BatchSize: 3, FlushInterval: time.Hour}, db, nil)
	ctx := context.Background()

	for _, ev := range []model.Event{trade("1"), trade("1"), quote()} {
		if err := w.Publish(ctx, ev); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	batches := db.sent()
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	qs := batches[0]
	if len(qs) != 3 {
		t.Fatalf("queued = %d, want 3", len(qs))
	}
	if !strings.Contains(qs[0].SQL, "INSERT INTO trades") || !strings.Contains(qs[2].SQL, "INSERT INTO quotes") {
		t.Errorf("unexpected statements: %q / %q", qs[0].SQL, qs[2].SQL)
	}
	if qs[0].Arguments[3] != "50000000.5" {
		t.Errorf("price argument = %v, want decimal string", qs[0].Arguments[3])
	}

	s := w.Stats()
	if s.Inserts != 2 || s.Conflicts != 1 || s.Flushes != 1 || s.Pending != 0 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestWriter_SkipsOtherKinds(t *testing.T) {
	db := &fakeDB{}
	w := New(config.WriterConfig{BatchSize: 1, FlushInterval: time.Hour}, db, nil)

	book := model.OrderBookEvent(model.OrderBook{Ticker: "KRW-BTC"})
	if err := w.Publish(context.Background(), book); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := w.Publish(context.Background(), model.ErrorEvent(errors.New("boom"))); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(db.sent()) != 0 {
		t.Error("skipped events should not reach the database")
	}
	if s := w.Stats(); s.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", s.Skipped)
	}
}

func TestWriter_InsertError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("relation does not exist")}
	w := New(config.WriterConfig{BatchSize: 2, FlushInterval: time.Hour}, db, nil)
	ctx := context.Background()

	if err := w.Publish(ctx, trade("1")); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	err := w.Publish(ctx, trade("2"))
	if err == nil || !strings.Contains(err.Error(), "relation does not exist") {
		t.Fatalf("Publish error = %v, want insert failure", err)
	}

	s := w.Stats()
	if s.Errors != 2 || s.Inserts != 0 || s.Pending != 0 {
		t.Errorf("Stats = %+v, want failed batch dropped", s)
	}
}

func TestWriter_IntervalFlush(t *testing.T) {
	db := &fakeDB{}
	w := New(config.WriterConfig{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, db, nil)
	w.Start(context.Background())
	defer w.Close()

	if err := w.Publish(context.Background(), quote()); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.Stats().Flushes == 0 {
		if time.Now().After(deadline) {
			t.Fatal("interval flush never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if s := w.Stats(); s.Inserts != 1 {
		t.Errorf("Inserts = %d, want 1", s.Inserts)
	}
}

func TestWriter_CloseFlushesAndRejects(t *testing.T) {
	db := &fakeDB{}
	w := New(config.WriterConfig{BatchSize: 100, FlushInterval: time.Hour}, db, nil)
	w.Start(context.Background())

	if err := w.Publish(context.Background(), trade("1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(db.sent()) != 1 {
		t.Errorf("batches = %d, want final flush", len(db.sent()))
	}

	if err := w.Publish(context.Background(), trade("2")); !errors.Is(err, broadcast.ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestWriter_ReceivedAt(t *testing.T) {
	db := &fakeDB{}
	w := New(config.WriterConfig{BatchSize: 1, FlushInterval: time.Hour}, db, nil)
	fixed := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	if err := w.Publish(context.Background(), trade("1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	args := db.sent()[0][0].Arguments
	if args[7] != fixed.UnixMicro() {
		t.Errorf("received_at = %v, want %d", args[7], fixed.UnixMicro())
	}
}

type fakeExecer struct{ sql string }

func (f *fakeExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func TestMigrate(t *testing.T) {
	var db fakeExecer
	if err := Migrate(context.Background(), &db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	for _, table := range []string{"trades", "quotes"} {
		if !strings.Contains(db.sql, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema missing %s", table)
		}
	}
}
