// Package writer persists normalized trades and quotes to Postgres.
//
// The Writer is a broadcast sink. Events are accumulated in memory and
// flushed with a single pgx.Batch when the batch is full or the flush
// interval elapses, whichever comes first.
//
// Tables are append-only. Duplicate trades (same exchange and trade id) and
// duplicate quotes (same exchange, ticker and exchange timestamp) are
// discarded by ON CONFLICT DO NOTHING and counted as conflicts.
//
// Prices and quantities are stored as NUMERIC so decimal values round-trip
// without loss. Timestamps are BIGINT microseconds since the Unix epoch.
package writer
