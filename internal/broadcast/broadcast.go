// Package broadcast publishes normalized market events to downstream
// consumers: in-process subscribers (Hub), Redis pub/sub and Kafka.
package broadcast

import (
	"context"
	"errors"

	"github.com/rickgao/market-stream/internal/model"
)

// ErrClosed is returned by Publish after the sink has been closed.
var ErrClosed = errors.New("sink closed")

// Sink receives every event a bridge pulls from a stream.
type Sink interface {
	Publish(ctx context.Context, ev model.Event) error
	Close() error
}

// Multi fans an event out to several sinks. Every sink is attempted; the
// returned error joins the individual failures.
type Multi []Sink

// Publish sends ev to each sink in order.
func (m Multi) Publish(ctx context.Context, ev model.Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// topicKey is the routing key shared by the Redis channel and the Kafka
// message key: exchange:ticker, or exchange:error for error events.
func topicKey(ev model.Event) string {
	ticker := ev.Ticker()
	if ticker == "" {
		ticker = string(model.KindError)
	}
	ex := string(ev.Exchange)
	if ex == "" {
		ex = "unknown"
	}
	return ex + ":" + ticker
}
