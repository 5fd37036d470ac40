package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/market-stream/internal/config"
	"github.com/rickgao/market-stream/internal/model"
)

// redisPublisher is the subset of *redis.Client the sink uses.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisSink publishes JSON-encoded events on Redis pub/sub channels named
// <prefix>:<exchange>:<ticker>.
type RedisSink struct {
	client redisPublisher
	prefix string
}

// NewRedisSink connects to Redis and verifies the connection with PING.
func NewRedisSink(ctx context.Context, cfg config.RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return newRedisSink(client, cfg.ChannelPrefix), nil
}

func newRedisSink(client redisPublisher, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel ev is published on.
func (s *RedisSink) Channel(ev model.Event) string {
	if s.prefix == "" {
		return topicKey(ev)
	}
	return s.prefix + ":" + topicKey(ev)
}

// Publish encodes ev as JSON and publishes it.
func (s *RedisSink) Publish(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.client.Publish(ctx, s.Channel(ev), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
