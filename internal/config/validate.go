package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Families that can stream. REST-only families are rejected later, at
// stream creation, with a distinct error.
var knownFamilies = map[string]bool{
	"upbit":      true,
	"bithumb":    true,
	"kis":        true,
	"mock":       true,
	"kiwoom":     true,
	"ebest_rest": true,
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Session.MaxRetries < 0 {
		return errors.New("session.max_retries must be >= 0")
	}
	if c.Session.ReconnectDelay < 0 {
		return errors.New("session.reconnect_delay must be >= 0")
	}
	if c.Session.Backoff != "fixed" && c.Session.Backoff != "exponential" {
		return fmt.Errorf("session.backoff must be fixed or exponential, got %q", c.Session.Backoff)
	}
	if c.Session.HeartbeatInterval <= 0 {
		return errors.New("session.heartbeat_interval must be > 0")
	}
	if c.Session.BufferSize < 1 {
		return errors.New("session.buffer_size must be >= 1")
	}

	seen := make(map[string]bool, len(c.Credentials))
	for i, cred := range c.Credentials {
		prefix := fmt.Sprintf("credentials[%d]", i)
		if cred.ID == "" {
			return fmt.Errorf("%s.id is required", prefix)
		}
		if seen[cred.ID] {
			return fmt.Errorf("%s.id %q is duplicated", prefix, cred.ID)
		}
		seen[cred.ID] = true
		if !knownFamilies[strings.ToLower(cred.Family)] {
			return fmt.Errorf("%s.family %q is not supported", prefix, cred.Family)
		}
	}

	if c.Database.Enabled {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	for _, sink := range c.Broadcast.Sinks {
		switch sink {
		case "hub":
		case "redis":
			if c.Broadcast.Redis.Addr == "" {
				return errors.New("broadcast.redis.addr is required")
			}
		case "kafka":
			if len(c.Broadcast.Kafka.Brokers) == 0 {
				return errors.New("broadcast.kafka.brokers is required")
			}
		case "postgres":
			if !c.Database.Enabled {
				return errors.New("broadcast.sinks: postgres requires database.enabled")
			}
			if c.Broadcast.Postgres.BatchSize < 1 {
				return errors.New("broadcast.postgres.batch_size must be >= 1")
			}
			if c.Broadcast.Postgres.FlushInterval <= 0 {
				return errors.New("broadcast.postgres.flush_interval must be > 0")
			}
		default:
			return fmt.Errorf("broadcast.sinks: unknown sink %q", sink)
		}
	}

	if _, err := decimal.NewFromString(c.Simulator.Volatility); err != nil {
		return fmt.Errorf("simulator.volatility: %w", err)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
