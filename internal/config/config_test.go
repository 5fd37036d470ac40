package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-stream
exchanges:
  upbit_url: wss://example.test/upbit
credentials:
  - id: kis-main
    family: kis
    approval_key: abc
    us_exchange: DNAS
    symbols: ["005930", "AAPL"]
  - id: crypto
    family: upbit
broadcast:
  sinks: [redis, kafka]
  redis:
    addr: localhost:6379
  kafka:
    brokers: ["localhost:9092"]
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-stream" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-stream")
	}
	if cfg.Exchanges.UpbitURL != "wss://example.test/upbit" {
		t.Errorf("Exchanges.UpbitURL = %q", cfg.Exchanges.UpbitURL)
	}
	if len(cfg.Credentials) != 2 {
		t.Fatalf("Credentials = %d, want 2", len(cfg.Credentials))
	}
	kis := cfg.Credentials[0]
	if kis.Family != "kis" || kis.USExchange != "DNAS" || len(kis.Symbols) != 2 {
		t.Errorf("Credentials[0] = %+v", kis)
	}
	if len(cfg.Broadcast.Sinks) != 2 || cfg.Broadcast.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("Broadcast = %+v", cfg.Broadcast)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_APPROVAL_KEY", "secret123")
	t.Setenv("TEST_DB_PASSWORD", "dbpass")

	yaml := `
instance:
  id: test-stream
credentials:
  - id: kis-main
    family: kis
    approval_key: ${TEST_APPROVAL_KEY}
database:
  enabled: true
  postgres:
    host: localhost
    name: test_db
    user: testuser
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Credentials[0].ApprovalKey != "secret123" {
		t.Errorf("ApprovalKey = %q, want %q", cfg.Credentials[0].ApprovalKey, "secret123")
	}
	if cfg.Database.Postgres.Password != "dbpass" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "dbpass")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "instance:\n  id: test-stream\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Exchanges.KISSpacing != 200*time.Millisecond {
		t.Errorf("KISSpacing = %v, want 200ms", cfg.Exchanges.KISSpacing)
	}
	if cfg.Exchanges.KISTokenInterval != time.Minute {
		t.Errorf("KISTokenInterval = %v, want 1m", cfg.Exchanges.KISTokenInterval)
	}
	if cfg.Session.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v, want default %v", cfg.Session.ReconnectDelay, DefaultReconnectDelay)
	}
	if cfg.Session.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want default %d", cfg.Session.MaxRetries, DefaultMaxRetries)
	}
	if cfg.Session.Backoff != "fixed" {
		t.Errorf("Backoff = %q, want fixed", cfg.Session.Backoff)
	}
	if cfg.Session.PongTimeout != 0 {
		t.Errorf("PongTimeout = %v, want disabled", cfg.Session.PongTimeout)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Exchanges.KISRestURL != DefaultKISRestURL {
		t.Errorf("KISRestURL = %q, want default", cfg.Exchanges.KISRestURL)
	}
	if cfg.Broadcast.Postgres.BatchSize != DefaultWriterBatch || cfg.Broadcast.Postgres.FlushInterval != time.Second {
		t.Errorf("Broadcast.Postgres = %+v, want defaults", cfg.Broadcast.Postgres)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadAndValidate_Invalid(t *testing.T) {
	path := writeTempFile(t, "instance:\n  id: \"\"\n")

	if _, err := LoadAndValidate(path); err == nil {
		t.Error("expected validation error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func validConfig() Config {
	cfg := Config{Instance: InstanceConfig{ID: "test"}}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "bad backoff",
			mutate:  func(c *Config) { c.Session.Backoff = "linear" },
			wantErr: `session.backoff must be fixed or exponential, got "linear"`,
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Session.MaxRetries = -1 },
			wantErr: "session.max_retries must be >= 0",
		},
		{
			name: "unknown family",
			mutate: func(c *Config) {
				c.Credentials = []CredentialConfig{{ID: "x", Family: "binance"}}
			},
			wantErr: `credentials[0].family "binance" is not supported`,
		},
		{
			name: "duplicate credential",
			mutate: func(c *Config) {
				c.Credentials = []CredentialConfig{{ID: "x", Family: "upbit"}, {ID: "x", Family: "mock"}}
			},
			wantErr: `credentials[1].id "x" is duplicated`,
		},
		{
			name: "missing postgres password",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 1}
			},
			wantErr: "database.postgres.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10}
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.Broadcast.Sinks = []string{"redis"} },
			wantErr: "broadcast.redis.addr is required",
		},
		{
			name:    "postgres sink without database",
			mutate:  func(c *Config) { c.Broadcast.Sinks = []string{"postgres"} },
			wantErr: "broadcast.sinks: postgres requires database.enabled",
		},
		{
			name: "postgres sink zero batch",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Postgres = DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 1}
				c.Broadcast.Sinks = []string{"postgres"}
				c.Broadcast.Postgres.BatchSize = -1
			},
			wantErr: "broadcast.postgres.batch_size must be >= 1",
		},
		{
			name:    "unknown sink",
			mutate:  func(c *Config) { c.Broadcast.Sinks = []string{"nats"} },
			wantErr: `broadcast.sinks: unknown sink "nats"`,
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name: "valid config",
			mutate: func(c *Config) {
				c.Credentials = []CredentialConfig{{ID: "kis", Family: "KIS"}, {ID: "sim", Family: "mock"}}
				c.Broadcast.Sinks = []string{"hub", "kafka"}
				c.Broadcast.Kafka.Brokers = []string{"localhost:9092"}
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
