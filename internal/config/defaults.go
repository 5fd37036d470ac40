package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultUpbitURL          = "wss://api.upbit.com/websocket/v1"
	DefaultBithumbURL        = "wss://pubwss.bithumb.com/pub/ws"
	DefaultKISURL            = "ws://ops.koreainvestment.com:21000"
	DefaultKISRestURL        = "https://openapi.koreainvestment.com:9443"
	DefaultKISSpacing        = 200 * time.Millisecond
	DefaultKISTokenInterval  = time.Minute
	DefaultReconnectDelay    = 5 * time.Second
	DefaultMaxRetries        = 5
	DefaultBackoff           = "fixed"
	DefaultBackoffMax        = 60 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultBufferSize        = 100
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultCredentialTable   = "exchange_credentials"
	DefaultRedisChannel      = "market"
	DefaultKafkaTopic        = "market-events"
	DefaultKafkaBatchTimeout = 10 * time.Millisecond
	DefaultWriterBatch       = 1000
	DefaultWriterFlush       = time.Second
	DefaultSimInterval       = 500 * time.Millisecond
	DefaultSimVolatility     = "0.002"
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	// Exchange defaults
	if c.Exchanges.UpbitURL == "" {
		c.Exchanges.UpbitURL = DefaultUpbitURL
	}
	if c.Exchanges.BithumbURL == "" {
		c.Exchanges.BithumbURL = DefaultBithumbURL
	}
	if c.Exchanges.KISURL == "" {
		c.Exchanges.KISURL = DefaultKISURL
	}
	if c.Exchanges.KISRestURL == "" {
		c.Exchanges.KISRestURL = DefaultKISRestURL
	}
	if c.Exchanges.KISSpacing == 0 {
		c.Exchanges.KISSpacing = DefaultKISSpacing
	}
	if c.Exchanges.KISTokenInterval == 0 {
		c.Exchanges.KISTokenInterval = DefaultKISTokenInterval
	}

	// Session defaults
	if c.Session.ReconnectDelay == 0 {
		c.Session.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Session.MaxRetries == 0 {
		c.Session.MaxRetries = DefaultMaxRetries
	}
	if c.Session.Backoff == "" {
		c.Session.Backoff = DefaultBackoff
	}
	if c.Session.BackoffMax == 0 {
		c.Session.BackoffMax = DefaultBackoffMax
	}
	if c.Session.HeartbeatInterval == 0 {
		c.Session.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Session.BufferSize == 0 {
		c.Session.BufferSize = DefaultBufferSize
	}

	// Database defaults
	if c.Database.Table == "" {
		c.Database.Table = DefaultCredentialTable
	}
	applyDBDefaults(&c.Database.Postgres)

	// Broadcast defaults
	if c.Broadcast.Redis.ChannelPrefix == "" {
		c.Broadcast.Redis.ChannelPrefix = DefaultRedisChannel
	}
	if c.Broadcast.Kafka.Topic == "" {
		c.Broadcast.Kafka.Topic = DefaultKafkaTopic
	}
	if c.Broadcast.Kafka.BatchTimeout == 0 {
		c.Broadcast.Kafka.BatchTimeout = DefaultKafkaBatchTimeout
	}
	if c.Broadcast.Postgres.BatchSize == 0 {
		c.Broadcast.Postgres.BatchSize = DefaultWriterBatch
	}
	if c.Broadcast.Postgres.FlushInterval == 0 {
		c.Broadcast.Postgres.FlushInterval = DefaultWriterFlush
	}

	// Simulator defaults
	if c.Simulator.Interval == 0 {
		c.Simulator.Interval = DefaultSimInterval
	}
	if c.Simulator.Volatility == "" {
		c.Simulator.Volatility = DefaultSimVolatility
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
