package config

import "time"

// Config is the root configuration for a market-stream instance.
type Config struct {
	Instance    InstanceConfig     `yaml:"instance"`
	Exchanges   ExchangesConfig    `yaml:"exchanges"`
	Session     SessionConfig      `yaml:"session"`
	Credentials []CredentialConfig `yaml:"credentials"`
	Database    DatabaseConfig     `yaml:"database"`
	Broadcast   BroadcastConfig    `yaml:"broadcast"`
	Simulator   SimulatorConfig    `yaml:"simulator"`
	Metrics     MetricsConfig      `yaml:"metrics"`
}

// InstanceConfig identifies this instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ExchangesConfig holds per-family endpoints.
type ExchangesConfig struct {
	UpbitURL         string        `yaml:"upbit_url"`
	BithumbURL       string        `yaml:"bithumb_url"`
	KISURL           string        `yaml:"kis_url"`
	KISRestURL       string        `yaml:"kis_rest_url"`       // Approval key issuance
	KISSpacing       time.Duration `yaml:"kis_spacing"`        // Minimum gap between KIS subscribe frames
	KISTokenInterval time.Duration `yaml:"kis_token_interval"` // Minimum gap between approval key issuances
}

// SessionConfig holds reconnect and heartbeat policy shared by all sessions.
type SessionConfig struct {
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxRetries        int           `yaml:"max_retries"`
	Backoff           string        `yaml:"backoff"` // "fixed" or "exponential"
	BackoffMax        time.Duration `yaml:"backoff_max"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	PongTimeout       time.Duration `yaml:"pong_timeout"` // 0 disables
	BufferSize        int           `yaml:"buffer_size"`
}

// CredentialConfig is a statically configured credential.
type CredentialConfig struct {
	ID          string   `yaml:"id"`
	Family      string   `yaml:"family"`       // upbit, bithumb, kis, mock
	ApprovalKey string   `yaml:"approval_key"` // KIS websocket approval key
	AppKey      string   `yaml:"app_key"`      // KIS app key, used when approval_key is empty
	AppSecret   string   `yaml:"app_secret"`
	USExchange  string   `yaml:"us_exchange"` // KIS overseas key prefix, e.g. DNAS
	URL         string   `yaml:"url"`         // Overrides the family endpoint
	Symbols     []string `yaml:"symbols"`     // Subscribed at startup
}

// DatabaseConfig holds the optional Postgres credential store.
type DatabaseConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Table    string   `yaml:"table"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// BroadcastConfig selects where normalized events are published.
type BroadcastConfig struct {
	Sinks    []string     `yaml:"sinks"` // Any of "hub", "redis", "kafka", "postgres"; empty disables the bridge
	Redis    RedisConfig  `yaml:"redis"`
	Kafka    KafkaConfig  `yaml:"kafka"`
	Postgres WriterConfig `yaml:"postgres"`
}

// RedisConfig configures the Redis pub/sub sink.
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// WriterConfig configures the batched Postgres sink. It shares the
// database.postgres pool.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// SimulatorConfig configures the mock leg.
type SimulatorConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Volatility string        `yaml:"volatility"`
	Seed       uint64        `yaml:"seed"`
}

// MetricsConfig holds Prometheus metrics and debug endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
