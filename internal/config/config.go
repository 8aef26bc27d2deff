package config

import (
	"time"
)

type Config struct {
	Server           ServerConfig
	Database         DatabaseConfig
	Broker           BrokerConfig
	Logging          LoggingConfig
	Publisher        PublisherConfig
	Subscriber       SubscriberConfig
	Idempotency      IdempotencyConfig
	CircuitBreaker   CircuitBreakerConfig   `mapstructure:"circuit_breaker"`
	Tracing          TracingConfig
	TrafficGenerator TrafficGeneratorConfig `mapstructure:"traffic_generator"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	MongoDB       MongoDBConfig
	RunMigrations bool `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type     string         `mapstructure:"type"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Retry    RetryConfig    `mapstructure:"retry"`
}

type RabbitMQConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	VHost         string `mapstructure:"vhost"`
	Exchange      string `mapstructure:"exchange"`
	Queue         string `mapstructure:"queue"`
	DLXExchange   string `mapstructure:"dlx_exchange"`
	DLQ           string `mapstructure:"dlq"`
	PrefetchCount int    `mapstructure:"prefetch_count"`
	Workers       int    `mapstructure:"workers"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	GroupID  string   `mapstructure:"group_id"`
	Topic    string   `mapstructure:"topic"`
	DLQTopic string   `mapstructure:"dlq_topic"`
}

// RetryConfig drives the backoff used when enqueueing to the outbound queue.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PublisherConfig struct {
	Route        string          `mapstructure:"route"`
	MaxBodyBytes int64           `mapstructure:"max_body_bytes"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	Archive      ArchiveConfig   `mapstructure:"archive"`
}

type ArchiveConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Backend    string `mapstructure:"backend"` // "mongodb" or "postgres"
	Collection string `mapstructure:"collection"`
	Table      string `mapstructure:"table"`
}

type SubscriberConfig struct {
	MaxDeliveryCount  int           `mapstructure:"max_delivery_count"`
	LockDuration      time.Duration `mapstructure:"lock_duration"`
	StalenessWindow   time.Duration `mapstructure:"staleness_window"`
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout"`
	ReleaseOnRetry    bool          `mapstructure:"release_on_retry"`
	Rules             []RuleConfig  `mapstructure:"rules"`
}

// RuleConfig binds a delivery condition to a CEL expression evaluated against `event`.
type RuleConfig struct {
	Condition  string `mapstructure:"condition"`
	Expression string `mapstructure:"expression"`
}

type IdempotencyConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TTLSeconds   int    `mapstructure:"ttl_seconds"`
	KeyPrefix    string `mapstructure:"key_prefix"`
	OnRedisError string `mapstructure:"on_redis_error"` // "allow" or "fail"
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

type TrafficGeneratorConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	Interval       time.Duration `mapstructure:"interval"`
	MaxRequests    int           `mapstructure:"max_requests"`
	MaxEvents      int           `mapstructure:"max_events"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
