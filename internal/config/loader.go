package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"userbus/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", constants.DefaultHTTPTimeout)
	viper.SetDefault("server.write_timeout", constants.DefaultHTTPTimeout)

	viper.SetDefault("logging.level", "info")

	viper.SetDefault("broker.type", "kafka")
	viper.SetDefault("broker.kafka.topic", constants.DefaultQueueName)
	viper.SetDefault("broker.kafka.dlq_topic", constants.DefaultQueueName+constants.DeadLetterSuffix)
	viper.SetDefault("broker.rabbitmq.port", 5672)
	viper.SetDefault("broker.rabbitmq.vhost", "/")
	viper.SetDefault("broker.rabbitmq.queue", constants.DefaultQueueName)
	viper.SetDefault("broker.rabbitmq.dlx_exchange", constants.DefaultQueueName+constants.DeadLetterExchangeSuffix)
	viper.SetDefault("broker.rabbitmq.dlq", constants.DefaultQueueName+constants.DeadLetterSuffix)
	viper.SetDefault("broker.rabbitmq.prefetch_count", 10)
	viper.SetDefault("broker.rabbitmq.workers", 4)
	viper.SetDefault("broker.retry.max_attempts", 3)
	viper.SetDefault("broker.retry.initial_interval", "100ms")
	viper.SetDefault("broker.retry.max_interval", "2s")
	viper.SetDefault("broker.retry.multiplier", 2.0)

	viper.SetDefault("publisher.route", constants.DefaultSubmissionRoute)
	viper.SetDefault("publisher.max_body_bytes", constants.DefaultMaxBodyBytes)
	viper.SetDefault("publisher.archive.collection", constants.DefaultArchiveCollection)
	viper.SetDefault("publisher.archive.table", constants.DefaultArchiveTable)

	viper.SetDefault("subscriber.max_delivery_count", constants.DefaultMaxDeliveryCount)
	viper.SetDefault("subscriber.lock_duration", constants.DefaultLockDuration)
	viper.SetDefault("subscriber.processing_timeout", constants.DefaultProcessingTimeout)

	viper.SetDefault("idempotency.ttl_seconds", constants.DefaultTTLSeconds)
	viper.SetDefault("idempotency.key_prefix", constants.CacheKeyPrefixDelivered)
	viper.SetDefault("idempotency.on_redis_error", constants.FallbackAllow)

	viper.SetDefault("traffic_generator.interval", "30s")
	viper.SetDefault("traffic_generator.max_requests", 5)
	viper.SetDefault("traffic_generator.max_events", 10)
	viper.SetDefault("traffic_generator.request_timeout", constants.DefaultHTTPTimeout)
}

func bindEnvVariables() {
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.topic", "BROKER_KAFKA_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("broker.rabbitmq.host", "BROKER_RABBITMQ_HOST")
	viper.BindEnv("broker.rabbitmq.port", "BROKER_RABBITMQ_PORT")
	viper.BindEnv("broker.rabbitmq.user", "BROKER_RABBITMQ_USER")
	viper.BindEnv("broker.rabbitmq.password", "BROKER_RABBITMQ_PASSWORD")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("subscriber.max_delivery_count", "SUBSCRIBER_MAX_DELIVERY_COUNT")
	viper.BindEnv("subscriber.lock_duration", "SUBSCRIBER_LOCK_DURATION")
	viper.BindEnv("subscriber.staleness_window", "SUBSCRIBER_STALENESS_WINDOW")

	viper.BindEnv("traffic_generator.enabled", "TRAFFIC_GENERATOR_ENABLED")
	viper.BindEnv("traffic_generator.base_url", "TRAFFIC_GENERATOR_BASE_URL")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}
