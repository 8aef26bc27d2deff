package config

import (
	"fmt"
	"strings"

	"userbus/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

var knownConditions = map[string]bool{
	"catastrophic":       true,
	"invalid":            true,
	"stale":              true,
	"missing_dependency": true,
	"unreachable":        true,
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	validators := []func() error{
		func() error { return validateServer(cfg.Server) },
		func() error { return validateBroker(cfg.Broker) },
		func() error { return validateDatabase(cfg.Database) },
		func() error { return validatePublisher(cfg.Publisher, cfg.Database) },
		func() error { return validateSubscriber(cfg.Subscriber) },
		func() error { return validateIdempotency(cfg.Idempotency) },
		func() error { return validateTrafficGenerator(cfg.TrafficGenerator) },
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type == "" {
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	}

	if err := validateRetry(cfg.Retry); err != nil {
		return err
	}

	switch cfg.Type {
	case constants.BrokerKafka:
		return validateKafka(cfg.Kafka)
	case constants.BrokerRabbitMQ:
		return validateRabbitMQ(cfg.RabbitMQ)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka, rabbitmq)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Topic == "" {
		return &ValidationError{
			Field:   "broker.kafka.topic",
			Message: "Kafka topic is required",
		}
	}

	if cfg.DLQTopic == cfg.Topic {
		return &ValidationError{
			Field:   "broker.kafka.dlq_topic",
			Message: "dead-letter topic must differ from the main topic",
		}
	}

	return nil
}

func validateRetry(cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.InitialInterval < 0 {
		return &ValidationError{
			Field:   "broker.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.MaxInterval < 0 {
		return &ValidationError{
			Field:   "broker.retry.max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   "broker.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateRabbitMQ(cfg RabbitMQConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "broker.rabbitmq.host",
			Message: "RabbitMQ host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "broker.rabbitmq.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.Queue == "" {
		return &ValidationError{
			Field:   "broker.rabbitmq.queue",
			Message: "RabbitMQ queue is required",
		}
	}

	if cfg.Workers < 1 {
		return &ValidationError{
			Field:   "broker.rabbitmq.workers",
			Message: "at least one worker is required",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validatePublisher(cfg PublisherConfig, db DatabaseConfig) error {
	if !strings.HasPrefix(cfg.Route, "/") {
		return &ValidationError{
			Field:   "publisher.route",
			Message: fmt.Sprintf("route must start with '/', got %q", cfg.Route),
		}
	}

	if cfg.MaxBodyBytes <= 0 {
		return &ValidationError{
			Field:   "publisher.max_body_bytes",
			Message: "max body size must be positive",
		}
	}

	if !cfg.Archive.Enabled {
		return nil
	}

	switch cfg.Archive.Backend {
	case constants.ArchiveBackendMongoDB:
		if db.MongoDB.URI == "" {
			return &ValidationError{
				Field:   "database.mongodb.uri",
				Message: "MongoDB must be configured for the mongodb archive backend",
			}
		}
	case constants.ArchiveBackendPostgres:
		if db.Postgres.Host == "" {
			return &ValidationError{
				Field:   "database.postgres.host",
				Message: "PostgreSQL must be configured for the postgres archive backend",
			}
		}
	default:
		return &ValidationError{
			Field:   "publisher.archive.backend",
			Message: fmt.Sprintf("unknown archive backend: %s (supported: mongodb, postgres)", cfg.Archive.Backend),
		}
	}

	return nil
}

func validateSubscriber(cfg SubscriberConfig) error {
	if cfg.MaxDeliveryCount < 1 {
		return &ValidationError{
			Field:   "subscriber.max_delivery_count",
			Message: fmt.Sprintf("max delivery count must be at least 1, got %d", cfg.MaxDeliveryCount),
		}
	}

	if cfg.LockDuration < 0 {
		return &ValidationError{
			Field:   "subscriber.lock_duration",
			Message: "lock duration must be non-negative",
		}
	}

	if cfg.StalenessWindow < 0 {
		return &ValidationError{
			Field:   "subscriber.staleness_window",
			Message: "staleness window must be non-negative",
		}
	}

	seen := make(map[string]bool, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		if !knownConditions[rule.Condition] {
			return &ValidationError{
				Field:   fmt.Sprintf("subscriber.rules[%d].condition", i),
				Message: fmt.Sprintf("unknown condition: %s", rule.Condition),
			}
		}
		if seen[rule.Condition] {
			return &ValidationError{
				Field:   fmt.Sprintf("subscriber.rules[%d].condition", i),
				Message: fmt.Sprintf("duplicate condition: %s", rule.Condition),
			}
		}
		// An empty expression switches the condition off.
		seen[rule.Condition] = true
	}

	return nil
}

func validateIdempotency(cfg IdempotencyConfig) error {
	if cfg.TTLSeconds < 0 {
		return &ValidationError{
			Field:   "idempotency.ttl_seconds",
			Message: "TTL must be non-negative",
		}
	}

	if cfg.OnRedisError != "" && cfg.OnRedisError != constants.FallbackAllow && cfg.OnRedisError != constants.FallbackFail {
		return &ValidationError{
			Field:   "idempotency.on_redis_error",
			Message: fmt.Sprintf("invalid on_redis_error value: %s (valid: allow, fail)", cfg.OnRedisError),
		}
	}

	return nil
}

func validateTrafficGenerator(cfg TrafficGeneratorConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return &ValidationError{
			Field:   "traffic_generator.base_url",
			Message: "base URL must start with http:// or https://",
		}
	}

	if cfg.Interval <= 0 {
		return &ValidationError{
			Field:   "traffic_generator.interval",
			Message: "interval must be positive",
		}
	}

	if cfg.MaxRequests < 1 || cfg.MaxEvents < 1 {
		return &ValidationError{
			Field:   "traffic_generator.max_requests",
			Message: "max_requests and max_events must be at least 1",
		}
	}

	return nil
}
