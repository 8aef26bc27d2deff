package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout       = 10 * time.Second
	DefaultProcessingTimeout = 30 * time.Second
)

const (
	DefaultQueueName         = "userupdate-evt"
	DeadLetterSuffix         = "-dlq"
	DeadLetterExchangeSuffix = "-dlx"
)

const (
	DefaultSubmissionRoute = "/api/v1/userupdated"
	DefaultMaxBodyBytes    = 4 << 20
	TrafficGeneratorSource = "traffic-generator"
)

const (
	DefaultArchiveCollection = "request_archive"
	DefaultArchiveTable      = "request_archive"
	ArchiveBackendMongoDB    = "mongodb"
	ArchiveBackendPostgres   = "postgres"
)

const (
	DefaultMaxDeliveryCount = 2
	DefaultLockDuration     = 5 * time.Second
)

const (
	CacheKeyPrefixDelivered = "delivered:"
	DefaultTTLSeconds       = 86400
)

const (
	DefaultMongoDBName = "userbus"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	FallbackAllow = "allow"
	FallbackFail  = "fail"
)

const (
	BrokerKafka    = "kafka"
	BrokerRabbitMQ = "rabbitmq"
)

// Message header names shared by the broker backends.
const (
	HeaderMessageID        = "message-id"
	HeaderCorrelationID    = "correlation-id"
	HeaderDeliveryCount    = "delivery-count"
	HeaderDeadLetterReason = "dead-letter-reason"
	HeaderEnqueuedAt       = "enqueued-at"
)

const (
	ReasonMaxDeliveryCountExceeded = "MaxDeliveryCountExceeded"
)
