package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PublisherBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_batches_total",
			Help: "Total number of batch submissions handled by the publisher (count)",
		},
		[]string{"status"},
	)

	PublisherMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publisher_messages_total",
			Help: "Total number of debatched messages handed to the outbound queue (count)",
		},
		[]string{"status"},
	)

	PublisherBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "publisher_batch_size",
			Help:    "Number of unit events per accepted batch (count)",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	PublisherProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publisher_processing_duration_ms",
			Help:    "Processing duration for one batch submission in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	SubscriberMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriber_messages_total",
			Help: "Total number of deliveries classified by the subscriber (count)",
		},
		[]string{"outcome"},
	)

	SubscriberProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subscriber_processing_duration_ms",
			Help:    "Processing duration for one delivery in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"outcome"},
	)

	SettlementActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_actions_total",
			Help: "Total number of settlement actions executed against the broker (count)",
		},
		[]string{"action"},
	)

	ObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observations_total",
			Help: "Total number of structured observation records emitted (count)",
		},
		[]string{"event_id", "status"},
	)

	IdempotencyChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_checks_total",
			Help: "Total number of message id de-duplication checks (count)",
		},
		[]string{"result"},
	)

	ArchiveWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_writes_total",
			Help: "Total number of request bodies written to the archive (count)",
		},
		[]string{"backend", "status"},
	)

	ArchiveWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archive_write_duration_ms",
			Help:    "Duration of archive writes in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"backend"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "destination"},
	)

	RedeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redeliveries_total",
			Help: "Total number of messages returned to the queue for another delivery (count)",
		},
		[]string{"service", "destination", "action"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "destination", "reason"},
	)

	BrokerMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_read_total",
			Help: "Total number of messages read from the broker (count)",
		},
		[]string{"broker", "service", "destination"},
	)

	BrokerMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_written_total",
			Help: "Total number of messages written to the broker (count)",
		},
		[]string{"broker", "service", "destination"},
	)

	BrokerMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_message_size_bytes",
			Help:    "Size of broker messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"broker", "destination", "direction"},
	)

	BrokerWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_write_duration_ms",
			Help:    "Duration of writing messages to the broker in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"broker", "destination"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	TrafficGeneratorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_generator_requests_total",
			Help: "Total number of synthetic batches posted by the traffic generator (count)",
		},
		[]string{"status_code"},
	)
)

var (
	publisherOnce      sync.Once
	subscriberOnce     sync.Once
	brokerOnce         sync.Once
	circuitBreakerOnce sync.Once
	trafficOnce        sync.Once
	observationsOnce   sync.Once
)

func RegisterPublisherMetrics() {
	publisherOnce.Do(func() {
		prometheus.MustRegister(PublisherBatchesTotal)
		prometheus.MustRegister(PublisherMessagesTotal)
		prometheus.MustRegister(PublisherBatchSize)
		prometheus.MustRegister(PublisherProcessingDuration)
		prometheus.MustRegister(ArchiveWritesTotal)
		prometheus.MustRegister(ArchiveWriteDuration)
		prometheus.MustRegister(RateLimitRequestsTotal)
	})
	registerObservationsOnce()
}

func RegisterSubscriberMetrics() {
	subscriberOnce.Do(func() {
		prometheus.MustRegister(SubscriberMessagesTotal)
		prometheus.MustRegister(SubscriberProcessingDuration)
		prometheus.MustRegister(SettlementActionsTotal)
		prometheus.MustRegister(IdempotencyChecksTotal)
		prometheus.MustRegister(FallbackUsageTotal)
	})
	registerObservationsOnce()
}

func registerObservationsOnce() {
	observationsOnce.Do(func() {
		prometheus.MustRegister(ObservationsTotal)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(RedeliveriesTotal)
		prometheus.MustRegister(DLQMessagesTotal)
		prometheus.MustRegister(BrokerMessagesReadTotal)
		prometheus.MustRegister(BrokerMessagesWrittenTotal)
		prometheus.MustRegister(BrokerMessageSizeBytes)
		prometheus.MustRegister(BrokerWriteDuration)
		prometheus.MustRegister(KafkaConsumerLag)
	})
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterTrafficGeneratorMetrics() {
	trafficOnce.Do(func() {
		prometheus.MustRegister(TrafficGeneratorRequestsTotal)
	})
}

func ObservePublisherDuration(duration time.Duration, status string) {
	PublisherProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveSubscriberDuration(duration time.Duration, outcome string) {
	SubscriberProcessingDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func IncSettlementAction(action string) {
	SettlementActionsTotal.WithLabelValues(action).Inc()
}

func IncObservation(eventID int, status string) {
	ObservationsTotal.WithLabelValues(strconv.Itoa(eventID), status).Inc()
}

func IncIdempotencyCheck(result string) {
	IdempotencyChecksTotal.WithLabelValues(result).Inc()
}

func ObserveArchiveWrite(backend, status string, duration time.Duration) {
	ArchiveWritesTotal.WithLabelValues(backend, status).Inc()
	ArchiveWriteDuration.WithLabelValues(backend).Observe(float64(duration.Milliseconds()))
}

func IncBrokerMessagesRead(broker, service, destination string) {
	BrokerMessagesReadTotal.WithLabelValues(broker, service, destination).Inc()
}

func IncBrokerMessagesWritten(broker, service, destination string) {
	BrokerMessagesWrittenTotal.WithLabelValues(broker, service, destination).Inc()
}

func ObserveBrokerMessageSize(broker, destination, direction string, sizeBytes int) {
	BrokerMessageSizeBytes.WithLabelValues(broker, destination, direction).Observe(float64(sizeBytes))
}

func ObserveBrokerWriteDuration(broker, destination string, duration time.Duration) {
	BrokerWriteDuration.WithLabelValues(broker, destination).Observe(float64(duration.Milliseconds()))
}

func IncRedelivery(service, destination, action string) {
	RedeliveriesTotal.WithLabelValues(service, destination, action).Inc()
}

func IncDeadLetter(service, destination, reason string) {
	DLQMessagesTotal.WithLabelValues(service, destination, reason).Inc()
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, strconv.Itoa(partition)).Set(float64(lag))
}

func IncTrafficGeneratorRequest(statusCode int) {
	TrafficGeneratorRequestsTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}
