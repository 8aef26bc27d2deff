//go:build integration

package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userbus/internal/config"
	"userbus/internal/constants"
	"userbus/internal/logger"
	"userbus/internal/settlement"
	"userbus/internal/testinfra"
	"userbus/pkg/models"
)

func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	}
	require.NoError(t, conn.CreateTopics(configs...))
}

func TestKafka_RetryThenDeadLetter(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Kafka: true})
	createTopics(t, infra.KafkaBrokers, "userupdate-evt", "userupdate-evt-dlq")

	kcfg := config.KafkaConfig{
		Brokers:  infra.KafkaBrokers,
		GroupID:  "subscriber-test",
		Topic:    "userupdate-evt",
		DLQTopic: "userupdate-evt-dlq",
	}
	sub := config.SubscriberConfig{MaxDeliveryCount: 2}

	producer := NewKafkaProducer(kcfg, logger.NopLogger())
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	require.NoError(t, producer.Publish(ctx, models.OutboundMessage{
		MessageID:     "b-1|42",
		CorrelationID: "inv|b-1|42",
		Body:          []byte(`{"entityId":42,"phoneNumber":"555-0106"}`),
		Properties:    map[string]string{models.PropertyBatchID: "b-1"},
	}))

	var (
		mu     sync.Mutex
		counts []int
	)
	consumer := NewKafkaConsumer(kcfg, sub, logger.NopLogger())
	consumer.SetServiceName("subscriber-test")

	consumeCtx, stop := context.WithCancel(ctx)
	go func() {
		_ = consumer.Consume(consumeCtx, func(_ context.Context, msg models.InboundMessage) (settlement.Decision, error) {
			mu.Lock()
			counts = append(counts, msg.DeliveryCount)
			mu.Unlock()
			return settlement.Decision{Action: settlement.Retry}, nil
		})
	}()

	dlq := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   infra.KafkaBrokers,
		Topic:     "userupdate-evt-dlq",
		Partition: 0,
		MaxWait:   500 * time.Millisecond,
	})
	defer dlq.Close()

	dead, err := dlq.ReadMessage(ctx)
	require.NoError(t, err)
	stop()
	require.NoError(t, consumer.Close())

	headers := fromKafkaHeaders(dead.Headers)
	assert.Equal(t, constants.ReasonMaxDeliveryCountExceeded, headers[constants.HeaderDeadLetterReason])
	assert.Equal(t, "b-1|42", headers[constants.HeaderMessageID])
	assert.Equal(t, "b-1", headers[models.PropertyBatchID])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, counts)
}
