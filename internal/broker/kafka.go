package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"userbus/internal/config"
	"userbus/internal/constants"
	"userbus/internal/logger"
	"userbus/internal/settlement"
	apperrors "userbus/pkg/errors"
	"userbus/pkg/logging"
	"userbus/pkg/metrics"
	"userbus/pkg/models"
	"userbus/pkg/retry"
	"userbus/pkg/tracing"
)

const brokerKafka = "kafka"

type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer: newKafkaWriter(cfg.Brokers),
		topic:  cfg.Topic,
		logger: log,
	}
}

func newKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func (p *KafkaProducer) Publish(ctx context.Context, msg models.OutboundMessage) error {
	headers := outboundHeaders(msg, 1, time.Now())
	return writeKafka(ctx, p.writer, p.topic, []byte(msg.MessageID), msg.Body, toKafkaHeaders(ctx, headers))
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func writeKafka(ctx context.Context, w kafkaWriter, topic string, key, value []byte, headers []kafka.Header) error {
	start := time.Now()
	err := w.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: headers,
		Time:    start,
	})
	metrics.ObserveBrokerWriteDuration(brokerKafka, topic, time.Since(start))
	if err != nil {
		err = fmt.Errorf("failed to write kafka message to %s: %w", topic, err)
		var tooLarge kafka.MessageTooLargeError
		if errors.As(err, &tooLarge) {
			return retry.NewFatalError(err)
		}
		return err
	}
	metrics.ObserveBrokerMessageSize(brokerKafka, topic, "out", len(value))
	return nil
}

func toKafkaHeaders(ctx context.Context, headers map[string]string) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+2)
	for _, k := range sortedKeys(headers) {
		out = append(out, kafka.Header{Key: k, Value: []byte(headers[k])})
	}
	return tracing.InjectKafkaHeaders(ctx, out)
}

func fromKafkaHeaders(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

// KafkaConsumer reads the subscription topic through a consumer group. Kafka
// has no message lock, so redelivery is a republish to the same topic with
// the delivery count bumped, followed by a commit of the original offset.
type KafkaConsumer struct {
	cfg         config.KafkaConfig
	sub         config.SubscriberConfig
	wg          sync.WaitGroup
	reader      *kafka.Reader
	writer      kafkaWriter
	policy      retry.Policy
	logger      logger.Logger
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, sub config.SubscriberConfig, log logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		cfg:         cfg,
		sub:         sub,
		writer:      newKafkaWriter(cfg.Brokers),
		policy:      retry.DefaultPolicy().Unbounded(),
		logger:      log,
		serviceName: "unknown",
	}
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

func (c *KafkaConsumer) Consume(ctx context.Context, handler HandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", c.cfg.Topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"service_name", c.serviceName,
	)

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    c.cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		consumeCtx := logging.WithServiceName(ctx, c.serviceName)
		c.logger.InfowCtx(consumeCtx, "Started consuming", "topic", c.cfg.Topic)

		for {
			m, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.InfowCtx(consumeCtx, "Stopped consuming",
						"topic", c.cfg.Topic,
						"reason", "context canceled",
					)
					return
				}
				c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
					"error", err,
					"topic", c.cfg.Topic,
				)
				if !sleepCtx(ctx, time.Second) {
					return
				}
				continue
			}

			c.handle(ctx, m, handler)
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}

func (c *KafkaConsumer) handle(ctx context.Context, m kafka.Message, handler HandlerFunc) {
	metrics.IncBrokerMessagesRead(brokerKafka, c.serviceName, m.Topic)
	metrics.ObserveBrokerMessageSize(brokerKafka, m.Topic, "in", len(m.Value))
	metrics.SetKafkaConsumerLag(c.serviceName, m.Topic, m.Partition, m.HighWaterMark-m.Offset-1)

	headers := fromKafkaHeaders(m.Headers)
	msg := inboundMessage(headers, m.Value, m.Time)

	msgCtx, span := tracing.StartMessageSpan(tracing.ExtractKafkaHeaders(ctx, m.Headers), "kafka.consume", nil)
	defer span.End()
	msgCtx = logging.WithMessageID(msgCtx, msg.MessageID)
	msgCtx = logging.WithCorrelationID(msgCtx, msg.CorrelationID)
	msgCtx = logging.WithServiceName(msgCtx, c.serviceName)

	decision, err := invoke(msgCtx, handler, msg)
	if err != nil {
		c.logger.ErrorwCtx(msgCtx, "Message handler failed",
			"error", err,
			"delivery_count", msg.DeliveryCount,
		)
	}

	st := planSettlement(decision, err, msg.DeliveryCount, c.sub.MaxDeliveryCount, c.sub.LockDuration)
	if !c.settle(ctx, msgCtx, m, headers, msg.DeliveryCount, st) {
		return
	}

	if err := c.reader.CommitMessages(ctx, m); err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to commit message",
			"error", err,
			"topic", m.Topic,
			"offset", m.Offset,
		)
	}
}

// settle performs the step and reports whether the offset may be committed.
// A false result is only returned once ctx has ended: kafka-go commits the
// highest offset seen on a partition, so moving on to the next message would
// commit past this one. A write that can never succeed is logged and dropped.
func (c *KafkaConsumer) settle(ctx, msgCtx context.Context, m kafka.Message, headers map[string]string, deliveryCount int, st step) bool {
	switch st.kind {
	case stepComplete:
		return true

	case stepDeadLetter:
		if c.cfg.DLQTopic == "" {
			c.logger.WarnwCtx(msgCtx, "No DLQ configured, dropping dead-lettered message",
				"reason", st.reason,
			)
			return true
		}
		err := c.write(ctx, msgCtx, c.cfg.DLQTopic, m, deadLetterHeaders(headers, st.reason))
		if err != nil {
			c.logger.ErrorwCtx(msgCtx, "Failed to send message to DLQ",
				"error", err,
				"dlq_topic", c.cfg.DLQTopic,
			)
			return retry.IsFatal(err)
		}
		metrics.IncDeadLetter(c.serviceName, m.Topic, st.reason)
		c.logger.InfowCtx(msgCtx, "Message sent to DLQ",
			"dlq_topic", c.cfg.DLQTopic,
			"reason", st.reason,
		)
		return true

	case stepRedeliver:
		// The wait holds the whole fetch loop; see lock_duration.
		if st.delay > 0 && !sleepCtx(ctx, st.delay) {
			return false
		}
		err := c.write(ctx, msgCtx, m.Topic, m, redeliveryHeaders(headers, deliveryCount))
		if err != nil {
			c.logger.ErrorwCtx(msgCtx, "Failed to redeliver message",
				"error", err,
				"topic", m.Topic,
			)
			return retry.IsFatal(err)
		}
		action := settlement.Retry.String()
		if st.delay > 0 {
			action = settlement.None.String()
		}
		metrics.IncRedelivery(c.serviceName, m.Topic, action)
		return true
	}
	return false
}

// write keeps retrying a settlement write until it is stored, ctx ends, or
// the error is fatal. The partition does not advance meanwhile.
func (c *KafkaConsumer) write(ctx, msgCtx context.Context, topic string, m kafka.Message, headers map[string]string) error {
	kafkaHeaders := toKafkaHeaders(msgCtx, headers)
	return retry.RetryWithCallback(ctx, c.policy, func() error {
		return writeKafka(ctx, c.writer, topic, m.Key, m.Value, kafkaHeaders)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, topic).Inc()
		c.logger.WarnwCtx(msgCtx, "Retrying settlement write",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
			"offset", m.Offset,
		)
	})
}

func (c *KafkaConsumer) Close() error {
	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}
	c.wg.Wait()
	if closeErr := c.writer.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// invoke runs the handler, turning a panic into an error.
func invoke(ctx context.Context, handler HandlerFunc, msg models.InboundMessage) (decision settlement.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.RecoverPanic(r)
		}
	}()
	return handler(ctx, msg)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
