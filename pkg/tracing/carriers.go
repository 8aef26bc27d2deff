package tracing

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Trace context travels in broker headers next to the message properties.
// Kafka headers are an ordered list that may repeat keys; the last value wins
// on read and Set replaces in place so republished messages do not grow.

func InjectKafkaHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	c := kafkaCarrier(headers)
	otel.GetTextMapPropagator().Inject(ctx, &c)
	return c
}

func ExtractKafkaHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	c := kafkaCarrier(headers)
	return otel.GetTextMapPropagator().Extract(ctx, &c)
}

// InjectAMQPHeaders writes the trace context into headers, allocating the
// table when needed.
func InjectAMQPHeaders(ctx context.Context, headers amqp.Table) amqp.Table {
	if headers == nil {
		headers = amqp.Table{}
	}
	otel.GetTextMapPropagator().Inject(ctx, amqpCarrier(headers))
	return headers
}

func ExtractAMQPHeaders(ctx context.Context, headers amqp.Table) context.Context {
	if headers == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, amqpCarrier(headers))
}

type kafkaCarrier []kafka.Header

func (c *kafkaCarrier) Get(key string) string {
	hs := *c
	for i := len(hs) - 1; i >= 0; i-- {
		if hs[i].Key == key {
			return string(hs[i].Value)
		}
	}
	return ""
}

func (c *kafkaCarrier) Set(key, value string) {
	for i := range *c {
		if (*c)[i].Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *kafkaCarrier) Keys() []string {
	keys := make([]string, len(*c))
	for i, h := range *c {
		keys[i] = h.Key
	}
	return keys
}

type amqpCarrier amqp.Table

func (c amqpCarrier) Get(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func (c amqpCarrier) Set(key, value string) {
	c[key] = value
}

func (c amqpCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
