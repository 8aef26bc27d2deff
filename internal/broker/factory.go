package broker

import (
	"fmt"

	"userbus/internal/config"
	"userbus/internal/constants"
	"userbus/internal/logger"
	"userbus/pkg/retry"
)

// NewProducer builds the outbound producer for the configured broker,
// wrapped with the configured retry policy.
func NewProducer(cfg config.BrokerConfig, log logger.Logger, serviceName string) (Producer, error) {
	var (
		p           Producer
		destination string
	)

	switch cfg.Type {
	case constants.BrokerKafka:
		p = NewKafkaProducer(cfg.Kafka, log)
		destination = cfg.Kafka.Topic
	case constants.BrokerRabbitMQ:
		rp, err := NewRabbitMQProducer(cfg.RabbitMQ, log)
		if err != nil {
			return nil, err
		}
		p = rp
		destination = rp.topology.Queue
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}

	return NewRetryingProducer(p, retry.PolicyFromConfig(cfg.Retry), log, cfg.Type, serviceName, destination), nil
}

func NewConsumer(cfg config.BrokerConfig, sub config.SubscriberConfig, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case constants.BrokerKafka:
		return NewKafkaConsumer(cfg.Kafka, sub, log), nil
	case constants.BrokerRabbitMQ:
		return NewRabbitMQConsumer(cfg.RabbitMQ, sub, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
