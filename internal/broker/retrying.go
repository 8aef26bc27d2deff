package broker

import (
	"context"
	"time"

	"userbus/internal/logger"
	"userbus/pkg/metrics"
	"userbus/pkg/models"
	"userbus/pkg/retry"
)

// RetryingProducer retries failed publishes with exponential backoff. The
// error of the last attempt is returned once the policy is exhausted.
type RetryingProducer struct {
	next        Producer
	policy      retry.Policy
	logger      logger.Logger
	broker      string
	serviceName string
	destination string
}

func NewRetryingProducer(next Producer, policy retry.Policy, log logger.Logger, broker, serviceName, destination string) *RetryingProducer {
	return &RetryingProducer{
		next:        next,
		policy:      policy,
		logger:      log,
		broker:      broker,
		serviceName: serviceName,
		destination: destination,
	}
}

func (p *RetryingProducer) Publish(ctx context.Context, msg models.OutboundMessage) error {
	err := retry.RetryWithCallback(ctx, p.policy, func() error {
		return p.next.Publish(ctx, msg)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(p.serviceName, p.destination).Inc()
		p.logger.WarnwCtx(ctx, "Retrying publish",
			"attempt", attempt,
			"max_attempts", p.policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"message_id", msg.MessageID,
		)
	})
	if err == nil {
		metrics.IncBrokerMessagesWritten(p.broker, p.serviceName, p.destination)
	}
	return err
}

func (p *RetryingProducer) Close() error {
	return p.next.Close()
}
