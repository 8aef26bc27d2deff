// Package subscriber classifies each delivered message and decides how the
// broker should settle it.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"userbus/internal/broker"
	"userbus/internal/delivery"
	"userbus/internal/logger"
	"userbus/internal/observability"
	"userbus/internal/settlement"
	apperrors "userbus/pkg/errors"
	"userbus/pkg/logging"
	"userbus/pkg/metrics"
	"userbus/pkg/models"
	"userbus/pkg/tracing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Deduplicator remembers delivered message ids.
type Deduplicator interface {
	IsDuplicate(ctx context.Context, messageID string) (bool, error)
	MarkDelivered(ctx context.Context, messageID string) error
}

type Option func(*Service)

func WithDeduplicator(d Deduplicator) Option {
	return func(s *Service) {
		s.dedup = d
	}
}

func WithRecorder(r observability.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

func WithResolver(r *settlement.Resolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

func WithProcessingTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

type Service struct {
	classifier       *delivery.Classifier
	resolver         *settlement.Resolver
	dedup            Deduplicator
	recorder         observability.Recorder
	logger           logger.Logger
	maxDeliveryCount int
	timeout          time.Duration
}

func NewService(classifier *delivery.Classifier, maxDeliveryCount int, opts ...Option) *Service {
	s := &Service{
		classifier:       classifier,
		resolver:         settlement.NewResolver(),
		recorder:         observability.Multi{},
		logger:           logger.NopLogger(),
		maxDeliveryCount: maxDeliveryCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler adapts Process to the broker consumer callback.
func (s *Service) Handler() broker.HandlerFunc {
	return s.Process
}

// Process handles one delivery. An error means no settlement was decided and
// the message is left to the broker's redelivery.
func (s *Service) Process(ctx context.Context, msg models.InboundMessage) (decision settlement.Decision, err error) {
	start := time.Now()

	ctx, span := tracing.StartMessageSpan(ctx, "subscriber.process", msg.Properties)
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx = logging.WithMessageID(ctx, msg.MessageID)
	ctx = logging.WithCorrelationID(ctx, msg.CorrelationID)
	ctx = logging.WithBatchID(ctx, msg.Property(models.PropertyBatchID))
	ctx = logging.WithEntityID(ctx, msg.Property(models.PropertyEntityID))
	ctx = logging.WithTraceID(ctx, msg.Property(models.PropertyTraceID))

	isFinal := delivery.IsFinalAttempt(msg.DeliveryCount, s.maxDeliveryCount)
	base := observability.Observation{
		InterfaceID:   observability.InterfaceSubscriber,
		MessageType:   observability.MessageTypeUnit,
		BatchID:       msg.Property(models.PropertyBatchID),
		CorrelationID: msg.CorrelationID,
		EntityID:      msg.Property(models.PropertyEntityID),
		DeliveryCount: observability.DeliveryCount(msg.DeliveryCount, s.maxDeliveryCount),
	}

	defer func() {
		if r := recover(); r != nil {
			err = apperrors.RecoverPanic(r)
			decision = settlement.Decision{}
			s.recordException(ctx, base, isFinal, err)
		}
		if err != nil {
			metrics.SubscriberMessagesTotal.WithLabelValues("exception").Inc()
			metrics.ObserveSubscriberDuration(time.Since(start), "exception")
		}
	}()

	received := base
	received.EventID = observability.SubscriberReceiptSucceeded
	received.Checkpoint = observability.SubscriberStart
	received.Status = observability.StatusSucceeded
	s.recorder.Record(ctx, received)

	outcome, err := s.classify(ctx, msg, isFinal)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = apperrors.ErrTimeout.WithCause(err)
		}
		s.recordException(ctx, base, isFinal, err)
		return settlement.Decision{}, err
	}

	decision = s.resolver.Resolve(outcome)

	if outcome.Kind == delivery.Succeeded && s.dedup != nil {
		if markErr := s.dedup.MarkDelivered(ctx, msg.MessageID); markErr != nil {
			s.logger.WarnwCtx(ctx, "Failed to remember delivered message", "error", markErr)
		}
	}

	finished := base
	finished.EventID = outcome.EventID()
	finished.Checkpoint = observability.SubscriberFinish
	finished.Status = outcome.Status()
	finished.Message = outcome.Reason
	s.recorder.Record(ctx, finished)

	metrics.SubscriberMessagesTotal.WithLabelValues(outcome.Kind.String()).Inc()
	metrics.IncSettlementAction(decision.Action.String())
	metrics.ObserveSubscriberDuration(time.Since(start), outcome.Kind.String())

	return decision, nil
}

func (s *Service) classify(ctx context.Context, msg models.InboundMessage, isFinal bool) (delivery.Outcome, error) {
	var evt models.UnitEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		s.logger.WarnwCtx(ctx, "Undecodable message body", "error", err)
		return delivery.Terminal(delivery.ReasonInvalidMessageBody, delivery.ConditionInvalid), nil
	}

	if s.dedup != nil {
		seen, err := s.dedup.IsDuplicate(ctx, msg.MessageID)
		if err != nil {
			return delivery.Outcome{}, err
		}
		if seen {
			return delivery.Discard(delivery.ReasonDuplicateMessage, delivery.ConditionDuplicate), nil
		}
	}

	outcome, err := s.classifier.ClassifyAttempt(ctx, delivery.Attempt{
		Event:         evt,
		Properties:    msg.Properties,
		DeliveryCount: msg.DeliveryCount,
		IsFinal:       isFinal,
	})
	if err != nil {
		return delivery.Outcome{}, fmt.Errorf("classify message %s: %w", msg.MessageID, err)
	}
	return outcome, nil
}

func (s *Service) recordException(ctx context.Context, base observability.Observation, isFinal bool, err error) {
	obs := base
	obs.EventID = observability.SubscriberDeliveryFailedException
	obs.Checkpoint = observability.SubscriberFinish
	obs.Status = observability.StatusAttemptFailed
	if isFinal {
		obs.Status = observability.StatusFailed
	}
	obs.Message = err.Error()
	s.recorder.Record(ctx, obs)

	if errors.Is(err, delivery.ErrCatastrophicFailure) {
		s.logger.ErrorwCtx(ctx, "Catastrophic delivery failure", "error", err)
		return
	}
	if apperrors.IsPanic(err) {
		s.logger.ErrorwCtx(ctx, "Message handler panicked", "error", err, "stack", apperrors.PanicStack(err))
		return
	}
	s.logger.ErrorwCtx(ctx, "Message processing failed", "error", err)
}
