// Package publisher accepts batch submissions, archives them, splits them
// into unit messages and hands those to the outbound queue.
package publisher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"userbus/internal/archive"
	"userbus/internal/broker"
	"userbus/internal/debatch"
	"userbus/internal/envelope"
	"userbus/internal/logger"
	"userbus/internal/observability"
	apperrors "userbus/pkg/errors"
	"userbus/pkg/logging"
	"userbus/pkg/metrics"
	"userbus/pkg/models"
	"userbus/pkg/tracing"
)

type Option func(*Service)

func WithArchiver(a archive.Archiver) Option {
	return func(s *Service) {
		if a != nil {
			s.archiver = a
		}
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

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type Service struct {
	parser   *envelope.Parser
	producer broker.Producer
	archiver archive.Archiver
	recorder observability.Recorder
	logger   logger.Logger
	now      func() time.Time
}

func NewService(producer broker.Producer, opts ...Option) *Service {
	s := &Service{
		parser:   envelope.NewParser(),
		producer: producer,
		archiver: archive.Nop(),
		recorder: observability.Multi{},
		logger:   logger.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish runs one submission through archive, parse, debatch and enqueue.
// The response is always populated; the error is only for the caller's logs.
func (s *Service) Publish(ctx context.Context, raw []byte, invocationID string) (resp models.APIResponse, err error) {
	start := s.now()
	ctx = logging.WithInvocationID(ctx, invocationID)
	ctx, span := tracing.GetTracer("publisher").Start(ctx, "publisher.publish")
	defer span.End()

	batch := observability.Observation{
		InterfaceID: observability.InterfacePublisher,
		MessageType: observability.MessageTypeBatch,
	}

	defer func() {
		if r := recover(); r != nil {
			err = apperrors.RecoverPanic(r)
			resp = s.fail(ctx, batch, invocationID, err)
		}
		status := "accepted"
		switch {
		case resp.StatusCode == http.StatusBadRequest:
			status = "invalid"
		case resp.StatusCode != http.StatusAccepted:
			status = "failed"
		}
		metrics.PublisherBatchesTotal.WithLabelValues(status).Inc()
		metrics.ObservePublisherDuration(time.Since(start), status)
	}()

	s.record(ctx, batch, observability.BatchPublisherReceiptSucceeded, observability.BatchPublisherStart, observability.StatusSucceeded)

	if err := s.archiver.Archive(ctx, archive.NewRecord(invocationID, raw, start)); err != nil {
		return s.fail(ctx, batch, invocationID, fmt.Errorf("archive request: %w", err)), err
	}

	env, err := s.parser.Parse(raw)
	if err != nil {
		obs := batch
		obs.Message = err.Error()
		s.record(ctx, obs, observability.BatchPublisherValidationFailedBadRequest, observability.BatchPublisherFinish, observability.StatusFailed)
		s.logger.WarnwCtx(ctx, "Rejected batch submission", "error", err)
		return apperrors.ToAPIResponse(err, invocationID), err
	}

	batch.BatchID = env.ID
	ctx = logging.WithBatchID(ctx, env.ID)

	result, err := debatch.Debatch(env, invocationID)
	if err != nil {
		return s.fail(ctx, batch, invocationID, err), err
	}

	for i, msg := range result.Messages {
		s.recorder.Record(ctx, result.Observations[i])

		if err := s.producer.Publish(ctx, msg); err != nil {
			metrics.PublisherMessagesTotal.WithLabelValues("failed").Inc()
			failed := batch
			failed.CorrelationID = msg.CorrelationID
			failed.EntityID = msg.Properties[models.PropertyEntityID]
			return s.fail(ctx, failed, invocationID, fmt.Errorf("enqueue message %s: %w", msg.MessageID, err)), err
		}
		metrics.PublisherMessagesTotal.WithLabelValues("enqueued").Inc()

		delivered := result.Observations[i]
		delivered.EventID = observability.PublisherDeliverySucceeded
		delivered.Checkpoint = observability.PublisherFinish
		s.recorder.Record(ctx, delivered)
	}

	metrics.PublisherBatchSize.Observe(float64(len(result.Messages)))

	done := batch
	done.RecordCount = len(result.Messages)
	s.record(ctx, done, observability.BatchPublisherDeliverySucceeded, observability.BatchPublisherFinish, observability.StatusSucceeded)

	return models.NewAPIResponse(http.StatusAccepted, invocationID, models.MessageAccepted), nil
}

func (s *Service) record(ctx context.Context, obs observability.Observation, id observability.EventID, cp observability.SpanCheckpoint, status observability.Status) {
	obs.EventID = id
	obs.Checkpoint = cp
	obs.Status = status
	s.recorder.Record(ctx, obs)
}

func (s *Service) fail(ctx context.Context, obs observability.Observation, invocationID string, err error) models.APIResponse {
	obs.Message = err.Error()
	s.record(ctx, obs, observability.BatchPublisherProcessingFailedInternalServerError, observability.BatchPublisherFinish, observability.StatusFailed)
	if apperrors.IsPanic(err) {
		s.logger.ErrorwCtx(ctx, "Batch submission panicked", "error", err, "stack", apperrors.PanicStack(err))
	} else {
		s.logger.ErrorwCtx(ctx, "Batch submission failed", "error", err)
	}
	return models.NewAPIResponse(http.StatusInternalServerError, invocationID, models.MessageInternalServerError)
}
