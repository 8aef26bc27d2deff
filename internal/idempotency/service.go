package idempotency

import (
	"context"
	"fmt"
	"time"

	"userbus/internal/config"
	"userbus/internal/constants"
	"userbus/internal/logger"
	"userbus/pkg/metrics"
	"userbus/pkg/tracing"
)

// Service remembers delivered message ids for a bounded time so broker
// redeliveries of already-processed messages can be discarded.
type Service struct {
	repo   Repository
	cfg    config.IdempotencyConfig
	ttl    time.Duration
	prefix string
	now    func() time.Time
	logger logger.Logger
}

func NewService(repo Repository, cfg config.IdempotencyConfig, log logger.Logger) *Service {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = constants.DefaultTTLSeconds * time.Second
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = constants.CacheKeyPrefixDelivered
	}

	return &Service{
		repo:   repo,
		cfg:    cfg,
		ttl:    ttl,
		prefix: prefix,
		now:    time.Now,
		logger: log,
	}
}

func (s *Service) key(messageID string) string {
	return s.prefix + messageID
}

// IsDuplicate reports whether messageID was already delivered. When Redis
// fails the configured fallback decides: "allow" treats the message as new,
// "fail" returns the error.
func (s *Service) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	ctx, span := tracing.GetTracer("idempotency").Start(ctx, "idempotency.check")
	defer span.End()

	if messageID == "" {
		metrics.IncIdempotencyCheck("skipped")
		return false, nil
	}

	seen, err := s.repo.Exists(ctx, s.key(messageID))
	if err != nil {
		metrics.IncIdempotencyCheck("error")
		if s.allowOnError(ctx, err) {
			return false, nil
		}
		return false, fmt.Errorf("idempotency check for message %s: %w", messageID, err)
	}

	if seen {
		metrics.IncIdempotencyCheck("duplicate")
	} else {
		metrics.IncIdempotencyCheck("unique")
	}
	return seen, nil
}

// MarkDelivered records messageID with the configured TTL.
func (s *Service) MarkDelivered(ctx context.Context, messageID string) error {
	if messageID == "" {
		return nil
	}

	_, err := s.repo.SetNX(ctx, s.key(messageID), s.now().Unix(), s.ttl)
	if err != nil {
		if s.allowOnError(ctx, err) {
			return nil
		}
		return fmt.Errorf("mark message %s delivered: %w", messageID, err)
	}
	return nil
}

func (s *Service) allowOnError(ctx context.Context, err error) bool {
	if s.cfg.OnRedisError == constants.FallbackFail {
		metrics.FallbackUsageTotal.WithLabelValues("idempotency", "deny_on_error", "redis_error").Inc()
		return false
	}

	metrics.FallbackUsageTotal.WithLabelValues("idempotency", "allow_on_error", "redis_error").Inc()
	s.logger.WarnwCtx(ctx, "Redis error during idempotency check, continuing (fallback: allow)",
		"error", err,
	)
	return true
}
