package idempotency

import (
	"context"
	"time"

	"userbus/internal/config"
	"userbus/pkg/circuitbreaker"
)

const breakerName = "redis-idempotency"

// CircuitBreakerRepository stops calling Redis after repeated failures so a
// dead cache fails fast instead of stalling every delivery. With the breaker
// disabled calls go straight to the wrapped repository.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	r := &CircuitBreakerRepository{repo: repo}
	if cfg.Enabled {
		r.cb = circuitbreaker.NewWrapper(circuitbreaker.FromConfig(breakerName, cfg))
	}
	return r
}

func guarded[T any](ctx context.Context, cb *circuitbreaker.Wrapper, fn func() (T, error)) (T, error) {
	if cb == nil {
		return fn()
	}
	return circuitbreaker.Execute(ctx, cb, fn)
}

func (r *CircuitBreakerRepository) Exists(ctx context.Context, key string) (bool, error) {
	return guarded(ctx, r.cb, func() (bool, error) {
		return r.repo.Exists(ctx, key)
	})
}

func (r *CircuitBreakerRepository) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return guarded(ctx, r.cb, func() (bool, error) {
		return r.repo.SetNX(ctx, key, value, ttl)
	})
}

// State is the breaker state name, or "disabled".
func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}

func (r *CircuitBreakerRepository) IsOpen() bool {
	return r.cb != nil && r.cb.IsOpen()
}
