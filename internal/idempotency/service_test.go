package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userbus/internal/config"
	"userbus/internal/constants"
	"userbus/internal/logger"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestService_MarkThenDuplicate(t *testing.T) {
	mr, client := newRedis(t)
	svc := NewService(NewRepository(client), config.IdempotencyConfig{TTLSeconds: 60}, logger.NopLogger())
	ctx := context.Background()

	dup, err := svc.IsDuplicate(ctx, "b-1|42")
	require.NoError(t, err)
	assert.False(t, dup)

	require.NoError(t, svc.MarkDelivered(ctx, "b-1|42"))
	assert.True(t, mr.Exists(constants.CacheKeyPrefixDelivered+"b-1|42"))
	assert.Equal(t, 60*time.Second, mr.TTL(constants.CacheKeyPrefixDelivered+"b-1|42"))

	dup, err = svc.IsDuplicate(ctx, "b-1|42")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = svc.IsDuplicate(ctx, "b-1|43")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestService_ExpiredKeyIsNotDuplicate(t *testing.T) {
	mr, client := newRedis(t)
	svc := NewService(NewRepository(client), config.IdempotencyConfig{TTLSeconds: 1, KeyPrefix: "test:"}, logger.NopLogger())
	ctx := context.Background()

	require.NoError(t, svc.MarkDelivered(ctx, "m"))
	assert.True(t, mr.Exists("test:m"))

	mr.FastForward(2 * time.Second)

	dup, err := svc.IsDuplicate(ctx, "m")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestService_EmptyMessageID(t *testing.T) {
	_, client := newRedis(t)
	svc := NewService(NewRepository(client), config.IdempotencyConfig{}, logger.NopLogger())

	dup, err := svc.IsDuplicate(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, dup)
	assert.NoError(t, svc.MarkDelivered(context.Background(), ""))
}

type failingRepository struct{}

func (failingRepository) Exists(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingRepository) SetNX(context.Context, string, interface{}, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestService_RedisErrorFallback(t *testing.T) {
	tests := []struct {
		name      string
		onError   string
		wantError bool
	}{
		{name: "allow", onError: constants.FallbackAllow, wantError: false},
		{name: "default is allow", onError: "", wantError: false},
		{name: "fail", onError: constants.FallbackFail, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(failingRepository{}, config.IdempotencyConfig{OnRedisError: tt.onError}, logger.NopLogger())

			dup, err := svc.IsDuplicate(context.Background(), "m")
			assert.False(t, dup)
			markErr := svc.MarkDelivered(context.Background(), "m")
			if tt.wantError {
				assert.Error(t, err)
				assert.Error(t, markErr)
			} else {
				assert.NoError(t, err)
				assert.NoError(t, markErr)
			}
		})
	}
}

func TestCircuitBreakerRepository_OpensOnFailures(t *testing.T) {
	repo := NewCircuitBreakerRepository(failingRepository{}, config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := repo.Exists(ctx, "k")
		require.Error(t, err)
	}

	assert.True(t, repo.IsOpen())
	assert.Equal(t, "open", repo.State())

	_, err := repo.SetNX(ctx, "k", 1, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestCircuitBreakerRepository_Disabled(t *testing.T) {
	_, client := newRedis(t)
	repo := NewCircuitBreakerRepository(NewRepository(client), config.CircuitBreakerConfig{})

	assert.Equal(t, "disabled", repo.State())
	assert.False(t, repo.IsOpen())

	ok, err := repo.SetNX(context.Background(), "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := repo.Exists(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, exists)
}
