package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userbus/internal/config"
	apperrors "userbus/pkg/errors"
)

func TestWrapper_TripsAndReportsUnavailable(t *testing.T) {
	w := NewWrapper(NewConfig("test-trip", 1, time.Minute, time.Minute, 0.5, 2))
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		err := w.Run(context.Background(), func() error { return boom })
		require.ErrorIs(t, err, boom)
	}

	assert.True(t, w.IsOpen())

	called := false
	err := w.Run(context.Background(), func() error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
}

func TestWrapper_PassesThroughResults(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-pass"))

	result, err := Execute(context.Background(), w, func() (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, "test-pass", w.Name())

	_, err = Execute(context.Background(), w, func() (string, error) {
		return "", errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig("archive", config.CircuitBreakerConfig{MaxRequests: 0, Interval: time.Minute, Timeout: time.Second, MinRequests: 4})
	assert.Equal(t, "archive", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.False(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 3, TotalFailures: 3}))
	assert.True(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 4, TotalFailures: 2}))
	assert.False(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 4, TotalFailures: 1}))
}

func TestWrapper_CancelledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-cancel"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Run(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
