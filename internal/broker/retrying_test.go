package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userbus/internal/logger"
	"userbus/pkg/models"
	"userbus/pkg/retry"
)

type flakyProducer struct {
	mu       sync.Mutex
	failures int
	calls    int
	closed   bool
	sent     []models.OutboundMessage
}

func (p *flakyProducer) Publish(_ context.Context, msg models.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *flakyProducer) Close() error {
	p.closed = true
	return nil
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetryingProducer_RecoversFromTransientFailures(t *testing.T) {
	inner := &flakyProducer{failures: 2}
	p := NewRetryingProducer(inner, testPolicy(), logger.NopLogger(), "kafka", "publisher", "userupdate-evt")

	err := p.Publish(context.Background(), models.OutboundMessage{MessageID: "b|1"})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
	require.Len(t, inner.sent, 1)
	assert.Equal(t, "b|1", inner.sent[0].MessageID)
}

func TestRetryingProducer_GivesUp(t *testing.T) {
	inner := &flakyProducer{failures: 10}
	p := NewRetryingProducer(inner, testPolicy(), logger.NopLogger(), "kafka", "publisher", "userupdate-evt")

	err := p.Publish(context.Background(), models.OutboundMessage{MessageID: "b|1"})
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
	assert.Empty(t, inner.sent)
}

func TestRetryingProducer_Close(t *testing.T) {
	inner := &flakyProducer{}
	p := NewRetryingProducer(inner, testPolicy(), logger.NopLogger(), "kafka", "publisher", "q")
	require.NoError(t, p.Close())
	assert.True(t, inner.closed)
}
