package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"userbus/internal/logger"
)

func TestStatus_Level(t *testing.T) {
	tests := []struct {
		status Status
		want   zapcore.Level
	}{
		{StatusNotAvailable, zapcore.InfoLevel},
		{StatusSucceeded, zapcore.InfoLevel},
		{StatusAttemptFailed, zapcore.WarnLevel},
		{StatusDiscarded, zapcore.WarnLevel},
		{StatusFailed, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Level())
		})
	}
}

func TestEventID_String(t *testing.T) {
	assert.Equal(t, "SubscriberDeliveryFailedUnreachableTarget", SubscriberDeliveryFailedUnreachableTarget.String())
	assert.Equal(t, "Unknown", EventID(1).String())
}

func TestObservation_FieldsOmitsEmptyOptionals(t *testing.T) {
	obs := Observation{EventID: PublisherReceiptSucceeded, Status: StatusSucceeded}
	fields := obs.Fields()
	assert.NotContains(t, fields, "delivery_count")
	assert.NotContains(t, fields, "record_count")

	obs.DeliveryCount = DeliveryCount(1, 2)
	obs.RecordCount = 3
	fields = obs.Fields()
	assert.Contains(t, fields, "1/2")
	assert.Contains(t, fields, 3)
}

func TestLogRecorder_UsesStatusLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	rec := NewLogRecorder(logger.NewFromZap(zap.New(core), "subscriber-service"))

	rec.Record(context.Background(), Observation{
		EventID:       SubscriberDeliveryFailedInvalidMessage,
		Checkpoint:    SubscriberFinish,
		Status:        StatusFailed,
		InterfaceID:   InterfaceSubscriber,
		MessageType:   MessageTypeUnit,
		BatchID:       "B1",
		CorrelationID: "inv|B1|1",
		EntityID:      "1",
		Message:       "missing required fields",
		DeliveryCount: "1/2",
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "missing required fields", entry.Message)

	fields := entry.ContextMap()
	assert.EqualValues(t, 11690, fields["event_id"])
	assert.Equal(t, "SubscriberFinish", fields["span_checkpoint"])
	assert.Equal(t, "B1", fields["batch_id"])
	assert.Equal(t, "1/2", fields["delivery_count"])
}

func TestMultiAndCollector(t *testing.T) {
	first := NewCollector()
	second := NewCollector()
	m := Multi{first, nil, second, MetricsRecorder{}}

	RecordAll(context.Background(), m, []Observation{
		{EventID: BatchPublisherReceiptSucceeded, Status: StatusSucceeded},
		{EventID: BatchPublisherDeliverySucceeded, Status: StatusSucceeded, RecordCount: 2},
	})

	assert.Equal(t, []EventID{BatchPublisherReceiptSucceeded, BatchPublisherDeliverySucceeded}, first.EventIDs())
	assert.Len(t, second.Observations(), 2)
}
