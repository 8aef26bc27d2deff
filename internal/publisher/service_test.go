package publisher

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userbus/internal/archive"
	"userbus/internal/observability"
	"userbus/pkg/models"
)

type fakeProducer struct {
	mu       sync.Mutex
	messages []models.OutboundMessage
	failAt   int
	err      error
	panicMsg string
}

func (p *fakeProducer) Publish(_ context.Context, msg models.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.err != nil && len(p.messages) == p.failAt {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

type fakeArchiver struct {
	records []archive.Record
	err     error
}

func (a *fakeArchiver) Archive(_ context.Context, rec archive.Record) error {
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

const twoUnitBatch = `{"id":"B1","source":"crm","data":[{"entityId":1,"phoneNumber":"555-0100"},{"entityId":2,"phoneNumber":"555-0101"}]}`

var fixedNow = time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

func newTestService(producer *fakeProducer, arch archive.Archiver) (*Service, *observability.Collector) {
	collector := observability.NewCollector()
	svc := NewService(producer,
		WithArchiver(arch),
		WithRecorder(collector),
		WithClock(func() time.Time { return fixedNow }),
	)
	return svc, collector
}

func TestPublish_AcceptsBatch(t *testing.T) {
	producer := &fakeProducer{}
	arch := &fakeArchiver{}
	svc, collector := newTestService(producer, arch)

	resp, err := svc.Publish(context.Background(), []byte(twoUnitBatch), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, models.NewAPIResponse(http.StatusAccepted, "inv-1", models.MessageAccepted), resp)

	require.Len(t, producer.messages, 2)
	assert.Equal(t, "B1|1", producer.messages[0].MessageID)
	assert.Equal(t, "inv-1|B1|1", producer.messages[0].CorrelationID)
	assert.Equal(t, "B1|2", producer.messages[1].MessageID)

	require.Len(t, arch.records, 1)
	assert.Equal(t, "2024/03/09/inv-1.json", arch.records[0].Key)
	assert.Equal(t, []byte(twoUnitBatch), arch.records[0].Body)

	assert.Equal(t, []observability.EventID{
		observability.BatchPublisherReceiptSucceeded,
		observability.PublisherReceiptSucceeded,
		observability.PublisherDeliverySucceeded,
		observability.PublisherReceiptSucceeded,
		observability.PublisherDeliverySucceeded,
		observability.BatchPublisherDeliverySucceeded,
	}, collector.EventIDs())

	obs := collector.Observations()
	last := obs[len(obs)-1]
	assert.Equal(t, 2, last.RecordCount)
	assert.Equal(t, "B1", last.BatchID)
	assert.Equal(t, observability.BatchPublisherFinish, last.Checkpoint)
	assert.Equal(t, observability.PublisherFinish, obs[2].Checkpoint)
	assert.Equal(t, "inv-1|B1|1", obs[2].CorrelationID)
}

func TestPublish_EmptyBatchIsBadRequest(t *testing.T) {
	producer := &fakeProducer{}
	svc, collector := newTestService(producer, archive.Nop())

	resp, err := svc.Publish(context.Background(), []byte(`{"id":"B1","data":[]}`), "inv-2")
	require.Error(t, err)
	assert.Equal(t, models.NewAPIResponse(http.StatusBadRequest, "inv-2", models.MessageInvalidRequestBody), resp)
	assert.Empty(t, producer.messages)

	assert.Equal(t, []observability.EventID{
		observability.BatchPublisherReceiptSucceeded,
		observability.BatchPublisherValidationFailedBadRequest,
	}, collector.EventIDs())
	failed := collector.Observations()[1]
	assert.Equal(t, observability.StatusFailed, failed.Status)
	assert.NotEmpty(t, failed.Message)
}

func TestPublish_InternalFailures(t *testing.T) {
	tests := []struct {
		name         string
		producer     *fakeProducer
		archiver     archive.Archiver
		wantMessages int
	}{
		{
			name:     "archive failure",
			producer: &fakeProducer{},
			archiver: &fakeArchiver{err: errors.New("mongo down")},
		},
		{
			name:         "enqueue failure on second message",
			producer:     &fakeProducer{failAt: 1, err: errors.New("broker down")},
			archiver:     archive.Nop(),
			wantMessages: 1,
		},
		{
			name:     "producer panic",
			producer: &fakeProducer{panicMsg: "boom"},
			archiver: archive.Nop(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, collector := newTestService(tt.producer, tt.archiver)

			resp, err := svc.Publish(context.Background(), []byte(twoUnitBatch), "inv-3")
			require.Error(t, err)
			assert.Equal(t, models.NewAPIResponse(http.StatusInternalServerError, "inv-3", models.MessageInternalServerError), resp)
			assert.Len(t, tt.producer.messages, tt.wantMessages)

			ids := collector.EventIDs()
			require.NotEmpty(t, ids)
			assert.Equal(t, observability.BatchPublisherReceiptSucceeded, ids[0])
			assert.Equal(t, observability.BatchPublisherProcessingFailedInternalServerError, ids[len(ids)-1])
			assert.NotContains(t, ids, observability.BatchPublisherDeliverySucceeded)
		})
	}
}
