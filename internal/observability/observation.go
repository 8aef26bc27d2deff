package observability

import (
	"context"
	"fmt"
	"sync"

	"userbus/internal/logger"
	"userbus/pkg/metrics"
)

// Observation is one structured record emitted at a pipeline decision point.
// It is plain data; writing it anywhere is the job of a Recorder.
type Observation struct {
	EventID       EventID
	Checkpoint    SpanCheckpoint
	Status        Status
	InterfaceID   InterfaceID
	MessageType   MessageType
	BatchID       string
	CorrelationID string
	EntityID      string
	Message       string
	DeliveryCount string
	RecordCount   int
}

// DeliveryCount renders the "attempt/max" form carried on subscriber records.
func DeliveryCount(attempt, maxAttempts int) string {
	return fmt.Sprintf("%d/%d", attempt, maxAttempts)
}

// Fields returns the record as alternating key/value pairs. Optional fields are
// left out when empty.
func (o Observation) Fields() []interface{} {
	fields := []interface{}{
		"event_id", int(o.EventID),
		"event_name", o.EventID.String(),
		"span_checkpoint", string(o.Checkpoint),
		"status", string(o.Status),
		"interface_id", string(o.InterfaceID),
		"message_type", string(o.MessageType),
		"batch_id", o.BatchID,
		"correlation_id", o.CorrelationID,
		"entity_id", o.EntityID,
	}
	if o.DeliveryCount != "" {
		fields = append(fields, "delivery_count", o.DeliveryCount)
	}
	if o.RecordCount > 0 {
		fields = append(fields, "record_count", o.RecordCount)
	}
	return fields
}

type Recorder interface {
	Record(ctx context.Context, obs Observation)
}

type RecorderFunc func(ctx context.Context, obs Observation)

func (f RecorderFunc) Record(ctx context.Context, obs Observation) {
	f(ctx, obs)
}

// Multi fans a record out to every recorder in order.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, obs Observation) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, obs)
		}
	}
}

// RecordAll replays a batch of records, typically the side-channel output of a
// pure transformation.
func RecordAll(ctx context.Context, r Recorder, observations []Observation) {
	for _, obs := range observations {
		r.Record(ctx, obs)
	}
}

// LogRecorder writes records through the structured logger at the level
// implied by their status.
type LogRecorder struct {
	log logger.Logger
}

func NewLogRecorder(log logger.Logger) *LogRecorder {
	return &LogRecorder{log: log}
}

func (r *LogRecorder) Record(ctx context.Context, obs Observation) {
	msg := obs.Message
	if msg == "" {
		msg = obs.EventID.String()
	}
	r.log.LogwCtx(ctx, obs.Status.Level(), msg, obs.Fields()...)
}

// MetricsRecorder counts records by event id and status.
type MetricsRecorder struct{}

func (MetricsRecorder) Record(_ context.Context, obs Observation) {
	metrics.IncObservation(int(obs.EventID), string(obs.Status))
}

// Collector keeps records in memory.
type Collector struct {
	mu    sync.Mutex
	items []Observation
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Record(_ context.Context, obs Observation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, obs)
}

func (c *Collector) Observations() []Observation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Observation, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collector) EventIDs() []EventID {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]EventID, 0, len(c.items))
	for _, obs := range c.items {
		ids = append(ids, obs.EventID)
	}
	return ids
}
