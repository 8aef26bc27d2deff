package models

import "time"

type BatchEnvelopeBuilder struct {
	envelope *BatchEnvelope
}

func NewBatchEnvelopeBuilder() *BatchEnvelopeBuilder {
	return &BatchEnvelopeBuilder{
		envelope: &BatchEnvelope{
			SpecVersion:     "1.0",
			DataContentType: "application/json",
			Payload:         make([]UnitEvent, 0),
		},
	}
}

func (b *BatchEnvelopeBuilder) WithID(id string) *BatchEnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *BatchEnvelopeBuilder) WithType(eventType string) *BatchEnvelopeBuilder {
	b.envelope.EventType = eventType
	return b
}

func (b *BatchEnvelopeBuilder) WithSource(source string) *BatchEnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *BatchEnvelopeBuilder) WithTime(occurredAt time.Time) *BatchEnvelopeBuilder {
	b.envelope.OccurredAt = NewTimestamp(occurredAt)
	return b
}

func (b *BatchEnvelopeBuilder) WithEvents(events ...UnitEvent) *BatchEnvelopeBuilder {
	b.envelope.Payload = append(b.envelope.Payload, events...)
	return b
}

func (b *BatchEnvelopeBuilder) Build() *BatchEnvelope {
	if b.envelope.OccurredAt.IsZero() {
		b.envelope.OccurredAt = NewTimestamp(time.Now())
	}
	return b.envelope
}
