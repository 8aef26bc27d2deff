package models

import "time"

// Property keys carried by every outbound message.
const (
	PropertyBatchID   = "BatchId"
	PropertyEntityID  = "EntityId"
	PropertySource    = "Source"
	PropertyTimestamp = "Timestamp"
	PropertyTraceID   = "TraceId"
)

// OutboundMessage is one debatched unit of work handed to the outbound queue.
type OutboundMessage struct {
	MessageID     string            `json:"messageId"`
	CorrelationID string            `json:"correlationId"`
	Body          []byte            `json:"body"`
	Properties    map[string]string `json:"properties"`
}

// InboundMessage is what a queue consumer hands to the subscriber for one delivery.
type InboundMessage struct {
	MessageID     string
	CorrelationID string
	Body          []byte
	Properties    map[string]string
	DeliveryCount int
	EnqueuedAt    time.Time
}

func (m InboundMessage) Property(key string) string {
	if m.Properties == nil {
		return ""
	}
	return m.Properties[key]
}
