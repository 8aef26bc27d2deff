package observability

import "go.uber.org/zap/zapcore"

// EventID is the numeric event kind attached to every observation record.
type EventID int

const (
	BatchPublisherReceiptSucceeded                    EventID = 11000
	BatchPublisherValidationFailedBadRequest          EventID = 11090
	BatchPublisherDeliverySucceeded                   EventID = 11100
	BatchPublisherProcessingFailedInternalServerError EventID = 11199
	PublisherReceiptSucceeded                         EventID = 11200
	PublisherDeliverySucceeded                        EventID = 11300
	SubscriberReceiptSucceeded                        EventID = 11500
	SubscriberDeliverySucceeded                       EventID = 11600
	SubscriberDeliveryDiscardedStaleMessage           EventID = 11680
	SubscriberDeliveryDiscardedDuplicateMessage       EventID = 11681
	SubscriberDeliveryFailedMissingDependency         EventID = 11688
	SubscriberDeliveryFailedUnreachableTarget         EventID = 11689
	SubscriberDeliveryFailedInvalidMessage            EventID = 11690
	SubscriberDeliveryFailedException                 EventID = 11699
)

var eventNames = map[EventID]string{
	BatchPublisherReceiptSucceeded:                    "BatchPublisherReceiptSucceeded",
	BatchPublisherValidationFailedBadRequest:          "BatchPublisherValidationFailedBadRequest",
	BatchPublisherDeliverySucceeded:                   "BatchPublisherDeliverySucceeded",
	BatchPublisherProcessingFailedInternalServerError: "BatchPublisherProcessingFailedInternalServerError",
	PublisherReceiptSucceeded:                         "PublisherReceiptSucceeded",
	PublisherDeliverySucceeded:                        "PublisherDeliverySucceeded",
	SubscriberReceiptSucceeded:                        "SubscriberReceiptSucceeded",
	SubscriberDeliverySucceeded:                       "SubscriberDeliverySucceeded",
	SubscriberDeliveryDiscardedStaleMessage:           "SubscriberDeliveryDiscardedStaleMessage",
	SubscriberDeliveryDiscardedDuplicateMessage:       "SubscriberDeliveryDiscardedDuplicateMessage",
	SubscriberDeliveryFailedMissingDependency:         "SubscriberDeliveryFailedMissingDependency",
	SubscriberDeliveryFailedUnreachableTarget:         "SubscriberDeliveryFailedUnreachableTarget",
	SubscriberDeliveryFailedInvalidMessage:            "SubscriberDeliveryFailedInvalidMessage",
	SubscriberDeliveryFailedException:                 "SubscriberDeliveryFailedException",
}

func (id EventID) String() string {
	if name, ok := eventNames[id]; ok {
		return name
	}
	return "Unknown"
}

// SpanCheckpoint marks the pipeline stage an observation was taken at.
type SpanCheckpoint string

const (
	BatchPublisherStart  SpanCheckpoint = "BatchPublisherStart"
	BatchPublisherFinish SpanCheckpoint = "BatchPublisherFinish"
	PublisherStart       SpanCheckpoint = "PublisherStart"
	PublisherFinish      SpanCheckpoint = "PublisherFinish"
	SubscriberStart      SpanCheckpoint = "SubscriberStart"
	SubscriberFinish     SpanCheckpoint = "SubscriberFinish"
)

type Status string

const (
	StatusNotAvailable  Status = "NotAvailable"
	StatusSucceeded     Status = "Succeeded"
	StatusAttemptFailed Status = "AttemptFailed"
	StatusFailed        Status = "Failed"
	StatusDiscarded     Status = "Discarded"
)

// Level maps a status to the log level its record is written at.
func (s Status) Level() zapcore.Level {
	switch s {
	case StatusAttemptFailed, StatusDiscarded:
		return zapcore.WarnLevel
	case StatusFailed:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type InterfaceID string

const (
	InterfacePublisher  InterfaceID = "UserEventPub01"
	InterfaceSubscriber InterfaceID = "UserEventSub01"
)

type MessageType string

const (
	MessageTypeBatch MessageType = "UserUpdateEventBatch"
	MessageTypeUnit  MessageType = "UserUpdateEvent"
)
