package broker

import (
	"sort"
	"strconv"
	"time"

	"userbus/internal/constants"
	"userbus/pkg/models"
)

var reservedHeaders = map[string]bool{
	constants.HeaderMessageID:        true,
	constants.HeaderCorrelationID:    true,
	constants.HeaderDeliveryCount:    true,
	constants.HeaderDeadLetterReason: true,
	constants.HeaderEnqueuedAt:       true,
}

// outboundHeaders flattens a message into the header set written to the
// queue. Properties never override the reserved headers.
func outboundHeaders(msg models.OutboundMessage, deliveryCount int, enqueuedAt time.Time) map[string]string {
	h := make(map[string]string, len(msg.Properties)+4)
	for k, v := range msg.Properties {
		if !reservedHeaders[k] {
			h[k] = v
		}
	}
	h[constants.HeaderMessageID] = msg.MessageID
	h[constants.HeaderCorrelationID] = msg.CorrelationID
	h[constants.HeaderDeliveryCount] = strconv.Itoa(deliveryCount)
	h[constants.HeaderEnqueuedAt] = enqueuedAt.UTC().Format(time.RFC3339Nano)
	return h
}

// inboundMessage rebuilds a delivery from its headers. A missing or
// malformed delivery count is read as the first delivery.
func inboundMessage(headers map[string]string, body []byte, fallbackTime time.Time) models.InboundMessage {
	msg := models.InboundMessage{
		MessageID:     headers[constants.HeaderMessageID],
		CorrelationID: headers[constants.HeaderCorrelationID],
		Body:          body,
		Properties:    make(map[string]string, len(headers)),
		DeliveryCount: 1,
		EnqueuedAt:    fallbackTime,
	}

	if n, err := strconv.Atoi(headers[constants.HeaderDeliveryCount]); err == nil && n > 0 {
		msg.DeliveryCount = n
	}
	if ts, err := time.Parse(time.RFC3339Nano, headers[constants.HeaderEnqueuedAt]); err == nil {
		msg.EnqueuedAt = ts
	}

	for k, v := range headers {
		if !reservedHeaders[k] {
			msg.Properties[k] = v
		}
	}
	return msg
}

// redeliveryHeaders copies headers for the next attempt.
func redeliveryHeaders(headers map[string]string, deliveryCount int) map[string]string {
	next := make(map[string]string, len(headers))
	for k, v := range headers {
		next[k] = v
	}
	next[constants.HeaderDeliveryCount] = strconv.Itoa(deliveryCount + 1)
	return next
}

func deadLetterHeaders(headers map[string]string, reason string) map[string]string {
	dl := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		dl[k] = v
	}
	dl[constants.HeaderDeadLetterReason] = reason
	return dl
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
