// Package debatch splits a validated batch into individually addressable
// outbound messages.
package debatch

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"userbus/internal/observability"
	"userbus/pkg/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// KeySeparator joins the components of message and correlation ids.
const KeySeparator = "|"

// Components are escaped before joining so that a separator inside an id
// cannot make two different tuples produce the same key.
var keyEscaper = strings.NewReplacer(`\`, `\\`, KeySeparator, `\`+KeySeparator)

func joinKey(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = keyEscaper.Replace(p)
	}
	return strings.Join(escaped, KeySeparator)
}

// MessageID is the de-duplication key of a unit: batch id and entity id.
func MessageID(batchID string, entityID models.EntityID) string {
	return joinKey(batchID, string(entityID))
}

// CorrelationID ties a unit back to the invocation that published it.
func CorrelationID(invocationID, batchID string, entityID models.EntityID) string {
	return joinKey(invocationID, batchID, string(entityID))
}

// Result is the debatched output plus the observation records produced while
// building it.
type Result struct {
	Messages     []models.OutboundMessage
	Observations []observability.Observation
}

// Debatch emits one message per unit event, in input order. It does not touch
// the envelope and performs no I/O, so the same envelope and invocation id
// always produce the same keys.
func Debatch(env *models.BatchEnvelope, invocationID string) (Result, error) {
	if env == nil {
		return Result{}, fmt.Errorf("debatch: nil envelope")
	}

	result := Result{
		Messages:     make([]models.OutboundMessage, 0, len(env.Payload)),
		Observations: make([]observability.Observation, 0, len(env.Payload)),
	}

	for i, evt := range env.Payload {
		body, err := json.Marshal(evt)
		if err != nil {
			return Result{}, fmt.Errorf("debatch: serialize unit event %d (entity %s): %w", i, evt.EntityID, err)
		}

		msg := models.OutboundMessage{
			MessageID:     MessageID(env.ID, evt.EntityID),
			CorrelationID: CorrelationID(invocationID, env.ID, evt.EntityID),
			Body:          body,
			Properties:    properties(env, evt, invocationID),
		}
		result.Messages = append(result.Messages, msg)

		result.Observations = append(result.Observations, observability.Observation{
			EventID:       observability.PublisherReceiptSucceeded,
			Checkpoint:    observability.PublisherStart,
			Status:        observability.StatusSucceeded,
			InterfaceID:   observability.InterfacePublisher,
			MessageType:   observability.MessageTypeUnit,
			BatchID:       env.ID,
			CorrelationID: msg.CorrelationID,
			EntityID:      string(evt.EntityID),
		})
	}

	return result, nil
}

func properties(env *models.BatchEnvelope, evt models.UnitEvent, invocationID string) map[string]string {
	var timestamp string
	switch {
	case !evt.Timestamp.IsZero():
		timestamp = evt.Timestamp.UTC().Format(time.RFC3339Nano)
	case !env.OccurredAt.IsZero():
		timestamp = env.OccurredAt.UTC().Format(time.RFC3339Nano)
	}

	return map[string]string{
		models.PropertyBatchID:   env.ID,
		models.PropertyEntityID:  string(evt.EntityID),
		models.PropertySource:    env.Source,
		models.PropertyTimestamp: timestamp,
		models.PropertyTraceID:   invocationID,
	}
}
