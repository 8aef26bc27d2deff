package models

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BatchEnvelope is one inbound submission: a CloudEvents-shaped envelope whose
// data is an ordered list of unit events. Entity ids are unique within a batch.
type BatchEnvelope struct {
	ID              string      `json:"id" validate:"required"`
	SpecVersion     string      `json:"specversion,omitempty"`
	EventType       string      `json:"type,omitempty"`
	Source          string      `json:"source,omitempty"`
	Subject         string      `json:"subject,omitempty"`
	DataContentType string      `json:"datacontenttype,omitempty"`
	OccurredAt      Timestamp   `json:"time"`
	Payload         []UnitEvent `json:"data" validate:"required,min=1,unique=EntityID,dive"`
}

// UnitEvent is one user record inside a batch.
type UnitEvent struct {
	EntityID    EntityID  `json:"entityId" validate:"required"`
	UserName    string    `json:"userName,omitempty"`
	Email       string    `json:"email,omitempty"`
	Role        string    `json:"role,omitempty"`
	GivenName   string    `json:"givenName,omitempty"`
	FamilyName  string    `json:"familyName,omitempty"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	Timestamp   Timestamp `json:"timestamp"`
}

// UnmarshalJSON accepts the entity identifier under either "entityId" or "id".
func (e *UnitEvent) UnmarshalJSON(data []byte) error {
	type alias UnitEvent
	aux := struct {
		*alias
		ID EntityID `json:"id"`
	}{alias: (*alias)(e)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if e.EntityID == "" {
		e.EntityID = aux.ID
	}
	return nil
}

// Attributes flattens the event into a map for rule evaluation.
func (e UnitEvent) Attributes() map[string]interface{} {
	return map[string]interface{}{
		"entityId":    string(e.EntityID),
		"userName":    e.UserName,
		"email":       e.Email,
		"role":        e.Role,
		"givenName":   e.GivenName,
		"familyName":  e.FamilyName,
		"phoneNumber": e.PhoneNumber,
		"timestamp":   e.Timestamp.Time,
	}
}

// EntityID identifies the business entity of a unit event. On the wire it may be
// a JSON integer or a JSON string.
type EntityID string

func (id *EntityID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = EntityID(strings.TrimSpace(s))
		return nil
	}

	if _, err := strconv.ParseInt(string(trimmed), 10, 64); err != nil {
		return fmt.Errorf("entity id must be a string or an integer, got %s", trimmed)
	}
	*id = EntityID(trimmed)
	return nil
}

func (id EntityID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id EntityID) String() string {
	return string(id)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Timestamp is a time.Time that also accepts zone-less ISO 8601 values,
// which are read as UTC.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	var raw string
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
