package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is an observable step of one pipeline run
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	RunID      string                 `json:"run_id"`
	DocumentID string                 `json:"document_id"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// NewEvent creates an event with a generated ID and the current time
func NewEvent(eventType Type, runID, documentID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		RunID:      runID,
		DocumentID: documentID,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}

// WithPayload returns a copy of the event with one more payload entry
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	cp := *e
	cp.Payload = payload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// GetPayloadInt retrieves an integer value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// GetPayloadFloat retrieves a float value from the payload
func (e *Event) GetPayloadFloat(key string) float64 {
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}
