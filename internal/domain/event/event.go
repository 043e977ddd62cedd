package event

import (
	"time"

	"github.com/google/uuid"
)

// SystemActor is recorded when no user triggered the event
const SystemActor = "system"

// Event is a structured audit event emitted by the pipeline
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	Entity        string                 `json:"entity"`
	Period        string                 `json:"period"`
	GLCode        string                 `json:"gl_code,omitempty"`
	Actor         string                 `json:"actor"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates an event for an (entity, period) unit with a fresh correlation chain
func NewEvent(eventType Type, entity, period string, payload map[string]interface{}) *Event {
	id := uuid.NewString()
	return NewEventWithCorrelation(eventType, entity, period, payload, id)
}

// NewEventWithCorrelation creates an event linked to an existing correlation chain,
// typically the job id or validation run id
func NewEventWithCorrelation(eventType Type, entity, period string, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Entity:        entity,
		Period:        period,
		Actor:         SystemActor,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// WithGLCode returns a copy of the event scoped to one account
func (e *Event) WithGLCode(glCode string) *Event {
	c := e.clone()
	c.GLCode = glCode
	return c
}

// WithActor returns a copy of the event attributed to actor
func (e *Event) WithActor(actor string) *Event {
	c := e.clone()
	c.Actor = actor
	return c
}

// WithPayload returns a copy of the event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	c := e.clone()
	c.Payload[key] = value
	return c
}

func (e *Event) clone() *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	c := *e
	c.Payload = payload
	return &c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an integer value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// IsDryRun reports whether the event was emitted by a dry run
func (e *Event) IsDryRun() bool {
	return e.GetPayloadBool("dry_run")
}
