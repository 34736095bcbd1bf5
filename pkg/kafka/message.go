package kafka

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

const (
	HeaderEventType     = "event_type"
	HeaderEntityType    = "entity_type"
	HeaderSchemaVersion = "schema_version"
	HeaderTraceParent   = "traceparent"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string

	Event *Event
}

// ParseEvent decodes the message value as an identity event.
func (m *IncomingMessage) ParseEvent() error {
	var event Event
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return errors.Wrap(err, "decode event")
	}
	if event.EventType == "" {
		event.EventType = m.Headers[HeaderEventType]
	}
	if event.EventType == "" {
		return errors.New("message carries no event type")
	}
	m.Event = &event
	return nil
}

// EventType returns the event type from the parsed event, else the header.
func (m *IncomingMessage) EventType() string {
	if m.Event != nil {
		return m.Event.EventType
	}
	return m.Headers[HeaderEventType]
}
