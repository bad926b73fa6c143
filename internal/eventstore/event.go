package eventstore

import "time"

// Event is one recorded audit entry.
type Event interface {
	ID() int64
	UUID() string
	StreamID() string
	Type() string
	Timestamp() time.Time
	Payload() []byte
	Metadata() map[string]string
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID        int64             `json:"id"`
	EventUUID      string            `json:"uuid"`
	EventStreamID  string            `json:"stream_id"`
	EventType      string            `json:"type"`
	EventTimestamp time.Time         `json:"timestamp"`
	EventPayload   []byte            `json:"payload"`
	EventMetadata  map[string]string `json:"metadata,omitempty"`
}

func (e *BaseEvent) ID() int64                   { return e.EventID }
func (e *BaseEvent) UUID() string                { return e.EventUUID }
func (e *BaseEvent) StreamID() string            { return e.EventStreamID }
func (e *BaseEvent) Type() string                { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time        { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte             { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }
