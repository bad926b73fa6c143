// Package responses defines API response types used by the HTTP handlers.
package responses

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/eventstore"
)

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status         string            `json:"status"`
	Timestamp      time.Time         `json:"timestamp"`
	Version        string            `json:"version"`
	Uptime         float64           `json:"uptime"`
	CommitStrategy string            `json:"commit_strategy"`
	Relation       string            `json:"relation,omitempty"`
	Services       map[string]string `json:"services,omitempty"`
}

// EventView is one audit log entry as served by GET /events.
type EventView struct {
	ID        string            `json:"id"`
	Stream    string            `json:"stream"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// EventsResponse is the body of GET /events.
type EventsResponse struct {
	Events   []EventView               `json:"events"`
	Activity []eventstore.PageActivity `json:"activity,omitempty"`
}

// NewEventView converts a stored event.
func NewEventView(e eventstore.Event) EventView {
	payload := json.RawMessage(e.Payload())
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	return EventView{
		ID:        e.UUID(),
		Stream:    e.StreamID(),
		Type:      e.Type(),
		Timestamp: e.Timestamp(),
		Payload:   payload,
		Metadata:  e.Metadata(),
	}
}
