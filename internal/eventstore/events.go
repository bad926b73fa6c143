package eventstore

import (
	"context"
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
)

// RepositoryStream is the stream id for events that concern the whole working copy.
const RepositoryStream = "repository"

// Event type names.
const (
	TypeContentSaved    = "ContentSaved"
	TypeContentRejected = "ContentRejected"
	TypeCommitCreated   = "CommitCreated"
	TypeCommitSkipped   = "CommitSkipped"
	TypeSyncCompleted   = "SyncCompleted"
	TypeSyncFailed      = "SyncFailed"
)

// ContentSaved is recorded after a batch of edit operations was persisted.
type ContentSaved struct {
	Page       string `json:"page"`
	Author     string `json:"author,omitempty"`
	Operations int    `json:"operations"`
	Version    int64  `json:"version"`
}

// ContentRejected is recorded when a batch could not be applied.
type ContentRejected struct {
	Page   string `json:"page"`
	Author string `json:"author,omitempty"`
	Reason string `json:"reason"`
}

// CommitCreated is recorded after a local or remote commit.
type CommitCreated struct {
	Page     string `json:"page,omitempty"`
	Strategy string `json:"strategy"`
	CommitID string `json:"commit_id"`
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
}

// CommitSkipped is recorded when a commit produced nothing to record.
type CommitSkipped struct {
	Page     string `json:"page,omitempty"`
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// SyncCompleted is recorded after a successful pull from the remote branch.
type SyncCompleted struct {
	FromRef string `json:"from_ref"`
	ToRef   string `json:"to_ref"`
	Pulled  int    `json:"pulled"`
}

// SyncFailed is recorded when a pull fails.
type SyncFailed struct {
	Reason string `json:"reason"`
}

// Journal writes typed events to a Store. A nil Journal records nothing.
type Journal struct {
	store Store
}

// NewJournal wraps store.
func NewJournal(store Store) *Journal {
	return &Journal{store: store}
}

// Record marshals payload and appends it under streamID.
func (j *Journal) Record(ctx context.Context, streamID, eventType string, payload any) (string, error) {
	if j == nil || j.store == nil {
		return "", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.EventStoreError("failed to marshal event payload").
			WithCause(err).
			WithContext("event_type", eventType).
			Build()
	}
	return j.store.Append(ctx, streamID, eventType, data, map[string]string{
		"recorded_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// Decode unmarshals an event payload into v.
func Decode(e Event, v any) error {
	if err := json.Unmarshal(e.Payload(), v); err != nil {
		return errors.EventStoreError("failed to unmarshal event payload").
			WithCause(err).
			WithContext("event_type", e.Type()).
			Build()
	}
	return nil
}
