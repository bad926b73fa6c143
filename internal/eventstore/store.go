package eventstore

import (
	"context"
	"time"
)

// Store persists and retrieves audit events.
type Store interface {
	// Append records an event and returns its generated UUID.
	Append(ctx context.Context, streamID, eventType string, payload []byte, metadata map[string]string) (string, error)

	// GetByStream retrieves all events for a stream (a page key or the repository stream) in order.
	GetByStream(ctx context.Context, streamID string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}
