package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite-based event store.
// Use ":memory:" for in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ErrDatabaseOpenFailed.WithCause(err).WithContext("path", dbPath)
	}
	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, ErrInitializeSchemaFailed.WithCause(err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		stream_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_stream_id ON events(stream_id);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_event_type ON events(event_type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds a new event to the store.
func (s *SQLiteStore) Append(ctx context.Context, streamID, eventType string, payload []byte, metadata map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON []byte
	if len(metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return "", ErrEventAppendFailed.WithCause(err)
		}
	}
	if payload == nil {
		payload = []byte("{}")
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (uuid, stream_id, event_type, timestamp, payload, metadata) VALUES (?, ?, ?, ?, ?, ?)",
		id, streamID, eventType, s.now().UnixMilli(), payload, metadataJSON,
	)
	if err != nil {
		return "", ErrEventAppendFailed.WithCause(err).WithContext("stream_id", streamID).WithContext("event_type", eventType)
	}
	return id, nil
}

const selectColumns = "SELECT id, uuid, stream_id, event_type, timestamp, payload, metadata FROM events"

// GetByStream retrieves all events for a stream.
func (s *SQLiteStore) GetByStream(ctx context.Context, streamID string) ([]Event, error) {
	return s.query(ctx, selectColumns+" WHERE stream_id = ? ORDER BY id", streamID)
}

// GetRange retrieves events within a time range.
func (s *SQLiteStore) GetRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	return s.query(ctx, selectColumns+" WHERE timestamp >= ? AND timestamp <= ? ORDER BY id", start.UnixMilli(), end.UnixMilli())
}

// Recent returns up to limit events, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx, selectColumns+" ORDER BY id DESC LIMIT ?", limit)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, ErrEventQueryFailed.WithCause(err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e BaseEvent
		var ts int64
		var metadataJSON []byte

		if err := rows.Scan(&e.EventID, &e.EventUUID, &e.EventStreamID, &e.EventType, &ts, &e.EventPayload, &metadataJSON); err != nil {
			return nil, ErrEventQueryFailed.WithCause(err)
		}
		e.EventTimestamp = time.UnixMilli(ts)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.EventMetadata); err != nil {
				return nil, ErrEventQueryFailed.WithCause(err)
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, ErrEventQueryFailed.WithCause(err)
	}
	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
