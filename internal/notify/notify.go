// Package notify publishes content and sync events to NATS JetStream so other
// services (site builders, chat bots) can react to edits and pulls.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
)

// Event kinds.
const (
	KindContentSaved  = "content.saved"
	KindCommitCreated = "commit.created"
	KindSyncCompleted = "sync.completed"
	KindSyncFailed    = "sync.failed"
	KindStatusChanged = "status.changed"
)

// Event is the message body published for every notification.
type Event struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Page      string            `json:"page,omitempty"`
	Commit    string            `json:"commit,omitempty"`
	Relation  string            `json:"relation,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                          { return nil }

// Options configure a NATS publisher.
type Options struct {
	URL     string
	Subject string // subject prefix, e.g. "contentsync.events"
	Stream  string // JetStream stream name; empty publishes without a stream
}

// NATSPublisher publishes events to JetStream under <subject>.<kind>.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// New returns a NATS publisher, or Noop when no URL is configured.
func New(ctx context.Context, opts Options) (Publisher, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return Noop{}, nil
	}
	return NewNATSPublisher(ctx, opts)
}

// NewNATSPublisher connects to NATS and ensures the stream exists.
func NewNATSPublisher(ctx context.Context, opts Options) (*NATSPublisher, error) {
	if opts.Subject == "" {
		opts.Subject = "contentsync.events"
	}
	conn, err := nats.Connect(opts.URL,
		nats.Name("contentsync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, errors.NetworkError("failed to connect to NATS").
			WithCause(err).WithContext("url", opts.URL).Build()
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.NetworkError("failed to create JetStream context").WithCause(err).Build()
	}
	if opts.Stream != "" {
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_, err := js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
			Name:        opts.Stream,
			Description: "contentsync content and sync events",
			Subjects:    []string{opts.Subject + ".>"},
			MaxAge:      7 * 24 * time.Hour,
		})
		if err != nil {
			conn.Close()
			return nil, errors.NetworkError("failed to ensure JetStream stream").
				WithCause(err).WithContext("stream", opts.Stream).Build()
		}
	}
	slog.Info("NATS publisher initialized",
		logfields.URL(opts.URL),
		slog.String("subject", opts.Subject),
		slog.String("stream", opts.Stream))
	return &NATSPublisher{conn: conn, js: js, subject: opts.Subject}, nil
}

// Publish sends ev. Missing ID and timestamp are filled in.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	ev = stamp(ev)
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.InternalError("failed to marshal event").WithCause(err).Build()
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := p.js.Publish(pctx, SubjectFor(p.subject, ev.Kind), data, jetstream.WithMsgID(ev.ID)); err != nil {
		return errors.NetworkError("failed to publish event").
			WithCause(err).WithContext("kind", ev.Kind).Build()
	}
	slog.Debug("Published event", logfields.EventType(ev.Kind), logfields.Page(ev.Page))
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

// SubjectFor builds the subject for kind under prefix.
func SubjectFor(prefix, kind string) string {
	return strings.TrimSuffix(prefix, ".") + "." + kind
}

func stamp(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

// Safe publishes ev and logs failures instead of returning them. Notifications
// never fail the operation that triggered them.
func Safe(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		slog.Warn("Failed to publish notification", logfields.EventType(ev.Kind), logfields.Error(err))
	}
}
