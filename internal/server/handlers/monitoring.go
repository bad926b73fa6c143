package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/eventstore"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/server/responses"
	"git.home.luguber.info/inful/contentsync/internal/version"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// HealthSource supplies runtime details for the health endpoint.
type HealthSource interface {
	StartTime() time.Time
	CommitStrategy() string
	Relation(ctx context.Context) string
	ServiceStates() map[string]string
}

// MonitoringHandlers serves health and audit endpoints.
type MonitoringHandlers struct {
	health       HealthSource
	events       eventstore.Store
	activity     *eventstore.ActivityProjection
	errorAdapter *errors.HTTPErrorAdapter
}

// NewMonitoringHandlers creates monitoring handlers. events may be nil.
func NewMonitoringHandlers(health HealthSource, events eventstore.Store) *MonitoringHandlers {
	h := &MonitoringHandlers{health: health, events: events, errorAdapter: errors.NewHTTPErrorAdapter(slog.Default())}
	if events != nil {
		h.activity = eventstore.NewActivityProjection(events)
	}
	return h
}

// HandleHealthCheck serves GET /health.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &responses.HealthResponse{
		Status:         "healthy",
		Timestamp:      time.Now().UTC(),
		Version:        version.Version,
		CommitStrategy: h.health.CommitStrategy(),
		Uptime:         time.Since(h.health.StartTime()).Seconds(),
		Relation:       h.health.Relation(r.Context()),
		Services:       h.health.ServiceStates(),
	}
	if err := writeJSON(w, http.StatusOK, health); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write health response").Build())
	}
}

// HandleEvents serves GET /events?page=&limit=&activity=1. With page set it
// returns that page's full history; otherwise the most recent events.
func (h *MonitoringHandlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.NotFoundError("event log is disabled").Build())
		return
	}
	q := r.URL.Query()
	limit := defaultEventLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("limit must be a positive integer").Build())
			return
		}
		limit = min(n, maxEventLimit)
	}

	var (
		events []eventstore.Event
		err    error
	)
	if page := q.Get("page"); page != "" {
		events, err = h.events.GetByStream(r.Context(), page)
	} else {
		events, err = h.events.Recent(r.Context(), limit)
	}
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	resp := responses.EventsResponse{Events: make([]responses.EventView, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, responses.NewEventView(e))
	}
	if q.Get("activity") == "1" || q.Get("activity") == "true" {
		if err := h.activity.Rebuild(r.Context()); err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, err)
			return
		}
		resp.Activity = h.activity.All()
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write events").Build())
	}
}
