package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/syncstatus"
)

// SyncService reports remote relation and pulls.
type SyncService interface {
	Status(ctx context.Context) syncstatus.Status
	ConflictInfo(ctx context.Context) (syncstatus.ConflictInfo, error)
	Sync(ctx context.Context) (syncstatus.SyncResult, error)
}

// SyncHandlers serves the sync endpoints.
type SyncHandlers struct {
	svc          SyncService
	errorAdapter *errors.HTTPErrorAdapter
}

// NewSyncHandlers creates sync handlers.
func NewSyncHandlers(svc SyncService) *SyncHandlers {
	return &SyncHandlers{svc: svc, errorAdapter: errors.NewHTTPErrorAdapter(slog.Default())}
}

// HandleStatus serves GET /sync-status. Problems reaching the remote are
// reported in the body's relation, never as an HTTP error.
func (h *SyncHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if err := writeJSON(w, http.StatusOK, h.svc.Status(r.Context())); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write status").Build())
	}
}

// HandleConflictInfo serves GET /conflict-info.
func (h *SyncHandlers) HandleConflictInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.ConflictInfo(r.Context())
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, info); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write conflict info").Build())
	}
}

// HandleSync serves POST /sync.
func (h *SyncHandlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Sync(r.Context())
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, res); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write sync result").Build())
	}
}
