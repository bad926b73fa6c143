package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"git.home.luguber.info/inful/contentsync/internal/content"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
)

// ContentService is the persistence contract behind the content endpoints.
type ContentService interface {
	Save(ctx context.Context, req content.EditRequest) (content.EditResult, error)
	Page(ctx context.Context, key content.PageKey, variant string) (*content.Page, error)
}

// ContentHandlers serves page reads and edit batches.
type ContentHandlers struct {
	svc          ContentService
	errorAdapter *errors.HTTPErrorAdapter
}

// NewContentHandlers creates content handlers.
func NewContentHandlers(svc ContentService) *ContentHandlers {
	return &ContentHandlers{svc: svc, errorAdapter: errors.NewHTTPErrorAdapter(slog.Default())}
}

// HandleEdit applies one batch of operations: POST /content/edit.
func (h *ContentHandlers) HandleEdit(w http.ResponseWriter, r *http.Request) {
	var req content.EditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("invalid edit request body").WithCause(err).Build())
		return
	}
	res, err := h.svc.Save(r.Context(), req)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, res); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write edit response").Build())
	}
}

// HandleGetPage returns a page: GET /content/{contentType}/{slug}?locale=&variant=.
func (h *ContentHandlers) HandleGetPage(w http.ResponseWriter, r *http.Request) {
	key := content.PageKey{
		ContentType: chi.URLParam(r, "contentType"),
		Slug:        chi.URLParam(r, "slug"),
		Locale:      r.URL.Query().Get("locale"),
	}
	if key.Locale == "" {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("locale query parameter is required").Build())
		return
	}
	page, err := h.svc.Page(r.Context(), key, r.URL.Query().Get("variant"))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, page); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryInternal, "failed to write page").Build())
	}
}
