package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentsync/internal/config"
	"git.home.luguber.info/inful/contentsync/internal/content"
	"git.home.luguber.info/inful/contentsync/internal/eventstore"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/metrics"
	"git.home.luguber.info/inful/contentsync/internal/server/responses"
	"git.home.luguber.info/inful/contentsync/internal/syncstatus"
)

type fakeContent struct {
	saveErr error
	saved   []content.EditRequest
	page    *content.Page
	pageErr error
	gotKey  content.PageKey
	gotVar  string
}

func (f *fakeContent) Save(_ context.Context, req content.EditRequest) (content.EditResult, error) {
	f.saved = append(f.saved, req)
	if f.saveErr != nil {
		return content.EditResult{}, f.saveErr
	}
	return content.EditResult{Success: true, Version: 2, CommitID: "abc123"}, nil
}

func (f *fakeContent) Page(_ context.Context, key content.PageKey, variant string) (*content.Page, error) {
	f.gotKey, f.gotVar = key, variant
	return f.page, f.pageErr
}

type fakeSync struct {
	status  syncstatus.Status
	info    syncstatus.ConflictInfo
	syncErr error
	synced  int
}

func (f *fakeSync) Status(context.Context) syncstatus.Status { return f.status }

func (f *fakeSync) ConflictInfo(context.Context) (syncstatus.ConflictInfo, error) {
	return f.info, nil
}

func (f *fakeSync) Sync(context.Context) (syncstatus.SyncResult, error) {
	f.synced++
	if f.syncErr != nil {
		return syncstatus.SyncResult{}, f.syncErr
	}
	return syncstatus.SyncResult{Success: true, FromRef: "aaa", ToRef: "bbb", Pulled: 2}, nil
}

type fakeHealth struct{}

func (fakeHealth) StartTime() time.Time             { return time.Now().Add(-time.Minute) }
func (fakeHealth) CommitStrategy() string           { return "local" }
func (fakeHealth) Relation(context.Context) string  { return string(syncstatus.RelationInSync) }
func (fakeHealth) ServiceStates() map[string]string { return map[string]string{"http": "running"} }

type fixture struct {
	content *fakeContent
	sync    *fakeSync
	events  *eventstore.SQLiteStore
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		content: &fakeContent{},
		sync:    &fakeSync{status: syncstatus.Status{Configured: true, SyncEnabled: true, Relation: syncstatus.RelationInSync}},
		events:  store,
	}
	srv := New(config.ServerConfig{Addr: "127.0.0.1:0"}, Options{
		Content:  f.content,
		Sync:     f.sync,
		Health:   fakeHealth{},
		Events:   store,
		Registry: metrics.NewRegistry(),
	})
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func editBody() content.EditRequest {
	return content.EditRequest{
		ContentType: "pages",
		Slug:        "home",
		Locale:      "en",
		Operations:  []content.Operation{content.SetField(0, "title", "Hello")},
		Author:      "Ada <ada@example.com>",
	}
}

func TestEdit_Success(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/content/edit", editBody())
	require.Equal(t, http.StatusOK, rec.Code)

	var res content.EditResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "abc123", res.CommitID)
	require.Len(t, f.content.saved, 1)
	assert.Equal(t, "Ada <ada@example.com>", f.content.saved[0].Author)
	assert.Equal(t, content.OpSetField, f.content.saved[0].Operations[0].Type)
}

func TestEdit_ErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"stale version", errors.ConflictError("page version is stale").Build(), http.StatusConflict, "conflict"},
		{"gate", errors.SyncError("editing is blocked until the working copy is synced").Build(), http.StatusLocked, "sync"},
		{"bad operation", errors.ValidationError("section index out of range").Build(), http.StatusBadRequest, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.content.saveErr = tt.err
			rec := f.do(t, http.MethodPost, "/content/edit", editBody())
			assert.Equal(t, tt.status, rec.Code)

			var body errors.HTTPErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestEdit_MalformedBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/content/edit", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.content.saved)
}

func TestGetPage(t *testing.T) {
	f := newFixture(t)
	f.content.page = &content.Page{
		ContentType: "pages", Slug: "home", Locale: "en", Version: 4,
		Sections: []content.Section{{"type": "hero", "title": "Hi"}},
	}

	rec := f.do(t, http.MethodGet, "/content/pages/home?locale=en&variant=mobile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, content.PageKey{ContentType: "pages", Slug: "home", Locale: "en"}, f.content.gotKey)
	assert.Equal(t, "mobile", f.content.gotVar)

	var page content.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, int64(4), page.Version)
	assert.Equal(t, "Hi", page.Sections[0]["title"])
}

func TestGetPage_RequiresLocale(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/content/pages/home", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPage_NotFound(t *testing.T) {
	f := newFixture(t)
	f.content.pageErr = errors.NotFoundError("page not found").Build()
	rec := f.do(t, http.MethodGet, "/content/pages/missing?locale=en", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncEndpoints(t *testing.T) {
	f := newFixture(t)
	f.sync.status.Relation = syncstatus.RelationBehind
	f.sync.status.BehindBy = 3
	f.sync.info = syncstatus.ConflictInfo{
		HasConflict: true,
		BehindBy:    3,
		Commits: []syncstatus.CommitSummary{
			{ID: "c3", Message: "third", Author: "Grace", ChangedFiles: []string{"content/pages/home.en.yaml"}},
		},
	}

	rec := f.do(t, http.MethodGet, "/sync-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st syncstatus.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, syncstatus.RelationBehind, st.Relation)
	assert.Equal(t, 3, st.BehindBy)
	assert.True(t, st.IsBehind())

	rec = f.do(t, http.MethodGet, "/conflict-info", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var info syncstatus.ConflictInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.True(t, info.HasConflict)
	require.Len(t, info.Commits, 1)
	assert.Equal(t, "c3", info.Commits[0].ID)

	rec = f.do(t, http.MethodPost, "/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.sync.synced)
}

func TestSync_Failure(t *testing.T) {
	f := newFixture(t)
	f.sync.syncErr = errors.GitError("local branch has diverged from remote").Build()
	rec := f.do(t, http.MethodPost, "/sync", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health responses.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "local", health.CommitStrategy)
	assert.Equal(t, "running", health.Services["http"])
	assert.Greater(t, health.Uptime, 0.0)

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	journal := eventstore.NewJournal(f.events)
	ctx := context.Background()
	_, err := journal.Record(ctx, "pages/home/en", eventstore.TypeContentSaved,
		eventstore.ContentSaved{Page: "pages/home/en", Operations: 1, Version: 2})
	require.NoError(t, err)
	_, err = journal.Record(ctx, eventstore.RepositoryStream, eventstore.TypeSyncCompleted,
		eventstore.SyncCompleted{FromRef: "a", ToRef: "b", Pulled: 1})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all responses.EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all.Events, 2)

	rec = f.do(t, http.MethodGet, "/events?page=pages/home/en", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page responses.EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Events, 1)
	assert.Equal(t, eventstore.TypeContentSaved, page.Events[0].Type)

	rec = f.do(t, http.MethodGet, "/events?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/nope", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/content/edit", nil).Code)
}

func TestStartStop(t *testing.T) {
	srv := New(config.ServerConfig{Addr: "127.0.0.1:0"}, Options{
		Content: &fakeContent{},
		Sync:    &fakeSync{},
		Health:  fakeHealth{},
	})
	assert.Equal(t, "unhealthy", srv.Health().Status)

	require.NoError(t, srv.Start(context.Background()))
	assert.Equal(t, "healthy", srv.Health().Status)

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}
