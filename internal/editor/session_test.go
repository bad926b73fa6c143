package editor

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentsync/internal/content"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/history"
)

var home = content.PageKey{ContentType: "landing", Slug: "home", Locale: "en"}

// fakeServer applies edits like the content store does.
type fakeServer struct {
	mu       sync.Mutex
	pages    map[content.PageKey]*content.Page
	requests []content.EditRequest
	gets     int
	failSave error
	reject   string
	entered  chan struct{} // when set, signalled as SaveEdits starts
	block    chan struct{} // when set, SaveEdits waits on it
}

func newFakeServer(sections ...content.Section) *fakeServer {
	return &fakeServer{pages: map[content.PageKey]*content.Page{
		home: {ContentType: home.ContentType, Slug: home.Slug, Locale: home.Locale, Version: 1, Sections: sections},
	}}
}

func (f *fakeServer) GetPage(_ context.Context, key content.PageKey, _ string) (*content.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	p, ok := f.pages[key]
	if !ok {
		return nil, errors.NotFoundError("page not found").Build()
	}
	return p.Clone(), nil
}

func (f *fakeServer) SaveEdits(_ context.Context, req content.EditRequest) (content.EditResult, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.failSave != nil {
		return content.EditResult{}, f.failSave
	}
	if f.reject != "" {
		return content.EditResult{Success: false, Error: f.reject}, nil
	}
	p := f.pages[req.Key()]
	next, err := content.Apply(p.Sections, req.Operations...)
	if err != nil {
		return content.EditResult{}, err
	}
	p.Sections = next
	p.Version++
	return content.EditResult{Success: true, Version: p.Version}, nil
}

func (f *fakeServer) saved() []content.EditRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]content.EditRequest(nil), f.requests...)
}

type gate bool

func (g gate) EditingDisabled() bool { return bool(g) }

func hero(title string) content.Section { return content.Section{"type": "hero", "title": title} }

func openSession(t *testing.T, srv *fakeServer, g Gate) *Session {
	t.Helper()
	s := NewSession(Options{Client: srv, History: history.NewManager(30), Gate: g, Author: "Ada <ada@example.com>"})
	require.NoError(t, s.Open(context.Background(), home))
	s.SetEditMode(true)
	return s
}

func TestSaveChanges_EmptyLogMakesNoRequest(t *testing.T) {
	srv := newFakeServer(hero("A"))
	s := openSession(t, srv, nil)

	ok, err := s.SaveChanges(context.Background(), home)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, srv.saved())

	ok, err = s.SaveChanges(context.Background(), content.PageKey{ContentType: "x", Slug: "y", Locale: "en"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSaveChanges_FlushesAllOperationsOnce(t *testing.T) {
	srv := newFakeServer(hero("A"))
	s := openSession(t, srv, nil)

	require.NoError(t, s.Apply(home, content.SetField(0, "title", "B"), ""))
	require.NoError(t, s.Apply(home, content.AddSection(hero("C")), "add hero"))
	assert.True(t, s.HasPendingChanges())
	assert.Equal(t, 2, s.PendingCount(home))

	ok, err := s.SaveChanges(context.Background(), home)
	require.NoError(t, err)
	require.True(t, ok)

	reqs := srv.saved()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Operations, 2)
	assert.Equal(t, "Ada <ada@example.com>", reqs[0].Author)
	require.NotNil(t, reqs[0].Version)
	assert.Equal(t, int64(1), *reqs[0].Version)

	assert.False(t, s.HasPendingChanges())
	assert.Equal(t, int64(2), s.Version(home))
}

func TestSaveChanges_FailureKeepsLog(t *testing.T) {
	srv := newFakeServer(hero("A"))
	s := openSession(t, srv, nil)
	require.NoError(t, s.Apply(home, content.SetField(0, "title", "B"), ""))

	srv.failSave = errors.NetworkError("connection refused").Build()
	ok, err := s.SaveChanges(context.Background(), home)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, s.PendingCount(home))

	srv.failSave = nil
	srv.reject = "validation failed"
	ok, err = s.SaveChanges(context.Background(), home)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, s.PendingCount(home))

	srv.reject = ""
	ok, err = s.SaveChanges(context.Background(), home)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, s.PendingCount(home))
	assert.Len(t, srv.saved(), 3, "every attempt carries the full log")
	for _, r := range srv.saved() {
		assert.Len(t, r.Operations, 1)
	}
}

func TestSaveChanges_BlockedByGate(t *testing.T) {
	srv := newFakeServer(hero("A"))
	s := openSession(t, srv, gate(true))
	require.NoError(t, s.Apply(home, content.SetField(0, "title", "B"), ""))

	ok, err := s.SaveChanges(context.Background(), home)
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrEditingBlocked)
	assert.True(t, errors.HasCategory(err, errors.CategorySync))
	assert.Empty(t, srv.saved())
	assert.Equal(t, 1, s.PendingCount(home))
}

type overriddenGate struct{}

func (overriddenGate) EditingDisabled() bool     { return false }
func (overriddenGate) ForceOverrideActive() bool { return true }

func TestSaveChanges_ForwardsOverride(t *testing.T) {
	srv := newFakeServer(hero("A"))
	s := openSession(t, srv, overriddenGate{})
	require.NoError(t, s.Apply(home, content.SetField(0, "title", "B"), ""))

	_, err := s.SaveChanges(context.Background(), home)
	require.NoError(t, err)
	require.Len(t, srv.saved(), 1)
	assert.True(t, srv.saved()[0].ForceOverride)

	plain := openSession(t, newFakeServer(hero("A")), gate(false))
	require.NoError(t, plain.Apply(home, content.SetField(0, "title", "B"), ""))
	_, err = plain.SaveChanges(context.Background(), home)
	require.NoError(t, err)
}

func TestSaveChanges_KeepsOperationsAddedInFlight(t *testing.T) {
	srv := newFakeServer(hero("A"))
	srv.entered = make(chan struct{}, 1)
	srv.block = make(chan struct{})
	s := openSession(t, srv, nil)
	require.NoError(t, s.Apply(home, content.SetField(0, "title", "B"), ""))

	done := make(chan error, 1)
	go func() {
		_, err := s.SaveChanges(context.Background(), home)
		done <- err
	}()
	<-srv.entered
	s.AddPendingChange(home, content.AddSection(hero("late")))
	close(srv.block)
	require.NoError(t, <-done)

	ops := s.PendingChanges(home)
	require.Len(t, ops, 1)
	assert.Equal(t, content.OpAddSection, ops[0].Type)
	require.Len(t, srv.saved(), 1)
	assert.Len(t, srv.saved()[0].Operations, 1)
}

func TestApply_RequiresEditModeAndOpenPage(t *testing.T) {
	srv := newFakeServer(hero("A"))
	s := openSession(t, srv, nil)

	s.SetEditMode(false)
	assert.ErrorIs(t, s.Apply(home, content.SetField(0, "title", "B"), ""), ErrNotEditing)
	assert.True(t, s.History().Registered(home), "edit mode toggles keep history")

	s.SetEditMode(true)
	other := content.PageKey{ContentType: "landing", Slug: "about", Locale: "en"}
	assert.ErrorIs(t, s.Apply(other, content.SetField(0, "title", "B"), ""), ErrPageNotOpen)

	err := s.Apply(home, content.RemoveSection(5), "")
	require.Error(t, err)
	assert.Equal(t, 0, s.PendingCount(home), "invalid operations are not buffered")
}

func TestApply_CoalescesTypingIntoOneSnapshot(t *testing.T) {
	srv := newFakeServer(hero("A"))
	s := openSession(t, srv, nil)

	require.NoError(t, s.Apply(home, content.SetField(0, "title", "A1"), ""))
	require.NoError(t, s.Apply(home, content.SetField(0, "title", "A12"), ""))
	require.NoError(t, s.Apply(home, content.SetField(0, "subtitle", "x"), ""))
	require.NoError(t, s.Apply(home, content.RemoveSection(0), ""))

	assert.Equal(t, 3, s.History().UndoCount(home))
	assert.Equal(t, 4, s.PendingCount(home))
}

// Edit, save, undo and redo with persistence, checking stacks and server state.
func TestUndoRedoPersistsReplaceAll(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(hero("S1"))
	s := openSession(t, srv, nil)
	h := s.History()

	require.NoError(t, s.Apply(home, content.SetField(0, "title", "S2"), "retitle"))
	_, err := s.SaveChanges(ctx, home)
	require.NoError(t, err)

	done, err := h.RequestUndo(ctx, home)
	require.NoError(t, err)
	require.True(t, done)

	live, err := s.Sections(home)
	require.NoError(t, err)
	assert.Equal(t, []content.Section{hero("S1")}, live)
	assert.Equal(t, 0, h.UndoCount(home))
	assert.Equal(t, 1, h.RedoCount(home))

	reqs := srv.saved()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Operations, 1)
	assert.Equal(t, content.OpReplaceAllSections, reqs[1].Operations[0].Type)
	assert.Equal(t, []content.Section{hero("S1")}, srv.pages[home].Sections)

	done, err = h.RequestRedo(ctx, home)
	require.NoError(t, err)
	require.True(t, done)
	live, _ = s.Sections(home)
	assert.Equal(t, []content.Section{hero("S2")}, live)
	assert.Equal(t, 1, h.UndoCount(home))
	assert.Equal(t, 0, h.RedoCount(home))

	done, err = h.RequestRedo(ctx, home)
	require.NoError(t, err)
	assert.False(t, done, "empty redo is a no-op")
}

func TestRestoreFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(hero("S1"))
	s := openSession(t, srv, nil)
	h := s.History()
	require.NoError(t, s.Apply(home, content.SetField(0, "title", "S2"), ""))

	srv.failSave = stderrors.New("disk full")
	done, err := h.RequestUndo(ctx, home)
	require.Error(t, err)
	assert.False(t, done)

	assert.Equal(t, 1, h.UndoCount(home))
	assert.Equal(t, 0, h.RedoCount(home))
	live, _ := s.Sections(home)
	assert.Equal(t, []content.Section{hero("S2")}, live)
	assert.Equal(t, 1, s.PendingCount(home), "pending log survives a failed restore")
}

func TestRestoreBlockedByGate(t *testing.T) {
	srv := newFakeServer(hero("S1"))
	s := openSession(t, srv, gate(true))
	require.NoError(t, s.Apply(home, content.SetField(0, "title", "S2"), ""))

	_, err := s.History().RequestUndo(context.Background(), home)
	require.ErrorIs(t, err, ErrEditingBlocked)
	assert.Equal(t, 1, s.History().UndoCount(home))
	assert.Empty(t, srv.saved())
}

func TestDiscardAndReload(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(hero("A"))
	s := openSession(t, srv, nil)

	var events []ChangeEvent
	s.OnChange(func(ev ChangeEvent) { events = append(events, ev) })

	require.NoError(t, s.Apply(home, content.SetField(0, "title", "B"), ""))
	s.Discard(home)
	live, _ := s.Sections(home)
	assert.Equal(t, []content.Section{hero("A")}, live)
	assert.False(t, s.HasPendingChanges())

	require.NoError(t, s.Apply(home, content.SetField(0, "title", "C"), ""))
	srv.pages[home].Sections = []content.Section{hero("remote")}
	srv.pages[home].Version = 9
	require.NoError(t, s.Reload(ctx))

	live, _ = s.Sections(home)
	assert.Equal(t, []content.Section{hero("remote")}, live)
	assert.Equal(t, int64(9), s.Version(home))
	assert.False(t, s.HasPendingChanges())
	assert.True(t, s.History().Registered(home))

	require.Len(t, events, 4)
	assert.Equal(t, ChangeEdit, events[0].Reason)
	assert.Equal(t, ChangeDiscard, events[1].Reason)
	assert.Equal(t, ChangeReload, events[3].Reason)
}

func TestCloseUnregisters(t *testing.T) {
	srv := newFakeServer(hero("A"))
	s := openSession(t, srv, nil)
	require.NoError(t, s.Apply(home, content.SetField(0, "title", "B"), ""))

	s.Close(home)
	assert.False(t, s.History().Registered(home))
	assert.False(t, s.HasPendingChanges())
	assert.Empty(t, s.Pages())
}
