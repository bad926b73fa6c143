package history

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentsync/internal/content"
)

var pageKey = content.PageKey{ContentType: "landing", Slug: "home", Locale: "en"}

func page(title string) []content.Section {
	return []content.Section{{"type": "hero", "title": title}}
}

func TestUndoIsLIFO(t *testing.T) {
	m := NewManager(10)
	m.PushSnapshot(pageKey, page("S1"), "")
	m.PushSnapshot(pageKey, page("S2"), "")

	got, ok := m.Undo(pageKey)
	require.True(t, ok)
	assert.Equal(t, page("S2"), got)
	got, ok = m.Undo(pageKey)
	require.True(t, ok)
	assert.Equal(t, page("S1"), got)

	_, ok = m.Undo(pageKey)
	assert.False(t, ok, "empty stack is a no-op")
	_, ok = m.Redo(content.PageKey{ContentType: "x", Slug: "y", Locale: "en"})
	assert.False(t, ok, "unknown page is a no-op")
}

func TestPushSnapshotClearsRedo(t *testing.T) {
	m := NewManager(10)
	m.PushToRedoStack(pageKey, page("R"), "")
	require.Equal(t, 1, m.RedoCount(pageKey))

	m.PushToUndoStackNoRedoClear(pageKey, page("U"), "")
	assert.Equal(t, 1, m.RedoCount(pageKey), "no-clear variant keeps redo")

	m.PushSnapshot(pageKey, page("S"), "")
	assert.Equal(t, 0, m.RedoCount(pageKey))
	assert.Equal(t, 2, m.UndoCount(pageKey))
}

func TestCapEvictsOldestFirst(t *testing.T) {
	m := NewManager(30)
	for i := 1; i <= 31; i++ {
		m.PushSnapshot(pageKey, page(fmt.Sprintf("S%d", i)), "")
	}
	require.Equal(t, 30, m.UndoCount(pageKey))

	var last []content.Section
	for m.CanUndo(pageKey) {
		last, _ = m.Undo(pageKey)
	}
	assert.Equal(t, page("S2"), last, "S1 was evicted")

	for i := 1; i <= 31; i++ {
		m.PushToRedoStack(pageKey, page(fmt.Sprintf("R%d", i)), "")
	}
	assert.Equal(t, 30, m.RedoCount(pageKey))
}

func TestSnapshotsAreDeepCopies(t *testing.T) {
	m := NewManager(5)
	live := []content.Section{{"type": "hero", "cta": map[string]any{"label": "Go"}}}
	m.PushSnapshot(pageKey, live, "")
	live[0]["cta"].(map[string]any)["label"] = "mutated after push"

	got, ok := m.Undo(pageKey)
	require.True(t, ok)
	assert.Equal(t, "Go", got[0]["cta"].(map[string]any)["label"])
}

func TestSnapshotsCopyTypedNesting(t *testing.T) {
	m := NewManager(5)
	items := []map[string]any{{"title": "one"}}
	tags := map[string]string{"k": "v"}
	live := []content.Section{{"type": "list", "items": items, "tags": tags}}
	m.PushSnapshot(pageKey, live, "")

	items[0]["title"] = "mutated"
	tags["k"] = "mutated"

	got, ok := m.Undo(pageKey)
	require.True(t, ok)
	assert.Equal(t, []map[string]any{{"title": "one"}}, got[0]["items"])
	assert.Equal(t, map[string]string{"k": "v"}, got[0]["tags"])
}

func TestRegisterUnregister(t *testing.T) {
	m := NewManager(5)
	assert.False(t, m.Registered(pageKey))
	m.Register(pageKey)
	assert.True(t, m.Registered(pageKey))
	m.PushSnapshot(pageKey, page("S"), "")
	m.Register(pageKey)
	assert.Equal(t, 1, m.UndoCount(pageKey), "re-registering keeps history")
	m.Unregister(pageKey)
	assert.False(t, m.Registered(pageKey))
	assert.Equal(t, 0, m.UndoCount(pageKey))
}

// liveDoc follows the restore protocol against an in-memory document.
type liveDoc struct {
	m        *Manager
	current  []content.Section
	persists int
	fail     error
}

func (d *liveDoc) RestoreSections(_ context.Context, key content.PageKey, sections []content.Section, dir Direction) error {
	if dir == DirectionUndo {
		d.m.PushToRedoStack(key, d.current, "before undo")
	} else {
		d.m.PushToUndoStackNoRedoClear(key, d.current, "before redo")
	}
	d.persists++
	if d.fail != nil {
		return d.fail
	}
	d.current = sections
	return nil
}

func (d *liveDoc) edit(title string) {
	d.m.PushSnapshot(pageKey, d.current, "edit")
	d.current = page(title)
}

func TestRequestUndoRedoRoundTrip(t *testing.T) {
	m := NewManager(30)
	doc := &liveDoc{m: m, current: page("S0")}
	m.SetRestorer(doc)
	m.Register(pageKey)
	ctx := t.Context()

	doc.edit("S1")
	doc.edit("S2")

	ok, err := m.RequestUndo(ctx, pageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, page("S1"), doc.current)

	ok, err = m.RequestRedo(ctx, pageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, page("S2"), doc.current)

	// Undo then redo returns to S2 with the undo stack intact.
	assert.Equal(t, 2, m.UndoCount(pageKey))
	assert.Equal(t, 0, m.RedoCount(pageKey))
	assert.Equal(t, 2, doc.persists)
}

func TestUndoThenNewEditDropsRedo(t *testing.T) {
	m := NewManager(30)
	doc := &liveDoc{m: m, current: page("S0")}
	m.SetRestorer(doc)
	m.Register(pageKey)
	ctx := t.Context()

	doc.edit("S1")
	_, err := m.RequestUndo(ctx, pageKey)
	require.NoError(t, err)
	require.Equal(t, 1, m.RedoCount(pageKey))

	doc.edit("S3")
	assert.Equal(t, 0, m.RedoCount(pageKey))
	ok, err := m.RequestRedo(ctx, pageKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequestRollsBackOnPersistFailure(t *testing.T) {
	m := NewManager(30)
	doc := &liveDoc{m: m, current: page("S0")}
	m.SetRestorer(doc)
	m.Register(pageKey)
	doc.edit("S1")
	doc.edit("S2")

	doc.fail = errors.New("persist failed")
	ok, err := m.RequestUndo(t.Context(), pageKey)
	require.Error(t, err)
	assert.False(t, ok)

	assert.Equal(t, page("S2"), doc.current, "live document untouched")
	assert.Equal(t, 2, m.UndoCount(pageKey), "popped snapshot restored")
	assert.Equal(t, 0, m.RedoCount(pageKey), "captured pre-undo state discarded")

	doc.fail = nil
	ok, err = m.RequestUndo(t.Context(), pageKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, page("S1"), doc.current)
}

// editDuringRestore records a user edit while the restore is in flight and then fails.
type editDuringRestore struct {
	m *Manager
}

func (r editDuringRestore) RestoreSections(_ context.Context, key content.PageKey, _ []content.Section, _ Direction) error {
	r.m.PushToRedoStack(key, page("live"), "before undo")
	r.m.PushSnapshot(key, page("typed meanwhile"), "edit")
	return errors.New("persist failed")
}

func TestRequestRollbackKeepsInterleavedEdits(t *testing.T) {
	m := NewManager(30)
	m.PushSnapshot(pageKey, page("S1"), "edit")
	m.PushSnapshot(pageKey, page("S2"), "edit")
	m.SetRestorer(editDuringRestore{m: m})

	ok, err := m.RequestUndo(t.Context(), pageKey)
	require.Error(t, err)
	assert.False(t, ok)

	assert.Equal(t, 3, m.UndoCount(pageKey))
	assert.Equal(t, 0, m.RedoCount(pageKey))
	got, ok := m.Undo(pageKey)
	require.True(t, ok)
	assert.Equal(t, page("typed meanwhile"), got)
	got, _ = m.Undo(pageKey)
	assert.Equal(t, page("S2"), got)
}

func TestRequestWithoutRestorerIsNoop(t *testing.T) {
	m := NewManager(5)
	m.PushSnapshot(pageKey, page("S"), "")
	ok, err := m.RequestUndo(t.Context(), pageKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, m.UndoCount(pageKey))
}

func TestEntriesNewestFirst(t *testing.T) {
	m := NewManager(5)
	m.PushSnapshot(pageKey, page("a"), "first")
	m.PushSnapshot(pageKey, page("b"), "second")
	undo, redo := m.Entries(pageKey)
	require.Len(t, undo, 2)
	assert.Equal(t, "second", undo[0].Description)
	assert.Nil(t, undo[0].Sections)
	assert.Empty(t, redo)
}
