package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/content"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
)

// DefaultMaxEntries bounds each stack when no limit is configured.
const DefaultMaxEntries = 30

// Direction names a history traversal.
type Direction string

const (
	DirectionUndo Direction = "undo"
	DirectionRedo Direction = "redo"
)

// Snapshot is an immutable copy of a page's sections.
type Snapshot struct {
	Sections    []content.Section
	Timestamp   time.Time
	Description string
}

// Restorer applies a popped snapshot to the live document and persists it.
// Before persisting it records the current live state on the opposite stack:
// PushToRedoStack when undoing, PushToUndoStackNoRedoClear when redoing.
type Restorer interface {
	RestoreSections(ctx context.Context, key content.PageKey, sections []content.Section, dir Direction) error
}

type stacks struct {
	undo      []Snapshot
	redo      []Snapshot
	restoring bool

	// edits pushed by PushSnapshot while a restore is in flight
	interleaved []Snapshot
}

// Manager holds history for every registered page.
type Manager struct {
	mu         sync.Mutex
	maxEntries int
	pages      map[content.PageKey]*stacks
	restorer   Restorer
	now        func() time.Time
}

// NewManager creates a manager whose stacks hold at most maxEntries snapshots each.
func NewManager(maxEntries int) *Manager {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Manager{
		maxEntries: maxEntries,
		pages:      make(map[content.PageKey]*stacks),
		now:        time.Now,
	}
}

// SetRestorer injects the component that applies restored snapshots.
func (m *Manager) SetRestorer(r Restorer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restorer = r
}

// Register creates empty stacks for key if it has none. Registration is
// independent of edit mode and survives toggling it.
func (m *Manager) Register(key content.PageKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageLocked(key)
}

// Unregister destroys key's stacks.
func (m *Manager) Unregister(key content.PageKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, key)
}

// Registered reports whether key has stacks.
func (m *Manager) Registered(key content.PageKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pages[key]
	return ok
}

func (m *Manager) pageLocked(key content.PageKey) *stacks {
	s, ok := m.pages[key]
	if !ok {
		s = &stacks{}
		m.pages[key] = s
	}
	return s
}

func (m *Manager) snapshot(sections []content.Section, description string) Snapshot {
	cp := content.CloneSections(sections)
	if cp == nil {
		cp = []content.Section{}
	}
	return Snapshot{Sections: cp, Timestamp: m.now(), Description: description}
}

// push appends with oldest-first eviction at the bound.
func (m *Manager) push(stack []Snapshot, snap Snapshot) []Snapshot {
	stack = append(stack, snap)
	if excess := len(stack) - m.maxEntries; excess > 0 {
		stack = append([]Snapshot(nil), stack[excess:]...)
	}
	return stack
}

// PushSnapshot records the state before a new user edit and clears redo.
func (m *Manager) PushSnapshot(key content.PageKey, sections []content.Section, description string) {
	snap := m.snapshot(sections, description)
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.pageLocked(key)
	s.undo = m.push(s.undo, snap)
	s.redo = nil
	if s.restoring {
		s.interleaved = append(s.interleaved, snap)
	}
}

// PushToUndoStackNoRedoClear records pre-redo state without touching redo.
func (m *Manager) PushToUndoStackNoRedoClear(key content.PageKey, sections []content.Section, description string) {
	snap := m.snapshot(sections, description)
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.pageLocked(key)
	s.undo = m.push(s.undo, snap)
}

// PushToRedoStack records pre-undo state.
func (m *Manager) PushToRedoStack(key content.PageKey, sections []content.Section, description string) {
	snap := m.snapshot(sections, description)
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.pageLocked(key)
	s.redo = m.push(s.redo, snap)
}

// Undo pops the newest undo snapshot. ok is false when the stack is empty.
func (m *Manager) Undo(key content.PageKey) ([]content.Section, bool) {
	snap, ok := m.pop(key, DirectionUndo)
	if !ok {
		return nil, false
	}
	return content.CloneSections(snap.Sections), true
}

// Redo pops the newest redo snapshot. ok is false when the stack is empty.
func (m *Manager) Redo(key content.PageKey) ([]content.Section, bool) {
	snap, ok := m.pop(key, DirectionRedo)
	if !ok {
		return nil, false
	}
	return content.CloneSections(snap.Sections), true
}

func (m *Manager) pop(key content.PageKey, dir Direction) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.pages[key]
	if !ok {
		return Snapshot{}, false
	}
	stack := &s.undo
	if dir == DirectionRedo {
		stack = &s.redo
	}
	n := len(*stack)
	if n == 0 {
		return Snapshot{}, false
	}
	snap := (*stack)[n-1]
	*stack = (*stack)[:n-1]
	return snap, true
}

// CanUndo returns true if undo is available.
func (m *Manager) CanUndo(key content.PageKey) bool { return m.UndoCount(key) > 0 }

// CanRedo returns true if redo is available.
func (m *Manager) CanRedo(key content.PageKey) bool { return m.RedoCount(key) > 0 }

// UndoCount returns the number of undo snapshots for key.
func (m *Manager) UndoCount(key content.PageKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.pages[key]; ok {
		return len(s.undo)
	}
	return 0
}

// RedoCount returns the number of redo snapshots for key.
func (m *Manager) RedoCount(key content.PageKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.pages[key]; ok {
		return len(s.redo)
	}
	return 0
}

// Entries returns the descriptions and times on both stacks, newest first.
func (m *Manager) Entries(key content.PageKey) (undo, redo []Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.pages[key]
	if !ok {
		return nil, nil
	}
	meta := func(in []Snapshot) []Snapshot {
		out := make([]Snapshot, 0, len(in))
		for i := len(in) - 1; i >= 0; i-- {
			out = append(out, Snapshot{Timestamp: in[i].Timestamp, Description: in[i].Description})
		}
		return out
	}
	return meta(s.undo), meta(s.redo)
}

// RequestUndo pops an undo snapshot and hands it to the Restorer.
// It returns false without error when there is nothing to undo.
func (m *Manager) RequestUndo(ctx context.Context, key content.PageKey) (bool, error) {
	return m.request(ctx, key, DirectionUndo)
}

// RequestRedo pops a redo snapshot and hands it to the Restorer.
func (m *Manager) RequestRedo(ctx context.Context, key content.PageKey) (bool, error) {
	return m.request(ctx, key, DirectionRedo)
}

// request pops one snapshot and hands it to the restorer. When the restorer
// fails both stacks return to their state before the pop, except that user
// edits recorded with PushSnapshot during the restore are kept on top of undo.
func (m *Manager) request(ctx context.Context, key content.PageKey, dir Direction) (bool, error) {
	m.mu.Lock()
	s, ok := m.pages[key]
	restorer := m.restorer
	if !ok || restorer == nil || s.restoring {
		m.mu.Unlock()
		return false, nil
	}
	source := s.undo
	if dir == DirectionRedo {
		source = s.redo
	}
	if len(source) == 0 {
		m.mu.Unlock()
		return false, nil
	}
	// Checkpoint both stacks; snapshots are immutable so slice copies suffice.
	savedUndo := append([]Snapshot(nil), s.undo...)
	savedRedo := append([]Snapshot(nil), s.redo...)
	s.restoring = true
	m.mu.Unlock()

	snap, popped := m.pop(key, dir)
	var err error
	if popped {
		err = restorer.RestoreSections(ctx, key, content.CloneSections(snap.Sections), dir)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.pages[key]; ok {
		cur.restoring = false
		if err != nil {
			cur.undo, cur.redo = savedUndo, savedRedo
			for _, snap := range cur.interleaved {
				cur.undo = m.push(cur.undo, snap)
				cur.redo = nil
			}
		}
		cur.interleaved = nil
	}
	if err != nil {
		slog.Warn("History restore failed; stacks rolled back",
			logfields.Page(key.String()), logfields.Direction(string(dir)), logfields.Error(err))
		return false, err
	}
	return popped, nil
}
