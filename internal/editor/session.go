package editor

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"git.home.luguber.info/inful/contentsync/internal/content"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/history"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
)

// ErrEditingBlocked is returned by SaveChanges and history restoration while
// the working copy is behind the remote and the user has not overridden.
var ErrEditingBlocked = errors.SyncError("editing is blocked until the working copy is synced with the remote").
	UserAction().Build()

// ErrNotEditing is returned by Apply outside edit mode.
var ErrNotEditing = errors.ValidationError("edit mode is off").Build()

// ErrPageNotOpen is returned for operations on a page that was never opened.
var ErrPageNotOpen = errors.NotFoundError("page is not open").Build()

// PageClient is the persistence contract as seen from the client.
type PageClient interface {
	GetPage(ctx context.Context, key content.PageKey, variant string) (*content.Page, error)
	SaveEdits(ctx context.Context, req content.EditRequest) (content.EditResult, error)
}

// Gate reports whether saving is currently blocked.
type Gate interface {
	EditingDisabled() bool
}

// overrideGate is implemented by gates that can be overridden by the user.
// An active override is forwarded so a server enforcing the gate lets the
// save through too.
type overrideGate interface {
	ForceOverrideActive() bool
}

// ChangeReason says why a document changed.
type ChangeReason string

const (
	ChangeEdit    ChangeReason = "edit"
	ChangeRestore ChangeReason = "restore"
	ChangeSave    ChangeReason = "save"
	ChangeDiscard ChangeReason = "discard"
	ChangeReload  ChangeReason = "reload"
)

// ChangeEvent is delivered to observers after a document changes.
type ChangeEvent struct {
	Key      content.PageKey
	Reason   ChangeReason
	Sections []content.Section
	Pending  int
}

type pendingOp struct {
	seq int64
	op  content.Operation
}

type document struct {
	sections []content.Section
	base     []content.Section // last persisted state
	version  int64
	pending  []pendingOp
}

// Options configures a Session.
type Options struct {
	Client  PageClient
	History *history.Manager
	Gate    Gate // optional; nil never blocks
	Author  string
	Variant string
}

// Session is the editing state of one user. It is safe for concurrent use.
type Session struct {
	client  PageClient
	history *history.Manager
	gate    Gate
	author  string
	variant string

	mu        sync.Mutex
	editMode  bool
	docs      map[content.PageKey]*document
	seq       int64
	observers []func(ChangeEvent)
}

// NewSession creates a session and installs it as the history restorer.
func NewSession(opts Options) *Session {
	h := opts.History
	if h == nil {
		h = history.NewManager(history.DefaultMaxEntries)
	}
	s := &Session{
		client:  opts.Client,
		history: h,
		gate:    opts.Gate,
		author:  opts.Author,
		variant: opts.Variant,
		docs:    make(map[content.PageKey]*document),
	}
	h.SetRestorer(s)
	return s
}

// History returns the session's history manager.
func (s *Session) History() *history.Manager { return s.history }

// OnChange registers an observer. Observers run synchronously after the
// session lock is released.
func (s *Session) OnChange(fn func(ChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Session) notify(ev ChangeEvent) {
	s.mu.Lock()
	obs := append([]func(ChangeEvent)(nil), s.observers...)
	s.mu.Unlock()
	for _, fn := range obs {
		fn(ev)
	}
}

// Open loads key from the server and registers it with the history manager.
// Opening an already open page keeps its live state.
func (s *Session) Open(ctx context.Context, key content.PageKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	_, open := s.docs[key]
	s.mu.Unlock()
	if open {
		return nil
	}
	page, err := s.client.GetPage(ctx, key, s.variant)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if _, open := s.docs[key]; !open {
		s.docs[key] = newDocument(page)
	}
	s.mu.Unlock()
	s.history.Register(key)
	return nil
}

func newDocument(page *content.Page) *document {
	sections := content.CloneSections(page.Sections)
	if sections == nil {
		sections = []content.Section{}
	}
	return &document{
		sections: sections,
		base:     content.CloneSections(sections),
		version:  page.Version,
	}
}

// Close drops key's live document, pending log and history.
func (s *Session) Close(key content.PageKey) {
	s.mu.Lock()
	delete(s.docs, key)
	s.mu.Unlock()
	s.history.Unregister(key)
}

// Pages lists open pages sorted by key.
func (s *Session) Pages() []content.PageKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]content.PageKey, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Sections returns a copy of key's live sections.
func (s *Session) Sections(key content.PageKey) ([]content.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, ErrPageNotOpen.WithContext("page", key.String())
	}
	return content.CloneSections(doc.sections), nil
}

// Version returns the last persisted version of key.
func (s *Session) Version(key content.PageKey) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[key]; ok {
		return doc.version
	}
	return 0
}

// SetEditMode toggles edit mode. History registration is unaffected.
func (s *Session) SetEditMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editMode = on
}

// EditMode reports whether edit mode is on.
func (s *Session) EditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editMode
}

// Apply records a history snapshot, applies op to the live document and
// appends it to the pending log. Consecutive set-field edits of the same
// field share one snapshot so typing does not flood the undo stack.
func (s *Session) Apply(key content.PageKey, op content.Operation, description string) error {
	s.mu.Lock()
	if !s.editMode {
		s.mu.Unlock()
		return ErrNotEditing
	}
	doc, ok := s.docs[key]
	if !ok {
		s.mu.Unlock()
		return ErrPageNotOpen.WithContext("page", key.String())
	}
	next, err := content.Apply(doc.sections, op)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	before := doc.sections
	snapshot := !continuesFieldEdit(doc.pending, op)
	doc.sections = next
	s.seq++
	doc.pending = append(doc.pending, pendingOp{seq: s.seq, op: op})
	ev := ChangeEvent{Key: key, Reason: ChangeEdit, Sections: content.CloneSections(next), Pending: len(doc.pending)}
	s.mu.Unlock()

	if snapshot {
		if description == "" {
			description = string(op.Type)
		}
		s.history.PushSnapshot(key, before, description)
	}
	s.notify(ev)
	return nil
}

func continuesFieldEdit(pending []pendingOp, op content.Operation) bool {
	if op.Type != content.OpSetField || len(pending) == 0 {
		return false
	}
	last := pending[len(pending)-1].op
	return last.Type == content.OpSetField && last.SectionIndex == op.SectionIndex && last.Field == op.Field
}

// AddPendingChange appends op to key's pending log without touching the live
// document or history.
func (s *Session) AddPendingChange(key content.PageKey, op content.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	if !ok {
		doc = &document{sections: []content.Section{}, base: []content.Section{}}
		s.docs[key] = doc
	}
	s.seq++
	doc.pending = append(doc.pending, pendingOp{seq: s.seq, op: op})
}

// HasPendingChanges reports whether any page has unsaved operations.
func (s *Session) HasPendingChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs {
		if len(doc.pending) > 0 {
			return true
		}
	}
	return false
}

// PendingCount returns the number of unsaved operations for key.
func (s *Session) PendingCount(key content.PageKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[key]; ok {
		return len(doc.pending)
	}
	return 0
}

// PendingChanges returns a copy of key's pending log.
func (s *Session) PendingChanges(key content.PageKey) []content.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil
	}
	ops := make([]content.Operation, len(doc.pending))
	for i, p := range doc.pending {
		ops[i] = p.op
	}
	return ops
}

// SaveChanges flushes key's pending log in one request. An empty log
// succeeds without a request. The log is cleared only when the server
// reports success; on any failure it is left intact. Operations appended
// while the request is in flight stay pending.
func (s *Session) SaveChanges(ctx context.Context, key content.PageKey) (bool, error) {
	s.mu.Lock()
	doc, ok := s.docs[key]
	if !ok || len(doc.pending) == 0 {
		s.mu.Unlock()
		return true, nil
	}
	if s.gate != nil && s.gate.EditingDisabled() {
		s.mu.Unlock()
		return false, ErrEditingBlocked
	}
	ops := make([]content.Operation, len(doc.pending))
	for i, p := range doc.pending {
		ops[i] = p.op
	}
	lastSeq := doc.pending[len(doc.pending)-1].seq
	version := doc.version
	s.mu.Unlock()

	req := content.EditRequest{
		ContentType:   key.ContentType,
		Slug:          key.Slug,
		Locale:        key.Locale,
		Variant:       s.variant,
		Operations:    ops,
		Author:        s.author,
		ForceOverride: s.overriding(),
	}
	if version > 0 {
		req.Version = &version
	}
	res, err := s.client.SaveEdits(ctx, req)
	if err != nil || !res.Success {
		if err == nil {
			err = errors.ValidationError("save rejected").WithContext("reason", res.Error).Build()
		}
		slog.Warn("Save failed; pending changes kept",
			logfields.Page(key.String()), logfields.Operations(len(ops)), logfields.Error(err))
		return false, err
	}
	if res.CommitError != "" {
		slog.Warn("Saved but not committed", logfields.Page(key.String()), slog.String("commit_error", res.CommitError))
	}

	s.mu.Lock()
	doc, ok = s.docs[key]
	var ev ChangeEvent
	if ok {
		doc.pending = dropThrough(doc.pending, lastSeq)
		if res.Version > 0 {
			doc.version = res.Version
		}
		if len(doc.pending) == 0 {
			doc.base = content.CloneSections(doc.sections)
		}
		ev = ChangeEvent{Key: key, Reason: ChangeSave, Sections: content.CloneSections(doc.sections), Pending: len(doc.pending)}
	}
	s.mu.Unlock()

	slog.Info("Changes saved", logfields.Page(key.String()), logfields.Operations(len(ops)),
		logfields.Commit(res.CommitID))
	if ok {
		s.notify(ev)
	}
	return true, nil
}

// dropThrough removes entries up to and including seq. A second concurrent
// save of the same entries finds nothing left to drop.
func dropThrough(pending []pendingOp, seq int64) []pendingOp {
	i := 0
	for i < len(pending) && pending[i].seq <= seq {
		i++
	}
	return append([]pendingOp(nil), pending[i:]...)
}

// Discard drops key's pending log and resets the live document to the last
// persisted state.
func (s *Session) Discard(key content.PageKey) {
	s.mu.Lock()
	doc, ok := s.docs[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	doc.pending = nil
	doc.sections = content.CloneSections(doc.base)
	ev := ChangeEvent{Key: key, Reason: ChangeDiscard, Sections: content.CloneSections(doc.sections)}
	s.mu.Unlock()
	s.notify(ev)
}

// Reload drops unsaved state and refetches every open page. It is used after
// a sync pulled new commits. All pages are attempted; the first error is
// returned.
func (s *Session) Reload(ctx context.Context) error {
	var firstErr error
	for _, key := range s.Pages() {
		page, err := s.client.GetPage(ctx, key, s.variant)
		if err != nil {
			slog.Warn("Reload failed", logfields.Page(key.String()), logfields.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.mu.Lock()
		doc := newDocument(page)
		s.docs[key] = doc
		ev := ChangeEvent{Key: key, Reason: ChangeReload, Sections: content.CloneSections(doc.sections)}
		s.mu.Unlock()
		s.notify(ev)
	}
	return firstErr
}

// RestoreSections implements history.Restorer. It records the live state on
// the opposite stack, persists sections as one replace-all-sections
// operation, and only then replaces the live document. Pending operations
// are superseded by the replacement and dropped.
func (s *Session) RestoreSections(ctx context.Context, key content.PageKey, sections []content.Section, dir history.Direction) error {
	if s.gate != nil && s.gate.EditingDisabled() {
		return ErrEditingBlocked
	}
	s.mu.Lock()
	doc, ok := s.docs[key]
	if !ok {
		s.mu.Unlock()
		return ErrPageNotOpen.WithContext("page", key.String())
	}
	live := content.CloneSections(doc.sections)
	version := doc.version
	s.mu.Unlock()

	label := "before " + string(dir)
	if dir == history.DirectionUndo {
		s.history.PushToRedoStack(key, live, label)
	} else {
		s.history.PushToUndoStackNoRedoClear(key, live, label)
	}

	req := content.EditRequest{
		ContentType:   key.ContentType,
		Slug:          key.Slug,
		Locale:        key.Locale,
		Variant:       s.variant,
		Operations:    []content.Operation{content.ReplaceAll(sections)},
		Author:        s.author,
		ForceOverride: s.overriding(),
	}
	if version > 0 {
		req.Version = &version
	}
	res, err := s.client.SaveEdits(ctx, req)
	if err != nil {
		return err
	}
	if !res.Success {
		return errors.ValidationError("restore rejected").WithContext("reason", res.Error).Build()
	}

	s.mu.Lock()
	doc, ok = s.docs[key]
	var ev ChangeEvent
	if ok {
		doc.sections = content.CloneSections(sections)
		if doc.sections == nil {
			doc.sections = []content.Section{}
		}
		doc.base = content.CloneSections(doc.sections)
		doc.pending = nil
		if res.Version > 0 {
			doc.version = res.Version
		}
		ev = ChangeEvent{Key: key, Reason: ChangeRestore, Sections: content.CloneSections(doc.sections)}
	}
	s.mu.Unlock()
	if ok {
		s.notify(ev)
	}
	return nil
}

func (s *Session) overriding() bool {
	g, ok := s.gate.(overrideGate)
	return ok && g.ForceOverrideActive()
}
