package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// PageActivity summarizes what happened to one page.
type PageActivity struct {
	Page         string    `json:"page"`
	Saves        int       `json:"saves"`
	Rejections   int       `json:"rejections"`
	LastAuthor   string    `json:"last_author,omitempty"`
	LastSavedAt  time.Time `json:"last_saved_at,omitzero"`
	LastCommitID string    `json:"last_commit_id,omitempty"`
}

// ActivityProjection is an in-memory read model of page activity built from the store.
type ActivityProjection struct {
	mu    sync.RWMutex
	store Store
	pages map[string]*PageActivity
}

// NewActivityProjection creates a projection backed by store.
func NewActivityProjection(store Store) *ActivityProjection {
	return &ActivityProjection{store: store, pages: make(map[string]*PageActivity)}
}

// Rebuild reconstructs the projection from every stored event.
func (p *ActivityProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Unix(0, 0), time.Now().Add(time.Minute))
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pages = make(map[string]*PageActivity)
	for _, e := range events {
		p.applyLocked(e)
	}
	return nil
}

// Apply folds one event into the projection.
func (p *ActivityProjection) Apply(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(e)
}

func (p *ActivityProjection) applyLocked(e Event) {
	switch e.Type() {
	case TypeContentSaved:
		var body ContentSaved
		if Decode(e, &body) != nil {
			return
		}
		a := p.page(body.Page)
		a.Saves++
		a.LastAuthor = body.Author
		a.LastSavedAt = e.Timestamp()
	case TypeContentRejected:
		var body ContentRejected
		if Decode(e, &body) != nil {
			return
		}
		p.page(body.Page).Rejections++
	case TypeCommitCreated:
		var body CommitCreated
		if Decode(e, &body) != nil || body.Page == "" {
			return
		}
		p.page(body.Page).LastCommitID = body.CommitID
	}
}

func (p *ActivityProjection) page(key string) *PageActivity {
	a, ok := p.pages[key]
	if !ok {
		a = &PageActivity{Page: key}
		p.pages[key] = a
	}
	return a
}

// Get returns a copy of the activity for one page.
func (p *ActivityProjection) Get(page string) (PageActivity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.pages[page]
	if !ok {
		return PageActivity{}, false
	}
	return *a, true
}

// All returns every page's activity sorted by page key.
func (p *ActivityProjection) All() []PageActivity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PageActivity, 0, len(p.pages))
	for _, a := range p.pages {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out
}
