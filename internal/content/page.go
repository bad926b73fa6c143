package content

// Page is the persisted document for one PageKey and optional variant.
type Page struct {
	ContentType string    `json:"contentType" yaml:"-"`
	Slug        string    `json:"slug" yaml:"-"`
	Locale      string    `json:"locale" yaml:"-"`
	Variant     string    `json:"variant,omitempty" yaml:"-"`
	Version     int64     `json:"version" yaml:"version"`
	Sections    []Section `json:"sections" yaml:"sections"`
}

// Key returns the page's key.
func (p *Page) Key() PageKey {
	return PageKey{ContentType: p.ContentType, Slug: p.Slug, Locale: p.Locale}
}

// Clone returns a deep copy.
func (p *Page) Clone() *Page {
	cp := *p
	cp.Sections = CloneSections(p.Sections)
	if cp.Sections == nil {
		cp.Sections = []Section{}
	}
	return &cp
}

// EditRequest is the body of POST /content/edit.
type EditRequest struct {
	ContentType   string      `json:"contentType"`
	Slug          string      `json:"slug"`
	Locale        string      `json:"locale"`
	Variant       string      `json:"variant,omitempty"`
	Version       *int64      `json:"version,omitempty"`
	Operations    []Operation `json:"operations"`
	Author        string      `json:"author,omitempty"`
	ForceOverride bool        `json:"forceOverride,omitempty"`
}

// Key returns the request's page key.
func (r EditRequest) Key() PageKey {
	return PageKey{ContentType: r.ContentType, Slug: r.Slug, Locale: r.Locale}
}

// EditResult is the response of POST /content/edit.
// A save that was persisted but could not be committed still reports
// Success with CommitError set; resubmitting would apply the operations twice.
type EditResult struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	Version     int64  `json:"version,omitempty"`
	CommitID    string `json:"commitId,omitempty"`
	CommitError string `json:"commitError,omitempty"`
}
