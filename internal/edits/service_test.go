package edits

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentsync/internal/config"
	"git.home.luguber.info/inful/contentsync/internal/content"
	"git.home.luguber.info/inful/contentsync/internal/eventstore"
	"git.home.luguber.info/inful/contentsync/internal/forge"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/git"
	"git.home.luguber.info/inful/contentsync/internal/syncstatus"
)

type fakeLocal struct {
	mu     sync.Mutex
	calls  int
	name   string
	email  string
	result git.CommitResult
}

func (f *fakeLocal) Commit(_ context.Context, _ string, name, email string) (git.CommitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.name, f.email = name, email
	return f.result, nil
}

type fakeRemote struct {
	path    string
	content []byte
	result  forge.CommitFileResult
	err     error

	status        *fakeStatus
	writersInside int
}

func (f *fakeRemote) CommitFile(_ context.Context, path string, data []byte, _ string) (forge.CommitFileResult, error) {
	f.path, f.content = path, data
	if f.status != nil {
		f.writersInside = f.status.writers
	}
	return f.result, f.err
}

type fakeStatus struct {
	status      syncstatus.Status
	enabled     bool
	invalidated int
	caughtUp    int

	writers       int
	writersAtPull int
}

func (f *fakeStatus) Status(context.Context) syncstatus.Status { return f.status }
func (f *fakeStatus) SyncEnabled() bool                        { return f.enabled }
func (f *fakeStatus) Invalidate()                              { f.invalidated++ }

func (f *fakeStatus) CatchUp(context.Context) {
	f.caughtUp++
	f.writersAtPull = f.writers
}

func (f *fakeStatus) BeginWrite() func() {
	f.writers++
	return func() { f.writers-- }
}

var homeKey = content.PageKey{ContentType: "pages", Slug: "home", Locale: "en"}

func editReq(ops ...content.Operation) content.EditRequest {
	return content.EditRequest{ContentType: "pages", Slug: "home", Locale: "en", Operations: ops, Author: "Ada <ada@example.com>"}
}

func TestSave_LocalStrategy(t *testing.T) {
	store := content.NewStore(t.TempDir(), "content/")
	local := &fakeLocal{result: git.CommitResult{Success: true, CommitID: "abc123"}}
	status := &fakeStatus{}
	es, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = es.Close() }()

	svc := NewService(Options{
		Store: store, Strategy: config.CommitLocal, Local: local, Status: status,
		Journal: eventstore.NewJournal(es),
	})
	res, err := svc.Save(context.Background(), editReq(content.AddSection(content.Section{"type": "hero"})))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(1), res.Version)
	assert.Equal(t, "abc123", res.CommitID)
	assert.Equal(t, "Ada", local.name)
	assert.Equal(t, "ada@example.com", local.email)
	assert.Equal(t, 1, status.invalidated)

	page, err := svc.Page(context.Background(), homeKey, "")
	require.NoError(t, err)
	require.Len(t, page.Sections, 1)

	events, err := es.GetByStream(context.Background(), homeKey.String())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, eventstore.TypeContentSaved, events[0].Type())
	assert.Equal(t, eventstore.TypeCommitCreated, events[1].Type())
}

func TestSave_LocalNoChangesIsNotAnError(t *testing.T) {
	store := content.NewStore(t.TempDir(), "content/")
	local := &fakeLocal{result: git.CommitResult{Success: false, Error: git.NoChangesMessage}}
	svc := NewService(Options{Store: store, Strategy: config.CommitLocal, Local: local})

	res, err := svc.Save(context.Background(), editReq(content.AddSection(content.Section{"type": "hero"})))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.CommitID)
	assert.Empty(t, res.CommitError)
}

func TestSave_RemoteStrategyCatchesUp(t *testing.T) {
	store := content.NewStore(t.TempDir(), "content/")
	remote := &fakeRemote{result: forge.CommitFileResult{CommitSHA: "remote-sha"}}
	status := &fakeStatus{}
	svc := NewService(Options{Store: store, Strategy: config.CommitRemote, Remote: remote, Status: status})

	res, err := svc.Save(context.Background(), editReq(content.AddSection(content.Section{"type": "hero"})))
	require.NoError(t, err)
	assert.Equal(t, "remote-sha", res.CommitID)
	assert.Equal(t, "content/pages/home.en.yml", remote.path)
	assert.Contains(t, string(remote.content), "hero")
	assert.Equal(t, 1, status.caughtUp)
}

func TestSave_RemoteCommitHoldsOffPulls(t *testing.T) {
	store := content.NewStore(t.TempDir(), "content/")
	status := &fakeStatus{}
	remote := &fakeRemote{result: forge.CommitFileResult{CommitSHA: "remote-sha"}, status: status}
	svc := NewService(Options{Store: store, Strategy: config.CommitRemote, Remote: remote, Status: status})

	_, err := svc.Save(context.Background(), editReq(content.AddSection(content.Section{"type": "hero"})))
	require.NoError(t, err)
	assert.Equal(t, 1, remote.writersInside, "remote commit must run inside the write window")
	assert.Zero(t, status.writersAtPull, "catch-up must run after the write window closes")
	assert.Zero(t, status.writers)

	stale := editReq(content.AddSection(content.Section{"type": "footer"}))
	v := int64(0)
	stale.Version = &v
	_, err = svc.Save(context.Background(), stale)
	require.Error(t, err)
	assert.Zero(t, status.writers, "a rejected save releases the write window")
}

func TestSave_RemoteStaleWriteReportsCommitError(t *testing.T) {
	store := content.NewStore(t.TempDir(), "content/")
	remote := &fakeRemote{err: forge.ErrStaleWrite}
	status := &fakeStatus{}
	svc := NewService(Options{Store: store, Strategy: config.CommitRemote, Remote: remote, Status: status})

	res, err := svc.Save(context.Background(), editReq(content.AddSection(content.Section{"type": "hero"})))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.CommitError)
	assert.Zero(t, status.caughtUp)
}

func TestSave_RemoteSkippedWhenUnconfigured(t *testing.T) {
	store := content.NewStore(t.TempDir(), "content/")
	remote := &fakeRemote{result: forge.CommitFileResult{Skipped: true}}
	status := &fakeStatus{}
	svc := NewService(Options{Store: store, Strategy: config.CommitRemote, Remote: remote, Status: status})

	res, err := svc.Save(context.Background(), editReq(content.AddSection(content.Section{"type": "hero"})))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.CommitID)
	assert.Zero(t, status.caughtUp)
}

func TestSave_GateEnforcement(t *testing.T) {
	behind := syncstatus.Status{Relation: syncstatus.RelationBehind, BehindBy: 2}
	tests := []struct {
		name    string
		enforce bool
		enabled bool
		status  syncstatus.Status
		force   bool
		wantErr bool
	}{
		{"behind and enforced", true, true, behind, false, true},
		{"override", true, true, behind, true, false},
		{"not enforced", false, true, behind, false, false},
		{"sync disabled", true, false, behind, false, false},
		{"in sync", true, true, syncstatus.Status{Relation: syncstatus.RelationInSync}, false, false},
		{"diverged", true, true, syncstatus.Status{Relation: syncstatus.RelationDiverged}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := content.NewStore(t.TempDir(), "content/")
			svc := NewService(Options{
				Store: store, Strategy: config.CommitNone, EnforceGate: tt.enforce,
				Status: &fakeStatus{status: tt.status, enabled: tt.enabled},
			})
			req := editReq(content.AddSection(content.Section{"type": "hero"}))
			req.ForceOverride = tt.force

			res, err := svc.Save(context.Background(), req)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrEditingBlocked)
				assert.True(t, errors.HasCategory(err, errors.CategorySync))
				assert.False(t, res.Success)
				_, getErr := store.Get(context.Background(), homeKey, "")
				assert.True(t, errors.HasCategory(getErr, errors.CategoryNotFound), "blocked save must not write")
				return
			}
			require.NoError(t, err)
			assert.True(t, res.Success)
		})
	}
}

func TestSave_Rejections(t *testing.T) {
	store := content.NewStore(t.TempDir(), "content/")
	svc := NewService(Options{Store: store, Strategy: config.CommitNone})
	ctx := context.Background()

	_, err := svc.Save(ctx, editReq())
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	_, err = svc.Save(ctx, editReq(content.RemoveSection(4)))
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	_, err = svc.Save(ctx, editReq(content.AddSection(content.Section{"type": "hero"})))
	require.NoError(t, err)

	stale := editReq(content.AddSection(content.Section{"type": "footer"}))
	v := int64(0)
	stale.Version = &v
	res, err := svc.Save(ctx, stale)
	assert.True(t, errors.HasCategory(err, errors.CategoryConflict))
	assert.False(t, res.Success)
}

func TestAuthorIdentity(t *testing.T) {
	svc := NewService(Options{DefaultAuthorName: "contentsync", DefaultAuthorEmail: "cs@localhost"})
	name, email := svc.authorIdentity("")
	assert.Equal(t, "contentsync", name)
	assert.Equal(t, "cs@localhost", email)

	name, email = svc.authorIdentity("Grace Hopper <grace@example.com>")
	assert.Equal(t, "Grace Hopper", name)
	assert.Equal(t, "grace@example.com", email)

	name, email = svc.authorIdentity("grace")
	assert.Equal(t, "grace", name)
	assert.Equal(t, "cs@localhost", email)
}

func TestCommitMessage(t *testing.T) {
	assert.Equal(t, "Update pages/home (en) by Ada", CommitMessage(homeKey, "", "Ada"))
	assert.Equal(t, "Update pages/home [b] (en)", CommitMessage(homeKey, "b", ""))
}
