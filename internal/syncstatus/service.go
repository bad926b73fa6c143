// Package syncstatus answers "how does the working copy relate to the
// remote branch" for the HTTP API and performs the fast-forward pull.
//
// Status results are cached for a short TTL. The cache is owned here and
// invalidated explicitly after every sync and every local or remote commit.
package syncstatus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/eventstore"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/git"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
	"git.home.luguber.info/inful/contentsync/internal/metrics"
	"git.home.luguber.info/inful/contentsync/internal/notify"
	"git.home.luguber.info/inful/contentsync/internal/scheduler"
)

// ErrNotConfigured is returned by Sync when no remote is configured.
var ErrNotConfigured = errors.ConfigError("remote sync is not configured").WithRetry(errors.RetryNever).Build()

// Tracker is the subset of git.Tracker the service needs.
type Tracker interface {
	Fetch(ctx context.Context) (bool, error)
	Compare(ctx context.Context) (git.Divergence, error)
	MissingCommits(ctx context.Context, limit int) ([]git.CommitSummary, error)
	FastForward(ctx context.Context) (git.SyncResult, error)
}

// Invalidator drops cached state derived from the working copy.
type Invalidator interface {
	Invalidate()
}

// Options configure a Service.
type Options struct {
	Configured  bool
	SyncEnabled bool
	RepoURL     string
	Branch      string
	TTL         time.Duration

	Tracker   Tracker
	Content   Invalidator
	Journal   *eventstore.Journal
	Recorder  metrics.Recorder
	Publisher notify.Publisher
}

// Service computes sync status and pulls from the remote.
type Service struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	cached   *Status
	cachedAt time.Time
	lastSync string

	// pullMu orders pulls against page writes: writers share it, a pull owns it.
	pullMu sync.RWMutex
}

// NewService creates a status service.
func NewService(opts Options) *Service {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Publisher == nil {
		opts.Publisher = notify.Noop{}
	}
	return &Service{opts: opts, now: time.Now}
}

// SyncEnabled reports whether the editing gate applies.
func (s *Service) SyncEnabled() bool { return s.opts.Configured && s.opts.SyncEnabled }

// Invalidate drops the cached status so the next call recomputes it.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// Status returns the cached status when fresh, otherwise refreshes it.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.Lock()
	if s.cached != nil && s.opts.TTL > 0 && s.now().Sub(s.cachedAt) < s.opts.TTL {
		st := *s.cached
		s.mu.Unlock()
		return st
	}
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Refresh fetches, recomputes and caches the status. Failures are reported in
// the returned status rather than as errors; a failed fetch yields unknown or
// invalid-credentials, never a stale relation.
func (s *Service) Refresh(ctx context.Context) Status {
	st := s.base()
	if !s.opts.Configured || s.opts.Tracker == nil {
		st.Relation = RelationUnconfigured
		return st
	}

	start := s.now()
	st = s.compute(ctx, st)
	s.opts.Recorder.ObserveStatusRefresh(s.now().Sub(start))
	s.opts.Recorder.SetRelation(string(st.Relation), st.BehindBy, st.AheadBy)

	s.mu.Lock()
	prev := s.cached
	s.cached = &st
	s.cachedAt = s.now()
	s.mu.Unlock()

	if prev != nil && prev.Relation != st.Relation {
		slog.Info("Sync relation changed",
			slog.String("from", string(prev.Relation)),
			logfields.Relation(string(st.Relation)),
			logfields.BehindBy(st.BehindBy))
		notify.Safe(ctx, s.opts.Publisher, notify.Event{
			Kind:     notify.KindStatusChanged,
			Relation: string(st.Relation),
			Commit:   st.RemoteRef,
		})
	}
	return st
}

func (s *Service) base() Status {
	return Status{
		Configured:  s.opts.Configured,
		SyncEnabled: s.opts.SyncEnabled,
		RepoURL:     s.opts.RepoURL,
		Branch:      s.opts.Branch,
		CheckedAt:   s.now().UTC(),
	}
}

func (s *Service) compute(ctx context.Context, st Status) Status {
	changed, err := s.opts.Tracker.Fetch(ctx)
	if err != nil {
		st.Error = err.Error()
		if errors.HasCategory(err, errors.CategoryAuth) {
			st.Relation = RelationInvalidCredentials
		} else {
			st.Relation = RelationUnknown
		}
		slog.Warn("Remote fetch failed", logfields.Relation(string(st.Relation)), logfields.Error(err))
		return st
	}
	s.opts.Recorder.IncRemoteHeadCheck(changed)

	d, err := s.opts.Tracker.Compare(ctx)
	if err != nil {
		st.Error = err.Error()
		st.Relation = RelationUnknown
		slog.Warn("Branch comparison failed", logfields.Error(err))
		return st
	}
	st.LocalRef = d.LocalHash
	st.RemoteRef = d.RemoteHash
	st.BehindBy = d.Behind
	st.AheadBy = d.Ahead
	st.Relation = RelationFor(d)
	return st
}

// ConflictInfo lists the remote commits missing locally. It reports a
// conflict only while the branch is behind or diverged and sync is enabled.
func (s *Service) ConflictInfo(ctx context.Context) (ConflictInfo, error) {
	st := s.Status(ctx)
	info := ConflictInfo{
		BehindBy:      st.BehindBy,
		Commits:       []CommitSummary{},
		LastSyncedRef: st.LocalRef,
		RemoteRef:     st.RemoteRef,
	}
	if !st.IsBehind() || !s.SyncEnabled() {
		return info, nil
	}
	commits, err := s.opts.Tracker.MissingCommits(ctx, 0)
	if err != nil {
		return info, err
	}
	info.HasConflict = true
	info.Commits = commits
	return info, nil
}

// Sync fetches and fast-forwards the working copy, then drops every cache
// derived from it. Concurrent calls are serialized.
func (s *Service) Sync(ctx context.Context) (SyncResult, error) {
	if !s.opts.Configured || s.opts.Tracker == nil {
		return SyncResult{}, ErrNotConfigured
	}
	s.pullMu.Lock()
	defer s.pullMu.Unlock()

	res, err := s.pull(ctx)
	s.Invalidate()
	if s.opts.Content != nil {
		s.opts.Content.Invalidate()
	}

	if err != nil {
		result := metrics.ResultFailed
		if errors.HasCategory(err, errors.CategoryConflict) {
			result = metrics.ResultConflict
		}
		s.opts.Recorder.IncSyncResult(result)
		s.record(ctx, eventstore.TypeSyncFailed, eventstore.SyncFailed{Reason: err.Error()})
		notify.Safe(ctx, s.opts.Publisher, notify.Event{Kind: notify.KindSyncFailed, Detail: map[string]string{"reason": err.Error()}})
		return SyncResult{Success: false, Error: err.Error()}, err
	}

	s.mu.Lock()
	s.lastSync = res.ToRef
	s.mu.Unlock()

	s.opts.Recorder.IncSyncResult(metrics.ResultSuccess)
	s.record(ctx, eventstore.TypeSyncCompleted, eventstore.SyncCompleted{FromRef: res.FromRef, ToRef: res.ToRef, Pulled: res.Pulled})
	notify.Safe(ctx, s.opts.Publisher, notify.Event{Kind: notify.KindSyncCompleted, Commit: res.ToRef})
	return SyncResult{
		Success: true,
		FromRef: res.FromRef,
		ToRef:   res.ToRef,
		Pulled:  res.Pulled,
		Reset:   res.Reset,
	}, nil
}

func (s *Service) pull(ctx context.Context) (git.SyncResult, error) {
	if _, err := s.opts.Tracker.Fetch(ctx); err != nil {
		return git.SyncResult{}, err
	}
	return s.opts.Tracker.FastForward(ctx)
}

// BeginWrite holds off Sync and CatchUp until the returned release is called.
// Page saves wrap their write and commit in it so a pull never runs between
// a file landing in the working copy and that file being committed.
func (s *Service) BeginWrite() (release func()) {
	s.pullMu.RLock()
	return s.pullMu.RUnlock
}

// CatchUp fast-forwards after a remote commit so the working copy does not
// report itself behind its own write. Failures are logged only.
func (s *Service) CatchUp(ctx context.Context) {
	if !s.opts.Configured || s.opts.Tracker == nil {
		return
	}
	s.pullMu.Lock()
	defer s.pullMu.Unlock()
	if _, err := s.pull(ctx); err != nil {
		slog.Warn("Fast-forward after remote commit failed", logfields.Error(err))
	}
	s.Invalidate()
	if s.opts.Content != nil {
		s.opts.Content.Invalidate()
	}
}

// LastSyncedRef returns the ref reached by the last successful Sync.
func (s *Service) LastSyncedRef() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

func (s *Service) record(ctx context.Context, eventType string, payload any) {
	if _, err := s.opts.Journal.Record(ctx, eventstore.RepositoryStream, eventType, payload); err != nil {
		slog.Warn("Failed to record event", logfields.EventType(eventType), logfields.Error(err))
	}
}

// Warm schedules periodic status refreshes so the remote fetch cost is paid
// off the request path.
func (s *Service) Warm(ctx context.Context, sched *scheduler.Scheduler, interval time.Duration) (*scheduler.Job, error) {
	if !s.opts.Configured || interval <= 0 {
		return nil, nil
	}
	return sched.Every(ctx, "sync-status-warmer", interval, func(ctx context.Context) {
		s.Refresh(ctx)
	})
}
