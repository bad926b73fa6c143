// Package syncmonitor polls the server's sync status on behalf of an editing
// client and derives the editing gate from it.
//
// The gate is closed while the working copy is behind (or diverged from) the
// remote, sync is enabled, and the user has not explicitly overridden it.
// Failed polls keep the previous status and push the next poll out along the
// retry policy so an unreachable server is not hammered.
package syncmonitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/logfields"
	"git.home.luguber.info/inful/contentsync/internal/retry"
	"git.home.luguber.info/inful/contentsync/internal/scheduler"
	"git.home.luguber.info/inful/contentsync/internal/syncstatus"
)

// DefaultInterval is the poll interval when none is configured.
const DefaultInterval = 60 * time.Second

// StatusClient is the part of the API client the monitor uses.
type StatusClient interface {
	SyncStatus(ctx context.Context) (syncstatus.Status, error)
	Sync(ctx context.Context) (syncstatus.SyncResult, error)
}

// Options configures a Monitor.
type Options struct {
	Client   StatusClient
	Interval time.Duration
	Backoff  retry.Policy
}

// Monitor owns the client's view of sync status and the force-override flag.
type Monitor struct {
	client   StatusClient
	interval time.Duration
	backoff  retry.Policy

	mu            sync.RWMutex
	status        syncstatus.Status
	polled        bool
	forceOverride bool
	failures      int
	lastErr       error
	nextPoll      time.Time
	wasBehind     bool
	behindHooks   []func(context.Context)
	statusHooks   []func(syncstatus.Status)

	job *scheduler.Job
	now func() time.Time
}

// New creates a monitor. Call Start to poll on a schedule or Poll directly.
func New(opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	backoff := opts.Backoff
	if backoff.Initial <= 0 || backoff.Max <= 0 {
		backoff = retry.DefaultPolicy()
	}
	return &Monitor{
		client:   opts.Client,
		interval: interval,
		backoff:  backoff,
		status:   syncstatus.Status{Relation: syncstatus.RelationUnknown},
		now:      time.Now,
	}
}

// Start schedules polling on sched and triggers a first poll immediately.
func (m *Monitor) Start(ctx context.Context, sched *scheduler.Scheduler) error {
	job, err := sched.Every(ctx, "sync-status-poll", m.interval, m.tick)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.job = job
	m.mu.Unlock()
	return job.RunNow()
}

// OnBehind registers fn to run each time the working copy becomes behind
// while sync is enabled. It fires on the transition only.
func (m *Monitor) OnBehind(fn func(context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behindHooks = append(m.behindHooks, fn)
}

// OnStatus registers fn to run after every successful poll.
func (m *Monitor) OnStatus(fn func(syncstatus.Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusHooks = append(m.statusHooks, fn)
}

// NotifyFocus polls when the user returns to the editor, unless a backoff
// window from earlier failures is still open.
func (m *Monitor) NotifyFocus(ctx context.Context) {
	m.tick(ctx)
}

func (m *Monitor) tick(ctx context.Context) {
	m.mu.RLock()
	wait := m.nextPoll
	m.mu.RUnlock()
	if !wait.IsZero() && m.now().Before(wait) {
		slog.Debug("Skipping status poll during backoff", slog.Time("next_poll", wait))
		return
	}
	_ = m.Poll(ctx)
}

// Poll fetches the status once. On failure the previous status is kept and
// the next scheduled poll is delayed.
func (m *Monitor) Poll(ctx context.Context) error {
	st, err := m.client.SyncStatus(ctx)
	if err != nil {
		m.mu.Lock()
		m.failures++
		m.lastErr = err
		delay := m.backoff.Delay(m.failures)
		m.nextPoll = m.now().Add(delay)
		failures := m.failures
		m.mu.Unlock()
		slog.Warn("Sync status poll failed; keeping last status",
			logfields.Attempt(failures), logfields.Duration(delay), logfields.Error(err))
		return err
	}

	m.mu.Lock()
	m.status = st
	m.polled = true
	m.failures = 0
	m.lastErr = nil
	m.nextPoll = time.Time{}
	behind := st.IsBehind() && st.SyncEnabled
	rising := behind && !m.wasBehind
	m.wasBehind = behind
	var behindHooks []func(context.Context)
	if rising {
		behindHooks = append(behindHooks, m.behindHooks...)
	}
	statusHooks := append([]func(syncstatus.Status)(nil), m.statusHooks...)
	m.mu.Unlock()

	if rising {
		slog.Info("Working copy is behind the remote",
			logfields.Relation(string(st.Relation)), logfields.BehindBy(st.BehindBy))
	}
	for _, fn := range behindHooks {
		fn(ctx)
	}
	for _, fn := range statusHooks {
		fn(st)
	}
	return nil
}

// Status returns the last successfully polled status.
func (m *Monitor) Status() syncstatus.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Polled reports whether at least one poll succeeded.
func (m *Monitor) Polled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.polled
}

// LastError returns the error of the most recent poll, nil after a success.
func (m *Monitor) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// IsBehind reports whether the working copy is behind or diverged.
func (m *Monitor) IsBehind() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.IsBehind()
}

// SyncEnabled reports the server's sync setting.
func (m *Monitor) SyncEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.SyncEnabled
}

// EditingDisabled is the editing gate.
func (m *Monitor) EditingDisabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.IsBehind() && m.status.SyncEnabled && !m.forceOverride
}

// ForceOverride lets the user keep editing while behind. It lasts until the
// next successful sync or the end of the session.
func (m *Monitor) ForceOverride() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceOverride = true
	slog.Warn("Editing gate overridden by user")
}

// ForceOverrideActive reports whether the override flag is set.
func (m *Monitor) ForceOverrideActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.forceOverride
}

// SyncWithRemote asks the server to pull, then clears the override flag and
// polls again. A failed re-poll does not fail the sync.
func (m *Monitor) SyncWithRemote(ctx context.Context) (syncstatus.SyncResult, error) {
	res, err := m.client.Sync(ctx)
	if err != nil {
		slog.Warn("Sync with remote failed", logfields.Error(err))
		return res, err
	}
	m.mu.Lock()
	m.forceOverride = false
	m.wasBehind = false
	m.nextPoll = time.Time{}
	m.mu.Unlock()

	slog.Info("Synced with remote",
		slog.String("from", res.FromRef), slog.String("to", res.ToRef), slog.Int("pulled", res.Pulled))
	_ = m.Poll(ctx)
	return res, nil
}
