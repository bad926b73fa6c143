// Package conflict surfaces remote commits the working copy is missing and
// lets the user either sync and reload or override the editing gate.
package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/logfields"
	"git.home.luguber.info/inful/contentsync/internal/syncstatus"
)

// InfoClient fetches conflict details from the server.
type InfoClient interface {
	ConflictInfo(ctx context.Context) (syncstatus.ConflictInfo, error)
}

// Monitor is the part of the sync monitor the resolver drives.
type Monitor interface {
	SyncWithRemote(ctx context.Context) (syncstatus.SyncResult, error)
	ForceOverride()
	OnBehind(fn func(context.Context))
}

// Reloader refreshes the editing surface after a sync.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Options configures a Resolver.
type Options struct {
	Client   InfoClient
	Monitor  Monitor
	Reloader Reloader
}

// Resolver holds the pending conflict, if any.
type Resolver struct {
	client   InfoClient
	monitor  Monitor
	reloader Reloader

	mu        sync.Mutex
	pending   *syncstatus.ConflictInfo
	observers []func(syncstatus.ConflictInfo)
}

// New creates a resolver and subscribes it to the monitor's behind edge.
func New(opts Options) *Resolver {
	r := &Resolver{client: opts.Client, monitor: opts.Monitor, reloader: opts.Reloader}
	if r.monitor != nil {
		r.monitor.OnBehind(func(ctx context.Context) {
			if _, err := r.CheckForConflicts(ctx); err != nil {
				slog.Warn("Conflict check failed", logfields.Error(err))
			}
		})
	}
	return r
}

// OnConflict registers fn to run whenever a conflict is surfaced.
func (r *Resolver) OnConflict(fn func(syncstatus.ConflictInfo)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// CheckForConflicts fetches conflict info and surfaces it when HasConflict
// is set. A response without a conflict clears any pending one.
func (r *Resolver) CheckForConflicts(ctx context.Context) (syncstatus.ConflictInfo, error) {
	info, err := r.client.ConflictInfo(ctx)
	if err != nil {
		return info, err
	}
	r.mu.Lock()
	if !info.HasConflict {
		r.pending = nil
		r.mu.Unlock()
		return info, nil
	}
	cp := info
	cp.Commits = append([]syncstatus.CommitSummary(nil), info.Commits...)
	r.pending = &cp
	observers := append([]func(syncstatus.ConflictInfo)(nil), r.observers...)
	r.mu.Unlock()

	slog.Info("Remote has commits the working copy is missing",
		logfields.BehindBy(info.BehindBy), logfields.RemoteRef(info.RemoteRef))
	for _, fn := range observers {
		fn(info)
	}
	return info, nil
}

// Pending returns the surfaced conflict.
func (r *Resolver) Pending() (syncstatus.ConflictInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return syncstatus.ConflictInfo{}, false
	}
	return *r.pending, true
}

// SyncAndReload pulls the remote through the monitor, clears the conflict
// and reloads the editing surface. On sync failure the conflict stays.
func (r *Resolver) SyncAndReload(ctx context.Context) (syncstatus.SyncResult, error) {
	res, err := r.monitor.SyncWithRemote(ctx)
	if err != nil {
		return res, err
	}
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
	if r.reloader != nil {
		if err := r.reloader.Reload(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ForceOverride sets the monitor's override flag and dismisses the conflict.
// It changes nothing on the server.
func (r *Resolver) ForceOverride() {
	r.monitor.ForceOverride()
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
}

// Describe renders info for display, commits newest first as received.
func Describe(info syncstatus.ConflictInfo) string {
	var b strings.Builder
	if !info.HasConflict {
		b.WriteString("No conflicts: the working copy has everything from the remote.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "The remote has %d commit(s) not in the working copy", info.BehindBy)
	if info.RemoteRef != "" {
		fmt.Fprintf(&b, " (remote %s", shortRef(info.RemoteRef))
		if info.LastSyncedRef != "" {
			fmt.Fprintf(&b, ", last synced %s", shortRef(info.LastSyncedRef))
		}
		b.WriteString(")")
	}
	b.WriteString(".\n")
	for _, c := range info.Commits {
		date := ""
		if !c.Date.IsZero() {
			date = c.Date.Local().Format(time.DateTime)
		}
		fmt.Fprintf(&b, "\n  %s  %s\n    %s  %s\n", shortRef(c.ID), c.Message, c.Author, date)
		for _, f := range c.ChangedFiles {
			fmt.Fprintf(&b, "      %s\n", f)
		}
	}
	b.WriteString("\nRun 'sync' to pull and reload, or 'override' to keep editing anyway.\n")
	return b.String()
}

func shortRef(ref string) string {
	if len(ref) > 8 {
		return ref[:8]
	}
	return ref
}
