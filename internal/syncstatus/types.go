package syncstatus

import (
	"time"

	"git.home.luguber.info/inful/contentsync/internal/git"
)

// Relation describes how the local branch relates to the remote branch.
type Relation string

const (
	RelationInSync             Relation = "in-sync"
	RelationBehind             Relation = "behind"
	RelationAhead              Relation = "ahead"
	RelationDiverged           Relation = "diverged"
	RelationUnknown            Relation = "unknown"
	RelationUnconfigured       Relation = "unconfigured"
	RelationInvalidCredentials Relation = "invalid-credentials"
)

// IsBehind reports whether the remote has commits the local branch lacks.
func (r Relation) IsBehind() bool {
	return r == RelationBehind || r == RelationDiverged
}

// Status is the wire shape of GET /sync-status.
type Status struct {
	Configured  bool      `json:"configured"`
	SyncEnabled bool      `json:"syncEnabled"`
	LocalRef    string    `json:"localRef,omitempty"`
	RemoteRef   string    `json:"remoteRef,omitempty"`
	Relation    Relation  `json:"relation"`
	BehindBy    int       `json:"behindBy"`
	AheadBy     int       `json:"aheadBy"`
	RepoURL     string    `json:"repoUrl,omitempty"`
	Branch      string    `json:"branch,omitempty"`
	Error       string    `json:"error,omitempty"`
	CheckedAt   time.Time `json:"checkedAt"`
}

// IsBehind reports whether editing should be gated on this status.
func (s Status) IsBehind() bool { return s.Relation.IsBehind() }

// CommitSummary is one remote commit missing locally.
type CommitSummary = git.CommitSummary

// ConflictInfo is the wire shape of GET /conflict-info.
type ConflictInfo struct {
	HasConflict   bool            `json:"hasConflict"`
	BehindBy      int             `json:"behindBy"`
	Commits       []CommitSummary `json:"commits"`
	LastSyncedRef string          `json:"lastSyncedRef,omitempty"`
	RemoteRef     string          `json:"remoteRef,omitempty"`
}

// SyncResult is the wire shape of POST /sync.
type SyncResult struct {
	Success bool   `json:"success"`
	FromRef string `json:"fromRef,omitempty"`
	ToRef   string `json:"toRef,omitempty"`
	Pulled  int    `json:"pulled"`
	Reset   bool   `json:"reset,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RelationFor derives the relation from ahead/behind counts.
func RelationFor(d git.Divergence) Relation {
	switch {
	case d.LocalHash == d.RemoteHash:
		return RelationInSync
	case d.Behind > 0 && d.Ahead > 0:
		return RelationDiverged
	case d.Behind > 0:
		return RelationBehind
	case d.Ahead > 0:
		return RelationAhead
	default:
		return RelationInSync
	}
}
