// Package edits persists batches of edit operations and records them in
// version control according to the configured commit strategy.
package edits

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/config"
	"git.home.luguber.info/inful/contentsync/internal/content"
	"git.home.luguber.info/inful/contentsync/internal/eventstore"
	"git.home.luguber.info/inful/contentsync/internal/forge"
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/git"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
	"git.home.luguber.info/inful/contentsync/internal/metrics"
	"git.home.luguber.info/inful/contentsync/internal/notify"
	"git.home.luguber.info/inful/contentsync/internal/syncstatus"
)

// ErrEditingBlocked is returned when the server enforces the sync gate and
// the working copy is behind its remote.
var ErrEditingBlocked = errors.SyncError("editing is blocked until the working copy is synced with the remote").Build()

// PageStore is the persistence contract for pages.
type PageStore interface {
	Get(ctx context.Context, key content.PageKey, variant string) (*content.Page, error)
	ApplyEdits(ctx context.Context, req content.EditRequest) (*content.Page, error)
	ReadFile(key content.PageKey, variant string) ([]byte, error)
	RelPath(key content.PageKey, variant string) string
}

// LocalCommitter records changes in the local working copy.
type LocalCommitter interface {
	Commit(ctx context.Context, message, authorName, authorEmail string) (git.CommitResult, error)
}

// RemoteCommitter writes single files to the hosted repository.
type RemoteCommitter interface {
	CommitFile(ctx context.Context, path string, content []byte, message string) (forge.CommitFileResult, error)
}

// StatusSource reports and refreshes the sync relation.
type StatusSource interface {
	Status(ctx context.Context) syncstatus.Status
	SyncEnabled() bool
	Invalidate()
	BeginWrite() (release func())
	CatchUp(ctx context.Context)
}

// Options configure a Service.
type Options struct {
	Store       PageStore
	Strategy    config.CommitStrategy
	Local       LocalCommitter
	Remote      RemoteCommitter
	Status      StatusSource
	EnforceGate bool

	DefaultAuthorName  string
	DefaultAuthorEmail string

	Journal   *eventstore.Journal
	Recorder  metrics.Recorder
	Publisher notify.Publisher
}

// Service applies edit batches.
type Service struct {
	opts Options
}

// NewService creates an edit service. Strategy auto must be resolved by the caller.
func NewService(opts Options) *Service {
	if opts.Strategy == "" || opts.Strategy == config.CommitAuto {
		opts.Strategy = config.CommitLocal
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Publisher == nil {
		opts.Publisher = notify.Noop{}
	}
	return &Service{opts: opts}
}

// Strategy returns the commit strategy in effect.
func (s *Service) Strategy() config.CommitStrategy { return s.opts.Strategy }

// Page loads a page for the read half of the persistence contract.
func (s *Service) Page(ctx context.Context, key content.PageKey, variant string) (*content.Page, error) {
	return s.opts.Store.Get(ctx, key, variant)
}

// Save persists req as one batch and commits the result. Errors before the
// page is written leave storage untouched. Commit failures after a successful
// write are reported in EditResult.CommitError, not as an error.
func (s *Service) Save(ctx context.Context, req content.EditRequest) (content.EditResult, error) {
	key := req.Key()
	s.opts.Recorder.ObserveSaveOperations(len(req.Operations))

	if err := s.checkGate(ctx, req); err != nil {
		s.reject(ctx, req, err, metrics.ResultRejected)
		return content.EditResult{Success: false, Error: err.Error()}, err
	}

	release := func() {}
	if s.opts.Status != nil {
		release = s.opts.Status.BeginWrite()
	}
	page, err := s.opts.Store.ApplyEdits(ctx, req)
	if err != nil {
		release()
		result := metrics.ResultRejected
		if errors.HasCategory(err, errors.CategoryConflict) {
			result = metrics.ResultConflict
		}
		s.reject(ctx, req, err, result)
		return content.EditResult{Success: false, Error: err.Error()}, err
	}

	s.opts.Recorder.IncSaveResult(metrics.ResultSuccess)
	s.record(ctx, key.String(), eventstore.TypeContentSaved, eventstore.ContentSaved{
		Page: key.String(), Author: req.Author, Operations: len(req.Operations), Version: page.Version,
	})
	notify.Safe(ctx, s.opts.Publisher, notify.Event{Kind: notify.KindContentSaved, Page: key.String()})
	slog.Info("Saved page edits",
		logfields.Page(key.String()),
		logfields.Operations(len(req.Operations)),
		logfields.Author(req.Author),
		slog.Int64("version", page.Version))

	res := content.EditResult{Success: true, Version: page.Version}
	commitID, err := s.commit(ctx, req, page)
	release()
	if commitID != "" && s.opts.Strategy == config.CommitRemote && s.opts.Status != nil {
		// Pull our own commit so the working copy does not report itself behind.
		s.opts.Status.CatchUp(ctx)
	}
	if err != nil {
		res.CommitError = err.Error()
		slog.Warn("Saved edits were not committed", logfields.Page(key.String()), logfields.Error(err))
	}
	res.CommitID = commitID
	return res, nil
}

func (s *Service) checkGate(ctx context.Context, req content.EditRequest) error {
	if !s.opts.EnforceGate || req.ForceOverride || s.opts.Status == nil || !s.opts.Status.SyncEnabled() {
		return nil
	}
	st := s.opts.Status.Status(ctx)
	if st.IsBehind() {
		return ErrEditingBlocked.
			WithContext("relation", string(st.Relation)).
			WithContext("behind_by", st.BehindBy)
	}
	return nil
}

func (s *Service) reject(ctx context.Context, req content.EditRequest, err error, result metrics.ResultLabel) {
	s.opts.Recorder.IncSaveResult(result)
	key := req.Key().String()
	s.record(ctx, key, eventstore.TypeContentRejected, eventstore.ContentRejected{
		Page: key, Author: req.Author, Reason: err.Error(),
	})
	slog.Info("Rejected page edits", logfields.Page(key), logfields.Error(err))
}

func (s *Service) commit(ctx context.Context, req content.EditRequest, page *content.Page) (string, error) {
	strategy := string(s.opts.Strategy)
	key := req.Key()
	message := CommitMessage(key, req.Variant, req.Author)
	start := time.Now()

	var (
		commitID string
		reason   string
		err      error
	)
	switch s.opts.Strategy {
	case config.CommitNone:
		reason = "commits disabled"
	case config.CommitLocal:
		commitID, reason, err = s.commitLocal(ctx, message, req.Author)
	case config.CommitRemote:
		commitID, reason, err = s.commitRemote(ctx, key, req.Variant, message)
	default:
		err = errors.ConfigError("unknown commit strategy").WithContext("strategy", strategy).Build()
	}

	switch {
	case err != nil:
		result := metrics.ResultFailed
		if errors.HasCategory(err, errors.CategoryConflict) {
			result = metrics.ResultConflict
		}
		s.opts.Recorder.ObserveCommitDuration(strategy, time.Since(start), result)
		return "", err
	case commitID == "":
		s.opts.Recorder.ObserveCommitDuration(strategy, time.Since(start), metrics.ResultNoop)
		s.record(ctx, key.String(), eventstore.TypeCommitSkipped, eventstore.CommitSkipped{
			Page: key.String(), Strategy: strategy, Reason: reason,
		})
		return "", nil
	}

	s.opts.Recorder.ObserveCommitDuration(strategy, time.Since(start), metrics.ResultSuccess)
	s.record(ctx, key.String(), eventstore.TypeCommitCreated, eventstore.CommitCreated{
		Page: key.String(), Strategy: strategy, CommitID: commitID,
		Path: s.opts.Store.RelPath(key, req.Variant), Message: message,
	})
	notify.Safe(ctx, s.opts.Publisher, notify.Event{
		Kind: notify.KindCommitCreated, Page: key.String(), Commit: commitID,
		Detail: map[string]string{"strategy": strategy, "version": fmt.Sprint(page.Version)},
	})
	return commitID, nil
}

func (s *Service) commitLocal(ctx context.Context, message, author string) (string, string, error) {
	if s.opts.Local == nil {
		return "", "", errors.ConfigError("local commits are not configured").Build()
	}
	name, email := s.authorIdentity(author)
	res, err := s.opts.Local.Commit(ctx, message, name, email)
	if err != nil {
		return "", "", err
	}
	if s.opts.Status != nil {
		s.opts.Status.Invalidate()
	}
	if !res.Success {
		if res.Error == git.NoChangesMessage {
			return "", res.Error, nil
		}
		return "", "", errors.GitError("local commit failed").WithContext("output", res.Error).Build()
	}
	return res.CommitID, "", nil
}

func (s *Service) commitRemote(ctx context.Context, key content.PageKey, variant, message string) (string, string, error) {
	if s.opts.Remote == nil {
		return "", "", errors.ConfigError("remote commits are not configured").Build()
	}
	data, err := s.opts.Store.ReadFile(key, variant)
	if err != nil {
		return "", "", err
	}
	res, err := s.opts.Remote.CommitFile(ctx, s.opts.Store.RelPath(key, variant), data, message)
	if err != nil {
		return "", "", err
	}
	if res.Skipped {
		return "", "remote commits not configured", nil
	}
	return res.CommitSHA, "", nil
}

// authorIdentity splits "Name <email>" or a bare name, falling back to the
// configured default author.
func (s *Service) authorIdentity(author string) (string, string) {
	author = strings.TrimSpace(author)
	if author == "" {
		return s.opts.DefaultAuthorName, s.opts.DefaultAuthorEmail
	}
	if addr, err := mail.ParseAddress(author); err == nil {
		name := addr.Name
		if name == "" {
			name = addr.Address
		}
		return name, addr.Address
	}
	return author, s.opts.DefaultAuthorEmail
}

// CommitMessage formats the commit message for a page save.
func CommitMessage(key content.PageKey, variant, author string) string {
	target := key.ContentType + "/" + key.Slug
	if variant != "" {
		target += " [" + variant + "]"
	}
	msg := fmt.Sprintf("Update %s (%s)", target, key.Locale)
	if author = strings.TrimSpace(author); author != "" {
		msg += " by " + author
	}
	return msg
}

func (s *Service) record(ctx context.Context, stream, eventType string, payload any) {
	if _, err := s.opts.Journal.Record(ctx, stream, eventType, payload); err != nil {
		slog.Warn("Failed to record event", logfields.EventType(eventType), logfields.Error(err))
	}
}
