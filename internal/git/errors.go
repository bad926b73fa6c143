package git

import (
	stderrors "errors"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
)

var (
	// ErrNotRepository is returned when the configured path is not a git working copy.
	ErrNotRepository = errors.GitError("path is not a git repository").WithRetry(errors.RetryNever).Build()

	// ErrRemoteBranchMissing is returned when the tracked remote branch does not exist locally after fetch.
	ErrRemoteBranchMissing = errors.GitError("remote tracking branch not found").WithRetry(errors.RetryNever).Build()

	// ErrDiverged is returned by FastForward when local and remote both have unique commits.
	ErrDiverged = errors.ConflictError("local branch diverged from remote (enable sync.reset_on_diverge to override)").Build()

	// ErrLocalChanges is returned by FastForward when uncommitted edits sit on
	// paths the remote also changed.
	ErrLocalChanges = errors.ConflictError("uncommitted changes would be overwritten by sync").Build()

	// ErrCommitInProgress is returned when waiting for the commit slot is canceled.
	ErrCommitInProgress = errors.GitError("commit slot unavailable").Build()
)

// classifyRemoteError maps go-git transport failures onto classified errors.
func classifyRemoteError(op, url string, err error) error {
	switch {
	case stderrors.Is(err, transport.ErrAuthenticationRequired),
		stderrors.Is(err, transport.ErrAuthorizationFailed),
		stderrors.Is(err, transport.ErrInvalidAuthMethod):
		return errors.AuthError("remote rejected credentials").
			WithCause(err).WithContext("op", op).WithContext("url", url).Build()
	case stderrors.Is(err, transport.ErrRepositoryNotFound):
		return errors.NotFoundError("remote repository not found").
			WithCause(err).WithContext("op", op).WithContext("url", url).Build()
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "authentication") || strings.Contains(msg, "401") || strings.Contains(msg, "403") {
		return errors.AuthError("remote rejected credentials").
			WithCause(err).WithContext("op", op).WithContext("url", url).Build()
	}
	return errors.NetworkError(op+" failed").
		WithCategory(errors.CategoryGit).
		WithCause(err).WithContext("url", url).Build()
}
