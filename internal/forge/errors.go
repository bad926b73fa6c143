package forge

import (
	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
)

var (
	// ErrNotConfigured signals that no token or repository is configured for remote commits.
	ErrNotConfigured = errors.ConfigError("remote commits are not configured (set github.token and github.repo)").
				WithRetry(errors.RetryNever).Build()

	// ErrStaleWrite signals that the file changed upstream since its hash was read.
	ErrStaleWrite = errors.ConflictError("remote file changed since it was read").Build()

	// ErrPathNotAllowed signals a write outside the allow-listed content prefix.
	ErrPathNotAllowed = errors.ValidationError("path is outside the content prefix").Build()
)
