package config

import (
	"net/url"
	"strings"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
)

// RepoRef identifies a hosted repository.
type RepoRef struct {
	Owner string
	Name  string
	Host  string
}

// ParseRepoRef accepts "owner/name", "host/owner/name", an https URL or an
// scp-style ssh URL, with or without a ".git" suffix.
func ParseRepoRef(raw string) (RepoRef, error) {
	s := strings.TrimSpace(raw)
	invalid := func() (RepoRef, error) {
		return RepoRef{}, errors.ConfigError("invalid repository reference").
			WithContext("repo", raw).Build()
	}
	if s == "" {
		return invalid()
	}

	host := "github.com"
	switch {
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return invalid()
		}
		host = u.Hostname()
		s = u.Path
	case strings.HasPrefix(s, "git@"):
		rest := strings.TrimPrefix(s, "git@")
		h, p, ok := strings.Cut(rest, ":")
		if !ok {
			return invalid()
		}
		host, s = h, p
	}

	s = strings.Trim(strings.TrimSuffix(strings.Trim(s, "/"), ".git"), "/")
	parts := strings.Split(s, "/")
	if len(parts) == 3 && strings.Contains(parts[0], ".") {
		host, parts = parts[0], parts[1:]
	}
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return invalid()
	}
	return RepoRef{Owner: parts[0], Name: parts[1], Host: host}, nil
}

// IsZero reports whether the reference is unset.
func (r RepoRef) IsZero() bool { return r.Owner == "" || r.Name == "" }

// FullName returns "owner/name".
func (r RepoRef) FullName() string { return r.Owner + "/" + r.Name }

// CloneURL returns the https clone URL.
func (r RepoRef) CloneURL() string {
	return "https://" + r.Host + "/" + r.FullName() + ".git"
}

// String implements fmt.Stringer.
func (r RepoRef) String() string { return r.FullName() }
