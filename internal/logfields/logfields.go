package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyContentType = "content_type"
	KeySlug        = "slug"
	KeyLocale      = "locale"
	KeyPage        = "page"
	KeyOperations  = "operations"
	KeyDirection   = "direction"
	KeyRepo        = "repository"
	KeyBranch      = "branch"
	KeyRemote      = "remote"
	KeyCommit      = "commit"
	KeyLocalRef    = "local_ref"
	KeyRemoteRef   = "remote_ref"
	KeyRelation    = "relation"
	KeyBehind      = "behind_by"
	KeyAhead       = "ahead_by"
	KeyPath        = "path"
	KeyFiles       = "files"
	KeyStrategy    = "strategy"
	KeyAuthor      = "author"
	KeyMethod      = "method"
	KeyStatus      = "status"
	KeyURL         = "url"
	KeyRequestID   = "request_id"
	KeyEventType   = "event_type"
	KeyDurationMS  = "duration_ms"
	KeyAttempt     = "attempt"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func ContentType(t string) slog.Attr { return slog.String(KeyContentType, t) }
func Slug(s string) slog.Attr        { return slog.String(KeySlug, s) }
func Locale(l string) slog.Attr      { return slog.String(KeyLocale, l) }
func Page(key string) slog.Attr      { return slog.String(KeyPage, key) }
func Operations(n int) slog.Attr     { return slog.Int(KeyOperations, n) }
func Direction(d string) slog.Attr   { return slog.String(KeyDirection, d) }
func Repository(r string) slog.Attr  { return slog.String(KeyRepo, r) }
func Branch(b string) slog.Attr      { return slog.String(KeyBranch, b) }
func Remote(r string) slog.Attr      { return slog.String(KeyRemote, r) }
func Commit(id string) slog.Attr     { return slog.String(KeyCommit, id) }
func LocalRef(ref string) slog.Attr  { return slog.String(KeyLocalRef, ref) }
func RemoteRef(ref string) slog.Attr { return slog.String(KeyRemoteRef, ref) }
func Relation(r string) slog.Attr    { return slog.String(KeyRelation, r) }
func BehindBy(n int) slog.Attr       { return slog.Int(KeyBehind, n) }
func AheadBy(n int) slog.Attr        { return slog.Int(KeyAhead, n) }
func Path(p string) slog.Attr        { return slog.String(KeyPath, p) }
func Files(n int) slog.Attr          { return slog.Int(KeyFiles, n) }
func Strategy(s string) slog.Attr    { return slog.String(KeyStrategy, s) }
func Author(a string) slog.Attr      { return slog.String(KeyAuthor, a) }
func Method(m string) slog.Attr      { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr      { return slog.Int(KeyStatus, code) }
func URL(u string) slog.Attr         { return slog.String(KeyURL, u) }
func RequestID(id string) slog.Attr  { return slog.String(KeyRequestID, id) }
func EventType(t string) slog.Attr   { return slog.String(KeyEventType, t) }
func Attempt(n int) slog.Attr        { return slog.Int(KeyAttempt, n) }

// Duration reports d in milliseconds under the canonical duration key.
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
