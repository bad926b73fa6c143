package git

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
)

// DefaultMaxOutput bounds captured subprocess output.
const DefaultMaxOutput = 10 << 20

// NoChangesMessage is the CommitResult error when nothing under the prefix changed.
const NoChangesMessage = "No changes to commit"

// CommandExecutor abstracts command execution so tests can observe or
// interpose on git invocations.
type CommandExecutor interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// CLIExecutor runs commands with os/exec, non-interactively.
type CLIExecutor struct {
	MaxOutput int
}

// NewCLIExecutor creates an executor with the given output bound in bytes.
func NewCLIExecutor(maxOutput int) *CLIExecutor {
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	return &CLIExecutor{MaxOutput: maxOutput}
}

// Run executes name with args in dir and returns combined output.
func (e *CLIExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	out := &boundedBuffer{limit: e.MaxOutput}
	cmd.Stdout = out
	cmd.Stderr = out
	err := cmd.Run()
	if out.overflow {
		return out.Bytes(), fmt.Errorf("%s output exceeded %d bytes", name, e.MaxOutput)
	}
	return out.Bytes(), err
}

type boundedBuffer struct {
	bytes.Buffer
	limit    int
	overflow bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); len(p) > room {
		b.overflow = true
		if room > 0 {
			b.Buffer.Write(p[:room])
		}
		return len(p), nil
	}
	return b.Buffer.Write(p)
}

// CommitResult reports the outcome of a local commit.
type CommitResult struct {
	Success  bool     `json:"success"`
	CommitID string   `json:"commitId,omitempty"`
	Files    []string `json:"files,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// CommitterOptions configure a LocalCommitter.
type CommitterOptions struct {
	RepoPath      string
	ContentPrefix string // only paths under this prefix are staged; empty means all
	GitBinary     string
	// Committer identity used when the repository has none configured.
	CommitterName  string
	CommitterEmail string
	Executor       CommandExecutor
}

// LocalCommitter stages and commits content changes in the local working copy.
// At most one status, stage and commit sequence runs at a time per committer.
type LocalCommitter struct {
	opts CommitterOptions
	exec CommandExecutor
	slot chan struct{}
}

// NewLocalCommitter creates a committer.
func NewLocalCommitter(opts CommitterOptions) *LocalCommitter {
	if opts.GitBinary == "" {
		opts.GitBinary = "git"
	}
	opts.ContentPrefix = filepath.ToSlash(strings.TrimPrefix(opts.ContentPrefix, "./"))
	ex := opts.Executor
	if ex == nil {
		ex = NewCLIExecutor(DefaultMaxOutput)
	}
	return &LocalCommitter{opts: opts, exec: ex, slot: make(chan struct{}, 1)}
}

// Commit stages every changed path under the content prefix and commits
// exactly those paths. Anything staged outside the prefix stays staged.
// A working tree with no matching changes yields Success=false and
// Error=NoChangesMessage without an error return. Errors are reserved for
// failures to run git at all.
func (c *LocalCommitter) Commit(ctx context.Context, message, authorName, authorEmail string) (CommitResult, error) {
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return CommitResult{}, ErrCommitInProgress.WithCause(ctx.Err())
	}
	defer func() { <-c.slot }()

	start := time.Now()
	changes, err := c.status(ctx)
	if err != nil {
		return CommitResult{}, err
	}
	if len(changes) == 0 {
		return CommitResult{Success: false, Error: NoChangesMessage}, nil
	}

	var removed, added []string
	for _, ch := range changes {
		if ch.deleted {
			removed = append(removed, ch.path)
		} else {
			added = append(added, ch.path)
		}
	}
	if len(removed) > 0 {
		if out, err := c.git(ctx, append([]string{"rm", "--cached", "--quiet", "--ignore-unmatch", "--"}, removed...)...); err != nil {
			return CommitResult{}, gitFailure("stage removals", out, err)
		}
	}
	if len(added) > 0 {
		if out, err := c.git(ctx, append([]string{"add", "--"}, added...)...); err != nil {
			return CommitResult{}, gitFailure("stage changes", out, err)
		}
	}

	files := append(append([]string{}, added...), removed...)
	args := []string{"commit", "--quiet", "-m", message}
	if author := formatAuthor(authorName, authorEmail); author != "" {
		args = append(args, "--author", author)
	}
	// --only keeps entries staged outside the prefix out of this commit.
	args = append(append(args, "--only", "--"), files...)
	if out, err := c.git(ctx, args...); err != nil {
		if bytes.Contains(out, []byte("nothing to commit")) || bytes.Contains(out, []byte("nothing added to commit")) {
			return CommitResult{Success: false, Error: NoChangesMessage}, nil
		}
		return CommitResult{Success: false, Error: strings.TrimSpace(string(out))}, nil
	}

	out, err := c.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return CommitResult{}, gitFailure("resolve new commit", out, err)
	}
	res := CommitResult{Success: true, CommitID: strings.TrimSpace(string(out)), Files: files}
	slog.Info("Committed content changes",
		logfields.Commit(short(res.CommitID)),
		logfields.Files(len(files)),
		logfields.Author(authorName),
		logfields.Duration(time.Since(start)))
	return res, nil
}

func (c *LocalCommitter) git(ctx context.Context, args ...string) ([]byte, error) {
	full := make([]string, 0, len(args)+4)
	if c.opts.CommitterName != "" {
		full = append(full, "-c", "user.name="+c.opts.CommitterName)
	}
	if c.opts.CommitterEmail != "" {
		full = append(full, "-c", "user.email="+c.opts.CommitterEmail)
	}
	full = append(full, args...)
	return c.exec.Run(ctx, c.opts.RepoPath, c.opts.GitBinary, full...)
}

type pathChange struct {
	path    string
	deleted bool
}

func (c *LocalCommitter) status(ctx context.Context) ([]pathChange, error) {
	out, err := c.git(ctx, "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return nil, gitFailure("read status", out, err)
	}
	return filterChanges(parsePorcelain(string(out)), c.opts.ContentPrefix), nil
}

// parsePorcelain reads `git status --porcelain` v1 output.
func parsePorcelain(out string) []pathChange {
	var changes []pathChange
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		x, y := line[0], line[1]
		path := line[3:]
		if x == 'R' || x == 'C' {
			// "old -> new": the old path is gone, the new one needs adding.
			if i := strings.Index(path, " -> "); i >= 0 {
				changes = append(changes, pathChange{path: unquote(path[:i]), deleted: true})
				path = path[i+4:]
			}
		}
		changes = append(changes, pathChange{path: unquote(path), deleted: x == 'D' || y == 'D'})
	}
	return changes
}

func filterChanges(changes []pathChange, prefix string) []pathChange {
	if prefix == "" {
		return changes
	}
	out := changes[:0]
	for _, ch := range changes {
		if strings.HasPrefix(ch.path, prefix) {
			out = append(out, ch)
		}
	}
	return out
}

func unquote(p string) string {
	if strings.HasPrefix(p, `"`) {
		if s, err := strconv.Unquote(p); err == nil {
			return s
		}
	}
	return p
}

func formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s <%s>", name, email)
	case name != "":
		return fmt.Sprintf("%s <%s>", name, "noreply@localhost")
	default:
		return ""
	}
}

func gitFailure(op string, out []byte, err error) error {
	return errors.GitError("git "+op+" failed").
		WithCause(err).
		WithContext("output", strings.TrimSpace(string(out))).
		Build()
}
