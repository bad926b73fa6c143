package git

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
)

// TrackerOptions configure a Tracker.
type TrackerOptions struct {
	RepoPath string
	Remote   string // remote name, default "origin"
	Branch   string // tracked branch, default "main"
	// URL overrides the remote's configured URL for fetch and ls-remote.
	URL            string
	Auth           transport.AuthMethod
	ResetOnDiverge bool
}

// Divergence compares local HEAD with the remote tracking branch.
type Divergence struct {
	LocalHash  string
	RemoteHash string
	Ahead      int
	Behind     int
}

// CommitSummary describes one commit missing from the working copy.
type CommitSummary struct {
	ID           string    `json:"id"`
	Message      string    `json:"message"`
	Author       string    `json:"author"`
	Date         time.Time `json:"date"`
	ChangedFiles []string  `json:"changedFiles"`
}

// SyncResult reports a fast-forward.
type SyncResult struct {
	FromRef string `json:"fromRef"`
	ToRef   string `json:"toRef"`
	Pulled  int    `json:"pulled"`
	Reset   bool   `json:"reset,omitempty"`
}

// Tracker compares and synchronizes the working copy with one remote branch.
type Tracker struct {
	opts  TrackerOptions
	heads *RemoteHeadCache
	mu    sync.Mutex // serializes fetch and reset against the working copy
}

// NewTracker creates a tracker. heads may be nil to always fetch.
func NewTracker(opts TrackerOptions, heads *RemoteHeadCache) *Tracker {
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	return &Tracker{opts: opts, heads: heads}
}

// Branch returns the tracked branch name.
func (t *Tracker) Branch() string { return t.opts.Branch }

func (t *Tracker) open() (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(t.opts.RepoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, ErrNotRepository.WithCause(err).WithContext("path", t.opts.RepoPath)
	}
	return repo, nil
}

// remoteURL returns the URL used for network operations.
func (t *Tracker) remoteURL(repo *git.Repository) string {
	if t.opts.URL != "" {
		return t.opts.URL
	}
	if rem, err := repo.Remote(t.opts.Remote); err == nil && len(rem.Config().URLs) > 0 {
		return rem.Config().URLs[0]
	}
	return ""
}

// Fetch updates refs/remotes/<remote>/* . When a head cache is configured and
// ls-remote shows the branch has not moved since the last fetch, the fetch is skipped.
// It reports whether objects were fetched.
func (t *Tracker) Fetch(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	repo, err := t.open()
	if err != nil {
		return false, err
	}
	url := t.remoteURL(repo)

	var head string
	if t.heads != nil && url != "" {
		head, err = LsRemote(ctx, url, t.opts.Branch, t.opts.Auth)
		if err != nil {
			return false, err
		}
		if cached := t.heads.Get(url, t.opts.Branch); cached != nil && cached.CommitSHA == head {
			if _, rerr := repo.Reference(t.remoteRefName(), true); rerr == nil {
				slog.Debug("Remote head unchanged, skipping fetch", logfields.Branch(t.opts.Branch), logfields.Commit(short(head)))
				return false, nil
			}
		}
	}

	fetchOpts := &git.FetchOptions{
		RemoteName: t.opts.Remote,
		Tags:       git.NoTags,
		RefSpecs:   []ggitcfg.RefSpec{ggitcfg.RefSpec("+refs/heads/*:refs/remotes/" + t.opts.Remote + "/*")},
		Auth:       t.opts.Auth,
	}
	if t.opts.URL != "" {
		fetchOpts.RemoteURL = t.opts.URL
	}
	if err := repo.FetchContext(ctx, fetchOpts); err != nil && !stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		return false, classifyRemoteError("fetch", url, err)
	}

	if t.heads != nil && head != "" {
		t.heads.Set(url, t.opts.Branch, head)
		if err := t.heads.Save(); err != nil {
			slog.Warn("Failed to persist remote head cache", logfields.Error(err))
		}
	}
	return true, nil
}

func (t *Tracker) remoteRefName() plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(t.opts.Remote, t.opts.Branch)
}

func (t *Tracker) refs(repo *git.Repository) (local, remote plumbing.Hash, err error) {
	head, err := repo.Head()
	if err != nil {
		return plumbing.ZeroHash, plumbing.ZeroHash, errors.GitError("resolve HEAD").WithCause(err).Build()
	}
	remoteRef, err := repo.Reference(t.remoteRefName(), true)
	if err != nil {
		return plumbing.ZeroHash, plumbing.ZeroHash, ErrRemoteBranchMissing.
			WithCause(err).WithContext("ref", t.remoteRefName().String())
	}
	return head.Hash(), remoteRef.Hash(), nil
}

// Compare counts commits unique to each side using the last fetched remote ref.
func (t *Tracker) Compare(_ context.Context) (Divergence, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	repo, err := t.open()
	if err != nil {
		return Divergence{}, err
	}
	local, remote, err := t.refs(repo)
	if err != nil {
		return Divergence{}, err
	}
	d := Divergence{LocalHash: local.String(), RemoteHash: remote.String()}
	if local == remote {
		return d, nil
	}
	localSet, err := ancestors(repo, local)
	if err != nil {
		return Divergence{}, err
	}
	remoteSet, err := ancestors(repo, remote)
	if err != nil {
		return Divergence{}, err
	}
	for h := range remoteSet {
		if _, ok := localSet[h]; !ok {
			d.Behind++
		}
	}
	for h := range localSet {
		if _, ok := remoteSet[h]; !ok {
			d.Ahead++
		}
	}
	return d, nil
}

// MissingCommits lists commits on the remote branch that HEAD lacks, newest first.
// limit <= 0 means no limit.
func (t *Tracker) MissingCommits(_ context.Context, limit int) ([]CommitSummary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	repo, err := t.open()
	if err != nil {
		return nil, err
	}
	local, remote, err := t.refs(repo)
	if err != nil {
		return nil, err
	}
	if local == remote {
		return nil, nil
	}
	localSet, err := ancestors(repo, local)
	if err != nil {
		return nil, err
	}

	var missing []*object.Commit
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{remote}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		if _, ok := localSet[h]; ok {
			continue
		}
		c, err := repo.CommitObject(h)
		if err != nil {
			return nil, errors.GitError("read commit").WithCause(err).WithContext("commit", h.String()).Build()
		}
		missing = append(missing, c)
		queue = append(queue, c.ParentHashes...)
	}
	sort.SliceStable(missing, func(i, j int) bool {
		return missing[i].Committer.When.After(missing[j].Committer.When)
	})
	if limit > 0 && len(missing) > limit {
		missing = missing[:limit]
	}

	out := make([]CommitSummary, 0, len(missing))
	for _, c := range missing {
		files, err := changedFiles(c)
		if err != nil {
			slog.Debug("Failed to diff commit", logfields.Commit(short(c.Hash.String())), logfields.Error(err))
		}
		out = append(out, CommitSummary{
			ID:           c.Hash.String(),
			Message:      firstLine(c.Message),
			Author:       c.Author.Name,
			Date:         c.Author.When,
			ChangedFiles: files,
		})
	}
	return out, nil
}

// FastForward moves the local branch to the remote tracking ref. Diverged
// branches fail with ErrDiverged unless ResetOnDiverge is set. A branch that
// is only ahead is left alone.
//
// Only files that differ between the two commits are rewritten; uncommitted
// changes elsewhere in the working copy survive. A path that changed upstream
// and also holds uncommitted content that differs from the upstream version
// fails the pull with ErrLocalChanges and leaves the working copy untouched.
func (t *Tracker) FastForward(_ context.Context) (SyncResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	repo, err := t.open()
	if err != nil {
		return SyncResult{}, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return SyncResult{}, errors.GitError("open worktree").WithCause(err).Build()
	}
	local, remote, err := t.refs(repo)
	if err != nil {
		return SyncResult{}, err
	}
	res := SyncResult{FromRef: local.String(), ToRef: local.String()}
	if local == remote {
		return res, nil
	}

	ff, err := isAncestor(repo, local, remote)
	if err != nil {
		slog.Warn("Ancestor check failed", logfields.Error(err))
	}
	if !ff {
		if behind, _ := isAncestor(repo, remote, local); behind {
			slog.Info("Local branch is ahead of remote; nothing to pull", logfields.Branch(t.opts.Branch))
			return res, nil
		}
		if !t.opts.ResetOnDiverge {
			return res, ErrDiverged.WithContext("branch", t.opts.Branch)
		}
		slog.Warn("Diverged branch, resetting to remote", logfields.Branch(t.opts.Branch))
		res.Reset = true
	}

	pulled, err := countBetween(repo, local, remote)
	if err != nil {
		return res, err
	}
	updates, err := planUpdate(repo, wt.Filesystem.Root(), local, remote)
	if err != nil {
		return res, err
	}
	for _, u := range updates {
		if err := u.apply(); err != nil {
			return res, errors.FileSystemError("update working copy").
				WithCause(err).WithContext("path", u.rel).Build()
		}
	}
	// The files are in place; move HEAD and the index without touching the tree.
	if err := wt.Reset(&git.ResetOptions{Commit: remote, Mode: git.MixedReset}); err != nil {
		return res, errors.GitError("fast-forward reset").WithCause(err).Build()
	}
	res.ToRef = remote.String()
	res.Pulled = pulled
	slog.Info("Fast-forwarded working copy",
		logfields.Branch(t.opts.Branch),
		slog.String("from", short(local.String())),
		slog.String("to", short(remote.String())),
		slog.Int("pulled", pulled),
		logfields.Files(len(updates)))
	return res, nil
}

// fileUpdate rewrites one working copy path to its upstream content.
type fileUpdate struct {
	rel    string
	path   string
	remove bool
	mode   filemode.FileMode
	data   []byte
}

func (u fileUpdate) apply() error {
	if u.remove {
		if err := os.Remove(u.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(u.path), 0o750); err != nil {
		return err
	}
	if u.mode == filemode.Symlink {
		_ = os.Remove(u.path)
		return os.Symlink(string(u.data), u.path)
	}
	perm := os.FileMode(0o644)
	if u.mode == filemode.Executable {
		perm = 0o755
	}
	return os.WriteFile(u.path, u.data, perm)
}

// planUpdate lists the working copy writes that take the tree from local to
// remote. Every touched path must still hold the local commit's content, or
// already hold the remote's; anything else is an uncommitted edit in the way.
func planUpdate(repo *git.Repository, root string, local, remote plumbing.Hash) ([]fileUpdate, error) {
	localTree, err := commitTree(repo, local)
	if err != nil {
		return nil, err
	}
	remoteTree, err := commitTree(repo, remote)
	if err != nil {
		return nil, err
	}
	changes, err := object.DiffTree(localTree, remoteTree)
	if err != nil {
		return nil, errors.GitError("diff trees").WithCause(err).Build()
	}

	var (
		updates []fileUpdate
		blocked []string
	)
	for _, ch := range changes {
		rel := ch.To.Name
		if rel == "" {
			rel = ch.From.Name
		}
		path := filepath.Join(root, filepath.FromSlash(rel))
		current, exists, err := worktreeBlob(path)
		if err != nil {
			return nil, errors.FileSystemError("read working copy").WithCause(err).WithContext("path", rel).Build()
		}

		base := entryHash(ch.From)
		target := entryHash(ch.To)
		switch {
		case exists && current == target, !exists && target == plumbing.ZeroHash:
			continue // already upstream content
		case exists && current == base, !exists && base == plumbing.ZeroHash:
		default:
			blocked = append(blocked, rel)
			continue
		}

		u := fileUpdate{rel: rel, path: path}
		if ch.To.Name == "" {
			u.remove = true
		} else {
			f, err := remoteTree.File(rel)
			if err != nil {
				return nil, errors.GitError("read remote file").WithCause(err).WithContext("path", rel).Build()
			}
			body, err := f.Contents()
			if err != nil {
				return nil, errors.GitError("read remote file").WithCause(err).WithContext("path", rel).Build()
			}
			u.mode = f.Mode
			u.data = []byte(body)
		}
		updates = append(updates, u)
	}
	if len(blocked) > 0 {
		sort.Strings(blocked)
		return nil, ErrLocalChanges.WithContext("paths", strings.Join(blocked, ", "))
	}
	return updates, nil
}

func commitTree(repo *git.Repository, h plumbing.Hash) (*object.Tree, error) {
	c, err := repo.CommitObject(h)
	if err != nil {
		return nil, errors.GitError("read commit").WithCause(err).WithContext("commit", h.String()).Build()
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, errors.GitError("read tree").WithCause(err).WithContext("commit", h.String()).Build()
	}
	return tree, nil
}

func entryHash(e object.ChangeEntry) plumbing.Hash {
	if e.Name == "" {
		return plumbing.ZeroHash
	}
	return e.TreeEntry.Hash
}

// worktreeBlob hashes a working copy file the way git would store it.
func worktreeBlob(path string) (plumbing.Hash, bool, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return plumbing.ZeroHash, false, err
		}
		return plumbing.ComputeHash(plumbing.BlobObject, []byte(filepath.ToSlash(target))), true, nil
	}
	if info.IsDir() {
		return plumbing.ZeroHash, true, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is inside the working copy
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	return plumbing.ComputeHash(plumbing.BlobObject, data), true, nil
}

// HeadCommit returns the current HEAD hash.
func (t *Tracker) HeadCommit() (string, error) {
	repo, err := t.open()
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", errors.GitError("resolve HEAD").WithCause(err).Build()
	}
	return head.Hash().String(), nil
}

func ancestors(repo *git.Repository, from plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{from}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		c, err := repo.CommitObject(h)
		if err != nil {
			return nil, errors.GitError("read commit").WithCause(err).WithContext("commit", h.String()).Build()
		}
		queue = append(queue, c.ParentHashes...)
	}
	return seen, nil
}

// isAncestor reports whether a is reachable from b.
func isAncestor(repo *git.Repository, a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{b}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == a {
			return true, nil
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}

func countBetween(repo *git.Repository, local, remote plumbing.Hash) (int, error) {
	localSet, err := ancestors(repo, local)
	if err != nil {
		return 0, err
	}
	remoteSet, err := ancestors(repo, remote)
	if err != nil {
		return 0, err
	}
	n := 0
	for h := range remoteSet {
		if _, ok := localSet[h]; !ok {
			n++
		}
	}
	return n, nil
}

func changedFiles(c *object.Commit) ([]string, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}
	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, err
		}
		if parentTree, err = parent.Tree(); err != nil {
			return nil, err
		}
	}
	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(changes))
	for _, ch := range changes {
		name := ch.To.Name
		if name == "" {
			name = ch.From.Name
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
