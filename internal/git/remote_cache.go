package git

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"

	"git.home.luguber.info/inful/contentsync/internal/logfields"
)

// RemoteHeadCache stores the last fetched remote head per URL and branch so
// status refreshes can skip a full fetch when the remote has not moved.
type RemoteHeadCache struct {
	mu      sync.RWMutex
	entries map[string]*RemoteHeadEntry
	path    string
}

// RemoteHeadEntry represents a cached remote head.
type RemoteHeadEntry struct {
	URL       string    `json:"url"`
	Branch    string    `json:"branch"`
	CommitSHA string    `json:"commit_sha"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRemoteHeadCache creates a cache persisted under cacheDir.
// If cacheDir is empty the cache lives in memory only.
func NewRemoteHeadCache(cacheDir string) *RemoteHeadCache {
	cache := &RemoteHeadCache{entries: make(map[string]*RemoteHeadEntry)}
	if cacheDir == "" {
		return cache
	}
	cache.path = filepath.Join(cacheDir, "remote-heads.json")
	if err := cache.load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load remote head cache", logfields.Error(err))
	}
	return cache
}

// Get retrieves a cached entry.
func (c *RemoteHeadCache) Get(url, branch string) *RemoteHeadEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[cacheKey(url, branch)]
}

// Set records a remote head.
func (c *RemoteHeadCache) Set(url, branch, commitSHA string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(url, branch)] = &RemoteHeadEntry{
		URL:       url,
		Branch:    branch,
		CommitSHA: commitSHA,
		UpdatedAt: time.Now(),
	}
}

// Forget removes an entry so the next check forces a fetch.
func (c *RemoteHeadCache) Forget(url, branch string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(url, branch))
}

// Save persists the cache to disk.
func (c *RemoteHeadCache) Save() error {
	if c.path == "" {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

func (c *RemoteHeadCache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := json.Unmarshal(data, &c.entries); err != nil {
		return fmt.Errorf("unmarshal cache: %w", err)
	}
	return nil
}

func cacheKey(url, branch string) string {
	return url + ":" + branch
}

// LsRemote returns the commit a remote branch points at without fetching objects.
func LsRemote(ctx context.Context, url, branch string, auth transport.AuthMethod) (string, error) {
	rem := git.NewRemote(memory.NewStorage(), &ggitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})
	refs, err := rem.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		return "", classifyRemoteError("ls-remote", url, err)
	}
	want := plumbing.NewBranchReferenceName(branch)
	for _, ref := range refs {
		if ref.Name() == want {
			return ref.Hash().String(), nil
		}
	}
	return "", ErrRemoteBranchMissing.WithContext("branch", branch)
}
