package content

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
	"git.home.luguber.info/inful/contentsync/internal/logfields"
)

// ErrVersionMismatch is returned when an edit names a version other than the stored one.
var ErrVersionMismatch = errors.ConflictError("page version is stale").Build()

// Store reads and writes page YAML files below <repo>/<prefix>.
// Files are laid out as <prefix><type>/<slug>.<locale>.yml, or
// <prefix><type>/<slug>.<variant>.<locale>.yml for variants.
//
// Parsed pages are cached by absolute path. The cache is owned by the store:
// writes through the store refresh it and Watch evicts entries on external change.
type Store struct {
	repoPath string
	prefix   string

	mu    sync.Mutex // serializes read-modify-write of page files
	cache sync.Map   // abs path -> *Page
}

// NewStore creates a store rooted at repoPath writing under prefix.
func NewStore(repoPath, prefix string) *Store {
	if abs, err := filepath.Abs(repoPath); err == nil {
		repoPath = abs
	}
	return &Store{repoPath: repoPath, prefix: prefix}
}

// RelPath returns the repository-relative path for a page.
func (s *Store) RelPath(key PageKey, variant string) string {
	name := key.Slug
	if variant != "" {
		name += "." + variant
	}
	name += "." + key.Locale + ".yml"
	return filepath.ToSlash(filepath.Join(s.prefix, key.ContentType, name))
}

func (s *Store) absPath(key PageKey, variant string) string {
	return filepath.Join(s.repoPath, filepath.FromSlash(s.RelPath(key, variant)))
}

// Get loads a page. A missing file is a not-found error.
func (s *Store) Get(_ context.Context, key PageKey, variant string) (*Page, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateVariant(variant); err != nil {
		return nil, err
	}
	p, err := s.load(key, variant)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.NotFoundError("page not found").
			WithContext("page", key.String()).
			WithContext("variant", variant).Build()
	}
	return p.Clone(), nil
}

// load returns the cached or on-disk page, or nil when the file does not exist.
func (s *Store) load(key PageKey, variant string) (*Page, error) {
	path := s.absPath(key, variant)
	if cached, ok := s.cache.Load(path); ok {
		return cached.(*Page), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.FileSystemError("read page file").WithCause(err).WithContext("path", path).Build()
	}
	var p Page
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.ContentError("page file is not valid YAML").WithCause(err).WithContext("path", path).Build()
	}
	p.ContentType, p.Slug, p.Locale, p.Variant = key.ContentType, key.Slug, key.Locale, variant
	if p.Sections == nil {
		p.Sections = []Section{}
	}
	s.cache.Store(path, &p)
	return &p, nil
}

// ApplyEdits applies req's operations to the stored page and writes it back.
// A missing page starts empty at version 0. When req.Version is set it must
// equal the stored version. The returned page carries the new version.
func (s *Store) ApplyEdits(_ context.Context, req EditRequest) (*Page, error) {
	key := req.Key()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateVariant(req.Variant); err != nil {
		return nil, err
	}
	if len(req.Operations) == 0 {
		return nil, errors.ValidationError("no operations supplied").Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(key, req.Variant)
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = &Page{ContentType: key.ContentType, Slug: key.Slug, Locale: key.Locale, Variant: req.Variant, Sections: []Section{}}
	}
	if req.Version != nil && *req.Version != current.Version {
		return nil, ErrVersionMismatch.
			WithContext("expected", *req.Version).
			WithContext("actual", current.Version)
	}

	sections, err := Apply(current.Sections, req.Operations...)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	next.Sections = sections
	next.Version = current.Version + 1

	if err := s.write(key, req.Variant, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

func (s *Store) write(key PageKey, variant string, p *Page) error {
	path := s.absPath(key, variant)
	data, err := yaml.Marshal(p)
	if err != nil {
		return errors.ContentError("encode page").WithCause(err).Build()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileSystemError("create page directory").WithCause(err).WithContext("path", path).Build()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".page-*.tmp")
	if err != nil {
		return errors.FileSystemError("create temp file").WithCause(err).Build()
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.FileSystemError("write page file").WithCause(err).Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.FileSystemError("close page file").WithCause(err).Build()
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.FileSystemError("replace page file").WithCause(err).WithContext("path", path).Build()
	}
	s.cache.Store(path, p.Clone())
	return nil
}

// ReadFile returns the encoded page file as stored on disk.
func (s *Store) ReadFile(key PageKey, variant string) ([]byte, error) {
	path := s.absPath(key, variant)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("page not found").WithContext("page", key.String()).Build()
		}
		return nil, errors.FileSystemError("read page file").WithCause(err).WithContext("path", path).Build()
	}
	return data, nil
}

// Invalidate drops every cached page. Called after a pull rewrites the working copy.
func (s *Store) Invalidate() {
	s.cache.Range(func(k, _ any) bool {
		s.cache.Delete(k)
		return true
	})
}

// Watch evicts cache entries when page files change outside the store,
// until ctx is canceled. It blocks.
func (s *Store) Watch(ctx context.Context) error {
	root := filepath.Join(s.repoPath, filepath.FromSlash(s.prefix))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return errors.FileSystemError("create content root").WithCause(err).Build()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	// fsnotify is not recursive; watch the root and each content-type directory.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch content root %s: %w", root, err)
	}
	slog.Info("Watching content files", logfields.Path(root))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if fi, statErr := os.Stat(ev.Name); statErr == nil && fi.IsDir() {
					_ = w.Add(ev.Name)
					continue
				}
			}
			if !strings.HasSuffix(ev.Name, ".yml") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.cache.Delete(ev.Name)
				slog.Debug("Content file changed", logfields.Path(ev.Name))
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Content watcher error", logfields.Error(werr))
		}
	}
}
