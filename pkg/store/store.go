// Package store keeps downloaded package contents on disk, one directory per
// resolved locator: <root>/<fetcher>/<package>/<revision>.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkgpin/pkgpin/pkg/locator"
)

const (
	dirPerm     = 0o755
	hashPrefix  = "sha256:"
	stagingDir  = ".staging"
	DefaultRoot = ".pkgpin/cache"
)

var ErrUnresolved = errors.New("locator is not fully resolved")

type Store struct {
	root string

	mu sync.Mutex
	// locks serializes replacement of each package directory.
	locks map[string]*sync.Mutex
}

// Entry is a package directory in the store.
type Entry struct {
	Dir    string `json:"dir"`
	Digest string `json:"digest"`
}

func New(root string) *Store {
	return &Store{root: root}
}

// Default returns the store under ~/.pkgpin/cache.
func Default() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	return New(filepath.Join(home, DefaultRoot)), nil
}

func (s *Store) Root() string { return s.root }

// Path joins segments under the store root. It does not create or verify
// the path.
func (s *Store) Path(segments ...string) string {
	return filepath.Join(append([]string{s.root}, segments...)...)
}

// Dir returns the directory for a resolved locator. Each component is
// path-escaped, so scoped names like @types/node stay one segment.
func (s *Store) Dir(l *locator.Locator) (string, error) {
	if !l.IsResolved() {
		return "", fmt.Errorf("%w: %q", ErrUnresolved, l)
	}
	segments := make([]string, 0, 3)
	for _, c := range []locator.Component{l.Fetcher(), l.Package(), l.Revision()} {
		seg := url.PathEscape(c.Value)
		if seg == "." || seg == ".." {
			return "", fmt.Errorf("invalid store path component %q in %q", c.Value, l)
		}
		segments = append(segments, seg)
	}
	return s.Path(segments...), nil
}

// Exists reports whether the locator's directory is present.
func (s *Store) Exists(l *locator.Locator) (bool, error) {
	dir, err := s.Dir(l)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(dir)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Put fills a staging directory with fill and moves it into place as the
// locator's directory, replacing any previous contents. Nothing is left
// behind when fill fails.
func (s *Store) Put(l *locator.Locator, fill func(dir string) error) (*Entry, error) {
	dir, err := s.Dir(l)
	if err != nil {
		return nil, err
	}

	staging := s.Path(stagingDir)
	if err := os.MkdirAll(staging, dirPerm); err != nil {
		return nil, fmt.Errorf("creating %s: %w", staging, err)
	}
	tmp, err := os.MkdirTemp(staging, "put-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	if err := fill(tmp); err != nil {
		if rmErr := os.RemoveAll(tmp); rmErr != nil {
			return nil, errors.Join(err, fmt.Errorf("cleaning up %s: %w", tmp, rmErr))
		}
		return nil, err
	}

	lock := s.lock(dir)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(dir), dirPerm); err != nil {
		return nil, errors.Join(fmt.Errorf("creating %s: %w", filepath.Dir(dir), err), os.RemoveAll(tmp))
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, errors.Join(fmt.Errorf("replacing %s: %w", dir, err), os.RemoveAll(tmp))
	}
	if err := os.Rename(tmp, dir); err != nil {
		return nil, errors.Join(fmt.Errorf("moving package into %s: %w", dir, err), os.RemoveAll(tmp))
	}

	digest, err := Digest(dir)
	if err != nil {
		return nil, err
	}
	return &Entry{Dir: dir, Digest: digest}, nil
}

func (s *Store) lock(dir string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = map[string]*sync.Mutex{}
	}
	l, ok := s.locks[dir]
	if !ok {
		l = &sync.Mutex{}
		s.locks[dir] = l
	}
	return l
}

// Remove deletes the locator's directory, if any.
func (s *Store) Remove(l *locator.Locator) error {
	dir, err := s.Dir(l)
	if err != nil {
		return err
	}
	lock := s.lock(dir)
	lock.Lock()
	defer lock.Unlock()
	return os.RemoveAll(dir)
}

// Digest computes a "sha256:<hex>" hash over every file under dir, visited
// in sorted order. Each file contributes its slash-separated relative path,
// a NUL byte, its decimal length, another NUL byte and its contents.
func Digest(dir string) (string, error) {
	h := sha256.New()

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f)))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%d\x00", f, len(data))
		h.Write(data)
	}

	return hashPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
