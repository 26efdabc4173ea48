package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirStorage stores files below a root directory on the local disk.
type DirStorage struct {
	root string
}

func NewDirStorage(root string) (*DirStorage, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	return &DirStorage{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *DirStorage) Root() string { return s.root }

func (s *DirStorage) resolve(p string) (string, error) {
	key, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := s.confine(full); err != nil {
		return "", err
	}
	return full, nil
}

// confine rejects paths that leave the root through a symlink. It checks
// the nearest existing ancestor so files that do not exist yet can be
// written.
func (s *DirStorage) confine(full string) error {
	realRoot, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		realRoot = s.root
	}
	for dir := full; dir != s.root; dir = filepath.Dir(dir) {
		if dir == filepath.Dir(dir) {
			return fmt.Errorf("path %s is outside the storage root", full)
		}
		resolved, err := filepath.EvalSymlinks(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("resolve %s: %w", full, err)
		}
		if !hasPathPrefix(resolved, realRoot) {
			return fmt.Errorf("path %s resolves outside the storage root", full)
		}
		return nil
	}
	return nil
}

func hasPathPrefix(path, root string) bool {
	path, root = filepath.Clean(path), filepath.Clean(root)
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	return strings.HasPrefix(path, strings.TrimSuffix(root, sep)+sep)
}

func (s *DirStorage) ReadFile(_ context.Context, p string) ([]byte, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

func (s *DirStorage) WriteFile(_ context.Context, p string, data []byte) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", p, err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", p, err)
	}
	return nil
}
