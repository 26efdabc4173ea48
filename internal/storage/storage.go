// Package storage implements the byte-level file capability the project
// runtime reads settings and message files through.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by ReadFile when nothing is stored at a path.
var ErrNotFound = errors.New("storage: file not found")

// Storage reads and writes whole files by slash-separated path.
type Storage interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
}

// CleanPath normalizes p to a relative slash path ("./a/../b.json" -> "b.json").
// Paths escaping the root are rejected.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return "", fmt.Errorf("path is required")
	}
	if rel := path.Clean(p); rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %q escapes the storage root", p)
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("path %q does not name a file", p)
	}
	return cleaned, nil
}
