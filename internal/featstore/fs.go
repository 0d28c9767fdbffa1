package featstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const artifactDirPermissions = 0o750

// ErrInvalidKey indicates a cache key containing path separators.
var ErrInvalidKey = errors.New("invalid artifact key")

// FS implements core.ObjectStore over a flat cache directory, one file per
// key. Every call opens its own file handle, so concurrent Download calls
// from loader workers share no mutable state.
type FS struct {
	dir string
}

// NewFS creates the cache directory if needed and returns a store over it.
func NewFS(dir string) (*FS, error) {
	err := os.MkdirAll(dir, artifactDirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache directory '%s': %w", dir, err)
	}

	return &FS{dir: dir}, nil
}

// Download reads the artifact stored under key.
func (s *FS) Download(_ context.Context, key string) ([]byte, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 -- key is validated flat
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact '%s': %w", key, err)
	}

	return data, nil
}

// Upload writes the artifact under key, replacing any previous content.
func (s *FS) Upload(_ context.Context, key string, data []byte) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	writeErr := os.WriteFile(path, data, 0o600)
	if writeErr != nil {
		return fmt.Errorf("failed to write artifact '%s': %w", key, writeErr)
	}

	return nil
}

func (s *FS) keyPath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(s.dir, key), nil
}
