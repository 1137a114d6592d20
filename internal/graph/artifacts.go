package graph

import (
	"fmt"
	"os"
	"path/filepath"
)

// ArtifactStore owns the flat cache directory holding compiled module
// files. Every artifact lives directly in the directory under its
// collision-free cache name; there is no subdirectory structure to keep
// in sync with the source tree.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates the store and its directory.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &ArtifactStore{dir: dir}, nil
}

// Dir returns the cache directory path.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Path returns the absolute path for a cache name.
func (s *ArtifactStore) Path(cacheName string) string {
	return filepath.Join(s.dir, cacheName)
}

// Write stores a compiled artifact under its cache name.
func (s *ArtifactStore) Write(cacheName string, code []byte) error {
	if err := os.WriteFile(s.Path(cacheName), code, 0o644); err != nil {
		return fmt.Errorf("failed to write cache artifact %s: %w", cacheName, err)
	}
	return nil
}

// Read loads a previously written artifact.
func (s *ArtifactStore) Read(cacheName string) ([]byte, error) {
	code, err := os.ReadFile(s.Path(cacheName))
	if err != nil {
		return nil, fmt.Errorf("failed to read cache artifact %s: %w", cacheName, err)
	}
	return code, nil
}

// Remove deletes an artifact. A missing file is not an error; the store
// converges toward absence either way.
func (s *ArtifactStore) Remove(cacheName string) error {
	err := os.Remove(s.Path(cacheName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cache artifact %s: %w", cacheName, err)
	}
	return nil
}

// Clean deletes every artifact in the cache directory.
func (s *ArtifactStore) Clean() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}
