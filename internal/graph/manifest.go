package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/filament-dev/filament/internal/types"
)

// manifestSchema is bumped whenever the manifest layout changes. A
// mismatch invalidates the whole file.
const manifestSchema = 1

type manifestFile struct {
	Schema      int                      `json:"schema"`
	GeneratedAt time.Time                `json:"generated_at"`
	Files       map[string]manifestEntry `json:"files"`
}

type manifestEntry struct {
	Hash         string    `json:"hash"`
	Version      int64     `json:"version"`
	LastModified time.Time `json:"last_modified"`
	CachePath    string    `json:"cache_path"`
	Kind         string    `json:"kind"`
	Dependencies []string  `json:"dependencies,omitempty"`
}

// SaveManifest persists the graph state for the next session. The write
// is atomic: a temp file in the same directory is renamed over the
// target, so a crash mid-write leaves the previous manifest intact.
// Only ready records are persisted; anything else must be rebuilt anyway.
func (g *Graph) SaveManifest(ctx context.Context) error {
	manifest := manifestFile{
		Schema:      manifestSchema,
		GeneratedAt: time.Now(),
		Files:       make(map[string]manifestEntry),
	}

	g.mu.RLock()
	for rel, rec := range g.records {
		if rec.State != types.StateReady {
			continue
		}
		manifest.Files[rel] = manifestEntry{
			Hash:         rec.Hash,
			Version:      rec.Version,
			LastModified: rec.LastModified,
			CachePath:    rec.CachePath,
			Kind:         string(rec.Kind),
			Dependencies: rec.DependencyList(),
		}
	}
	g.mu.RUnlock()

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	dir := filepath.Dir(g.manifestPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("failed to create manifest temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close manifest temp file: %w", err)
	}
	if err := os.Rename(tmpName, g.manifestPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}

	g.logger.Debug(ctx, "manifest saved", "files", len(manifest.Files), "path", g.manifestPath)
	return nil
}

// LoadManifest hydrates the graph from a previous session's manifest.
// Records come back idle and marked trusted; the first load of each file
// verifies the content hash before reusing its artifact. A missing,
// corrupt or schema-incompatible manifest is not an error: the session
// simply starts cold.
func (g *Graph) LoadManifest(ctx context.Context) error {
	data, err := os.ReadFile(g.manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			g.logger.Debug(ctx, "no manifest, starting cold")
			return nil
		}
		g.logger.Warn(ctx, err, "manifest unreadable, starting cold")
		return nil
	}

	var manifest manifestFile
	if err := json.Unmarshal(data, &manifest); err != nil {
		g.logger.Warn(ctx, err, "manifest corrupt, starting cold")
		return nil
	}
	if manifest.Schema != manifestSchema {
		g.logger.Warn(ctx, nil, "manifest schema mismatch, starting cold",
			"found", manifest.Schema, "want", manifestSchema)
		return nil
	}

	g.mu.Lock()
	for rel, entry := range manifest.Files {
		rec := newRecord(g.norm.Absolute(rel), rel)
		rec.Hash = entry.Hash
		rec.Version = entry.Version
		rec.LastModified = entry.LastModified
		rec.Kind = types.FileKind(entry.Kind)
		rec.Layer = types.LayerFor(rec.Kind)
		rec.manifestTrusted = true
		// A hydrated record has been built before; if its content changed
		// since last session the rebuild must bump the version.
		rec.built = true
		g.records[rel] = rec
	}
	// Edges are rebuilt in a second pass so reverse edges land on records
	// that all exist.
	for rel, entry := range manifest.Files {
		rec := g.records[rel]
		deps := make(map[string]struct{}, len(entry.Dependencies))
		for _, dep := range entry.Dependencies {
			deps[dep] = struct{}{}
		}
		g.setDependenciesLocked(rec, deps)
	}
	count := len(g.records)
	g.mu.Unlock()

	g.logger.Info(ctx, "manifest loaded", "files", count)
	return nil
}
