package graph

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/filament-dev/filament/internal/types"
)

// BatchResult summarizes one batch run.
type BatchResult struct {
	// Ready lists files that reached the ready state, sorted.
	Ready []string
	// Failed maps files to the error that stopped them. One file's
	// failure never aborts the rest of the batch.
	Failed map[string]error
	// Skipped counts files already ready when the batch started.
	Skipped int
	// Duration is the wall time of the whole batch.
	Duration time.Duration
}

// ProcessBatch loads a set of files and their full import closure in two
// phases: every file is read and parsed before any file is transpiled and
// rewritten. The batch accepts its input in any order and tolerates
// import cycles; no topological sort happens anywhere.
func (g *Graph) ProcessBatch(ctx context.Context, batchPaths []string) (*BatchResult, error) {
	start := time.Now()

	seeds := make([]string, 0, len(batchPaths))
	result := &BatchResult{Failed: make(map[string]error)}
	for _, p := range batchPaths {
		rel, err := g.norm.Relative(p)
		if err != nil {
			result.Failed[p] = err
			continue
		}
		seeds = append(seeds, rel)
	}

	g.mu.RLock()
	before := make(map[string]types.FileState, len(g.records))
	for rel, rec := range g.records {
		before[rel] = rec.State
	}
	g.mu.RUnlock()

	parsed := g.loadClosure(ctx, seeds)
	g.finalizeAll(ctx, parsed)

	g.mu.RLock()
	for rel, rec := range g.records {
		switch rec.State {
		case types.StateReady:
			if before[rel] == types.StateReady {
				result.Skipped++
			} else {
				result.Ready = append(result.Ready, rel)
			}
		case types.StateFailed:
			result.Failed[rel] = rec.Err
		}
	}
	g.mu.RUnlock()

	sort.Strings(result.Ready)
	result.Duration = time.Since(start)

	g.logger.Info(ctx, "batch complete",
		"ready", len(result.Ready),
		"failed", len(result.Failed),
		"skipped", result.Skipped,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// DiscoverSources walks the project root and returns every tracked source
// file as a relative path, skipping ignored directories. The result is
// the natural seed set for a full build.
func (g *Graph) DiscoverSources(extensions, ignore []string) ([]string, error) {
	var out []string
	root := g.norm.Root()

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			for _, ig := range ignore {
				if name == ig {
					return filepath.SkipDir
				}
			}
			return nil
		}
		ext := filepath.Ext(path)
		for _, known := range extensions {
			if ext == known {
				rel, rerr := g.norm.Relative(path)
				if rerr != nil {
					return nil
				}
				if !strings.HasPrefix(rel, ".") {
					out = append(out, rel)
				}
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
