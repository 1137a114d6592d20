// Package graph is the heart of filament: it tracks every source file the
// project reaches, keeps forward and reverse dependency edges consistent,
// and drives the parse, transpile and import-rewrite pipeline that keeps
// the on-disk cache in sync with the source tree.
package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/filament-dev/filament/internal/config"
	"github.com/filament-dev/filament/internal/imports"
	"github.com/filament-dev/filament/internal/logging"
	"github.com/filament-dev/filament/internal/paths"
	"github.com/filament-dev/filament/internal/transpile"
	"github.com/filament-dev/filament/internal/types"
)

// Graph is the file orchestrator. All record access goes through its
// mutex; records themselves are only handed out as snapshots.
type Graph struct {
	mu      sync.RWMutex
	records map[string]*FileRecord

	norm       *paths.Normalizer
	resolver   *imports.Resolver
	transpiler *transpile.Transpiler
	artifacts  *ArtifactStore
	parseCache *ParseCache
	classifier *Classifier
	logger     logging.Logger

	manifestPath string
	workers      int

	watcherMu sync.RWMutex
	watchers  []chan types.FileEvent
}

// New wires the orchestrator from configuration. The cache directory is
// created eagerly; the manifest is not touched until LoadManifest or
// SaveManifest is called.
func New(cfg *config.Config, logger logging.Logger) (*Graph, error) {
	norm, err := paths.NewNormalizer(cfg.Project.Root)
	if err != nil {
		return nil, err
	}
	artifacts, err := NewArtifactStore(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}
	parseCache, err := NewParseCache(cfg.Cache.ParseCacheSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	// A hand-built Config can carry a zero worker count; the phase
	// semaphores need at least one slot or they deadlock.
	workers := cfg.Cache.Workers
	if workers < 1 {
		workers = 1
	}

	return &Graph{
		records:    make(map[string]*FileRecord),
		norm:       norm,
		resolver:   imports.NewResolver(norm, cfg.Project.Aliases, cfg.Project.Extensions),
		transpiler: transpile.New(),
		artifacts:  artifacts,
		parseCache: parseCache,
		classifier: NewClassifier(cfg.Project.Entry, cfg.Project.RouteDirs, cfg.Project.ControllerDirs, cfg.Project.ConfigPatterns),
		logger:     logger.WithComponent("graph"),

		manifestPath: cfg.Cache.Manifest,
		workers:      workers,
	}, nil
}

// Normalizer exposes the path normalizer shared with callers that need to
// translate watcher paths.
func (g *Graph) Normalizer() *paths.Normalizer {
	return g.norm
}

// Artifacts exposes the cache store for the serve and clean commands.
func (g *Graph) Artifacts() *ArtifactStore {
	return g.artifacts
}

// Len returns the number of tracked records.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}

// RecordInfo is an immutable view of one record for callers outside the
// package.
type RecordInfo struct {
	RelPath      string
	State        types.FileState
	Kind         types.FileKind
	Layer        types.ReloadLayer
	Version      int64
	Hash         string
	CachePath    string
	Dependencies []string
	Dependents   []string
	Err          error
}

func (g *Graph) infoLocked(rec *FileRecord) RecordInfo {
	return RecordInfo{
		RelPath:      rec.RelPath,
		State:        rec.State,
		Kind:         rec.Kind,
		Layer:        rec.Layer,
		Version:      rec.Version,
		Hash:         rec.Hash,
		CachePath:    rec.CachePath,
		Dependencies: rec.DependencyList(),
		Dependents:   rec.DependentList(),
		Err:          rec.Err,
	}
}

// Info returns the current view of one file.
func (g *Graph) Info(path string) (RecordInfo, bool) {
	rel, err := g.norm.Relative(path)
	if err != nil {
		return RecordInfo{}, false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.records[rel]
	if !ok {
		return RecordInfo{}, false
	}
	return g.infoLocked(rec), true
}

// Snapshot returns a consistent view of every record, sorted by path.
func (g *Graph) Snapshot() []RecordInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]RecordInfo, 0, len(g.records))
	for _, rec := range g.records {
		out = append(out, g.infoLocked(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out
}

// Artifact returns the compiled output for a file if it is ready.
func (g *Graph) Artifact(path string) ([]byte, bool) {
	rel, err := g.norm.Relative(path)
	if err != nil {
		return nil, false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.records[rel]
	if !ok || rec.State != types.StateReady {
		return nil, false
	}
	return rec.Transpiled, true
}

// TransitiveDependents walks the reverse edges from a file and returns
// every record that directly or indirectly imports it, sorted.
func (g *Graph) TransitiveDependents(path string) []string {
	rel, err := g.norm.Relative(path)
	if err != nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := map[string]bool{rel: true}
	queue := []string{rel}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		rec, ok := g.records[cur]
		if !ok {
			continue
		}
		for dep := range rec.Dependents {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	sort.Strings(out)
	return out
}

// setDependenciesLocked replaces a record's forward edges and keeps the
// reverse edges of every touched record consistent. Dependency records
// that do not exist yet are created idle so they can be scheduled. Caller
// holds g.mu.
func (g *Graph) setDependenciesLocked(rec *FileRecord, newDeps map[string]struct{}) {
	for old := range rec.Dependencies {
		if _, still := newDeps[old]; still {
			continue
		}
		if depRec, ok := g.records[old]; ok {
			delete(depRec.Dependents, rec.RelPath)
			// A deleted file with its last importer gone is destroyed.
			if depRec.State == types.StateDeleted && len(depRec.Dependents) == 0 {
				delete(g.records, old)
			}
		}
	}
	for dep := range newDeps {
		depRec, ok := g.records[dep]
		if !ok {
			depRec = newRecord(g.norm.Absolute(dep), dep)
			g.records[dep] = depRec
		}
		depRec.Dependents[rec.RelPath] = struct{}{}
	}
	rec.Dependencies = newDeps
}

// Remove drops a file from the graph: edges to its dependencies are cut,
// the cache artifact is deleted, and the record itself is destroyed once
// no importer still references it. Records with surviving dependents stay
// in the deleted state so those dependents fail loudly on their next
// reprocess.
func (g *Graph) Remove(ctx context.Context, path string) error {
	rel, err := g.norm.Relative(path)
	if err != nil {
		return err
	}

	g.mu.Lock()
	rec, ok := g.records[rel]
	if !ok {
		g.mu.Unlock()
		return nil
	}
	g.setDependenciesLocked(rec, map[string]struct{}{})
	rec.State = types.StateDeleted
	rec.Source = nil
	rec.Transpiled = nil
	rec.ImportsTransformed = false
	if len(rec.Dependents) == 0 {
		delete(g.records, rel)
	}
	event := types.FileEvent{
		Type:      types.EventTypeRemoved,
		RelPath:   rel,
		Kind:      rec.Kind,
		Layer:     rec.Layer,
		Version:   rec.Version,
		Timestamp: time.Now(),
	}
	cachePath := rec.CachePath
	g.mu.Unlock()

	if err := g.artifacts.Remove(cachePath); err != nil {
		g.logger.Warn(ctx, err, "failed to remove cache artifact", "file", rel)
	}
	g.logger.Info(ctx, "file removed", "file", rel)
	g.notify(event)
	return nil
}

// Cycle is one runtime import cycle, listed in traversal order.
type Cycle []string

// DetectCycles reports runtime import cycles. Type-only files and
// type-only import edges never appear in a cycle: they are erased at
// runtime and cannot deadlock module evaluation.
func (g *Graph) DetectCycles() []Cycle {
	g.mu.RLock()
	adj := make(map[string][]string, len(g.records))
	for rel, rec := range g.records {
		if rec.Kind == types.KindTypeOnly {
			continue
		}
		seen := make(map[string]bool, len(rec.ImportMap))
		for _, res := range rec.ImportMap {
			if res.Kind != imports.KindRuntime {
				continue
			}
			depRel, err := g.norm.Relative(res.AbsPath)
			if err != nil || seen[depRel] {
				continue
			}
			if depRec, ok := g.records[depRel]; ok && depRec.Kind == types.KindTypeOnly {
				continue
			}
			seen[depRel] = true
			adj[rel] = append(adj[rel], depRel)
		}
	}
	g.mu.RUnlock()

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(adj))
	var stack []string
	var cycles []Cycle

	var visit func(node string)
	visit = func(node string) {
		state[node] = inStack
		stack = append(stack, node)
		for _, next := range adj[node] {
			switch state[next] {
			case unvisited:
				visit(next)
			case inStack:
				for i, n := range stack {
					if n == next {
						cycle := make(Cycle, len(stack)-i)
						copy(cycle, stack[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[node] = done
	}

	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if state[n] == unvisited {
			visit(n)
		}
	}
	return cycles
}

// Watch returns a channel that receives file events. The channel is
// buffered; slow consumers lose events rather than stalling the pipeline.
func (g *Graph) Watch() <-chan types.FileEvent {
	ch := make(chan types.FileEvent, 64)
	g.watcherMu.Lock()
	g.watchers = append(g.watchers, ch)
	g.watcherMu.Unlock()
	return ch
}

// Unwatch removes a previously registered event channel.
func (g *Graph) Unwatch(ch <-chan types.FileEvent) {
	g.watcherMu.Lock()
	defer g.watcherMu.Unlock()
	for i, watcher := range g.watchers {
		if watcher == ch {
			g.watchers = append(g.watchers[:i], g.watchers[i+1:]...)
			close(watcher)
			return
		}
	}
}

func (g *Graph) notify(event types.FileEvent) {
	g.watcherMu.RLock()
	defer g.watcherMu.RUnlock()
	for _, watcher := range g.watchers {
		select {
		case watcher <- event:
		default:
		}
	}
}

func (g *Graph) readyEventLocked(rec *FileRecord) types.FileEvent {
	return types.FileEvent{
		Type:      types.EventTypeReady,
		RelPath:   rec.RelPath,
		Kind:      rec.Kind,
		Layer:     rec.Layer,
		Version:   rec.Version,
		Timestamp: time.Now(),
	}
}

// fail transitions a record into the failed state. The previous cache
// artifact is deliberately left on disk so the running application keeps
// serving the last good build.
func (g *Graph) fail(ctx context.Context, rec *FileRecord, err error) {
	g.mu.Lock()
	rec.State = types.StateFailed
	rec.Err = err
	event := types.FileEvent{
		Type:      types.EventTypeFailed,
		RelPath:   rec.RelPath,
		Kind:      rec.Kind,
		Layer:     rec.Layer,
		Version:   rec.Version,
		Err:       err,
		Timestamp: time.Now(),
	}
	g.mu.Unlock()

	g.logger.Error(ctx, err, "file processing failed", "file", rec.RelPath)
	g.notify(event)
}

// missingDepsError formats the hard failure for unresolvable project
// imports.
func missingDepsError(rel string, missing []string) error {
	return fmt.Errorf("%s: unresolved project imports: %v", rel, missing)
}
