package graph

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/filament-dev/filament/internal/imports"
	"github.com/filament-dev/filament/internal/transpile"
	"github.com/filament-dev/filament/internal/types"
)

// The pipeline runs in two phases. Phase one (loadAndParse) reads and
// parses files, creating records and dependency edges without touching the
// transpiler. Phase two (finalize) re-resolves, transpiles, rewrites
// imports against the now-complete record set, and writes the cache
// artifact. Splitting the phases means import cycles and batch ordering
// never matter: by the time any file is finalized, every file it imports
// already has a record with a stable cache name.

func readSource(abs string) ([]byte, time.Time, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, info.ModTime(), nil
}

// LoadFile brings one file and its entire import closure into the graph.
// The returned info reflects the file after processing; a failed parse or
// transpile of the file itself is returned as an error, while failures in
// transitively loaded files are recorded on their own records.
func (g *Graph) LoadFile(ctx context.Context, path string) (RecordInfo, error) {
	rel, err := g.norm.Relative(path)
	if err != nil {
		return RecordInfo{}, err
	}

	parsed := g.loadClosure(ctx, []string{rel})
	g.finalizeAll(ctx, parsed)

	g.mu.RLock()
	rec, ok := g.records[rel]
	if !ok {
		g.mu.RUnlock()
		return RecordInfo{}, fmt.Errorf("file %s does not exist", rel)
	}
	info := g.infoLocked(rec)
	g.mu.RUnlock()

	switch info.State {
	case types.StateFailed:
		return info, info.Err
	case types.StateDeleted:
		return info, fmt.Errorf("file %s does not exist", rel)
	}
	return info, nil
}

// loadClosure runs phase one over the seed paths and everything reachable
// from them. Discovery proceeds frontier by frontier with a bounded worker
// pool; records already in flight or ready are skipped, which is what
// makes re-entry through import cycles terminate. The returned records are
// those this call moved into the parsed state, sorted for deterministic
// phase-two order.
func (g *Graph) loadClosure(ctx context.Context, seeds []string) []*FileRecord {
	seen := make(map[string]bool, len(seeds))
	frontier := seeds

	var mu sync.Mutex
	var parsed []*FileRecord

	for len(frontier) > 0 {
		var next []string
		var wg sync.WaitGroup
		sem := make(chan struct{}, g.workers)

		for _, rel := range frontier {
			if seen[rel] {
				continue
			}
			seen[rel] = true
			wg.Add(1)
			sem <- struct{}{}
			go func(rel string) {
				defer wg.Done()
				defer func() { <-sem }()
				rec, deps, took := g.loadAndParse(ctx, rel)
				mu.Lock()
				if took {
					parsed = append(parsed, rec)
				}
				next = append(next, deps...)
				mu.Unlock()
			}(rel)
		}
		wg.Wait()
		frontier = next
	}

	sort.Slice(parsed, func(i, j int) bool { return parsed[i].RelPath < parsed[j].RelPath })
	return parsed
}

// finalizeAll runs phase two over the parsed records with the same worker
// bound as phase one.
func (g *Graph) finalizeAll(ctx context.Context, parsed []*FileRecord) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, g.workers)
	for _, rec := range parsed {
		wg.Add(1)
		sem <- struct{}{}
		go func(rec *FileRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			g.finalize(ctx, rec)
		}(rec)
	}
	wg.Wait()
}

// loadAndParse is phase one for a single file: read, hash, consult the
// manifest trust path, parse imports and record edges. took reports
// whether the record was moved into the parsed state by this call; deps
// lists the relative paths of its direct dependencies so the caller can
// extend the frontier.
func (g *Graph) loadAndParse(ctx context.Context, rel string) (rec *FileRecord, deps []string, took bool) {
	g.mu.Lock()
	rec, ok := g.records[rel]
	if !ok {
		rec = newRecord(g.norm.Absolute(rel), rel)
		g.records[rel] = rec
	}
	switch rec.State {
	case types.StateLoading, types.StateParsed, types.StateUpdating, types.StateReady:
		g.mu.Unlock()
		return rec, nil, false
	}
	rec.State = types.StateLoading
	trusted := rec.manifestTrusted
	prevHash := rec.Hash
	abs := rec.AbsolutePath
	cachePath := rec.CachePath
	g.mu.Unlock()

	source, mtime, err := readSource(abs)
	if err != nil {
		g.mu.Lock()
		rec.State = types.StateDeleted
		g.mu.Unlock()
		g.logger.Warn(ctx, err, "source file unreadable", "file", rel)
		return rec, nil, false
	}
	hash := HashBytes(source)

	refs := g.parseCache.Scan(hash, source)
	resolved, missing := g.resolver.ResolveRefs(abs, refs)

	// Manifest trust: unchanged content plus an intact artifact means the
	// previous session's work is reused wholesale. The import scan still
	// runs so edge kinds and cycle reporting survive the restart; a
	// vanished artifact or a newly missing import falls through to a full
	// rebuild.
	if trusted && hash == prevHash && len(missing) == 0 {
		cached, cerr := g.artifacts.Read(cachePath)
		if cerr == nil {
			if depSet, depRels, derr := g.depsOf(resolved); derr == nil {
				g.mu.Lock()
				rec.Source = source
				rec.LastModified = mtime
				rec.ImportMap = resolved
				g.setDependenciesLocked(rec, depSet)
				rec.Transpiled = cached
				rec.ImportsTransformed = true
				rec.built = true
				rec.State = types.StateReady
				g.mu.Unlock()
				g.logger.Debug(ctx, "cache hit", "file", rel)
				return rec, depRels, false
			}
		} else {
			g.logger.Warn(ctx, cerr, "cache artifact lost, rebuilding", "file", rel)
		}
	}

	if len(missing) > 0 {
		g.fail(ctx, rec, missingDepsError(rel, missing))
		return rec, nil, false
	}
	depSet, depRels, err := g.depsOf(resolved)
	if err != nil {
		g.fail(ctx, rec, err)
		return rec, nil, false
	}

	g.mu.Lock()
	rec.Source = source
	rec.Hash = hash
	rec.LastModified = mtime
	rec.ImportMap = resolved
	rec.manifestTrusted = false
	g.setDependenciesLocked(rec, depSet)
	rec.State = types.StateParsed
	g.mu.Unlock()
	return rec, depRels, true
}

// finalize is phase two for a single file. Resolution is repeated against
// the current disk state: a parse cheap enough to re-run is what guards
// against files created between the two phases.
func (g *Graph) finalize(ctx context.Context, rec *FileRecord) {
	g.mu.RLock()
	if rec.State != types.StateParsed {
		g.mu.RUnlock()
		return
	}
	source := rec.Source
	hash := rec.Hash
	abs := rec.AbsolutePath
	mtime := rec.LastModified
	g.mu.RUnlock()

	refs := g.parseCache.Scan(hash, source)
	resolved, missing := g.resolver.ResolveRefs(abs, refs)
	if len(missing) > 0 {
		g.fail(ctx, rec, missingDepsError(rec.RelPath, missing))
		return
	}
	g.absorbNewDeps(ctx, resolved)
	g.build(ctx, rec, source, hash, mtime, resolved)
}

// absorbNewDeps loads any resolved dependency the graph does not track
// yet. This only finds work when a file appeared after the importing
// record was first parsed.
func (g *Graph) absorbNewDeps(ctx context.Context, resolved []imports.Resolved) {
	var unknown []string
	g.mu.RLock()
	for _, res := range resolved {
		depRel, err := g.norm.Relative(res.AbsPath)
		if err != nil {
			continue
		}
		depRec, ok := g.records[depRel]
		if !ok || depRec.State == types.StateIdle || depRec.State == types.StateDeleted {
			unknown = append(unknown, depRel)
		}
	}
	g.mu.RUnlock()

	if len(unknown) > 0 {
		g.finalizeAll(ctx, g.loadClosure(ctx, unknown))
	}
}

// build transpiles, rewrites imports and commits the record. It is shared
// by batch finalization and live reprocessing; the only difference between
// the two is how the source text got here.
func (g *Graph) build(ctx context.Context, rec *FileRecord, source []byte, hash string, mtime time.Time, resolved []imports.Resolved) error {
	rel := rec.RelPath

	transpiled, err := g.transpiler.Transpile(rel, source)
	if err != nil {
		g.fail(ctx, rec, err)
		return err
	}

	kind := g.classifier.Classify(rel)
	if transpile.IsTypeOnlyOutput(transpiled) {
		kind = types.KindTypeOnly
	}

	rewritten := imports.Rewrite(transpiled, g.lookupFor(resolved))

	if werr := g.artifacts.Write(rec.CachePath, rewritten); werr != nil {
		g.fail(ctx, rec, werr)
		return werr
	}

	depSet, _, err := g.depsOf(resolved)
	if err != nil {
		g.fail(ctx, rec, err)
		return err
	}

	g.mu.Lock()
	rec.Source = source
	rec.Hash = hash
	rec.LastModified = mtime
	rec.ImportMap = resolved
	g.setDependenciesLocked(rec, depSet)
	rec.Transpiled = rewritten
	rec.ImportsTransformed = true
	if rec.built {
		rec.Version++
	} else {
		rec.built = true
	}
	rec.Kind = kind
	rec.Layer = types.LayerFor(kind)
	rec.State = types.StateReady
	rec.Err = nil
	event := g.readyEventLocked(rec)
	g.mu.Unlock()

	g.logger.Debug(ctx, "file ready", "file", rel, "version", event.Version, "kind", string(kind))
	g.notify(event)
	return nil
}

// lookupFor snapshots the specifier to cache-reference mapping for a
// rewrite. Versions are read at this moment; a dependency that bumps
// afterwards triggers its dependents through the event loop, which
// refreshes the baked references.
func (g *Graph) lookupFor(resolved []imports.Resolved) imports.LookupFunc {
	refs := make(map[string]string, len(resolved))
	g.mu.RLock()
	for _, res := range resolved {
		if res.Kind != imports.KindRuntime {
			continue
		}
		depRel, err := g.norm.Relative(res.AbsPath)
		if err != nil {
			continue
		}
		if depRec, ok := g.records[depRel]; ok {
			refs[res.Specifier] = depRec.CacheRef()
		}
	}
	g.mu.RUnlock()

	return func(spec string) (string, bool) {
		ref, ok := refs[spec]
		return ref, ok
	}
}

// depsOf converts resolved imports into the relative-path dependency set.
func (g *Graph) depsOf(resolved []imports.Resolved) (map[string]struct{}, []string, error) {
	set := make(map[string]struct{}, len(resolved))
	for _, res := range resolved {
		rel, err := g.norm.Relative(res.AbsPath)
		if err != nil {
			return nil, nil, err
		}
		set[rel] = struct{}{}
	}
	rels := make([]string, 0, len(set))
	for rel := range set {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	return set, rels, nil
}

// Update reprocesses a file after a filesystem change notification. It
// returns false when the content turned out to be unchanged, which lets
// the caller suppress a no-op reload. Updates to the same file are
// serialized on the record; the mtime check in front of the hash keeps
// redundant watcher events cheap, and manifest-hydrated records use their
// persisted mtime the same way.
func (g *Graph) Update(ctx context.Context, path string) (bool, error) {
	rel, err := g.norm.Relative(path)
	if err != nil {
		return false, err
	}

	g.mu.RLock()
	rec, ok := g.records[rel]
	g.mu.RUnlock()
	if !ok {
		_, err := g.LoadFile(ctx, path)
		return err == nil, err
	}

	rec.updateMu.Lock()
	defer rec.updateMu.Unlock()

	info, statErr := os.Stat(rec.AbsolutePath)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return true, g.Remove(ctx, path)
		}
		return false, statErr
	}

	g.mu.RLock()
	ready := rec.State == types.StateReady
	trustedIdle := rec.manifestTrusted && rec.State == types.StateIdle
	sameMtime := info.ModTime().Equal(rec.LastModified)
	sameSize := info.Size() == int64(len(rec.Source))
	prevHash := rec.Hash
	g.mu.RUnlock()
	if sameMtime && (ready && sameSize || trustedIdle) {
		return false, nil
	}

	source, mtime, err := readSource(rec.AbsolutePath)
	if err != nil {
		return true, g.Remove(ctx, path)
	}
	hash := HashBytes(source)
	if hash == prevHash && (ready || trustedIdle) {
		// Touched but not changed. Remember the new mtime so the next
		// event short-circuits before reading.
		g.mu.Lock()
		rec.LastModified = mtime
		g.mu.Unlock()
		return false, nil
	}

	return true, g.reprocess(ctx, rec, source, hash, mtime)
}

// ForceReprocess rebuilds a file unconditionally, skipping the content
// check. The dev loop uses it to refresh dependents whose baked import
// versions went stale after a dependency changed.
func (g *Graph) ForceReprocess(ctx context.Context, path string) error {
	rel, err := g.norm.Relative(path)
	if err != nil {
		return err
	}

	g.mu.RLock()
	rec, ok := g.records[rel]
	g.mu.RUnlock()
	if !ok {
		_, err := g.LoadFile(ctx, path)
		return err
	}

	rec.updateMu.Lock()
	defer rec.updateMu.Unlock()

	source, mtime, err := readSource(rec.AbsolutePath)
	if err != nil {
		return g.Remove(ctx, path)
	}
	return g.reprocess(ctx, rec, source, HashBytes(source), mtime)
}

// reprocess runs the full pipeline on new source text for an existing
// record. The version bump happens inside build, exactly once.
func (g *Graph) reprocess(ctx context.Context, rec *FileRecord, source []byte, hash string, mtime time.Time) error {
	g.mu.Lock()
	rec.State = types.StateUpdating
	g.mu.Unlock()

	refs := g.parseCache.Scan(hash, source)
	resolved, missing := g.resolver.ResolveRefs(rec.AbsolutePath, refs)
	if len(missing) > 0 {
		err := missingDepsError(rec.RelPath, missing)
		g.fail(ctx, rec, err)
		return err
	}
	g.absorbNewDeps(ctx, resolved)
	return g.build(ctx, rec, source, hash, mtime, resolved)
}
