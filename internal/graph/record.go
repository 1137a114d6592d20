package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/filament-dev/filament/internal/imports"
	"github.com/filament-dev/filament/internal/paths"
	"github.com/filament-dev/filament/internal/types"
)

// FileRecord owns one source file's full lifecycle state: source text,
// content hash, dependency edges, compiled output, and the on-disk cache
// location. Records are keyed by their normalized relative path in the
// graph's map; all fields are guarded by the graph's mutex except where
// noted.
type FileRecord struct {
	// AbsolutePath is the canonical filesystem path.
	AbsolutePath string
	// RelPath is the normalized project-relative identifier; manifest key
	// and cache-name source.
	RelPath string
	// Hash is the SHA-256 hex digest of Source; the authoritative change
	// signal.
	Hash string
	// LastModified is the filesystem mtime at last read. A fast pre-check
	// before hashing, never a substitute for it.
	LastModified time.Time
	// Version increments once per successful reprocess. Readers treat it
	// as an opaque cache-key component.
	Version int64
	// Source is the file text as last read.
	Source []byte
	// Transpiled is the compiled output, with imports rewritten once
	// ImportsTransformed is set.
	Transpiled []byte
	// Dependencies holds the relative paths this file imports directly.
	Dependencies map[string]struct{}
	// Dependents holds the reverse edges, maintained incrementally.
	Dependents map[string]struct{}
	// ImportMap preserves the ordered specifier -> absolute path mapping
	// the rewriter needs.
	ImportMap []imports.Resolved
	// CachePath is the flat cache filename derived from RelPath.
	CachePath string
	// ImportsTransformed is true once the cached artifact references
	// dependency cache paths. False means the artifact must not execute.
	ImportsTransformed bool
	// Kind and Layer classify the file for the surrounding dev server.
	Kind  types.FileKind
	Layer types.ReloadLayer
	// State is the lifecycle tag.
	State types.FileState
	// Err holds the failure when State is StateFailed.
	Err error

	// built distinguishes the first successful build (version stays 0)
	// from reprocessing (version bumps).
	built bool
	// manifestTrusted marks records hydrated from the manifest whose
	// cached artifact may be loaded without reprocessing on hash match.
	manifestTrusted bool

	// updateMu serializes live updates and forced reprocessing for this
	// record so the latest source text always wins.
	updateMu sync.Mutex
}

func newRecord(absPath, relPath string) *FileRecord {
	return &FileRecord{
		AbsolutePath: absPath,
		RelPath:      relPath,
		CachePath:    paths.CacheName(relPath),
		Dependencies: make(map[string]struct{}),
		Dependents:   make(map[string]struct{}),
		Kind:         types.KindModule,
		Layer:        types.LayerHotSwap,
		State:        types.StateIdle,
	}
}

// DependencyList returns the record's dependencies as a sorted slice.
func (r *FileRecord) DependencyList() []string {
	out := make([]string, 0, len(r.Dependencies))
	for dep := range r.Dependencies {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// DependentList returns the record's dependents as a sorted slice.
func (r *FileRecord) DependentList() []string {
	out := make([]string, 0, len(r.Dependents))
	for dep := range r.Dependents {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// CacheRef is the import reference dependents bake into their rewritten
// output: the cache filename tagged with the current version, so a stale
// module cache in the consuming runtime misses when the version moves.
func (r *FileRecord) CacheRef() string {
	return "./" + r.CachePath + "?v=" + strconv.FormatInt(r.Version, 10)
}

// HashBytes computes the content hash used for change detection.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
