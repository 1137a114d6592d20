package imports

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/filament-dev/filament/internal/paths"
)

// Resolved is one scanner reference together with the absolute project
// path its specifier resolved to. The slice form preserves source order,
// which the rewriter depends on.
type Resolved struct {
	Ref
	AbsPath string
}

// Resolver maps import specifiers to absolute paths inside the project.
// Specifiers that do not resolve inside the project tree (ecosystem
// packages, node builtins) are omitted, never errors.
type Resolver struct {
	norm       *paths.Normalizer
	aliases    map[string]string
	aliasKeys  []string
	extensions []string

	// fileExists is swappable in tests.
	fileExists func(abs string) bool
}

// NewResolver creates a resolver for the given project root. aliases map
// specifier prefixes to directories relative to the root; extensions are
// probed in order for extensionless and directory-index imports.
func NewResolver(norm *paths.Normalizer, aliases map[string]string, extensions []string) *Resolver {
	// Longest alias first so "@app/x" wins over "@app" when both exist.
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	return &Resolver{
		norm:       norm,
		aliases:    aliases,
		aliasKeys:  keys,
		extensions: extensions,
		fileExists: func(abs string) bool {
			info, err := os.Stat(abs)
			return err == nil && !info.IsDir()
		},
	}
}

// ScanAndResolve runs the scanner on src and resolves every reference
// against the importing file's location. The result preserves source
// order. Bare package specifiers are dropped silently; relative or
// aliased specifiers that point at nothing on disk are returned in
// missing, because a file importing them can never execute.
func (r *Resolver) ScanAndResolve(fromAbs string, src []byte) (resolved []Resolved, missing []string) {
	return r.ResolveRefs(fromAbs, Scan(src))
}

// ResolveRefs resolves already-scanned references. Resolution is repeated
// even when the scan came from a cache, because what is on disk can change
// between two resolutions of the same source text.
func (r *Resolver) ResolveRefs(fromAbs string, refs []Ref) (resolved []Resolved, missing []string) {
	if len(refs) == 0 {
		return nil, nil
	}
	resolved = make([]Resolved, 0, len(refs))
	for _, ref := range refs {
		abs, ok := r.Resolve(fromAbs, ref.Specifier)
		if ok {
			resolved = append(resolved, Resolved{Ref: ref, AbsPath: abs})
			continue
		}
		if r.isProjectSpecifier(ref.Specifier) && ref.Kind == KindRuntime {
			missing = append(missing, ref.Specifier)
		}
	}
	return resolved, missing
}

// isProjectSpecifier reports whether a specifier names project source (as
// opposed to an ecosystem package).
func (r *Resolver) isProjectSpecifier(spec string) bool {
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		return true
	}
	_, ok := r.expandAlias(spec)
	return ok
}

// Resolve maps one specifier, as written in the file at fromAbs, to an
// absolute path under the project root. ok is false for anything that is
// not part of the project's own source tree.
func (r *Resolver) Resolve(fromAbs, spec string) (string, bool) {
	var base string
	switch {
	case strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../"):
		base = filepath.Join(filepath.Dir(fromAbs), filepath.FromSlash(spec))
	default:
		target, ok := r.expandAlias(spec)
		if !ok {
			return "", false
		}
		base = target
	}
	base = filepath.Clean(base)
	if !r.norm.Contains(base) {
		return "", false
	}
	return r.probe(base)
}

// expandAlias rewrites an aliased specifier ("@app/users") to an absolute
// path. Bare package specifiers return ok=false.
func (r *Resolver) expandAlias(spec string) (string, bool) {
	for _, alias := range r.aliasKeys {
		if spec == alias {
			return filepath.Join(r.norm.Root(), filepath.FromSlash(r.aliases[alias])), true
		}
		if strings.HasPrefix(spec, alias+"/") {
			rest := strings.TrimPrefix(spec, alias+"/")
			return filepath.Join(r.norm.Root(), filepath.FromSlash(r.aliases[alias]), filepath.FromSlash(rest)), true
		}
	}
	return "", false
}

// probe applies the on-disk resolution rules: exact file, then each
// configured extension, then a directory index.
func (r *Resolver) probe(base string) (string, bool) {
	if r.hasKnownExt(base) && r.fileExists(base) {
		return base, true
	}
	for _, ext := range r.extensions {
		if cand := base + ext; r.fileExists(cand) {
			return cand, true
		}
	}
	for _, ext := range r.extensions {
		if cand := filepath.Join(base, "index"+ext); r.fileExists(cand) {
			return cand, true
		}
	}
	return "", false
}

func (r *Resolver) hasKnownExt(path string) bool {
	ext := filepath.Ext(path)
	for _, known := range r.extensions {
		if ext == known {
			return true
		}
	}
	return false
}
