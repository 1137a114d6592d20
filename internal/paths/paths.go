// Package paths is the single source of truth for file identity in the
// graph. Every other package keys its maps on the normalized, project
// relative identifier produced here, never on raw OS paths, so the same
// file can never appear under two different keys.
package paths

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CompiledExt is the extension of on-disk cache artifacts.
const CompiledExt = ".mjs"

// Normalizer converts between absolute filesystem paths and canonical
// project-relative identifiers (forward slashes on every host).
type Normalizer struct {
	root string
}

// NewNormalizer creates a normalizer rooted at the given project source
// directory. The root is resolved to an absolute, cleaned path.
func NewNormalizer(root string) (*Normalizer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root %q: %w", root, err)
	}
	return &Normalizer{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute project source root.
func (n *Normalizer) Root() string {
	return n.root
}

// Relative converts an absolute or root-relative path into the canonical
// identifier. Paths outside the project root are rejected.
func (n *Normalizer) Relative(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(n.root, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(n.root, abs)
	if err != nil {
		return "", fmt.Errorf("relativizing %q: %w", path, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %q is outside the project root %q", path, n.root)
	}
	return rel, nil
}

// Absolute is the inverse of Relative: it converts a canonical identifier
// back into an absolute path using the host separator.
func (n *Normalizer) Absolute(rel string) string {
	return filepath.Join(n.root, filepath.FromSlash(rel))
}

// Contains reports whether the given absolute path lies under the root.
func (n *Normalizer) Contains(abs string) bool {
	rel, err := filepath.Rel(n.root, filepath.Clean(abs))
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../")
}

// CacheName derives the flat cache filename for a relative identifier.
// Underscores are doubled before separators are folded to single
// underscores, so the mapping is injective: "a/b.ts" -> "a_b.ts.mjs" and
// "a_b.ts" -> "a__b.ts.mjs" can never collide. The source extension is
// kept as part of the name; the compiled extension is appended.
func CacheName(rel string) string {
	escaped := strings.ReplaceAll(rel, "_", "__")
	escaped = strings.ReplaceAll(escaped, "/", "_")
	return escaped + CompiledExt
}
