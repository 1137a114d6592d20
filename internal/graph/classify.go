package graph

import (
	"path"
	"strings"

	"github.com/filament-dev/filament/internal/types"
)

// Classifier assigns each file a kind from its project-relative path.
// The kind decides the reload layer: entries and configuration restart
// the server process, everything else hot-swaps.
type Classifier struct {
	entry          string
	routeDirs      []string
	controllerDirs []string
	configPatterns []string
}

// NewClassifier builds a classifier from the project layout settings. All
// inputs are forward-slash relative paths; patterns follow path.Match
// syntax and apply to the file's base name or full relative path.
func NewClassifier(entry string, routeDirs, controllerDirs, configPatterns []string) *Classifier {
	return &Classifier{
		entry:          path.Clean(entry),
		routeDirs:      routeDirs,
		controllerDirs: controllerDirs,
		configPatterns: configPatterns,
	}
}

// Classify maps a relative path to a file kind. Type-only classification
// happens later, from transpiled output, and overrides whatever this
// returns.
func (c *Classifier) Classify(relPath string) types.FileKind {
	if relPath == c.entry {
		return types.KindEntry
	}
	for _, pattern := range c.configPatterns {
		if matched, _ := path.Match(pattern, path.Base(relPath)); matched {
			return types.KindConfig
		}
		if matched, _ := path.Match(pattern, relPath); matched {
			return types.KindConfig
		}
	}
	if underAny(relPath, c.routeDirs) {
		return types.KindRoute
	}
	if underAny(relPath, c.controllerDirs) {
		return types.KindController
	}
	return types.KindModule
}

func underAny(relPath string, dirs []string) bool {
	for _, dir := range dirs {
		if strings.HasPrefix(relPath, path.Clean(dir)+"/") {
			return true
		}
	}
	return false
}
