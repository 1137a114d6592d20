// Package transpile converts one source file's text into executable ES
// module code. It is a thin wrapper around esbuild's Transform API:
// syntax-only, no cross-file resolution, no bundling. A failure here is
// fatal for that file only and carries the file path and position.
package transpile

import (
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/filament-dev/filament/internal/errors"
)

// Transpiler performs syntax-only source-to-ESM transforms.
type Transpiler struct {
	target api.Target
}

// New creates a transpiler targeting modern ESM output.
func New() *Transpiler {
	return &Transpiler{target: api.ESNext}
}

// LoaderFor picks the esbuild loader from the file extension. Plain
// JavaScript, typed sources, and typed-with-markup sources each get their
// own loader.
func LoaderFor(path string) api.Loader {
	switch filepath.Ext(path) {
	case ".ts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

// Transpile converts source text to ES module code. relPath is used only
// for diagnostics. The transform is deterministic: identical input always
// produces identical output.
func (t *Transpiler) Transpile(relPath string, source []byte) ([]byte, error) {
	result := api.Transform(string(source), api.TransformOptions{
		Loader:     LoaderFor(relPath),
		Format:     api.FormatESModule,
		Target:     t.target,
		Sourcefile: relPath,
		LogLevel:   api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return nil, messageToError(relPath, result.Errors[0])
	}
	return result.Code, nil
}

// messageToError converts an esbuild diagnostic into a BuildError with
// file position when esbuild could locate one.
func messageToError(relPath string, msg api.Message) *errors.BuildError {
	be := &errors.BuildError{
		File:     relPath,
		Message:  msg.Text,
		Severity: errors.ErrorSeverityError,
	}
	if msg.Location != nil {
		be.Line = msg.Location.Line
		be.Column = msg.Location.Column
	}
	return be
}

// IsTypeOnlyOutput reports whether transpiled code contains no runtime
// statements. Type-only source files erase to nothing (or to a bare
// `export {}` marker) after type stripping.
func IsTypeOnlyOutput(code []byte) bool {
	stripped := strings.TrimSpace(string(code))
	if stripped == "" {
		return true
	}
	stripped = strings.ReplaceAll(stripped, " ", "")
	stripped = strings.TrimSuffix(stripped, ";")
	return stripped == "export{}"
}
