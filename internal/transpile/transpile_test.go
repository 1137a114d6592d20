package transpile

import (
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filament-dev/filament/internal/errors"
)

func TestTranspile_StripsTypes(t *testing.T) {
	tr := New()
	out, err := tr.Transpile("main.ts", []byte(`
const greeting: string = "hi";
export function greet(name: string): string {
	return greeting + " " + name;
}
`))
	require.NoError(t, err)
	code := string(out)
	assert.Contains(t, code, "export function greet(name)")
	assert.NotContains(t, code, ": string")
}

func TestTranspile_KeepsImportSpecifiers(t *testing.T) {
	tr := New()
	out, err := tr.Transpile("main.ts", []byte(`import { x } from "./util";
console.log(x);
`))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"./util"`,
		"transform must not touch import paths; the rewriter owns that")
}

func TestTranspile_Deterministic(t *testing.T) {
	tr := New()
	src := []byte(`export const n: number = 42;`)
	a, err := tr.Transpile("n.ts", src)
	require.NoError(t, err)
	b, err := tr.Transpile("n.ts", src)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTranspile_SyntaxErrorHasPosition(t *testing.T) {
	tr := New()
	_, err := tr.Transpile("broken.ts", []byte("const x = {\n  oops:\n"))
	require.Error(t, err)

	var be *errors.BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "broken.ts", be.File)
	assert.Greater(t, be.Line, 0, "esbuild reports a 1-based line")
}

func TestLoaderFor(t *testing.T) {
	assert.Equal(t, api.LoaderTS, LoaderFor("a/b.ts"))
	assert.Equal(t, api.LoaderTSX, LoaderFor("a/b.tsx"))
	assert.Equal(t, api.LoaderJSX, LoaderFor("a/b.jsx"))
	assert.Equal(t, api.LoaderJS, LoaderFor("a/b.js"))
	assert.Equal(t, api.LoaderJS, LoaderFor("a/b.mjs"))
}

func TestIsTypeOnlyOutput(t *testing.T) {
	tr := New()

	out, err := tr.Transpile("types.ts", []byte(`
export type User = { name: string };
export interface Widget { id: number }
`))
	require.NoError(t, err)
	assert.True(t, IsTypeOnlyOutput(out))

	out, err = tr.Transpile("runtime.ts", []byte(`export const x = 1;`))
	require.NoError(t, err)
	assert.False(t, IsTypeOnlyOutput(out))
}
