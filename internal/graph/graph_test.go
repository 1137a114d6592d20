package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filament-dev/filament/internal/config"
	"github.com/filament-dev/filament/internal/types"
)

func newTestGraph(t *testing.T) (*Graph, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(root, 0o755))

	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Cache.Dir = filepath.Join(dir, ".filament", "cache")
	cfg.Cache.Manifest = filepath.Join(dir, ".filament", "manifest.json")
	cfg.Cache.Workers = 4

	g, err := New(cfg, nil)
	require.NoError(t, err)
	return g, root
}

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestGraph_LoadFile_Closure(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	writeSource(t, root, "index.ts", `import { greet } from "./lib/greet";
console.log(greet("world"));
`)
	writeSource(t, root, "lib/greet.ts", `import { upper } from "./util";
export function greet(name: string): string {
	return "hi " + upper(name);
}
`)
	writeSource(t, root, "lib/util.ts", `export function upper(s: string): string {
	return s.toUpperCase();
}
`)

	info, err := g.LoadFile(ctx, "index.ts")
	require.NoError(t, err)
	assert.Equal(t, types.StateReady, info.State)
	assert.Equal(t, types.KindEntry, info.Kind)
	assert.Equal(t, types.LayerRestart, info.Layer)
	assert.Equal(t, int64(0), info.Version, "first build leaves version at zero")
	assert.Equal(t, []string{"lib/greet.ts"}, info.Dependencies)
	assert.Equal(t, 3, g.Len())

	greet, ok := g.Info("lib/greet.ts")
	require.True(t, ok)
	assert.Equal(t, types.StateReady, greet.State)
	assert.Equal(t, []string{"index.ts"}, greet.Dependents)
	assert.Equal(t, []string{"lib/util.ts"}, greet.Dependencies)

	artifact, ok := g.Artifact("index.ts")
	require.True(t, ok)
	assert.Contains(t, string(artifact), `"./lib_greet.ts.mjs?v=0"`,
		"imports must point at the flat cache name with the version token")
	assert.NotContains(t, string(artifact), `"./lib/greet"`)

	onDisk, err := g.Artifacts().Read("lib_greet.ts.mjs")
	require.NoError(t, err)
	assert.Contains(t, string(onDisk), `"./lib_util.ts.mjs?v=0"`)
}

func TestGraph_LoadFile_Idempotent(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	writeSource(t, root, "a.ts", `export const a = 1;`)

	first, err := g.LoadFile(ctx, "a.ts")
	require.NoError(t, err)
	second, err := g.LoadFile(ctx, "a.ts")
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version, "re-loading an unchanged file is a no-op")
	assert.Equal(t, first.Hash, second.Hash)
}

func TestGraph_ImportCycle(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	writeSource(t, root, "a.ts", `import { b } from "./b";
export const a = 1;
export function useB() { return b; }
`)
	writeSource(t, root, "b.ts", `import { a } from "./a";
export const b = 2;
export function useA() { return a; }
`)

	_, err := g.LoadFile(ctx, "a.ts")
	require.NoError(t, err, "a cycle must not break loading")

	aInfo, _ := g.Info("a.ts")
	bInfo, _ := g.Info("b.ts")
	assert.Equal(t, types.StateReady, aInfo.State)
	assert.Equal(t, types.StateReady, bInfo.State)
	assert.Equal(t, []string{"b.ts"}, aInfo.Dependencies)
	assert.Equal(t, []string{"b.ts"}, aInfo.Dependents)

	cycles := g.DetectCycles()
	require.Len(t, cycles, 1)
	assert.Len(t, cycles[0], 2)
}

func TestGraph_TypeOnlyFile(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	writeSource(t, root, "models.ts", `export type User = { name: string };
export interface Widget { id: number }
`)
	writeSource(t, root, "a.ts", `import type { User } from "./models";
export const a: User = { name: "x" };
`)

	_, err := g.LoadFile(ctx, "a.ts")
	require.NoError(t, err)

	models, ok := g.Info("models.ts")
	require.True(t, ok, "type-only imports still pull the file into the graph")
	assert.Equal(t, types.KindTypeOnly, models.Kind)
	assert.Equal(t, types.LayerHotSwap, models.Layer)
	assert.Empty(t, g.DetectCycles())
}

func TestGraph_MissingImportFails(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	writeSource(t, root, "a.ts", `import { gone } from "./nope";
export const a = gone;
`)

	_, err := g.LoadFile(ctx, "a.ts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "./nope")

	info, ok := g.Info("a.ts")
	require.True(t, ok)
	assert.Equal(t, types.StateFailed, info.State)
}

func TestGraph_FailureKeepsPreviousArtifact(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	writeSource(t, root, "a.ts", `export const a = 1;`)
	_, err := g.LoadFile(ctx, "a.ts")
	require.NoError(t, err)
	good, err := g.Artifacts().Read("a.ts.mjs")
	require.NoError(t, err)

	writeSource(t, root, "a.ts", "export const a = {\n  broken:\n")
	changed, err := g.Update(ctx, "a.ts")
	require.Error(t, err)
	assert.True(t, changed)

	info, _ := g.Info("a.ts")
	assert.Equal(t, types.StateFailed, info.State)

	after, err := g.Artifacts().Read("a.ts.mjs")
	require.NoError(t, err)
	assert.Equal(t, good, after, "a failed rebuild leaves the last good artifact alone")
}

func TestGraph_Update(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	writeSource(t, root, "a.ts", `export const a = 1;`)
	info, err := g.LoadFile(ctx, "a.ts")
	require.NoError(t, err)
	require.Equal(t, int64(0), info.Version)

	t.Run("unchanged content is a no-op", func(t *testing.T) {
		writeSource(t, root, "a.ts", `export const a = 1;`)
		changed, err := g.Update(ctx, "a.ts")
		require.NoError(t, err)
		assert.False(t, changed)
		info, _ := g.Info("a.ts")
		assert.Equal(t, int64(0), info.Version)
	})

	t.Run("changed content bumps version once", func(t *testing.T) {
		writeSource(t, root, "a.ts", `export const a = 2; // edited`)
		changed, err := g.Update(ctx, "a.ts")
		require.NoError(t, err)
		assert.True(t, changed)
		info, _ := g.Info("a.ts")
		assert.Equal(t, int64(1), info.Version)
		assert.Equal(t, types.StateReady, info.State)
	})

	t.Run("update of untracked path loads it", func(t *testing.T) {
		writeSource(t, root, "fresh.ts", `export const fresh = true;`)
		changed, err := g.Update(ctx, "fresh.ts")
		require.NoError(t, err)
		assert.True(t, changed)
		info, ok := g.Info("fresh.ts")
		require.True(t, ok)
		assert.Equal(t, types.StateReady, info.State)
	})
}

func TestGraph_UpdateRewiresDependencies(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	writeSource(t, root, "a.ts", `import { b } from "./b";
export const a = b;
`)
	writeSource(t, root, "b.ts", `export const b = 1;`)
	writeSource(t, root, "c.ts", `export const c = 2;`)

	_, err := g.LoadFile(ctx, "a.ts")
	require.NoError(t, err)

	writeSource(t, root, "a.ts", `import { c } from "./c";
export const a = c;
`)
	changed, err := g.Update(ctx, "a.ts")
	require.NoError(t, err)
	require.True(t, changed)

	aInfo, _ := g.Info("a.ts")
	assert.Equal(t, []string{"c.ts"}, aInfo.Dependencies)

	bInfo, _ := g.Info("b.ts")
	assert.Empty(t, bInfo.Dependents, "dropping an import removes the reverse edge")
	cInfo, _ := g.Info("c.ts")
	assert.Equal(t, []string{"a.ts"}, cInfo.Dependents)
}

func TestGraph_ForceReprocess(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	writeSource(t, root, "a.ts", `export const a = 1;`)
	_, err := g.LoadFile(ctx, "a.ts")
	require.NoError(t, err)

	require.NoError(t, g.ForceReprocess(ctx, "a.ts"))
	info, _ := g.Info("a.ts")
	assert.Equal(t, int64(1), info.Version, "force bumps the version even without a content change")
}

func TestGraph_Remove(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	writeSource(t, root, "a.ts", `import { b } from "./b";
export const a = b;
`)
	writeSource(t, root, "b.ts", `export const b = 1;`)

	_, err := g.LoadFile(ctx, "a.ts")
	require.NoError(t, err)

	t.Run("record with dependents stays in deleted state", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(root, "b.ts")))
		require.NoError(t, g.Remove(ctx, "b.ts"))

		info, ok := g.Info("b.ts")
		require.True(t, ok, "b still has a dependent, so the tombstone survives")
		assert.Equal(t, types.StateDeleted, info.State)

		_, err := g.Artifacts().Read("b.ts.mjs")
		assert.Error(t, err, "the cache artifact is gone")
	})

	t.Run("dependent fails loudly on reprocess", func(t *testing.T) {
		err := g.ForceReprocess(ctx, "a.ts")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "./b")
	})

	t.Run("record without dependents is destroyed", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(root, "a.ts")))
		require.NoError(t, g.Remove(ctx, "a.ts"))
		_, ok := g.Info("a.ts")
		assert.False(t, ok)
		_, ok = g.Info("b.ts")
		assert.False(t, ok, "removing the last importer destroys the tombstone too")
	})
}

func TestGraph_Events(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	events := g.Watch()
	defer g.Unwatch(events)

	writeSource(t, root, "a.ts", `export const a = 1;`)
	_, err := g.LoadFile(ctx, "a.ts")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, types.EventTypeReady, ev.Type)
		assert.Equal(t, "a.ts", ev.RelPath)
		assert.Equal(t, int64(0), ev.Version)
	default:
		t.Fatal("expected a ready event")
	}
}

func TestGraph_ProcessBatch(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	// Deliberately listed so dependents come before dependencies.
	writeSource(t, root, "app.ts", `import { route } from "./routes/home";
export const app = route;
`)
	writeSource(t, root, "routes/home.ts", `import { helper } from "../shared";
export const route = helper();
`)
	writeSource(t, root, "shared.ts", `export function helper(): number { return 7; }
`)

	result, err := g.ProcessBatch(ctx, []string{"app.ts", "routes/home.ts", "shared.ts"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"app.ts", "routes/home.ts", "shared.ts"}, result.Ready)
	assert.Empty(t, result.Failed)

	home, _ := g.Info("routes/home.ts")
	assert.Equal(t, types.KindRoute, home.Kind)

	t.Run("second batch skips everything", func(t *testing.T) {
		result, err := g.ProcessBatch(ctx, []string{"app.ts", "routes/home.ts", "shared.ts"})
		require.NoError(t, err)
		assert.Empty(t, result.Ready)
		assert.Equal(t, 3, result.Skipped)
	})

	t.Run("one bad file does not sink the batch", func(t *testing.T) {
		writeSource(t, root, "broken.ts", "const x = {\n  oops:\n")
		result, err := g.ProcessBatch(ctx, []string{"broken.ts", "app.ts"})
		require.NoError(t, err)
		assert.Contains(t, result.Failed, "broken.ts")
		info, _ := g.Info("app.ts")
		assert.Equal(t, types.StateReady, info.State)
	})
}

func TestGraph_TransitiveDependents(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	writeSource(t, root, "top.ts", `import { mid } from "./mid";
export const top = mid;
`)
	writeSource(t, root, "mid.ts", `import { leaf } from "./leaf";
export const mid = leaf;
`)
	writeSource(t, root, "leaf.ts", `export const leaf = 1;`)

	_, err := g.LoadFile(ctx, "top.ts")
	require.NoError(t, err)

	assert.Equal(t, []string{"mid.ts", "top.ts"}, g.TransitiveDependents("leaf.ts"))
	assert.Empty(t, g.TransitiveDependents("top.ts"))
}

func TestHashBytes(t *testing.T) {
	src := []byte(`export const a = 1;`)

	assert.Equal(t, HashBytes(src), HashBytes([]byte(`export const a = 1;`)),
		"identical content must hash identically")
	assert.Len(t, HashBytes(src), 64)

	assert.NotEqual(t, HashBytes(src), HashBytes([]byte(`export const a = 2;`)),
		"a one-character change must change the hash")
	assert.NotEqual(t, HashBytes(src), HashBytes([]byte("export const a = 1;\n")),
		"trailing whitespace is content")
	assert.NotEqual(t, HashBytes(src), HashBytes(nil))
}

func TestGraph_ConcurrentUpdatesStaySerialized(t *testing.T) {
	g, root := newTestGraph(t)
	ctx := context.Background()

	writeSource(t, root, "dep.ts", `export const d = 1;`)
	writeSource(t, root, "app.ts", `import { d } from "./dep";
export const app = d;
`)
	_, err := g.LoadFile(ctx, "app.ts")
	require.NoError(t, err)

	// Forced reprocesses race against content-unchanged updates; only the
	// former may move the version, and each exactly once.
	const forced = 6
	errs := make(chan error, forced*2)
	for i := 0; i < forced; i++ {
		go func() { errs <- g.ForceReprocess(ctx, "dep.ts") }()
		go func() {
			_, uerr := g.Update(ctx, "dep.ts")
			errs <- uerr
		}()
	}
	for i := 0; i < forced*2; i++ {
		require.NoError(t, <-errs)
	}

	dep, _ := g.Info("dep.ts")
	assert.Equal(t, int64(forced), dep.Version)
	assert.Equal(t, types.StateReady, dep.State)

	require.NoError(t, g.ForceReprocess(ctx, "app.ts"))
	artifact, ok := g.Artifact("app.ts")
	require.True(t, ok)
	assert.Contains(t, string(artifact), fmt.Sprintf("./dep.ts.mjs?v=%d", dep.Version),
		"the rewritten import carries the final version")
}

func TestGraph_ZeroWorkerConfig(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(root, 0o755))

	// A Config built by hand rather than through Load; worker count and
	// parse cache size are left at their zero values.
	cfg := &config.Config{}
	cfg.Project.Root = root
	cfg.Project.Entry = "index.ts"
	cfg.Project.Extensions = []string{".ts"}
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Cache.Manifest = filepath.Join(dir, "manifest.json")

	g, err := New(cfg, nil)
	require.NoError(t, err)

	writeSource(t, root, "index.ts", `import { x } from "./lib";
export const app = x;
`)
	writeSource(t, root, "lib.ts", `export const x = 1;`)

	info, err := g.LoadFile(context.Background(), "index.ts")
	require.NoError(t, err)
	assert.Equal(t, types.StateReady, info.State)
	assert.Equal(t, 2, g.Len())
}

func TestGraph_DiscoverSources(t *testing.T) {
	g, root := newTestGraph(t)

	writeSource(t, root, "index.ts", `export const x = 1;`)
	writeSource(t, root, "lib/a.tsx", `export const a = 1;`)
	writeSource(t, root, "notes.md", `not source`)
	writeSource(t, root, "node_modules/pkg/index.ts", `ignored`)

	files, err := g.DiscoverSources([]string{".ts", ".tsx"}, []string{"node_modules"})
	require.NoError(t, err)
	assert.Equal(t, []string{"index.ts", "lib/a.tsx"}, files)
}
