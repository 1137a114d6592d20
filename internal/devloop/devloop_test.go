package devloop

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filament-dev/filament/internal/config"
	"github.com/filament-dev/filament/internal/graph"
	"github.com/filament-dev/filament/internal/types"
	"github.com/filament-dev/filament/internal/watcher"
)

type reloadRecorder struct {
	mu    sync.Mutex
	calls []reloadCall
}

type reloadCall struct {
	layer types.ReloadLayer
	files []string
}

func (r *reloadRecorder) NotifyReload(layer types.ReloadLayer, files []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reloadCall{layer: layer, files: files})
}

func (r *reloadRecorder) last(t *testing.T) reloadCall {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.calls)
	return r.calls[len(r.calls)-1]
}

func (r *reloadRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestLoop(t *testing.T) (*Loop, *graph.Graph, string, *reloadRecorder) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(root, 0o755))

	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Cache.Dir = filepath.Join(dir, ".filament", "cache")
	cfg.Cache.Manifest = filepath.Join(dir, ".filament", "manifest.json")
	cfg.Watch.Debounce = 20 * time.Millisecond

	g, err := graph.New(cfg, nil)
	require.NoError(t, err)

	loop, err := New(cfg, g, nil)
	require.NoError(t, err)
	recorder := &reloadRecorder{}
	loop.SetNotifier(recorder)
	return loop, g, root, recorder
}

func writeSource(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHandleBatch_ModuleChangeIsHotSwap(t *testing.T) {
	loop, g, root, recorder := newTestLoop(t)
	ctx := context.Background()

	writeSource(t, root, "index.ts", `import { n } from "./lib/mod";
export const app = n;
`)
	modPath := writeSource(t, root, "lib/mod.ts", `export const n = 1;`)
	_, err := g.LoadFile(ctx, "index.ts")
	require.NoError(t, err)

	writeSource(t, root, "lib/mod.ts", `export const n = 2; // edited`)
	loop.HandleBatch(ctx, []watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: modPath},
	})

	call := recorder.last(t)
	assert.Equal(t, types.LayerHotSwap, call.layer)
	assert.Equal(t, []string{"lib/mod.ts"}, call.files)

	mod, _ := g.Info("lib/mod.ts")
	assert.Equal(t, int64(1), mod.Version)

	// The dependent was forced so its baked version token moved.
	index, _ := g.Info("index.ts")
	assert.Equal(t, int64(1), index.Version)
	artifact, ok := g.Artifact("index.ts")
	require.True(t, ok)
	assert.Contains(t, string(artifact), "lib_mod.ts.mjs?v=1")
}

func TestHandleBatch_EntryChangeEscalatesToRestart(t *testing.T) {
	loop, g, root, recorder := newTestLoop(t)
	ctx := context.Background()

	entryPath := writeSource(t, root, "index.ts", `export const app = 1;`)
	_, err := g.LoadFile(ctx, "index.ts")
	require.NoError(t, err)

	writeSource(t, root, "index.ts", `export const app = 2; // edited`)
	loop.HandleBatch(ctx, []watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: entryPath},
	})

	assert.Equal(t, types.LayerRestart, recorder.last(t).layer)
}

func TestHandleBatch_UnchangedContentNoReload(t *testing.T) {
	loop, g, root, recorder := newTestLoop(t)
	ctx := context.Background()

	path := writeSource(t, root, "a.ts", `export const a = 1;`)
	_, err := g.LoadFile(ctx, "a.ts")
	require.NoError(t, err)

	// Touch without changing content (same bytes, new mtime).
	writeSource(t, root, "a.ts", `export const a = 1;`)
	loop.HandleBatch(ctx, []watcher.ChangeEvent{
		{Type: watcher.EventTypeModified, Path: path},
	})

	assert.Zero(t, recorder.count(), "identical content must not trigger a reload")
	info, _ := g.Info("a.ts")
	assert.Equal(t, int64(0), info.Version)
}

func TestHandleBatch_NewFileJoinsGraph(t *testing.T) {
	loop, g, root, recorder := newTestLoop(t)
	ctx := context.Background()

	path := writeSource(t, root, "fresh.ts", `export const fresh = 1;`)
	loop.HandleBatch(ctx, []watcher.ChangeEvent{
		{Type: watcher.EventTypeCreated, Path: path},
	})

	info, ok := g.Info("fresh.ts")
	require.True(t, ok)
	assert.Equal(t, types.StateReady, info.State)
	assert.Equal(t, []string{"fresh.ts"}, recorder.last(t).files)
}

func TestHandleBatch_DeletionNotifiesAndRemoves(t *testing.T) {
	loop, g, root, recorder := newTestLoop(t)
	ctx := context.Background()

	path := writeSource(t, root, "gone.ts", `export const g = 1;`)
	_, err := g.LoadFile(ctx, "gone.ts")
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	loop.HandleBatch(ctx, []watcher.ChangeEvent{
		{Type: watcher.EventTypeDeleted, Path: path},
	})

	_, ok := g.Info("gone.ts")
	assert.False(t, ok)
	assert.Equal(t, []string{"gone.ts"}, recorder.last(t).files)
}

func TestHandleBatch_SavesManifest(t *testing.T) {
	loop, _, root, _ := newTestLoop(t)
	ctx := context.Background()

	path := writeSource(t, root, "a.ts", `export const a = 1;`)
	loop.HandleBatch(ctx, []watcher.ChangeEvent{
		{Type: watcher.EventTypeCreated, Path: path},
	})

	manifest := filepath.Join(filepath.Dir(root), ".filament", "manifest.json")
	_, err := os.Stat(manifest)
	assert.NoError(t, err, "each processed batch persists the manifest")
}
