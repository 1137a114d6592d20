package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/filament-dev/filament/internal/config"
	"github.com/filament-dev/filament/internal/graph"
	"github.com/filament-dev/filament/internal/types"
)

func TestInit_WritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	initForce = false
	require.NoError(t, runInit(initCmd, nil))

	data, err := os.ReadFile(filepath.Join(dir, ".filament.yml"))
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "src", cfg.Project.Root)
	assert.Equal(t, "index.ts", cfg.Project.Entry)
	assert.Equal(t, ".filament/cache", cfg.Cache.Dir)

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		err := runInit(initCmd, nil)
		assert.Error(t, err)
	})

	t.Run("force overwrites", func(t *testing.T) {
		initForce = true
		defer func() { initForce = false }()
		assert.NoError(t, runInit(initCmd, nil))
	})
}

func TestGraphView(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.ts"),
		[]byte(`export const x = 1;`), 0o644))

	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Cache.Manifest = filepath.Join(dir, "manifest.json")

	g, err := graph.New(cfg, nil)
	require.NoError(t, err)
	_, err = g.LoadFile(context.Background(), "index.ts")
	require.NoError(t, err)

	views := graphView(g)
	require.Len(t, views, 1)
	assert.Equal(t, "index.ts", views[0].Path)
	assert.Equal(t, string(types.StateReady), views[0].State)
	assert.Equal(t, string(types.KindEntry), views[0].Kind)
	assert.Equal(t, "index.ts.mjs", views[0].CachePath)
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"build", "serve", "graph", "clean", "init", "config", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
