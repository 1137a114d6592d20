package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/filament-dev/filament/internal/config"
	"github.com/filament-dev/filament/internal/graph"
)

var cleanCmd = &cobra.Command{
	Use:     "clean",
	Aliases: []string{"c"},
	Short:   "Delete the compile cache and manifest",
	Long: `Remove every compiled artifact and the manifest. The next build starts
cold and recompiles the whole project.`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := graph.NewArtifactStore(cfg.Cache.Dir)
	if err != nil {
		return err
	}
	if err := store.Clean(); err != nil {
		return err
	}
	if err := os.Remove(cfg.Cache.Manifest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}

	fmt.Println("Cache cleaned.")
	return nil
}
