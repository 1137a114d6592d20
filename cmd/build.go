package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/filament-dev/filament/internal/config"
	"github.com/filament-dev/filament/internal/graph"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Compile the whole project into the cache",
	Long: `Compile every source file under the project root into the flat compile
cache. Files unchanged since the last build are reused from the manifest;
pass --cold to ignore it and rebuild everything.

Examples:
  filament build                  # Incremental build
  filament build --cold           # Ignore the manifest, rebuild all
  filament build --entry-only     # Only the entry point's import closure`,
	RunE: runBuild,
}

var (
	buildCold      bool
	buildEntryOnly bool
)

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildCold, "cold", false, "Ignore the manifest and rebuild everything")
	buildCmd.Flags().BoolVar(&buildEntryOnly, "entry-only", false, "Build only the entry point and its imports")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg)

	g, err := graph.New(cfg, logger)
	if err != nil {
		return err
	}
	if !buildCold {
		if err := g.LoadManifest(ctx); err != nil {
			return err
		}
	}

	perf := logger.StartOperation("build")

	var seeds []string
	if buildEntryOnly {
		seeds = []string{cfg.Project.Entry}
	} else {
		seeds, err = g.DiscoverSources(cfg.Project.Extensions, cfg.Watch.Ignore)
		if err != nil {
			perf.EndWithError(ctx, err)
			return fmt.Errorf("failed to discover sources: %w", err)
		}
		if len(seeds) == 0 {
			fmt.Println("No source files found.")
			return nil
		}
	}

	result, err := g.ProcessBatch(ctx, seeds)
	if err != nil {
		perf.EndWithError(ctx, err)
		return err
	}
	if err := g.SaveManifest(ctx); err != nil {
		perf.EndWithError(ctx, err)
		return err
	}
	perf.End(ctx)

	fmt.Printf("Built %d files (%d unchanged) in %s\n",
		len(result.Ready), result.Skipped, result.Duration.Round(time.Millisecond))

	if len(result.Failed) > 0 {
		for file, ferr := range result.Failed {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", file, ferr)
		}
		return fmt.Errorf("%d files failed to build", len(result.Failed))
	}
	return nil
}
