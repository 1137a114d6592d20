package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/filament-dev/filament/internal/config"
	"github.com/filament-dev/filament/internal/graph"
)

var graphCmd = &cobra.Command{
	Use:     "graph",
	Aliases: []string{"g"},
	Short:   "Inspect the dependency graph",
	Long: `Build the project (incrementally) and print the dependency graph.

Examples:
  filament graph                  # Table of files, versions and edges
  filament graph --format json    # Machine-readable output
  filament graph --cycles         # Only report runtime import cycles`,
	RunE: runGraph,
}

var (
	graphFormat string
	graphCycles bool
)

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().StringVarP(&graphFormat, "format", "f", "table", "Output format (table, json)")
	graphCmd.Flags().BoolVar(&graphCycles, "cycles", false, "Only report import cycles")
}

// fileView is the JSON shape of one graph node.
type fileView struct {
	Path         string   `json:"path"`
	State        string   `json:"state"`
	Kind         string   `json:"kind"`
	Layer        string   `json:"layer"`
	Version      int64    `json:"version"`
	Hash         string   `json:"hash"`
	CachePath    string   `json:"cache_path"`
	Dependencies []string `json:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func graphView(g *graph.Graph) []fileView {
	snapshot := g.Snapshot()
	views := make([]fileView, 0, len(snapshot))
	for _, info := range snapshot {
		view := fileView{
			Path:         info.RelPath,
			State:        string(info.State),
			Kind:         string(info.Kind),
			Layer:        string(info.Layer),
			Version:      info.Version,
			Hash:         info.Hash,
			CachePath:    info.CachePath,
			Dependencies: info.Dependencies,
			Dependents:   info.Dependents,
		}
		if info.Err != nil {
			view.Error = info.Err.Error()
		}
		views = append(views, view)
	}
	return views
}

func runGraph(cmd *cobra.Command, args []string) error {
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
	if err := g.LoadManifest(ctx); err != nil {
		return err
	}
	seeds, err := g.DiscoverSources(cfg.Project.Extensions, cfg.Watch.Ignore)
	if err != nil {
		return err
	}
	if _, err := g.ProcessBatch(ctx, seeds); err != nil {
		return err
	}

	if graphCycles {
		return printCycles(g)
	}

	switch graphFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(graphView(g))
	case "table":
		return printGraphTable(g)
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json)", graphFormat)
	}
}

func printGraphTable(g *graph.Graph) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSTATE\tKIND\tVERSION\tIMPORTS\tIMPORTED BY")
	for _, info := range g.Snapshot() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
			info.RelPath, info.State, info.Kind, info.Version,
			len(info.Dependencies), len(info.Dependents))
	}
	return w.Flush()
}

func printCycles(g *graph.Graph) error {
	cycles := g.DetectCycles()
	if len(cycles) == 0 {
		fmt.Println("No import cycles.")
		return nil
	}
	for _, cycle := range cycles {
		fmt.Printf("cycle: %s -> %s\n", strings.Join(cycle, " -> "), cycle[0])
	}
	return nil
}
