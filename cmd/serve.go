package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/filament-dev/filament/internal/config"
	"github.com/filament-dev/filament/internal/devloop"
	"github.com/filament-dev/filament/internal/graph"
	"github.com/filament-dev/filament/internal/logging"
	"github.com/filament-dev/filament/internal/typecheck"
	"github.com/filament-dev/filament/internal/types"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Watch the project and serve the compile cache",
	Long: `Run the full development session: build the project, watch for changes,
keep the cache current, and serve compiled modules over HTTP.

The server exposes:
  /cache/           compiled module artifacts
  /graph            the dependency graph as JSON
  /healthz          liveness probe

Examples:
  filament serve                  # Serve on localhost:9040
  filament serve --port 3000      # Custom port
  filament serve --no-typecheck   # Skip the type-check worker`,
	RunE: runServe,
}

var (
	serveHost        string
	servePort        int
	serveNoTypecheck bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Host to bind to")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 9040, "Port to serve on")
	serveCmd.Flags().BoolVar(&serveNoTypecheck, "no-typecheck", false, "Disable the type-check worker")
}

// logReloadNotifier is the default reload sink: it logs the decision a
// supervising process manager would act on.
type logReloadNotifier struct {
	logger logging.Logger
}

func (n *logReloadNotifier) NotifyReload(layer types.ReloadLayer, files []string) {
	n.logger.Info(context.Background(), "reload", "layer", string(layer), "files", files)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
		return fmt.Errorf("failed to discover sources: %w", err)
	}
	if _, err := g.ProcessBatch(ctx, seeds); err != nil {
		return err
	}
	if err := g.SaveManifest(ctx); err != nil {
		return err
	}

	loop, err := devloop.New(cfg, g, logger)
	if err != nil {
		return err
	}
	loop.SetNotifier(&logReloadNotifier{logger: logger.WithComponent("reload")})

	if cfg.TypeCheck.Enabled && !serveNoTypecheck {
		checker, cerr := typecheck.NewWorker(cfg.TypeCheck, ".", logger)
		if cerr != nil {
			return cerr
		}
		checker.Start(ctx)
		loop.SetChecker(checker)
		go drainTypecheckResults(ctx, checker, logger)
	}

	if err := loop.Start(ctx); err != nil {
		return err
	}
	defer loop.Stop()

	addr := net.JoinHostPort(serveHost, fmt.Sprintf("%d", servePort))
	server := &http.Server{
		Addr:              addr,
		Handler:           serveMux(g),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "dev server listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return g.SaveManifest(context.Background())
	case err := <-errCh:
		return err
	}
}

func serveMux(g *graph.Graph) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/cache/", http.StripPrefix("/cache/",
		http.FileServer(http.Dir(g.Artifacts().Dir()))))

	mux.HandleFunc("/graph", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(graphView(g))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return mux
}

func drainTypecheckResults(ctx context.Context, checker *typecheck.Worker, logger logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case result := <-checker.Results():
			if result.Err != nil {
				logger.Warn(ctx, result.Err, "type checker did not run")
			} else if !result.OK {
				fmt.Print(result.Output)
			}
		}
	}
}
