// Package devloop supervises the live development session: it feeds
// debounced watcher batches into the graph, refreshes dependents whose
// baked import versions went stale, persists the manifest, and tells the
// surrounding server how to reload.
package devloop

import (
	"context"
	"sort"

	"github.com/filament-dev/filament/internal/config"
	"github.com/filament-dev/filament/internal/graph"
	"github.com/filament-dev/filament/internal/logging"
	"github.com/filament-dev/filament/internal/typecheck"
	"github.com/filament-dev/filament/internal/types"
	"github.com/filament-dev/filament/internal/watcher"
)

// ReloadNotifier receives the reload decision after a change batch. The
// serve command plugs the process supervisor in here; tests plug in a
// recorder.
type ReloadNotifier interface {
	NotifyReload(layer types.ReloadLayer, files []string)
}

// Loop wires the watcher to the graph for one session.
type Loop struct {
	cfg      *config.Config
	graph    *graph.Graph
	watcher  *watcher.FileWatcher
	checker  *typecheck.Worker
	notifier ReloadNotifier
	logger   logging.Logger
}

// New builds the loop and its watcher. The type-check worker and the
// reload notifier are optional.
func New(cfg *config.Config, g *graph.Graph, logger logging.Logger) (*Loop, error) {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	fw, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger)
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.ExtensionFilter(cfg.Project.Extensions))
	fw.AddFilter(watcher.IgnoreDirsFilter(cfg.Watch.Ignore))
	fw.AddFilter(watcher.NoHiddenFilter)

	return &Loop{
		cfg:     cfg,
		graph:   g,
		watcher: fw,
		logger:  logger.WithComponent("devloop"),
	}, nil
}

// SetNotifier registers the reload notifier.
func (l *Loop) SetNotifier(n ReloadNotifier) {
	l.notifier = n
}

// SetChecker registers the type-check worker. Each change batch triggers
// one coalesced check.
func (l *Loop) SetChecker(w *typecheck.Worker) {
	l.checker = w
}

// Start begins watching the project root. It returns after the watcher
// goroutines are running; they stop when the context is cancelled.
func (l *Loop) Start(ctx context.Context) error {
	l.watcher.AddHandler(func(events []watcher.ChangeEvent) error {
		l.HandleBatch(ctx, events)
		return nil
	})
	if err := l.watcher.AddRecursive(l.graph.Normalizer().Root(), l.cfg.Watch.Ignore); err != nil {
		return err
	}
	return l.watcher.Start(ctx)
}

// Stop shuts the watcher down.
func (l *Loop) Stop() error {
	return l.watcher.Stop()
}

// HandleBatch processes one debounced batch of filesystem events. Changed
// files are reprocessed through the graph; their transitive dependents
// are then forced so the version tokens baked into their imports move to
// the new versions. Files whose content turned out identical are dropped
// before any reload decision.
func (l *Loop) HandleBatch(ctx context.Context, events []watcher.ChangeEvent) {
	changed := make(map[string]bool)

	for _, ev := range events {
		rel, err := l.graph.Normalizer().Relative(ev.Path)
		if err != nil {
			continue
		}
		didChange, uerr := l.graph.Update(ctx, ev.Path)
		if uerr != nil {
			l.logger.Warn(ctx, uerr, "change processing failed", "file", rel, "event", ev.Type.String())
		}
		if didChange {
			changed[rel] = true
		}
	}
	if len(changed) == 0 {
		return
	}

	// Dependents of every changed file re-bake their import references.
	// A dependent that also changed directly was already rebuilt.
	forced := make(map[string]bool)
	for rel := range changed {
		for _, dep := range l.graph.TransitiveDependents(rel) {
			if changed[dep] || forced[dep] {
				continue
			}
			forced[dep] = true
			if err := l.graph.ForceReprocess(ctx, dep); err != nil {
				l.logger.Warn(ctx, err, "dependent refresh failed", "file", dep)
			}
		}
	}

	files := make([]string, 0, len(changed))
	for rel := range changed {
		files = append(files, rel)
	}
	sort.Strings(files)

	layer := l.reloadLayer(files)
	l.logger.Info(ctx, "change batch processed",
		"changed", len(files),
		"refreshed_dependents", len(forced),
		"layer", string(layer),
	)

	if err := l.graph.SaveManifest(ctx); err != nil {
		l.logger.Warn(ctx, err, "manifest save failed")
	}
	if l.checker != nil {
		l.checker.Trigger()
	}
	if l.notifier != nil {
		l.notifier.NotifyReload(layer, files)
	}
}

// reloadLayer picks the strongest reload strategy any changed file
// demands. One restart-layer file escalates the whole batch.
func (l *Loop) reloadLayer(files []string) types.ReloadLayer {
	for _, rel := range files {
		info, ok := l.graph.Info(rel)
		if !ok {
			// Removed file: its dependents decide; a vanished module is a
			// hot-swap for whoever imported it.
			continue
		}
		if info.Layer == types.LayerRestart {
			return types.LayerRestart
		}
	}
	return types.LayerHotSwap
}
