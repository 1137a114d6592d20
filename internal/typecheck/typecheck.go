// Package typecheck runs the project's type checker out of process. The
// transpile pipeline strips types without verifying them, so diagnostics
// come from a real checker running beside the dev loop. The worker is
// isolated: a crashing or hanging checker never takes the server with it.
package typecheck

import (
	"context"
	goerrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/filament-dev/filament/internal/config"
	"github.com/filament-dev/filament/internal/logging"
)

// allowedCommands is the checker binary allowlist. Configuration can pick
// among these, nothing else.
var allowedCommands = map[string]bool{
	"tsc":  true,
	"npx":  true,
	"deno": true,
	"bun":  true,
}

// Result is the outcome of one checker run.
type Result struct {
	OK       bool
	Output   string
	Duration time.Duration
	Err      error
}

// Worker owns the checker process. Triggers are coalesced: any number of
// requests while a run is in flight collapse into one follow-up run.
type Worker struct {
	command string
	args    []string
	dir     string
	timeout time.Duration
	logger  logging.Logger

	trigger chan struct{}
	results chan Result
}

// NewWorker validates the configured command against the allowlist and
// builds the worker. dir is the directory the checker runs in, normally
// the directory holding tsconfig.
func NewWorker(cfg config.TypeCheckConfig, dir string, logger logging.Logger) (*Worker, error) {
	if err := validateCommand(cfg.Command); err != nil {
		return nil, err
	}
	if err := validateArguments(cfg.Args); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	return &Worker{
		command: cfg.Command,
		args:    cfg.Args,
		dir:     dir,
		timeout: 2 * time.Minute,
		logger:  logger.WithComponent("typecheck"),
		trigger: make(chan struct{}, 1),
		results: make(chan Result, 4),
	}, nil
}

// Trigger requests a checker run. Never blocks; a pending run absorbs
// repeated triggers.
func (w *Worker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Results returns the channel check outcomes are delivered on.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Start runs the worker loop until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.trigger:
				result := w.run(ctx)
				select {
				case w.results <- result:
				default:
					// A slow consumer loses old results, not new triggers.
				}
			}
		}
	}()
}

func (w *Worker) run(ctx context.Context) Result {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, w.command, w.args...)
	cmd.Dir = w.dir
	output, err := cmd.CombinedOutput()
	duration := time.Since(start)

	result := Result{
		OK:       err == nil,
		Output:   string(output),
		Duration: duration,
	}
	if err != nil {
		// Exit status 1 with diagnostics is the normal failure shape; only
		// a missing binary or a timeout is an operational error.
		var exitErr *exec.ExitError
		if !goerrors.As(err, &exitErr) {
			result.Err = err
		}
		w.logger.Info(ctx, "type check failed",
			"duration_ms", duration.Milliseconds(),
			"diagnostics", countLines(result.Output),
		)
	} else {
		w.logger.Info(ctx, "type check passed", "duration_ms", duration.Milliseconds())
	}
	return result
}

func countLines(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// validateCommand validates the checker binary against the allowlist.
func validateCommand(command string) error {
	if !allowedCommands[command] {
		return fmt.Errorf("type check command '%s' is not allowed", command)
	}
	return nil
}

// validateArgument rejects arguments a shell could interpret.
func validateArgument(arg string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}
	if strings.Contains(arg, "..") {
		return fmt.Errorf("path traversal attempt detected")
	}
	return nil
}

// validateArguments validates a slice of arguments.
func validateArguments(args []string) error {
	for _, arg := range args {
		if err := validateArgument(arg); err != nil {
			return fmt.Errorf("invalid argument '%s': %w", arg, err)
		}
	}
	return nil
}
