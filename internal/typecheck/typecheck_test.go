package typecheck

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filament-dev/filament/internal/config"
)

func TestNewWorker_CommandAllowlist(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TypeCheckConfig
		wantErr bool
	}{
		{"tsc allowed", config.TypeCheckConfig{Command: "tsc", Args: []string{"--noEmit"}}, false},
		{"npx allowed", config.TypeCheckConfig{Command: "npx", Args: []string{"tsc", "--noEmit"}}, false},
		{"deno allowed", config.TypeCheckConfig{Command: "deno", Args: []string{"check", "main.ts"}}, false},
		{"arbitrary binary rejected", config.TypeCheckConfig{Command: "rm"}, true},
		{"path rejected", config.TypeCheckConfig{Command: "/usr/bin/tsc"}, true},
		{"empty rejected", config.TypeCheckConfig{Command: ""}, true},
		{"shell metacharacter in args rejected", config.TypeCheckConfig{Command: "tsc", Args: []string{"--noEmit; rm -rf /"}}, true},
		{"traversal in args rejected", config.TypeCheckConfig{Command: "tsc", Args: []string{"../../etc"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWorker(tt.cfg, t.TempDir(), nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWorker_TriggerCoalesces(t *testing.T) {
	w, err := NewWorker(config.TypeCheckConfig{Command: "tsc"}, t.TempDir(), nil)
	require.NoError(t, err)

	// Without a running loop, the buffered trigger absorbs exactly one
	// request; the rest must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			w.Trigger()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Trigger blocked")
	}
	assert.Len(t, w.trigger, 1)
}

func TestWorker_MissingBinaryIsOperationalError(t *testing.T) {
	// "bun" is allowlisted but almost certainly absent in CI; the run must
	// surface an operational error rather than panic or hang.
	w, err := NewWorker(config.TypeCheckConfig{Command: "bun", Args: []string{"x"}}, t.TempDir(), nil)
	require.NoError(t, err)
	w.timeout = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	w.Trigger()

	select {
	case result := <-w.Results():
		assert.False(t, result.OK)
	case <-time.After(10 * time.Second):
		t.Fatal("no result delivered")
	}
}
