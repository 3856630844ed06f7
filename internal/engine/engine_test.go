package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchhound/telewatch/internal/config"
	"github.com/watchhound/telewatch/internal/logger"
	"github.com/watchhound/telewatch/internal/transport"
	"github.com/watchhound/telewatch/internal/types"
)

func waitForSent(t *testing.T, mem *transport.Memory, contains string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, s := range mem.Sent() {
			if strings.Contains(s, contains) {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for a sent message containing %q, got: %v", contains, mem.Sent())
}

func newTestConfig(t *testing.T, path string) config.Config {
	cfg := config.Defaults()
	cfg.Notification.DebounceSeconds = 0
	cfg.Anomaly.StallSeconds = 3600
	cfg.Monitors = []config.MonitorConfig{
		{Type: "file", Path: path, Name: "app", Keywords: []string{"timeout"}},
	}
	return cfg
}

func TestEngine_FileRecordReachesDispatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	mem := transport.NewMemory()
	cfg := newTestConfig(t, path)

	e, err := New(cfg, logger.NewSimple(), mem, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go e.Run(ctx)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("connection timeout, retrying\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	waitForSent(t, mem, "timeout", 2*time.Second)
}

func TestEngine_NonMatchingLineNeverDispatched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	mem := transport.NewMemory()
	cfg := newTestConfig(t, path)

	e, err := New(cfg, logger.NewSimple(), mem, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go e.Run(ctx)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("server started on :8080\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	<-ctx.Done()
	assert.Empty(t, mem.Sent())
}

func TestStatusSnapshot_ReportsLearnedPatternsAndRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	cfg := newTestConfig(t, path)
	e, err := New(cfg, logger.NewSimple(), transport.NewMemory(), nil)
	require.NoError(t, err)

	require.NoError(t, e.patterns.Inject("learned", "boom", "critical", "boom happened"))

	rec := types.LogRecord{SourceID: "app", Raw: "tick", Message: "tick", Profiled: true}
	e.detector.Observe(rec)
	time.Sleep(2 * time.Millisecond)
	e.detector.Observe(rec)

	snap := e.statusSnapshot()
	assert.Equal(t, 1, snap.LearnedPatterns)
	assert.Greater(t, snap.Rate, 0.0)
}

func TestNew_RejectsInvalidStagePattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	cfg := newTestConfig(t, path)
	cfg.Process.Name = "deploy"
	cfg.Process.Stages = []config.StageConfig{{Name: "build", Weight: 1, StartPattern: "("}}

	_, err := New(cfg, logger.NewSimple(), transport.NewMemory(), nil)
	assert.Error(t, err)
}
