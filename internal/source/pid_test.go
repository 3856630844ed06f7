package source

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPID_FailsFastWhenProcessNotFound(t *testing.T) {
	_, err := NewPID("src-1", 999999, 0)
	assert.Error(t, err)
}

func TestNewPID_SucceedsForRunningProcess(t *testing.T) {
	p, err := NewPID("src-1", os.Getpid(), 0)
	require.NoError(t, err)
	assert.Equal(t, "src-1", p.ID())
	assert.Equal(t, pidStateRunning, p.state)
}

func TestPID_NoTransitionProducesNoRecord(t *testing.T) {
	p, err := NewPID("src-1", os.Getpid(), 0)
	require.NoError(t, err)
	p.lastPoll = time.Now()
	p.now = func() time.Time { return p.lastPoll.Add(CheckInterval + time.Second) }

	_, ok, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPID_StoppedTransitionEmitsRecord(t *testing.T) {
	p, err := NewPID("src-1", os.Getpid(), 0)
	require.NoError(t, err)
	p.lastPoll = time.Now()
	p.now = func() time.Time { return p.lastPoll.Add(CheckInterval + time.Second) }
	p.state = pidStateRunning

	// Simulate a pid that no longer exists by forcing state directly;
	// processExists(os.Getpid()) is always true in-process, so swap in
	// an unreachable pid to exercise the transition path instead.
	p.pid = 999999

	rec, ok, err := p.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, rec.Raw, "stopped")
	assert.Equal(t, pidStateStopped, p.state)
}

func TestExitStatus_ReturnsUnknownPlaceholder(t *testing.T) {
	assert.Equal(t, "unknown", exitStatus(1))
}
