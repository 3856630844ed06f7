package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPutGet_RoundTrip(t *testing.T) {
	c := New(0, 0)
	c.Put("fp-1", "warning", "disk usage climbing", false)

	entry, ok := c.Get("fp-1")
	assert.True(t, ok)
	assert.Equal(t, "warning", entry.Severity)
	assert.GreaterOrEqual(t, entry.HitCount, int64(1))
}

func TestGet_Miss(t *testing.T) {
	c := New(0, 0)
	_, ok := c.Get("absent")
	assert.False(t, ok)
}

func TestPut_HitCountIncrementsOnRefresh(t *testing.T) {
	c := New(0, 0)
	first := c.Put("fp-1", "info", "steady state", false)
	assert.Equal(t, int64(1), first.HitCount)

	second := c.Put("fp-1", "info", "steady state, updated", false)
	assert.Equal(t, int64(2), second.HitCount)
}

func TestGet_BumpsHitCountAndRecency(t *testing.T) {
	c := New(0, 0)
	c.Put("fp-1", "info", "x", false)

	e, ok := c.Get("fp-1")
	assert.True(t, ok)
	assert.Equal(t, int64(2), e.HitCount)
}

func TestLRUEviction_AtCapacity(t *testing.T) {
	c := New(2, 0)
	c.Put("fp-1", "info", "a", false)
	c.Put("fp-2", "info", "b", false)
	c.Put("fp-3", "info", "c", false)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("fp-1")
	assert.False(t, ok, "least-recently-used entry should have been evicted")
	_, ok = c.Get("fp-2")
	assert.True(t, ok)
	_, ok = c.Get("fp-3")
	assert.True(t, ok)
}

func TestLRUEviction_RecentGetProtectsEntry(t *testing.T) {
	c := New(2, 0)
	c.Put("fp-1", "info", "a", false)
	c.Put("fp-2", "info", "b", false)
	c.Get("fp-1") // touch fp-1 so fp-2 becomes the LRU entry
	c.Put("fp-3", "info", "c", false)

	_, ok := c.Get("fp-1")
	assert.True(t, ok)
	_, ok = c.Get("fp-2")
	assert.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	c := New(0, time.Hour)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	c.Put("fp-1", "info", "a", false)

	c.now = func() time.Time { return fixed.Add(2 * time.Hour) }
	_, ok := c.Get("fp-1")
	assert.False(t, ok, "entry older than ttl should be treated as a miss")
}

func TestSweep_EvictsExpiredOnly(t *testing.T) {
	c := New(0, time.Hour)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	c.Put("stale", "info", "a", false)

	c.now = func() time.Time { return fixed.Add(90 * time.Minute) }
	c.Put("fresh", "info", "b", false)

	c.now = func() time.Time { return fixed.Add(2 * time.Hour) }
	evicted := c.Sweep()

	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestPut_LocalFlagRecorded(t *testing.T) {
	c := New(0, 0)
	entry := c.Put("fp-1", "critical", "heuristic fallback result", true)
	assert.True(t, entry.Local)
}
