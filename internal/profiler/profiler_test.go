package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/watchhound/telewatch/internal/types"
)

func observeN(p *Profile, raw string, n int) {
	for i := 0; i < n; i++ {
		rec := types.LogRecord{Raw: raw, Arrived: time.Now()}
		p.Observe(&rec)
	}
}

func TestObserve_LocksFormatAfterBootstrapRecords(t *testing.T) {
	p := New()
	observeN(p, "2024-01-01T10:00:00Z INFO worker tick", BootstrapRecords)

	assert.True(t, p.locked)
	assert.Equal(t, FormatPlain, p.Format)
	assert.Equal(t, "iso8601", p.TimestampPattern)
}

func TestObserve_ClassifiesJSON(t *testing.T) {
	p := New()
	observeN(p, `{"level":"info","msg":"tick"}`, BootstrapRecords)
	assert.Equal(t, FormatJSON, p.Format)
}

func TestObserve_ClassifiesCSV(t *testing.T) {
	p := New()
	observeN(p, "2024-01-01,worker-1,tick,ok", BootstrapRecords)
	assert.Equal(t, FormatCSV, p.Format)
}

func TestObserve_ClassifiesKV(t *testing.T) {
	p := New()
	observeN(p, "level=info msg=tick worker=1", BootstrapRecords)
	assert.Equal(t, FormatKV, p.Format)
}

func TestObserve_ExtractsLevelFromPlainText(t *testing.T) {
	p := New()
	rec := types.LogRecord{Raw: "2024-01-01T10:00:00Z WARN disk filling up", Arrived: time.Now()}
	p.Observe(&rec)
	assert.Equal(t, "WARN", rec.Severity)
}

func TestObserve_ExtractsLevelFromJSON(t *testing.T) {
	p := New()
	rec := types.LogRecord{Raw: `{"level":"error","msg":"boom"}`, Arrived: time.Now()}
	p.Observe(&rec)
	assert.Equal(t, "error", rec.Severity)
}

func TestObserve_MessageStripsLeadingTimestamp(t *testing.T) {
	p := New()
	observeN(p, "2024-01-01T10:00:00Z INFO worker tick", BootstrapRecords)

	rec := types.LogRecord{Raw: "2024-01-01T10:05:00Z INFO worker tick", Arrived: time.Now()}
	p.Observe(&rec)
	assert.Equal(t, "INFO worker tick", rec.Message)
}

func TestObserve_DriftTriggersReprofile(t *testing.T) {
	p := New()
	observeN(p, "2024-01-01T10:00:00Z INFO worker tick", BootstrapRecords)
	assert.True(t, p.locked)

	var fired bool
	for i := 0; i < DriftWindow; i++ {
		rec := types.LogRecord{Raw: `{"level":"info","msg":"shape changed"}`, Arrived: time.Now()}
		if p.Observe(&rec) {
			fired = true
		}
	}

	assert.True(t, fired, "sustained format mismatch should trigger re-profiling")
	assert.False(t, p.locked, "profile should have reset back into bootstrap")
}

func TestObserve_OccasionalMismatchDoesNotDrift(t *testing.T) {
	p := New()
	observeN(p, "2024-01-01T10:00:00Z INFO worker tick", BootstrapRecords)

	for i := 0; i < DriftWindow; i++ {
		raw := "2024-01-01T10:00:00Z INFO worker tick"
		if i%20 == 0 {
			raw = `{"level":"info","msg":"rare outlier"}`
		}
		rec := types.LogRecord{Raw: raw, Arrived: time.Now()}
		fired := p.Observe(&rec)
		assert.False(t, fired)
	}
	assert.True(t, p.locked)
}
