package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/watchhound/telewatch/internal/advisor"
	"github.com/watchhound/telewatch/internal/cache"
	"github.com/watchhound/telewatch/internal/pattern"
	"github.com/watchhound/telewatch/internal/types"
)

func newRecord(msg string) types.LogRecord {
	return types.LogRecord{SourceID: "src-1", Raw: msg, Message: msg, Profiled: true, Arrived: time.Now()}
}

func TestDecide_SpikeReasonBypassesPipeline(t *testing.T) {
	c := New(cache.New(0, 0), pattern.New(nil), nil, 0, nil)
	ev := c.Decide(context.Background(), Input{
		Record:          newRecord("rate jumped"),
		Reason:          types.ReasonSpike,
		AnomalySeverity: types.SeverityWarning,
		AnomalySummary:  "ingestion rate tripled",
	})
	assert.Equal(t, types.SeverityWarning, ev.Severity)
	assert.Equal(t, "ingestion rate tripled", ev.Summary)
}

func TestDecide_CacheHitShortCircuits(t *testing.T) {
	ch := cache.New(0, 0)
	c := New(ch, pattern.New(nil), &advisor.Fake{Results: []advisor.Result{{Severity: "warning", Summary: "disk nearly full"}}}, 0, nil)

	first := c.Decide(context.Background(), Input{Record: newRecord("disk usage at 91%"), Reason: types.ReasonKeyword})
	second := c.Decide(context.Background(), Input{Record: newRecord("disk usage at 91%"), Reason: types.ReasonKeyword})

	assert.Equal(t, first.Severity, second.Severity)
	assert.Len(t, c.advisor.(*advisor.Fake).Calls, 1, "second identical record should be served from the cache, not re-classified")
}

func TestDecide_PatternMatchSkipsAdvisor(t *testing.T) {
	p := pattern.New([]pattern.Source{
		{ID: "oom", Regex: "out of memory", Severity: "critical", Summary: "OOM detected", Enabled: true},
	})
	fake := &advisor.Fake{}
	c := New(cache.New(0, 0), p, fake, 0, nil)

	ev := c.Decide(context.Background(), Input{Record: newRecord("process killed: out of memory"), Reason: types.ReasonKeyword})
	assert.Equal(t, types.SeverityCritical, ev.Severity)
	assert.Equal(t, types.ReasonPattern, ev.Reason)
	assert.Empty(t, fake.Calls)
}

func TestDecide_AdvisorClassifiesAndCaches(t *testing.T) {
	fake := &advisor.Fake{Results: []advisor.Result{{Severity: "warning", Summary: "connection pool exhausted"}}}
	c := New(cache.New(0, 0), pattern.New(nil), fake, 0, nil)

	ev := c.Decide(context.Background(), Input{Record: newRecord("pool acquire timed out"), Reason: types.ReasonKeyword})
	assert.Equal(t, types.SeverityWarning, ev.Severity)
	assert.Len(t, fake.Calls, 1)

	ev2 := c.Decide(context.Background(), Input{Record: newRecord("pool acquire timed out"), Reason: types.ReasonKeyword})
	assert.Equal(t, ev.Summary, ev2.Summary)
	assert.Len(t, fake.Calls, 1, "second identical record should be served from cache, not re-classified")
}

func TestDecide_AdvisorGeneratedPatternIsInjected(t *testing.T) {
	fake := &advisor.Fake{Results: []advisor.Result{
		{Severity: "critical", Summary: "replica lag exceeded threshold", GeneratedPattern: `replica lag \d+s`},
	}}
	p := pattern.New(nil)
	c := New(cache.New(0, 0), p, fake, 0, nil)

	c.Decide(context.Background(), Input{Record: newRecord("replica lag 42s"), Reason: types.ReasonKeyword})
	assert.Len(t, p.Generated(), 1)
}

func TestDecide_AdvisorUnavailableDegrades(t *testing.T) {
	fake := &advisor.Fake{Err: errors.New("timeout")}
	c := New(cache.New(0, 0), pattern.New(nil), fake, 0, nil)

	ev := c.Decide(context.Background(), Input{Record: newRecord("FATAL worker crashed"), Reason: types.ReasonKeyword})
	assert.Equal(t, types.SeverityCritical, ev.Severity)
	assert.Equal(t, "degraded", ev.Detail)
}

func TestDecide_NoAdvisorConfiguredDegradesImmediately(t *testing.T) {
	c := New(cache.New(0, 0), pattern.New(nil), nil, 0, nil)
	ev := c.Decide(context.Background(), Input{Record: newRecord("WARN latency elevated"), Reason: types.ReasonKeyword})
	assert.Equal(t, types.SeverityWarning, ev.Severity)
}

func TestDecide_AdvisorThrottledDegrades(t *testing.T) {
	fake := &advisor.Fake{QuotaV: advisor.QuotaThrottled}
	c := New(cache.New(0, 0), pattern.New(nil), fake, 0, nil)

	c.Decide(context.Background(), Input{Record: newRecord("something odd"), Reason: types.ReasonKeyword})
	assert.Empty(t, fake.Calls, "throttled advisor should never be called")
}

func TestWithinBudget_CapsHourlyCalls(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := &advisor.Fake{Results: []advisor.Result{{Severity: "info", Summary: "noise"}}}
	c := New(cache.New(0, 0), pattern.New(nil), fake, 1, nil)
	c.now = func() time.Time { return fixed }

	c.Decide(context.Background(), Input{Record: newRecord("unique line one"), Reason: types.ReasonKeyword})
	c.Decide(context.Background(), Input{Record: newRecord("unique line two"), Reason: types.ReasonKeyword})

	assert.Len(t, fake.Calls, 1, "second call should exceed the budget of 1 and fall to the degraded path")
}

func TestWithinBudget_ResetsAfterAnHour(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := &advisor.Fake{Results: []advisor.Result{{Severity: "info", Summary: "noise"}}}
	c := New(cache.New(0, 0), pattern.New(nil), fake, 1, nil)
	c.now = func() time.Time { return fixed }

	c.Decide(context.Background(), Input{Record: newRecord("unique line one"), Reason: types.ReasonKeyword})
	c.now = func() time.Time { return fixed.Add(2 * time.Hour) }
	c.Decide(context.Background(), Input{Record: newRecord("unique line two"), Reason: types.ReasonKeyword})

	assert.Len(t, fake.Calls, 2)
}
