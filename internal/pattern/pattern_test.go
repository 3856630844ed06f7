package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstMatch_OrderedPrecedence(t *testing.T) {
	m := New([]Source{
		{ID: "generic-error", Regex: `error`, Severity: "warning", Summary: "generic error seen", Enabled: true},
		{ID: "oom", Regex: `out of memory`, Severity: "critical", Summary: "OOM: %s", Enabled: true},
	})

	match, ok := m.FirstMatch("out of memory killed pid 123, error logged")
	assert.True(t, ok)
	assert.Equal(t, "warning", match.Severity, "first matching pattern in list order should win")
}

func TestFirstMatch_NoMatch(t *testing.T) {
	m := New([]Source{{ID: "oom", Regex: `out of memory`, Severity: "critical", Summary: "oom", Enabled: true}})
	_, ok := m.FirstMatch("all systems nominal")
	assert.False(t, ok)
}

func TestFirstMatch_DisabledPatternSkipped(t *testing.T) {
	m := New([]Source{{ID: "oom", Regex: `out of memory`, Severity: "critical", Summary: "oom", Enabled: false}})
	_, ok := m.FirstMatch("out of memory")
	assert.False(t, ok)
}

func TestFirstMatch_SummaryTemplateInterpolation(t *testing.T) {
	m := New([]Source{{ID: "oom", Regex: `out of memory`, Severity: "critical", Summary: "detected: %s", Enabled: true}})
	match, ok := m.FirstMatch("out of memory")
	assert.True(t, ok)
	assert.Equal(t, "detected: out of memory", match.Summary)
}

func TestNew_SkipsInvalidRegex(t *testing.T) {
	m := New([]Source{
		{ID: "bad", Regex: `(unclosed`, Severity: "warning", Summary: "x", Enabled: true},
		{ID: "good", Regex: `ok`, Severity: "info", Summary: "fine", Enabled: true},
	})
	assert.Equal(t, 1, m.Len())
}

func TestInject_AppendsGeneratedPattern(t *testing.T) {
	m := New(nil)
	err := m.Inject("generated-1", `disk full`, "critical", "disk exhaustion")
	assert.NoError(t, err)

	match, ok := m.FirstMatch("disk full on /dev/sda1")
	assert.True(t, ok)
	assert.Equal(t, "critical", match.Severity)

	generated := m.Generated()
	assert.Len(t, generated, 1)
	assert.Equal(t, "generated-1", generated[0].ID)
}

func TestInject_RejectsInvalidRegex(t *testing.T) {
	m := New(nil)
	err := m.Inject("bad", `(unclosed`, "critical", "x")
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
}
