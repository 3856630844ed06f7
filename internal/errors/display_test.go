package errors

import (
	"bytes"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayError(t *testing.T) {
	oldStderr := os.Stderr

	tests := []struct {
		name     string
		err      error
		contains []string
	}{
		{
			name: "advisor error",
			err: New(KindAdvisor, "advisor call failed").
				WithCause(fmt.Errorf("context deadline exceeded")).
				WithSolutions("the classifier degrades automatically", "check llm.api_key"),
			contains: []string{
				"advisor call failed",
				"context deadline exceeded",
				"the classifier degrades automatically",
			},
		},
		{
			name: "configuration error",
			err: New(KindConfiguration, "invalid configuration").
				WithCause(fmt.Errorf("telegram.bot_token missing")).
				WithSolutions("set telegram.bot_token in the config file"),
			contains: []string{
				"invalid configuration",
				"telegram.bot_token missing",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, w, _ := os.Pipe()
			os.Stderr = w

			DisplayError(tt.err)

			w.Close()
			buf := &bytes.Buffer{}
			buf.ReadFrom(r)
			output := buf.String()
			os.Stderr = oldStderr

			for _, expected := range tt.contains {
				assert.Contains(t, output, expected, "output should contain: %s", expected)
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, 0},
		{"configuration error", New(KindConfiguration, "bad config"), 2},
		{"source error", New(KindSource, "source unavailable"), 3},
		{"advisor error", New(KindAdvisor, "advisor down"), 3},
		{"generic error", fmt.Errorf("some generic error"), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetExitCode(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, New(KindConfiguration, "x").IsFatal())
	assert.True(t, New(KindSource, "x").IsFatal())
	assert.False(t, New(KindAdvisor, "x").IsFatal())
	assert.False(t, New(KindTransport, "x").IsFatal())
	assert.False(t, New(KindParse, "x").IsFatal())
	assert.False(t, New(KindHistory, "x").IsFatal())
}
