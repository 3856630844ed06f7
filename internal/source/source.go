// Package source implements the three adapter kinds of spec.md §4.1: a
// file tailer, a PID watcher, and a journal reader. Each presents a
// single operation, Next, that produces the next record or reports that
// none is available yet.
package source

import (
	"context"
	"time"

	"github.com/watchhound/telewatch/internal/types"
)

// Backoff bounds from spec.md §4.1: "retry with exponential backoff
// (1s, 2s, 4s, ..., capped at 60s)".
const (
	BackoffInitial = time.Second
	BackoffMax     = 60 * time.Second
)

// Adapter produces an ordered stream of records from one observable.
// Next blocks until a record is ready, the source reports no record
// available (ok=false, err=nil, e.g. a poll tick with nothing new), or
// ctx is cancelled.
type Adapter interface {
	// ID returns the owning SourceDescriptor's ID, stamped onto every
	// record it produces.
	ID() string
	// Next blocks for at most one internal poll/read cycle and returns
	// the next record, or ok=false if nothing arrived this cycle.
	Next(ctx context.Context) (rec types.LogRecord, ok bool, err error)
	// Close releases any held resources (open file handles, subprocess).
	Close() error
}

// nextBackoff advances the exponential backoff sequence, capping at
// BackoffMax.
func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > BackoffMax || next <= 0 {
		return BackoffMax
	}
	return next
}

// partialLineTimeout is how long a buffered partial line (no trailing
// newline yet) waits before being flushed as-is (spec.md §4.1).
const partialLineTimeout = 2 * time.Second

// lineBuffer accumulates bytes across reads and yields complete lines,
// flushing a trailing partial line once it has sat unterminated for
// partialLineTimeout.
type lineBuffer struct {
	buf        []byte
	lastAppend time.Time
	now        func() time.Time
}

func newLineBuffer() *lineBuffer {
	return &lineBuffer{now: time.Now}
}

// Append adds newly read bytes and returns any complete lines found.
func (b *lineBuffer) Append(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	b.buf = append(b.buf, data...)
	b.lastAppend = b.now()

	var lines []string
	for {
		idx := indexByte(b.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(b.buf[:idx])
		lines = append(lines, trimCR(line))
		b.buf = b.buf[idx+1:]
	}
	return lines
}

// FlushIfStale returns the buffered partial line and clears it if it has
// sat unterminated for longer than partialLineTimeout. Returns ok=false
// otherwise.
func (b *lineBuffer) FlushIfStale() (line string, ok bool) {
	if len(b.buf) == 0 {
		return "", false
	}
	if b.now().Sub(b.lastAppend) < partialLineTimeout {
		return "", false
	}
	line = trimCR(string(b.buf))
	b.buf = b.buf[:0]
	return line, true
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}
