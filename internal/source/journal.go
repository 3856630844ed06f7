package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/watchhound/telewatch/internal/errors"
	"github.com/watchhound/telewatch/internal/types"
)

// Journal launches a journalctl follower for one systemd unit and parses
// one message per output line (spec.md §4.1). It also polls the unit's
// D-Bus ActiveState alongside the log stream, surfacing start/stop
// transitions as synthetic records the same way the PID watcher does
// for a bare process.
type Journal struct {
	id   string
	unit string

	cmd     *exec.Cmd
	scanner *bufio.Scanner
	lines   chan string
	errs    chan error
	done    chan struct{}

	units        *UnitWatcher
	lastUnitPoll time.Time

	mu     sync.Mutex
	closed bool
	seq    uint64
}

// NewJournal starts `journalctl -u <unit> -f -n0 --no-pager -o cat`,
// mirroring the teacher's journald streamer's subprocess-and-scanner
// pattern but emitting raw message text rather than structured JSON
// (spec.md §4.1: "parses one message per output line"). The D-Bus unit
// watcher is best-effort: if the system bus is unreachable (e.g. in a
// container without systemd), the journal reader still works, it just
// won't surface ActiveState transitions.
func NewJournal(ctx context.Context, id, unit string) (*Journal, error) {
	cmd := exec.CommandContext(ctx, "journalctl",
		"--unit="+unit,
		"--follow",
		"--lines=0",
		"--no-pager",
		"--output=cat",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(errors.KindSource, "journalctl stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(errors.KindSource, "journalctl stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(errors.KindSource, "failed to start journalctl for unit "+unit, err)
	}

	j := &Journal{
		id:      id,
		unit:    unit,
		cmd:     cmd,
		scanner: bufio.NewScanner(stdout),
		lines:   make(chan string, 256),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	j.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if uw, err := NewUnitWatcher(unit); err == nil {
		j.units = uw
	}

	go j.pump()
	go j.drainStderr(stderr)

	return j, nil
}

func (j *Journal) pump() {
	defer close(j.done)
	for j.scanner.Scan() {
		line := j.scanner.Text()
		if line == "" {
			continue
		}
		select {
		case j.lines <- line:
		case <-j.done:
			return
		}
	}
	if err := j.scanner.Err(); err != nil && err != io.EOF {
		select {
		case j.errs <- err:
		default:
		}
	}
	close(j.lines)
}

func (j *Journal) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		// journalctl's own diagnostics are discarded; an exit of the
		// follower surfaces through Next's error path instead.
	}
}

// ID implements Adapter.
func (j *Journal) ID() string { return j.id }

// Next implements Adapter.
func (j *Journal) Next(ctx context.Context) (types.LogRecord, bool, error) {
	if rec, ok := j.pollUnitState(ctx); ok {
		return rec, true, nil
	}

	select {
	case line, ok := <-j.lines:
		if !ok {
			return types.LogRecord{}, false, errors.Errorf(errors.KindSource, "journalctl follower for unit %s exited", j.unit)
		}
		j.seq++
		return types.NewLogRecord(j.seq, j.id, line, time.Now()), true, nil
	case err := <-j.errs:
		return types.LogRecord{}, false, errors.Wrap(errors.KindSource, fmt.Sprintf("journalctl follower for unit %s failed", j.unit), err)
	case <-ctx.Done():
		return types.LogRecord{}, false, nil
	case <-time.After(PollInterval):
		return types.LogRecord{}, false, nil
	}
}

// pollUnitState checks D-Bus ActiveState at most once per
// UnitPollInterval, surfacing a transition as a synthetic record.
func (j *Journal) pollUnitState(ctx context.Context) (types.LogRecord, bool) {
	if j.units == nil {
		return types.LogRecord{}, false
	}
	now := time.Now()
	if !j.lastUnitPoll.IsZero() && now.Sub(j.lastUnitPoll) < UnitPollInterval {
		return types.LogRecord{}, false
	}
	j.lastUnitPoll = now

	state, changed, err := j.units.Poll(ctx)
	if err != nil || !changed {
		return types.LogRecord{}, false
	}
	j.seq++
	raw := fmt.Sprintf("unit %s ActiveState -> %s", j.unit, state)
	return types.NewLogRecord(j.seq, j.id, raw, now), true
}

// Close implements Adapter, terminating the journalctl subprocess.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if j.cmd.Process != nil {
		j.cmd.Process.Kill()
	}
	j.cmd.Wait()
	if j.units != nil {
		j.units.Close()
	}
	return nil
}

var _ Adapter = (*Journal)(nil)
