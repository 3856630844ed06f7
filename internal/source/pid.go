package source

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/watchhound/telewatch/internal/errors"
	"github.com/watchhound/telewatch/internal/types"
)

// CheckInterval is the PID watcher's default poll period (spec.md §4.1).
const CheckInterval = 30 * time.Second

// RSSWarnRatio is the fraction of RSSCapBytes that triggers a synthetic
// "RSS crossed 80%" record.
const RSSWarnRatio = 0.80

type pidState int

const (
	pidStateUnknown pidState = iota
	pidStateRunning
	pidStateStopped
)

// PID polls the process table for one PID and synthesizes records on
// state transitions, per spec.md §4.1. It does not produce per-line
// records.
type PID struct {
	id         string
	pid        int
	rssCapByte uint64

	state      pidState
	rssWarned  bool
	lastPoll   time.Time
	seq        uint64
	now        func() time.Time
}

// NewPID constructs a PID watcher. rssCapBytes of 0 disables the RSS
// threshold check.
func NewPID(id string, pid int, rssCapBytes uint64) (*PID, error) {
	if !processExists(pid) {
		return nil, errors.Errorf(errors.KindSource, "pid %d not found at startup", pid)
	}
	return &PID{
		id:         id,
		pid:        pid,
		rssCapByte: rssCapBytes,
		state:      pidStateRunning,
		now:        time.Now,
	}, nil
}

// ID implements Adapter.
func (p *PID) ID() string { return p.id }

// Next implements Adapter: polls every CheckInterval and synthesizes a
// record on started/stopped/RSS-threshold transitions.
func (p *PID) Next(ctx context.Context) (types.LogRecord, bool, error) {
	now := p.now()
	if !p.lastPoll.IsZero() && now.Sub(p.lastPoll) < CheckInterval {
		select {
		case <-ctx.Done():
		case <-time.After(CheckInterval - now.Sub(p.lastPoll)):
		}
	}
	p.lastPoll = p.now()

	running := processExists(p.pid)

	if p.state == pidStateRunning && !running {
		p.state = pidStateStopped
		return p.emit(fmt.Sprintf("process %d stopped, exit_status=%s", p.pid, exitStatus(p.pid))), true, nil
	}
	if p.state == pidStateStopped && running {
		p.state = pidStateRunning
		p.rssWarned = false
		return p.emit(fmt.Sprintf("process %d started", p.pid)), true, nil
	}

	if running && p.rssCapByte > 0 && !p.rssWarned {
		rss, ok := readRSSBytes(p.pid)
		if ok && float64(rss) >= RSSWarnRatio*float64(p.rssCapByte) {
			p.rssWarned = true
			return p.emit(fmt.Sprintf("process %d RSS crossed %.0f%% of cap (%d/%d bytes)",
				p.pid, RSSWarnRatio*100, rss, p.rssCapByte)), true, nil
		}
	}

	return types.LogRecord{}, false, nil
}

func (p *PID) emit(raw string) types.LogRecord {
	p.seq++
	return types.NewLogRecord(p.seq, p.id, raw, p.now())
}

// Close implements Adapter; the PID watcher holds no OS resources.
func (p *PID) Close() error { return nil }

func processExists(pid int) bool {
	_, err := os.Stat(fmt.Sprintf("/proc/%d", pid))
	return err == nil
}

// exitStatus always returns "unknown"; no exit code is read for the
// stopped process.
func exitStatus(pid int) string {
	return "unknown"
}

// readRSSBytes parses VmRSS from /proc/<pid>/status (reported in kB).
func readRSSBytes(pid int) (uint64, bool) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}

var _ Adapter = (*PID)(nil)
