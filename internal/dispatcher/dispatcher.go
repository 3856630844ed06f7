// Package dispatcher implements spec.md §4.8: the single sink for all
// pipeline Events, responsible for debouncing near-duplicate events,
// enforcing a per-hour send budget with a bounded critical bypass,
// queuing events while paused, and answering the transport's control
// channel.
package dispatcher

import (
	"container/ring"
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/watchhound/telewatch/internal/logger"
	"github.com/watchhound/telewatch/internal/transport"
	"github.com/watchhound/telewatch/internal/types"
)

// Defaults from spec.md §6.
const (
	DefaultRateLimitPerHour = 10
	DefaultDebounceWindow   = 300 * time.Second

	pausedQueueCapacity = 50
	recentLinesCapacity  = 15

	criticalBypassInterval = 60 * time.Second

	sendMaxAttempts = 5
)

// Status is a point-in-time snapshot the /status command reports.
// Populated by the engine via SetStatusProvider so the dispatcher
// doesn't need to import the progress tracker. Uptime and
// LastEventSummary are filled in by the dispatcher itself, which owns
// that state; a provider that sets them is harmless but redundant.
type Status struct {
	ProgressFraction float64
	ActiveStage      string
	Rate             float64
	Uptime           time.Duration
	Paused           bool
	LastEventSummary string
	LearnedPatterns  int

	// Elapsed and TypicalDuration describe the progress tracker's
	// historical-median comparison ("3m40s elapsed of a typical 9m12s
	// run"); TypicalDuration is zero when no history is available yet.
	Elapsed         time.Duration
	TypicalDuration time.Duration
}

// StatusProvider supplies the dynamic parts of a /status reply.
type StatusProvider func() Status

type debounceEntry struct {
	firstSent  time.Time
	windowEnds time.Time
	suppressed int
	summary    string
}

// Dispatcher owns the rolling send window, the debounce table, and
// the paused-mode queue (spec.md §5: "the dispatcher owns its
// window").
type Dispatcher struct {
	transport       transport.Transport
	log             logger.Logger
	rateLimitPerHour int
	debounceWindow  time.Duration
	allowedSeverity map[types.Severity]bool

	mu          sync.Mutex
	sendTimes   []time.Time
	debounce    map[string]*debounceEntry
	paused      bool
	pausedQueue []types.Event
	dropped     int

	criticalLimiter *rate.Limiter

	recentLines   *ring.Ring
	recentSource  string

	lastEventSummary string

	statusFn StatusProvider
	started  time.Time
	now      func() time.Time
}

// Config configures a Dispatcher; zero values fall back to spec.md
// defaults.
type Config struct {
	RateLimitPerHour int
	DebounceSeconds  int
	SeverityLevels   []types.Severity
}

// New constructs a Dispatcher bound to t.
func New(t transport.Transport, cfg Config, log logger.Logger) *Dispatcher {
	limit := cfg.RateLimitPerHour
	if limit <= 0 {
		limit = DefaultRateLimitPerHour
	}
	window := time.Duration(cfg.DebounceSeconds) * time.Second
	if window <= 0 {
		window = DefaultDebounceWindow
	}

	allowed := map[types.Severity]bool{types.SeverityInfo: true, types.SeverityWarning: true, types.SeverityCritical: true}
	if len(cfg.SeverityLevels) > 0 {
		allowed = make(map[types.Severity]bool, len(cfg.SeverityLevels))
		for _, s := range cfg.SeverityLevels {
			allowed[s] = true
		}
	}

	return &Dispatcher{
		transport:        t,
		log:              log,
		rateLimitPerHour: limit,
		debounceWindow:   window,
		allowedSeverity:  allowed,
		debounce:         make(map[string]*debounceEntry),
		criticalLimiter:  rate.NewLimiter(rate.Every(criticalBypassInterval), 1),
		recentLines:      ring.New(recentLinesCapacity),
		started:          time.Now(),
		now:              time.Now,
	}
}

// SetStatusProvider wires the /status command's dynamic fields.
func (d *Dispatcher) SetStatusProvider(fn StatusProvider) {
	d.statusFn = fn
}

// RecordRawLine feeds the /logs command's recent-line buffer. The
// engine calls this for every record regardless of whether it became
// an Event.
func (d *Dispatcher) RecordRawLine(sourceID, raw string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recentSource = sourceID
	d.recentLines.Value = raw
	d.recentLines = d.recentLines.Next()
}

// Ingest processes one Event: severity filter, debounce, pause queue,
// rate limit, then send. Safe to call from a single pipeline worker;
// the dispatcher is the sole owner of its mutable state (spec.md §5).
func (d *Dispatcher) Ingest(ctx context.Context, ev types.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.allowedSeverity[ev.Severity] {
		return
	}

	now := d.now()
	d.lastEventSummary = ev.Summary

	key := debounceKey(ev)
	if entry, ok := d.debounce[key]; ok && now.Before(entry.windowEnds) {
		entry.suppressed++
		return
	}
	d.debounce[key] = &debounceEntry{firstSent: now, windowEnds: now.Add(d.debounceWindow), summary: ev.Summary}

	if d.paused {
		d.enqueuePaused(ev)
		return
	}

	d.trySend(ctx, ev, now)
}

// Tick performs time-driven housekeeping: closing debounce windows
// (sending "plus N similar" follow-ups) and pruning the rate-limit
// window. The engine calls this periodically (e.g. every few
// seconds).
func (d *Dispatcher) Tick(ctx context.Context) {
	d.mu.Lock()
	now := d.now()
	var followUps []string
	for key, entry := range d.debounce {
		if now.Before(entry.windowEnds) {
			continue
		}
		if entry.suppressed > 0 {
			followUps = append(followUps, fmt.Sprintf("plus %d similar in the last %s: %s",
				entry.suppressed, d.debounceWindow.Round(time.Second), entry.summary))
		}
		delete(d.debounce, key)
	}
	d.pruneSendWindow(now)
	d.mu.Unlock()

	for _, msg := range followUps {
		d.deliver(ctx, msg)
	}
}

// trySend applies the rate limit/critical-bypass rule and sends if
// allowed, otherwise drops and counts (spec.md §4.8). Caller holds
// d.mu.
func (d *Dispatcher) trySend(ctx context.Context, ev types.Event, now time.Time) {
	d.pruneSendWindow(now)

	withinCap := len(d.sendTimes) < d.rateLimitPerHour
	bypassCritical := ev.Severity == types.SeverityCritical && d.criticalLimiter.AllowN(now, 1)

	if !withinCap && !bypassCritical {
		d.dropped++
		if d.log != nil {
			d.log.Warn("event dropped: rate limit exceeded")
		}
		return
	}

	if ev.Severity != types.SeverityCritical || withinCap {
		d.sendTimes = append(d.sendTimes, now)
	}

	text := ev.Summary
	if d.dropped > 0 {
		text = fmt.Sprintf("(%d events dropped since last message) %s", d.dropped, text)
		d.dropped = 0
	}

	d.mu.Unlock()
	d.deliver(ctx, text)
	d.mu.Lock()
}

func (d *Dispatcher) pruneSendWindow(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := d.sendTimes[:0]
	for _, t := range d.sendTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.sendTimes = kept
}

func (d *Dispatcher) enqueuePaused(ev types.Event) {
	d.pausedQueue = append(d.pausedQueue, ev)
	if len(d.pausedQueue) > pausedQueueCapacity {
		d.pausedQueue = d.pausedQueue[len(d.pausedQueue)-pausedQueueCapacity:]
	}
}

// deliver sends text with exponential backoff on failure (spec.md §7:
// "1s, 2s, 4s, 8s, 16s, max 5 attempts; drop after, increment
// dropped-counter"). Must not be called while holding d.mu.
func (d *Dispatcher) deliver(ctx context.Context, text string) {
	backoff := time.Second
	for attempt := 1; attempt <= sendMaxAttempts; attempt++ {
		if err := d.transport.Send(ctx, text); err == nil {
			return
		} else if d.log != nil {
			d.log.WithField("attempt", attempt).Warn("transport send failed: " + err.Error())
		}
		if attempt == sendMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	d.mu.Lock()
	d.dropped++
	d.mu.Unlock()
}

// HandleCommand implements the control channel of spec.md §4.8.
// Unknown commands are ignored (empty reply).
func (d *Dispatcher) HandleCommand(cmd string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch strings.TrimSpace(cmd) {
	case "/status":
		return d.statusReply()
	case "/pause":
		d.paused = true
		return "paused"
	case "/resume":
		d.paused = false
		return d.resumeDigest()
	case "/logs":
		return d.logsReply()
	default:
		return ""
	}
}

func (d *Dispatcher) statusReply() string {
	var s Status
	if d.statusFn != nil {
		s = d.statusFn()
	}
	s.Paused = d.paused
	s.Uptime = d.now().Sub(d.started)
	if s.LastEventSummary == "" {
		s.LastEventSummary = d.lastEventSummary
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "progress: %.0f%%\n", s.ProgressFraction*100)
	fmt.Fprintf(&sb, "stage: %s\n", orDash(s.ActiveStage))
	fmt.Fprintf(&sb, "rate: %.2f/s\n", s.Rate)
	fmt.Fprintf(&sb, "uptime: %s\n", s.Uptime.Round(time.Second))
	if s.TypicalDuration > 0 {
		fmt.Fprintf(&sb, "%s elapsed of a typical %s run\n",
			s.Elapsed.Round(time.Second), s.TypicalDuration.Round(time.Second))
	}
	fmt.Fprintf(&sb, "paused: %t\n", s.Paused)
	fmt.Fprintf(&sb, "learned patterns: %d\n", s.LearnedPatterns)
	fmt.Fprintf(&sb, "dropped since last message: %d\n", d.dropped)
	fmt.Fprintf(&sb, "last event: %s", orDash(s.LastEventSummary))
	return sb.String()
}

// resumeDigest drains the paused queue into a single summary message
// (spec.md §4.8: "a single digest message summarizes them"). Caller
// holds d.mu.
func (d *Dispatcher) resumeDigest() string {
	if len(d.pausedQueue) == 0 {
		return "resumed, no events while paused"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "resumed; %d event(s) while paused:\n", len(d.pausedQueue))
	for _, ev := range d.pausedQueue {
		fmt.Fprintf(&sb, "- [%s] %s\n", ev.Severity, ev.Summary)
	}
	d.pausedQueue = nil
	return strings.TrimRight(sb.String(), "\n")
}

// logsReply renders up to the last 15 raw lines from the most
// recently active source, escaped for chat delivery.
func (d *Dispatcher) logsReply() string {
	var lines []string
	d.recentLines.Do(func(v interface{}) {
		if s, ok := v.(string); ok {
			lines = append(lines, escapeForChat(s))
		}
	})
	if len(lines) == 0 {
		return "no recent lines"
	}
	return fmt.Sprintf("last lines from %s:\n%s", orDash(d.recentSource), strings.Join(lines, "\n"))
}

func escapeForChat(s string) string {
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// debounceKey derives the coalescing key of spec.md §4.8:
// (severity, reason, fingerprint-or-summary-hash).
func debounceKey(ev types.Event) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ev.Summary))
	return strings.Join([]string{string(ev.Severity), string(ev.Reason), strconv.FormatUint(uint64(h.Sum32()), 16)}, "|")
}
