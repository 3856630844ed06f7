// Package engine wires every other package into the running pipeline
// of spec.md §5: one goroutine per source adapter (which also runs that
// source's profiler), a single backpressured record queue, and one
// shared pipeline worker goroutine that drives anomaly -> classifier ->
// progress -> dispatcher in order.
package engine

import (
	"container/ring"
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/watchhound/telewatch/internal/advisor"
	"github.com/watchhound/telewatch/internal/anomaly"
	"github.com/watchhound/telewatch/internal/cache"
	"github.com/watchhound/telewatch/internal/classifier"
	"github.com/watchhound/telewatch/internal/config"
	"github.com/watchhound/telewatch/internal/dispatcher"
	"github.com/watchhound/telewatch/internal/logger"
	"github.com/watchhound/telewatch/internal/pattern"
	"github.com/watchhound/telewatch/internal/profiler"
	"github.com/watchhound/telewatch/internal/progress"
	"github.com/watchhound/telewatch/internal/source"
	"github.com/watchhound/telewatch/internal/transport"
	"github.com/watchhound/telewatch/internal/types"
)

// ShutdownDeadline bounds total termination (spec.md §5: "Termination
// must complete within 10s regardless").
const ShutdownDeadline = 10 * time.Second

// finalNotifyDeadline bounds the dispatcher's last "stopped" message.
const finalNotifyDeadline = 2 * time.Second

// stallPollInterval drives periodic CheckStalls polling and dispatcher
// Tick housekeeping.
const stallPollInterval = 5 * time.Second

// contextWindowSize is "the last 5 records from the same source" fed to
// the advisor for stack-trace capture (spec.md §4.5).
const contextWindowSize = 5

// Engine owns every long-lived pipeline component and coordinates
// startup and shutdown.
type Engine struct {
	cfg  config.Config
	log  logger.Logger
	tr   transport.Transport
	adv  advisor.Advisor

	queue      *RecordQueue
	detector   *anomaly.Detector
	classify   *classifier.Classifier
	patterns   *pattern.Matcher
	dispatch   *dispatcher.Dispatcher
	progressSt *progress.State

	sources  []openSource
	descByID map[string]types.SourceDescriptor

	// profileMu guards profiles: each source gets its own Profile (it
	// tracks per-source format state), but the map itself is touched
	// from every source goroutine.
	profileMu sync.Mutex
	profiles  map[string]*profiler.Profile

	contextMu  sync.Mutex
	contextBuf map[string]*ring.Ring

	bootstrapUntil time.Time
	bootstrapMu    sync.Mutex
}

type openSource struct {
	adapter Adapter
	desc    types.SourceDescriptor
}

// Adapter is the subset of source.Adapter the engine depends on; kept
// as a local alias so engine_test.go can supply fakes without importing
// the real adapters.
type Adapter = source.Adapter

// New constructs an Engine from a parsed configuration, a logging
// handle, a Transport, and an optional Advisor (nil disables it). This
// is the engine's single entry point (spec.md §6: "boots from a single
// entry point receiving a parsed configuration and a logging handle").
func New(cfg config.Config, log logger.Logger, tr transport.Transport, adv advisor.Advisor) (*Engine, error) {
	e := &Engine{
		cfg:        cfg,
		log:        log,
		tr:         tr,
		adv:        adv,
		queue:      NewRecordQueue(log),
		profiles:   make(map[string]*profiler.Profile),
		contextBuf: make(map[string]*ring.Ring),
		descByID:   make(map[string]types.SourceDescriptor),
	}

	e.detector = anomaly.New(firstNonZeroFloat(cfg.Anomaly.SpikeThreshold, anomaly.DefaultSpikeThreshold), cfg.Anomaly.StallWindow(), anomaly.DefaultNoveltyWindow)

	patternSources := make([]pattern.Source, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		patternSources = append(patternSources, pattern.Source{
			ID: p.ID, Regex: p.Regex, Severity: p.Severity, Summary: p.Summary, Enabled: p.Enabled,
		})
	}
	e.patterns = pattern.New(patternSources)
	c := cache.New(cache.DefaultCapacity, cache.DefaultTTL)
	e.classify = classifier.New(c, e.patterns, adv, cfg.Classifier.AdvisorBudgetPerHour, log)

	e.dispatch = dispatcher.New(tr, dispatcher.Config{
		RateLimitPerHour: cfg.Notification.RateLimitPerHour,
		DebounceSeconds:  cfg.Notification.DebounceSeconds,
		SeverityLevels:   severitiesFrom(cfg.Notification.SeverityLevels),
	}, log)

	if cfg.Process.Name != "" {
		stages := make([]progress.Stage, 0, len(cfg.Process.Stages))
		for _, s := range cfg.Process.Stages {
			var re *regexp.Regexp
			if s.StartPattern != "" {
				compiled, err := regexp.Compile(s.StartPattern)
				if err != nil {
					return nil, fmt.Errorf("process.stages: invalid start_pattern %q: %w", s.StartPattern, err)
				}
				re = compiled
			}
			stages = append(stages, progress.Stage{Name: s.Name, Weight: float64(s.Weight), StartPattern: re})
		}
		expected := time.Duration(cfg.Process.ExpectedDurationMinutes * float64(time.Minute))
		if histPath, err := progress.DefaultHistoryPath(); err == nil {
			if hist, err := progress.LoadHistory(histPath); err == nil {
				if median, ok := progress.MedianDuration(hist, cfg.Process.Name); ok {
					expected = median
				}
			}
		}
		e.progressSt = progress.NewState(cfg.Process.Name, stages, expected)
	}

	ctx := context.Background()
	for _, m := range cfg.Monitors {
		a, desc, err := source.Open(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("opening monitor %q: %w", desc.ID, err)
		}
		e.sources = append(e.sources, openSource{adapter: a, desc: desc})
		e.descByID[desc.ID] = desc
		e.detector.SetKeywords(desc.ID, desc.Keywords)
	}

	e.bootstrapUntil = time.Now().Add(profiler.BootstrapWindow)
	e.dispatch.SetStatusProvider(e.statusSnapshot)

	return e, nil
}

func severitiesFrom(levels []string) []types.Severity {
	out := make([]types.Severity, 0, len(levels))
	for _, l := range levels {
		out = append(out, types.Severity(l))
	}
	return out
}

func firstNonZeroFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// Run starts every source goroutine and the pipeline workers, and
// blocks until ctx is cancelled, then performs a bounded shutdown
// (spec.md §5).
func (e *Engine) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	events := make(chan types.Event, 256)
	for _, src := range e.sources {
		wg.Add(1)
		go func(src openSource) {
			defer wg.Done()
			e.runSource(runCtx, src, events)
		}(src)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runEventForwarder(runCtx, events)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runPipelineWorker(runCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runTicker(runCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runControlChannel(runCtx)
	}()

	<-ctx.Done()

	return e.shutdown(cancel, &wg)
}

func (e *Engine) shutdown(cancel context.CancelFunc, wg *sync.WaitGroup) error {
	cancel()
	e.queue.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ShutdownDeadline - finalNotifyDeadline):
		if e.log != nil {
			e.log.Warn("shutdown: pipeline workers did not exit in time, forcing final notification")
		}
	}

	notifyCtx, notifyCancel := context.WithTimeout(context.Background(), finalNotifyDeadline)
	defer notifyCancel()
	e.dispatch.Ingest(notifyCtx, types.NewEvent(nil, types.SeverityInfo, "telewatch stopped", types.ReasonCompletion, ""))

	return nil
}

// runSource drives one source adapter's backoff loop. Profiling
// happens here, inline in the source's own goroutine, since each
// source owns an independent Profile; everything downstream of
// profiling (anomaly, classifier, progress) shares state across
// sources and must run on the single pipeline worker instead, so the
// profiled record is pushed onto the shared RecordQueue rather than
// handled directly.
func (e *Engine) runSource(ctx context.Context, src openSource, events chan<- types.Event) {
	out := make(chan types.LogRecord, 64)
	go source.RunBackoff(ctx, src.adapter, src.desc, e.isBootstrapping, out, events, e.log)

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-out:
			if !ok {
				return
			}
			e.dispatch.RecordRawLine(src.desc.ID, rec.Raw)

			if e.profileFor(src.desc.ID).Observe(&rec) {
				e.dispatch.Ingest(ctx, types.NewEvent(&rec, types.SeverityWarning, "log format drifted, re-profiling", types.ReasonDrift, src.desc.ID))
			}

			e.queue.Push(rec, src.desc.Kind != types.SourceFile)
		}
	}
}

// profileFor returns the per-source Profile, creating it on first use.
func (e *Engine) profileFor(sourceID string) *profiler.Profile {
	e.profileMu.Lock()
	defer e.profileMu.Unlock()
	p, ok := e.profiles[sourceID]
	if !ok {
		p = profiler.New()
		e.profiles[sourceID] = p
	}
	return p
}

// runEventForwarder relays Events synthesized outside the main record
// path (source-disappeared warnings) straight to the dispatcher.
func (e *Engine) runEventForwarder(ctx context.Context, events <-chan types.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.dispatch.Ingest(ctx, ev)
		}
	}
}

// runPipelineWorker is the single shared worker for every downstream
// stage (anomaly, classifier, progress): those stages hold state
// shared across sources, so spec.md §5's "single shared worker per
// pipeline stage... ensures per-source in-order processing without
// intra-stage parallelism" requires exactly one goroutine driving
// them, fed by the backpressured RecordQueue every source funnels
// into.
func (e *Engine) runPipelineWorker(ctx context.Context) {
	for {
		rec, ok := e.queue.Pop(ctx)
		if !ok {
			return
		}
		e.handleRecord(ctx, rec)
	}
}

func (e *Engine) runTicker(ctx context.Context) {
	ticker := time.NewTicker(stallPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.dispatch.Tick(ctx)
			for _, ev := range e.detector.CheckStalls() {
				e.classifyAndDispatch(ctx, ev)
			}
		}
	}
}

// runControlChannel drains inbound chat messages and answers commands
// (spec.md §4.8: /status, /pause, /resume, /logs); non-command inbound
// text is ignored.
func (e *Engine) runControlChannel(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-e.tr.Receive():
			if !ok {
				return
			}
			if !in.IsCommand() {
				continue
			}
			reply := e.dispatch.HandleCommand(in.Text)
			if reply == "" {
				continue
			}
			if err := e.tr.Send(ctx, reply); err != nil && e.log != nil {
				e.log.Warn("control channel: failed to send reply")
			}
		}
	}
}

func (e *Engine) isBootstrapping() bool {
	e.bootstrapMu.Lock()
	defer e.bootstrapMu.Unlock()
	return time.Now().Before(e.bootstrapUntil)
}

// handleRecord runs one already-profiled record through anomaly ->
// classify -> progress, in order, on the single pipeline worker
// (spec.md §4).
func (e *Engine) handleRecord(ctx context.Context, rec types.LogRecord) {
	desc := e.descByID[rec.SourceID]
	e.pushContext(desc.ID, rec.MessageOrRaw())

	anomalyEvents := e.detector.Observe(rec)
	handledByAnomaly := false
	for _, ev := range anomalyEvents {
		handledByAnomaly = true
		in := classifier.Input{Record: rec, Reason: ev.Reason, Context: e.contextFor(desc.ID)}
		if ev.Reason == types.ReasonSpike || ev.Reason == types.ReasonStall {
			in.AnomalySeverity = ev.Severity
			in.AnomalySummary = ev.Summary
		}
		e.classifyAndDispatchWithInput(ctx, in)
	}

	if !handledByAnomaly && ((len(desc.Keywords) > 0 && desc.MatchesKeywords(rec.Raw)) || e.matchesLocalPattern(rec.MessageOrRaw())) {
		in := classifier.Input{Record: rec, Reason: types.ReasonKeyword, Context: e.contextFor(desc.ID)}
		e.classifyAndDispatchWithInput(ctx, in)
	}

	if e.progressSt != nil && !e.progressSt.Completed {
		if processExitedCleanly(rec.Raw) {
			histPath, _ := progress.DefaultHistoryPath()
			e.dispatch.Ingest(ctx, e.progressSt.Complete(rec, time.Now(), histPath))
		} else {
			for _, ev := range e.progressSt.Observe(rec, time.Now()) {
				e.dispatch.Ingest(ctx, ev)
			}
		}
	}
}

// processExitedCleanly reports whether raw contains the substring
// exit_status=0. The PID adapter's stopped records always carry
// exit_status=unknown, so records from the PID watcher never match.
func processExitedCleanly(raw string) bool {
	return strings.Contains(raw, "exit_status=0")
}

func (e *Engine) matchesLocalPattern(message string) bool {
	_, ok := e.patterns.FirstMatch(message)
	return ok
}

func (e *Engine) classifyAndDispatch(ctx context.Context, ev types.Event) {
	in := classifier.Input{Reason: ev.Reason, AnomalySeverity: ev.Severity, AnomalySummary: ev.Summary}
	if ev.Record != nil {
		in.Record = *ev.Record
	}
	e.classifyAndDispatchWithInput(ctx, in)
}

func (e *Engine) classifyAndDispatchWithInput(ctx context.Context, in classifier.Input) {
	result := e.classify.Decide(ctx, in)
	e.dispatch.Ingest(ctx, result)
}

func (e *Engine) pushContext(sourceID, message string) {
	e.contextMu.Lock()
	defer e.contextMu.Unlock()
	r, ok := e.contextBuf[sourceID]
	if !ok {
		r = ring.New(contextWindowSize)
		e.contextBuf[sourceID] = r
	}
	r.Value = message
	e.contextBuf[sourceID] = r.Next()
}

func (e *Engine) contextFor(sourceID string) []string {
	e.contextMu.Lock()
	defer e.contextMu.Unlock()
	r, ok := e.contextBuf[sourceID]
	if !ok {
		return nil
	}
	var out []string
	r.Do(func(v interface{}) {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	})
	return out
}

func (e *Engine) statusSnapshot() dispatcher.Status {
	s := dispatcher.Status{Rate: e.detector.TotalRate(), LearnedPatterns: len(e.patterns.Generated())}
	if e.progressSt != nil {
		s.ProgressFraction = e.progressSt.Fraction
		s.ActiveStage = e.progressSt.ActiveStage
		if !e.progressSt.Completed && e.progressSt.ExpectedDuration > 0 {
			s.Elapsed = time.Since(e.progressSt.RunStart)
			s.TypicalDuration = e.progressSt.ExpectedDuration
		}
	}
	return s
}
