// Package anomaly implements spec.md §4.3's two orthogonal detectors
// running on the post-profile record stream: a temporal detector for
// rate spikes and source stalls, and a structural detector for
// previously-unseen fingerprints.
package anomaly

import (
	"container/ring"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/watchhound/telewatch/internal/fingerprint"
	"github.com/watchhound/telewatch/internal/types"
)

// Defaults from spec.md §4.3 / §6.
const (
	DefaultSpikeThreshold = 3.0
	DefaultStallSeconds   = 300 * time.Second
	DefaultNoveltyWindow  = 1000

	rateDecay           = 30 * time.Second // EWMA time constant tau
	spikeSuppression     = 60 * time.Second
	stallMinRatePerMin   = 1.0
	stallLookback        = 10 * time.Minute
	instantaneousWindow  = 5 * time.Second
)

var reAlarmToken = regexp.MustCompile(`(?i)Exception|Traceback|panic|segfault|OOM`)

// sourceState is the temporal detector's per-source bookkeeping.
type sourceState struct {
	ewmaRate       float64
	baselineRate   float64
	lastArrival    time.Time
	recentArrivals []time.Time // trailing window for the 5s instantaneous rate and the 10m stall eligibility check
	lastSpike      time.Time
	stalled        bool
}

// Detector runs both the temporal and structural detectors.
type Detector struct {
	SpikeThreshold float64
	StallWindow    time.Duration
	NoveltyWindow  int

	sources  map[string]*sourceState
	keywords map[string][]string
	seen     map[string]struct{}
	mem      *ring.Ring
	memLen   int

	now func() time.Time
}

// New constructs a Detector with the given config, falling back to
// spec.md defaults for zero values.
func New(spikeThreshold float64, stallWindow time.Duration, noveltyWindow int) *Detector {
	if spikeThreshold <= 0 {
		spikeThreshold = DefaultSpikeThreshold
	}
	if stallWindow <= 0 {
		stallWindow = DefaultStallSeconds
	}
	if noveltyWindow <= 0 {
		noveltyWindow = DefaultNoveltyWindow
	}
	return &Detector{
		SpikeThreshold: spikeThreshold,
		StallWindow:    stallWindow,
		NoveltyWindow:  noveltyWindow,
		sources:        make(map[string]*sourceState),
		keywords:       make(map[string][]string),
		seen:           make(map[string]struct{}, noveltyWindow),
		mem:            ring.New(noveltyWindow),
		now:            time.Now,
	}
}

// SetKeywords registers sourceID's configured keywords so the novelty
// detector's alarming check can treat a keyword match as a trigger in
// its own right (spec.md §4.3's three-way OR), not just rely on
// engine-level keyword routing.
func (d *Detector) SetKeywords(sourceID string, keywords []string) {
	d.keywords[sourceID] = keywords
}

// Observe processes one post-profile record and returns any anomaly
// events it produces (zero, one, or rarely two: a temporal event and a
// structural one are independent).
func (d *Detector) Observe(rec types.LogRecord) []types.Event {
	var events []types.Event
	now := d.now()

	if ev, ok := d.observeTemporal(rec, now); ok {
		events = append(events, ev)
	}
	if ev, ok := d.observeNovelty(rec); ok {
		events = append(events, ev)
	}
	return events
}

// TotalRate sums each known source's smoothed arrival rate, giving
// /status a single ingestion-rate figure across every monitor.
func (d *Detector) TotalRate() float64 {
	var total float64
	for _, st := range d.sources {
		total += st.ewmaRate
	}
	return total
}

// CheckStalls scans every known source for a stall and should be
// called periodically (e.g. every few seconds) by the engine, since
// silence produces no record to trigger Observe.
func (d *Detector) CheckStalls() []types.Event {
	now := d.now()
	var events []types.Event
	for sourceID, st := range d.sources {
		if st.stalled {
			continue
		}
		if now.Sub(st.lastArrival) < d.StallWindow {
			continue
		}
		if !wasProducing(st, now) {
			continue
		}
		st.stalled = true
		rec := types.LogRecord{SourceID: sourceID, Arrived: now}
		events = append(events, types.NewEvent(&rec, types.SeverityCritical,
			"no records received from "+sourceID+" in over "+d.StallWindow.String(), types.ReasonStall, ""))
	}
	return events
}

func (d *Detector) observeTemporal(rec types.LogRecord, now time.Time) (types.Event, bool) {
	st, ok := d.sources[rec.SourceID]
	if !ok {
		st = &sourceState{lastArrival: now}
		d.sources[rec.SourceID] = st
	}

	if st.stalled {
		st.stalled = false
	}

	if !st.lastArrival.IsZero() {
		dt := now.Sub(st.lastArrival).Seconds()
		if dt > 0 {
			instantRate := 1.0 / dt
			alpha := 1 - math.Exp(-dt/rateDecay.Seconds())
			st.ewmaRate += alpha * (instantRate - st.ewmaRate)
		}
	}
	st.lastArrival = now

	st.recentArrivals = append(st.recentArrivals, now)
	st.recentArrivals = pruneOlderThan(st.recentArrivals, now, stallLookback)

	instant := countWithin(st.recentArrivals, now, instantaneousWindow) / instantaneousWindow.Seconds()
	baseline := math.Max(st.ewmaRate, st.baselineRate)

	if baseline > 0 && instant > d.SpikeThreshold*baseline && now.Sub(st.lastSpike) > spikeSuppression {
		st.lastSpike = now
		ev := types.NewEvent(&rec, types.SeverityWarning,
			"ingestion rate spike detected", types.ReasonSpike, "")
		return ev, true
	}

	return types.Event{}, false
}

func wasProducing(st *sourceState, now time.Time) bool {
	count := countWithin(st.recentArrivals, now, stallLookback)
	perMin := count / (stallLookback.Minutes())
	return perMin >= stallMinRatePerMin
}

func countWithin(times []time.Time, now time.Time, window time.Duration) float64 {
	cutoff := now.Add(-window)
	n := 0
	for _, t := range times {
		if t.After(cutoff) {
			n++
		}
	}
	return float64(n)
}

func pruneOlderThan(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	out := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// observeNovelty implements the structural detector (spec.md §4.3).
func (d *Detector) observeNovelty(rec types.LogRecord) (types.Event, bool) {
	fp := fingerprint.Of(rec.MessageOrRaw())

	_, known := d.seen[fp]
	if !known {
		d.insertFingerprint(fp)
	}

	if known || !d.alarming(rec) {
		return types.Event{}, false
	}

	return types.NewEvent(&rec, "", rec.MessageOrRaw(), types.ReasonNovelty, "structurally new"), true
}

// alarming implements spec.md §4.3's three-way novelty trigger: an
// extracted ERROR/FATAL/CRITICAL severity, a line matching one of the
// source's configured keywords, or a stock alarm token.
func (d *Detector) alarming(rec types.LogRecord) bool {
	switch strings.ToUpper(rec.Severity) {
	case "ERROR", "FATAL", "CRITICAL":
		return true
	}
	if d.matchesKeyword(rec) {
		return true
	}
	return reAlarmToken.MatchString(rec.MessageOrRaw())
}

func (d *Detector) matchesKeyword(rec types.LogRecord) bool {
	kws := d.keywords[rec.SourceID]
	if len(kws) == 0 {
		return false
	}
	lower := strings.ToLower(rec.MessageOrRaw())
	for _, kw := range kws {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (d *Detector) insertFingerprint(fp string) {
	if d.memLen >= d.NoveltyWindow {
		if oldest, ok := d.mem.Value.(string); ok {
			delete(d.seen, oldest)
		}
	} else {
		d.memLen++
	}
	d.mem.Value = fp
	d.mem = d.mem.Next()
	d.seen[fp] = struct{}{}
}
