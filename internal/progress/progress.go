// Package progress implements spec.md §4.7: multi-stage weighted
// progress tracking with regex-based direct progress, stage
// transitions interpolated against historical duration, and milestone
// events.
package progress

import (
	"regexp"
	"strconv"
	"time"

	"github.com/watchhound/telewatch/internal/types"
)

// MilestoneStep and MilestoneMinGap gate progress events (spec.md
// §4.7: "every 10%, clamped so no two progress events are emitted
// within 60s").
const (
	MilestoneStep   = 0.10
	MilestoneMinGap = 60 * time.Second
)

var regexProgressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d+)\s*/\s*(\d+)\b`),
	regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*%`),
	regexp.MustCompile(`(?i)epoch\s+(\d+)\s+of\s+(\d+)`),
}

// Stage is one step of a configured multi-stage process (spec.md §3).
type Stage struct {
	Name         string
	Weight       float64
	StartPattern *regexp.Regexp
}

type stageRuntime struct {
	done   bool
	active bool
	start  time.Time
}

// State tracks one monitored process's progress across its lifetime.
type State struct {
	ProcessName       string
	Stages            []Stage
	ExpectedDuration  time.Duration
	Fraction          float64
	ActiveStage       string
	RunStart          time.Time
	Completed         bool

	stageRT          []stageRuntime
	lastMilestone    float64
	lastMilestoneAt  time.Time
}

// NewState constructs tracking state for a process, seeded with the
// historical median duration if one is available.
func NewState(processName string, stages []Stage, expected time.Duration) *State {
	return &State{
		ProcessName:      processName,
		Stages:           stages,
		ExpectedDuration: expected,
		RunStart:         time.Now(),
		stageRT:          make([]stageRuntime, len(stages)),
	}
}

// Observe feeds one record's message through both the regex and
// stage-based progress derivations and returns any Events produced
// (milestone or stage transition; the completion event comes from
// Complete).
func (s *State) Observe(rec types.LogRecord, now time.Time) []types.Event {
	var events []types.Event

	if frac, ok := regexProgress(rec.MessageOrRaw()); ok {
		s.applyFraction(frac)
	} else if idx, ok := s.matchStage(rec.MessageOrRaw()); ok {
		events = append(events, s.transitionToStage(idx, rec, now)...)
	} else if len(s.Stages) > 0 {
		s.applyFraction(s.weightedFraction(now))
	}

	if ev, ok := s.milestoneEvent(rec, now); ok {
		events = append(events, ev)
	}

	return events
}

// Complete marks the run finished, appends the observed duration to
// history, and returns the completion Event (spec.md §4.7: "terminal
// pattern matched, or PID exited 0").
func (s *State) Complete(rec types.LogRecord, now time.Time, historyPath string) types.Event {
	s.Completed = true
	s.Fraction = 1.0
	duration := now.Sub(s.RunStart)

	if historyPath != "" {
		_ = Append(historyPath, s.ProcessName, duration, now)
	}

	return types.NewEvent(&rec, types.SeverityInfo,
		"run completed in "+duration.Round(time.Second).String(), types.ReasonCompletion, "")
}

func (s *State) applyFraction(frac float64) {
	if frac < s.Fraction {
		return // monotonically non-decreasing within a run (spec.md §3)
	}
	s.Fraction = frac
}

func (s *State) matchStage(message string) (int, bool) {
	for i, st := range s.Stages {
		if st.StartPattern != nil && st.StartPattern.MatchString(message) && !s.stageRT[i].active && !s.stageRT[i].done {
			return i, true
		}
	}
	return 0, false
}

func (s *State) transitionToStage(idx int, rec types.LogRecord, now time.Time) []types.Event {
	for i := 0; i < idx; i++ {
		s.stageRT[i].done = true
		s.stageRT[i].active = false
	}
	s.stageRT[idx].active = true
	s.stageRT[idx].start = now
	s.ActiveStage = s.Stages[idx].Name

	ev := types.NewEvent(&rec, types.SeverityInfo, "entered stage "+s.Stages[idx].Name, types.ReasonStage, "")
	s.applyFraction(s.weightedFraction(now))
	return []types.Event{ev}
}

// weightedFraction computes Σ(done_weights + active_fraction ×
// active_weight) / Σ(weights) per spec.md §4.7.
func (s *State) weightedFraction(now time.Time) float64 {
	var total, accumulated float64
	for i, st := range s.Stages {
		total += st.Weight
		switch {
		case s.stageRT[i].done:
			accumulated += st.Weight
		case s.stageRT[i].active:
			accumulated += st.Weight * s.activeFraction(i, now)
		}
	}
	if total == 0 {
		return s.Fraction
	}
	return accumulated / total
}

// activeFraction interpolates linearly between a stage's start and
// either the next stage's start (not modeled here since transitions
// are event-driven) or the historical-duration-derived deadline.
func (s *State) activeFraction(idx int, now time.Time) float64 {
	rt := s.stageRT[idx]
	if rt.start.IsZero() {
		return 0
	}

	elapsed := now.Sub(rt.start)
	if s.ExpectedDuration <= 0 {
		return 0
	}

	var totalWeight float64
	for _, st := range s.Stages {
		totalWeight += st.Weight
	}
	if totalWeight == 0 {
		return 0
	}

	stageShare := s.ExpectedDuration.Seconds() * (s.Stages[idx].Weight / totalWeight)
	if stageShare <= 0 {
		return 0
	}
	frac := elapsed.Seconds() / stageShare
	if frac > 1 {
		frac = 1
	}
	return frac
}

func (s *State) milestoneEvent(rec types.LogRecord, now time.Time) (types.Event, bool) {
	if s.Fraction-s.lastMilestone < MilestoneStep {
		return types.Event{}, false
	}
	if !s.lastMilestoneAt.IsZero() && now.Sub(s.lastMilestoneAt) < MilestoneMinGap {
		return types.Event{}, false
	}

	s.lastMilestone = s.Fraction
	s.lastMilestoneAt = now

	pct := strconv.Itoa(int(s.Fraction*100)) + "%"
	return types.NewEvent(&rec, types.SeverityInfo, s.ProcessName+" progress: "+pct, types.ReasonProgress, ""), true
}

// regexProgress tests message against the configured direct-progress
// patterns (spec.md §4.7).
func regexProgress(message string) (float64, bool) {
	if m := regexProgressPatterns[0].FindStringSubmatch(message); m != nil {
		num, errN := strconv.ParseFloat(m[1], 64)
		den, errD := strconv.ParseFloat(m[2], 64)
		if errN == nil && errD == nil && den > 0 {
			return clamp(num / den), true
		}
	}
	if m := regexProgressPatterns[1].FindStringSubmatch(message); m != nil {
		pct, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return clamp(pct / 100), true
		}
	}
	if m := regexProgressPatterns[2].FindStringSubmatch(message); m != nil {
		num, errN := strconv.ParseFloat(m[1], 64)
		den, errD := strconv.ParseFloat(m[2], 64)
		if errN == nil && errD == nil && den > 0 {
			return clamp(num / den), true
		}
	}
	return 0, false
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
