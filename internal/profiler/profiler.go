// Package profiler implements spec.md §4.2: online classification of
// a source's log format, timestamp pattern, and level field during a
// bootstrap window, followed by continuous drift detection that
// triggers re-profiling when the locked format stops fitting.
package profiler

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/watchhound/telewatch/internal/types"
)

// Format is the profiler's inferred log line shape.
type Format string

const (
	FormatJSON   Format = "json"
	FormatCSV    Format = "csv"
	FormatSyslog Format = "syslog"
	FormatKV     Format = "kv"
	FormatPlain  Format = "plain"
)

// BootstrapRecords and BootstrapWindow bound the sampling phase
// (spec.md §4.2: "first 100 records or first 60 seconds").
const (
	BootstrapRecords = 100
	BootstrapWindow  = 60 * time.Second

	// DriftWindow and DriftRatio gate re-profiling (spec.md §4.2).
	DriftWindow = 100
	DriftRatio  = 0.20
)

var (
	reSyslog = regexp.MustCompile(`^\S+\s+\S+\s+\S+:\s`)
	reKV     = regexp.MustCompile(`\w+=\S+(\s+\w+=\S+)+`)
	reLevel  = regexp.MustCompile(`(?i)^(DEBUG|INFO|WARN|WARNING|ERROR|FATAL|CRITICAL|TRACE)$`)
	reCSV    = regexp.MustCompile(`[,|;\t]`)
)

// timestampPattern is one member of the ~12-pattern library scanned
// during bootstrap (spec.md §4.2 item 2).
type timestampPattern struct {
	name string
	re   *regexp.Regexp
}

var timestampLibrary = []timestampPattern{
	{"iso8601", regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`)},
	{"rfc3164", regexp.MustCompile(`[A-Z][a-z]{2}\s+\d{1,2}\s\d{2}:\d{2}:\d{2}`)},
	{"epoch_ms", regexp.MustCompile(`\b\d{13}\b`)},
	{"epoch_sec", regexp.MustCompile(`\b\d{10}\b`)},
	{"clf", regexp.MustCompile(`\d{2}/[A-Z][a-z]{2}/\d{4}:\d{2}:\d{2}:\d{2}`)},
	{"bracketed_iso", regexp.MustCompile(`\[\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}\]`)},
	{"bracketed_rfc3164", regexp.MustCompile(`\[[A-Z][a-z]{2}\s+\d{1,2}\s\d{2}:\d{2}:\d{2}\]`)},
	{"slashed_date", regexp.MustCompile(`\d{2}/\d{2}/\d{4}\s\d{2}:\d{2}:\d{2}`)},
	{"dotted_date", regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}\s\d{2}:\d{2}:\d{2}`)},
	{"time_only", regexp.MustCompile(`\b\d{2}:\d{2}:\d{2}(\.\d+)?\b`)},
	{"date_only", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)},
	{"us_date", regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)},
}

// Profile is the per-source inferred shape (spec.md §3).
type Profile struct {
	Format           Format
	TimestampPattern string
	BaselineRate     float64 // records/sec over the bootstrap window
	SampleCount      int

	bootstrapStart time.Time
	formatVotes    map[Format]int
	tsVotes        map[string]int
	driftCounter   int
	driftHistory   []bool // trailing window, true = matched locked format
	locked         bool
}

// New constructs a Profile in the bootstrap state.
func New() *Profile {
	return &Profile{
		formatVotes:    make(map[Format]int),
		tsVotes:        make(map[string]int),
		bootstrapStart: time.Now(),
	}
}

// Observe processes one record, mutating the profile and the record's
// extracted fields in place, and reports whether re-profiling fired on
// this record (spec.md §4.2 re-profiling emits a drift warning event).
func (p *Profile) Observe(rec *types.LogRecord) (driftFired bool) {
	if !p.locked {
		p.sample(rec.Raw)
		p.extract(rec)
		if p.SampleCount >= BootstrapRecords || time.Since(p.bootstrapStart) >= BootstrapWindow {
			p.lock()
		}
		rec.Profiled = true
		return false
	}

	p.extract(rec)
	matched := p.matchesLocked(rec.Raw)
	p.driftHistory = append(p.driftHistory, matched)
	if len(p.driftHistory) > DriftWindow {
		p.driftHistory = p.driftHistory[1:]
	}
	if matched {
		if p.driftCounter > 0 {
			p.driftCounter--
		}
	} else {
		p.driftCounter++
	}

	rec.Profiled = true

	if len(p.driftHistory) >= DriftWindow && float64(p.driftCounter)/float64(len(p.driftHistory)) > DriftRatio {
		p.reset()
		return true
	}
	return false
}

// sample accumulates bootstrap votes for format and timestamp pattern.
func (p *Profile) sample(raw string) {
	p.SampleCount++
	p.formatVotes[classifyFormat(raw)]++
	if name, ok := detectTimestamp(raw); ok {
		p.tsVotes[name]++
	}
}

// lock fixes the majority format/timestamp and computes the baseline
// rate over the bootstrap window.
func (p *Profile) lock() {
	p.Format = majorityFormat(p.formatVotes)
	p.TimestampPattern = majorityTimestamp(p.tsVotes)

	elapsed := time.Since(p.bootstrapStart).Seconds()
	if elapsed > 0 {
		p.BaselineRate = float64(p.SampleCount) / elapsed
	}
	p.locked = true
}

// reset re-enters bootstrap, discarding the locked profile (spec.md
// §4.2: "reset the profile, and repeat bootstrap").
func (p *Profile) reset() {
	p.locked = false
	p.formatVotes = make(map[Format]int)
	p.tsVotes = make(map[string]int)
	p.SampleCount = 0
	p.driftCounter = 0
	p.driftHistory = nil
	p.bootstrapStart = time.Now()
}

// matchesLocked reports whether raw still fits the locked format and
// timestamp pattern.
func (p *Profile) matchesLocked(raw string) bool {
	if classifyFormat(raw) != p.Format {
		return false
	}
	if p.TimestampPattern == "" {
		return true
	}
	for _, tp := range timestampLibrary {
		if tp.name == p.TimestampPattern {
			return tp.re.MatchString(raw)
		}
	}
	return true
}

// extract sets a record's Timestamp to its arrival time (the line's own
// timestamp is not parsed) and populates Severity and Message from the
// raw line using the locked (or, pre-lock, best-guess) format.
func (p *Profile) extract(rec *types.LogRecord) {
	raw := rec.Raw
	rec.Timestamp = rec.Arrived
	format := p.Format
	if !p.locked {
		format = classifyFormat(raw)
	}
	rec.Severity = extractLevel(raw, format)
	rec.Message = extractMessage(raw, p.TimestampPattern)
}

func classifyFormat(raw string) Format {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var v map[string]interface{}
		if json.Unmarshal([]byte(trimmed), &v) == nil {
			return FormatJSON
		}
	}
	if reSyslog.MatchString(raw) {
		return FormatSyslog
	}
	if reKV.MatchString(raw) {
		return FormatKV
	}
	if countConsistentDelimiter(raw) >= 3 {
		return FormatCSV
	}
	return FormatPlain
}

// countConsistentDelimiter returns the count of the most frequent
// delimiter candidate in raw (spec.md §4.2: "≥3 consistent delimiter
// positions with a recurring delimiter").
func countConsistentDelimiter(raw string) int {
	counts := map[rune]int{}
	for _, r := range raw {
		if r == ',' || r == '|' || r == ';' || r == '\t' {
			counts[r]++
		}
	}
	best := 0
	for _, n := range counts {
		if n > best {
			best = n
		}
	}
	return best
}

func detectTimestamp(raw string) (string, bool) {
	for _, tp := range timestampLibrary {
		if tp.re.MatchString(raw) {
			return tp.name, true
		}
	}
	return "", false
}

func extractLevel(raw string, format Format) string {
	if format == FormatJSON {
		var v map[string]interface{}
		if json.Unmarshal([]byte(strings.TrimSpace(raw)), &v) == nil {
			for _, key := range []string{"level", "severity", "lvl"} {
				if s, ok := v[key].(string); ok {
					return s
				}
			}
		}
		return ""
	}
	for _, tok := range strings.Fields(raw) {
		if reLevel.MatchString(tok) {
			return strings.ToUpper(tok)
		}
	}
	return ""
}

// extractMessage strips a leading timestamp match (if any) from raw to
// yield the fingerprint-ready message portion (spec.md §4.4).
func extractMessage(raw, tsPattern string) string {
	for _, tp := range timestampLibrary {
		if tsPattern == "" || tp.name == tsPattern {
			if loc := tp.re.FindStringIndex(raw); loc != nil {
				return strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])
			}
		}
	}
	return strings.TrimSpace(raw)
}

func majorityFormat(votes map[Format]int) Format {
	best, bestN := FormatPlain, -1
	for f, n := range votes {
		if n > bestN {
			best, bestN = f, n
		}
	}
	return best
}

func majorityTimestamp(votes map[string]int) string {
	best, bestN := "", 0
	for name, n := range votes {
		if n > bestN {
			best, bestN = name, n
		}
	}
	return best
}
