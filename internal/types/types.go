// Package types defines the core data model shared across the pipeline:
// records produced by source adapters, the events they eventually turn
// into, and the small descriptors that tie a record back to its source.
package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies what kind of observable a SourceDescriptor watches.
type SourceKind string

const (
	SourceFile    SourceKind = "file"
	SourcePID     SourceKind = "pid"
	SourceJournal SourceKind = "journal"
)

// SourceDescriptor is created at startup from configuration and lives as
// long as the process monitoring it does.
type SourceDescriptor struct {
	ID          string
	Kind        SourceKind
	Location    string // path, pid, or unit name depending on Kind
	Keywords    []string
	DisplayName string
}

// MatchesKeywords reports whether raw contains at least one configured
// keyword (case-insensitive substring match). An empty keyword set always
// matches.
func (s SourceDescriptor) MatchesKeywords(raw string) bool {
	if len(s.Keywords) == 0 {
		return true
	}
	lower := strings.ToLower(raw)
	for _, kw := range s.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// LogRecord is an immutable unit of the log stream. Seq is strictly
// increasing within a single source.
type LogRecord struct {
	ID       string
	Seq      uint64
	Arrived  time.Time
	SourceID string
	Raw      string

	// Fields populated by the profiler once a record has passed through it.
	Timestamp time.Time
	Severity  string
	Message   string
	Profiled  bool
}

// NewLogRecord constructs a record with a fresh opaque ID, distinct from
// the source-scoped sequence number used for ordering.
func NewLogRecord(seq uint64, sourceID, raw string, arrived time.Time) LogRecord {
	return LogRecord{
		ID:       uuid.NewString(),
		Seq:      seq,
		Arrived:  arrived,
		SourceID: sourceID,
		Raw:      raw,
	}
}

// MessageOrRaw returns the profiler-extracted message portion, falling
// back to the raw line when the record hasn't been profiled yet.
func (r LogRecord) MessageOrRaw() string {
	if r.Profiled && r.Message != "" {
		return r.Message
	}
	return r.Raw
}

// Severity is the classifier's output severity scale.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank gives a total order over severities, critical highest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Reason is why an Event was produced.
type Reason string

const (
	ReasonKeyword    Reason = "keyword"
	ReasonPattern    Reason = "pattern"
	ReasonSpike      Reason = "spike"
	ReasonStall      Reason = "stall"
	ReasonNovelty    Reason = "novelty"
	ReasonProgress   Reason = "progress"
	ReasonStage      Reason = "stage"
	ReasonCompletion Reason = "completion"
	ReasonDrift      Reason = "drift"
)

// Event is produced by the classifier, anomaly detector, or progress
// tracker and consumed by the dispatcher.
type Event struct {
	ID        string
	Record    *LogRecord
	Severity  Severity
	Summary   string
	Reason    Reason
	Detail    string
	Timestamp time.Time
}

// NewEvent stamps a fresh opaque ID and timestamp.
func NewEvent(record *LogRecord, severity Severity, summary string, reason Reason, detail string) Event {
	return Event{
		ID:        uuid.NewString(),
		Record:    record,
		Severity:  severity,
		Summary:   summary,
		Reason:    reason,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}
