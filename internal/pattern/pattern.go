// Package pattern implements the pattern matcher of spec.md §4.4: an
// ordered list of regex patterns, each carrying a local severity and
// summary template, tested in order against incoming records. The
// first match wins and short-circuits a call to the advisor. Patterns
// can also be injected at runtime by the advisor itself in bootstrap
// mode (spec.md §9, "generated_pattern").
package pattern

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Pattern is spec.md §3's Pattern type.
type Pattern struct {
	ID              string
	Regex           *regexp.Regexp
	Severity        string
	SummaryTemplate string
	Enabled         bool
	Generated       bool // true if injected by the advisor rather than config
}

// Match is the result of a successful pattern test.
type Match struct {
	Pattern  Pattern
	Severity string
	Summary  string
}

// Source configures one pattern before compilation.
type Source struct {
	ID       string
	Regex    string
	Severity string
	Summary  string
	Enabled  bool
}

// Matcher holds an ordered, mutable pattern list. Safe for concurrent
// use; per spec.md §5 the classifier is the single owner of the
// matcher, but a parallelised classifier still needs correct locking
// around injection.
type Matcher struct {
	mu       sync.RWMutex
	patterns []Pattern
}

// New compiles the given sources into a Matcher, preserving order.
// Sources with an invalid regex are skipped.
func New(sources []Source) *Matcher {
	m := &Matcher{}
	for _, s := range sources {
		p, err := compile(s.ID, s.Regex, s.Severity, s.Summary, s.Enabled, false)
		if err == nil {
			m.patterns = append(m.patterns, p)
		}
	}
	return m
}

func compile(id, regex, severity, summary string, enabled, generated bool) (Pattern, error) {
	re, err := regexp.Compile(regex)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %s: %w", id, err)
	}
	return Pattern{
		ID:              id,
		Regex:           re,
		Severity:        severity,
		SummaryTemplate: summary,
		Enabled:         enabled,
		Generated:       generated,
	}, nil
}

// FirstMatch tests message against each enabled pattern in order and
// returns the first hit.
func (m *Matcher) FirstMatch(message string) (Match, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.patterns {
		if !p.Enabled {
			continue
		}
		if p.Regex.MatchString(message) {
			return Match{Pattern: p, Severity: p.Severity, Summary: render(p.SummaryTemplate, message)}, true
		}
	}
	return Match{}, false
}

// Inject adds an advisor-generated pattern to the end of the list
// (spec.md §4.5, bootstrap teaching). A malformed regex is rejected
// rather than destabilising the matcher.
func (m *Matcher) Inject(id, regex, severity, summary string) error {
	p, err := compile(id, regex, severity, summary, true, true)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, p)
	return nil
}

// Len reports how many patterns (enabled or not) the matcher holds.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.patterns)
}

// Generated returns the subset of patterns injected at runtime, used
// by the /status control command to report what the advisor has taught
// the matcher this run.
func (m *Matcher) Generated() []Pattern {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Pattern
	for _, p := range m.patterns {
		if p.Generated {
			out = append(out, p)
		}
	}
	return out
}

// render fills the "%s" slot a summary template may carry with the
// matched message; templates with no slot are returned unchanged.
func render(template, message string) string {
	if template == "" {
		return message
	}
	if strings.Contains(template, "%s") {
		return fmt.Sprintf(template, message)
	}
	return template
}
