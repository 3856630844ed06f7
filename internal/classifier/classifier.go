// Package classifier implements the decision core of spec.md §4.5:
// given a record and the reason it reached the classifier, produce a
// severity and summary by consulting, in order, the analysis cache,
// the pattern matcher, the advisor, and finally a local heuristic.
package classifier

import (
	"context"
	"sync"
	"time"

	"github.com/watchhound/telewatch/internal/advisor"
	"github.com/watchhound/telewatch/internal/cache"
	"github.com/watchhound/telewatch/internal/fingerprint"
	"github.com/watchhound/telewatch/internal/logger"
	"github.com/watchhound/telewatch/internal/pattern"
	"github.com/watchhound/telewatch/internal/types"
)

// DefaultHourlyBudget caps advisor calls per rolling hour (spec.md
// §4.5: "default 60").
const DefaultHourlyBudget = 60

// Input is everything Decide needs for one record. AnomalySeverity and
// AnomalySummary are only consulted when Reason is spike or stall,
// since the anomaly detector already computed them (spec.md §4.5:
// "anomaly owns these").
type Input struct {
	Record          types.LogRecord
	Reason          types.Reason
	Context         []string
	AnomalySeverity types.Severity
	AnomalySummary  string
}

// Classifier owns the analysis cache and pattern matcher (spec.md §5:
// "the classifier owns cache+patterns").
type Classifier struct {
	cache    *cache.Cache
	patterns *pattern.Matcher
	advisor  advisor.Advisor
	log      logger.Logger

	budget int
	mu     sync.Mutex
	calls  []time.Time
	now    func() time.Time
}

// New constructs a Classifier. advisor may be nil, meaning no advisor
// is configured (spec.md §4.6: "advisor disabled if absent").
func New(c *cache.Cache, p *pattern.Matcher, adv advisor.Advisor, budget int, log logger.Logger) *Classifier {
	if budget <= 0 {
		budget = DefaultHourlyBudget
	}
	return &Classifier{
		cache:    c,
		patterns: p,
		advisor:  adv,
		log:      log,
		budget:   budget,
		now:      time.Now,
	}
}

// Decide implements the spec.md §4.5 decision pseudocode and returns
// the resulting Event.
func (c *Classifier) Decide(ctx context.Context, in Input) types.Event {
	record := in.Record

	if in.Reason == types.ReasonSpike || in.Reason == types.ReasonStall {
		return types.NewEvent(&record, in.AnomalySeverity, in.AnomalySummary, in.Reason, "")
	}

	fp := fingerprint.Of(record.MessageOrRaw())

	if entry, ok := c.cache.Get(fp); ok {
		return types.NewEvent(&record, types.Severity(entry.Severity), entry.Summary, in.Reason, "cache hit")
	}

	if match, ok := c.patterns.FirstMatch(record.MessageOrRaw()); ok {
		c.cache.Put(fp, match.Severity, match.Summary, true)
		return types.NewEvent(&record, types.Severity(match.Severity), match.Summary, types.ReasonPattern, "")
	}

	if c.advisorAvailable() && c.withinBudget() {
		callCtx, cancel := context.WithTimeout(ctx, advisor.Deadline)
		result, err := c.advisor.Classify(callCtx, advisor.Request{Message: record.MessageOrRaw(), Context: in.Context})
		cancel()
		if err == nil && advisor.ValidResult(result) {
			c.recordCall()
			local := false
			if result.Severity == "warning" || result.Severity == "critical" {
				c.cache.Put(fp, result.Severity, result.Summary, local)
			}
			if result.GeneratedPattern != "" {
				if injErr := c.patterns.Inject(record.SourceID+"-"+fp, result.GeneratedPattern, result.Severity, result.Summary); injErr != nil && c.log != nil {
					c.log.WithField("error", injErr.Error()).Warn("advisor generated an unusable pattern")
				}
			}
			return types.NewEvent(&record, types.Severity(result.Severity), result.Summary, in.Reason, "")
		}
		if c.log != nil && err != nil {
			c.log.WithField("error", err.Error()).Warn("advisor unavailable, degrading")
		}
	}

	severity := advisor.HeuristicSeverity(record.Severity, record.MessageOrRaw())
	summary := advisor.Truncate(record.MessageOrRaw())
	c.cache.Put(fp, severity, summary, true)
	return types.NewEvent(&record, types.Severity(severity), summary, in.Reason, "degraded")
}

// advisorAvailable reports whether the advisor is configured and not
// presently throttled or exhausted (spec.md §4.6).
func (c *Classifier) advisorAvailable() bool {
	if c.advisor == nil {
		return false
	}
	return c.advisor.Quota() == advisor.QuotaOK
}

// withinBudget enforces the per-hour soft cap on advisor calls
// (spec.md §4.5).
func (c *Classifier) withinBudget() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-time.Hour)
	kept := c.calls[:0]
	for _, t := range c.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.calls = kept
	return len(c.calls) < c.budget
}

func (c *Classifier) recordCall() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, c.now())
}
