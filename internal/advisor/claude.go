package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/watchhound/telewatch/internal/logger"
)

// throttleCooldown is how long a QuotaThrottled advisor stays degraded
// before Quota self-heals back to QuotaOK (spec.md §4.6).
const throttleCooldown = 60 * time.Second

// ClaudeAdvisor implements Advisor against the Anthropic Messages API.
type ClaudeAdvisor struct {
	client anthropic.Client
	model  string
	log    logger.Logger

	quota    Quota
	quotaSet time.Time
	nowFn    func() time.Time
}

// NewClaudeAdvisor constructs an advisor bound to apiKey. model may be
// empty, in which case a capable default is used.
func NewClaudeAdvisor(apiKey, model string, log logger.Logger) (*ClaudeAdvisor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("advisor: api key is required")
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_5Sonnet20241022)
	}
	return &ClaudeAdvisor{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		log:    log,
		quota:  QuotaOK,
		nowFn:  time.Now,
	}, nil
}

const systemPrompt = `You are a log severity classifier embedded in a monitoring pipeline.
Given a log line and up to 5 preceding lines from the same source for context, respond with
exactly one JSON object and nothing else, shaped as:
{"severity": "info"|"warning"|"critical", "summary": "<=280 chars", "generated_pattern": "<optional regex that would match recurrences of this exact condition>"}
Omit generated_pattern unless you are confident the regex is safe and specific.`

// Classify implements Advisor. It enforces the spec's 10-second
// deadline locally so a slow or hanging transport never blocks the
// classifier longer than contracted.
func (c *ClaudeAdvisor) Classify(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, Deadline)
	defer cancel()

	prompt := systemPrompt + "\n\n" + buildPrompt(req)
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropic.Int(512),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		c.observeError(err)
		return Result{}, fmt.Errorf("advisor: classify: %w", err)
	}

	if len(resp.Content) == 0 || resp.Content[0].Text == "" {
		return Result{}, fmt.Errorf("advisor: empty response")
	}

	result, err := parseResult(resp.Content[0].Text)
	if err != nil {
		return Result{}, fmt.Errorf("advisor: %w", err)
	}
	if !ValidResult(result) {
		return Result{}, fmt.Errorf("advisor: response failed schema validation")
	}
	return result, nil
}

// Quota reports the advisor's current capacity state. It self-heals
// lazily: a throttled advisor recovers after throttleCooldown, and an
// exhausted one recovers once the UTC day it was exhausted on has
// rolled over (spec.md §4.6), so callers never need to drive recovery
// themselves.
func (c *ClaudeAdvisor) Quota() Quota {
	now := c.now()
	switch c.quota {
	case QuotaThrottled:
		if now.Sub(c.quotaSet) >= throttleCooldown {
			c.ResetQuota()
		}
	case QuotaExhausted:
		if now.UTC().Day() != c.quotaSet.UTC().Day() || now.UTC().Sub(c.quotaSet.UTC()) >= 24*time.Hour {
			c.ResetQuota()
		}
	}
	return c.quota
}

// observeError classifies a transport error into a quota transition
// (spec.md §4.6: throttled vs exhausted are distinct advisor states).
func (c *ClaudeAdvisor) observeError(err error) {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		c.quota = QuotaThrottled
		c.quotaSet = c.now()
		if c.log != nil {
			c.log.Warn("advisor throttled, degrading for 60s")
		}
	case strings.Contains(msg, "quota") || strings.Contains(msg, "insufficient_quota"):
		c.quota = QuotaExhausted
		c.quotaSet = c.now()
		if c.log != nil {
			c.log.Warn("advisor quota exhausted, disabled for remainder of day")
		}
	}
}

// ResetQuota restores QuotaOK. Quota calls it automatically once the
// cooldown for the current state elapses; exposed so callers with
// out-of-band knowledge (an operator command, a recovered API key) can
// force recovery early.
func (c *ClaudeAdvisor) ResetQuota() {
	c.quota = QuotaOK
	c.quotaSet = c.now()
}

func (c *ClaudeAdvisor) now() time.Time {
	if c.nowFn != nil {
		return c.nowFn()
	}
	return time.Now()
}

func buildPrompt(req Request) string {
	var sb strings.Builder
	if len(req.Context) > 0 {
		sb.WriteString("Context (preceding lines, oldest first):\n")
		for _, line := range req.Context {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Classify this line:\n")
	sb.WriteString(req.Message)
	return sb.String()
}

type resultJSON struct {
	Severity         string `json:"severity"`
	Summary          string `json:"summary"`
	GeneratedPattern string `json:"generated_pattern,omitempty"`
}

// parseResult extracts the JSON object from the model's reply,
// tolerating surrounding prose or code fences.
func parseResult(text string) (Result, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return Result{}, fmt.Errorf("no JSON object in advisor response")
	}

	var parsed resultJSON
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return Result{}, fmt.Errorf("malformed advisor JSON: %w", err)
	}

	return Result{
		Severity:         parsed.Severity,
		Summary:          parsed.Summary,
		GeneratedPattern: parsed.GeneratedPattern,
	}, nil
}
