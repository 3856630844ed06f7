// Package config defines the typed configuration tree the engine is
// constructed from. Parsing the on-disk YAML and the interactive setup
// wizard live outside the core (spec.md §1); this package only owns the
// struct shape, defaults, and structural validation so that any caller
// (the wizard, a test, a future non-interactive loader) can hand the
// engine an already-populated Config.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration object the engine accepts.
type Config struct {
	Telegram     TelegramConfig     `mapstructure:"telegram" yaml:"telegram"`
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	Notification NotificationConfig `mapstructure:"notification" yaml:"notification"`
	Monitors     []MonitorConfig    `mapstructure:"monitors" yaml:"monitors"`
	Process      ProcessConfig      `mapstructure:"process" yaml:"process"`
	Anomaly      AnomalyConfig      `mapstructure:"anomaly" yaml:"anomaly"`
	Patterns     []PatternConfig    `mapstructure:"patterns" yaml:"patterns"`
	Classifier   ClassifierConfig   `mapstructure:"classifier" yaml:"classifier"`
	Turbo        bool               `mapstructure:"turbo" yaml:"turbo"`
}

// PatternConfig describes one pre-configured local pattern consulted
// before the advisor (spec.md §4.4).
type PatternConfig struct {
	ID       string `mapstructure:"id" yaml:"id"`
	Regex    string `mapstructure:"regex" yaml:"regex"`
	Severity string `mapstructure:"severity" yaml:"severity"`
	Summary  string `mapstructure:"summary" yaml:"summary"`
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
}

// ClassifierConfig tunes the classifier's advisor budget.
type ClassifierConfig struct {
	AdvisorBudgetPerHour int `mapstructure:"advisor_budget_per_hour" yaml:"advisor_budget_per_hour"`
}

// TelegramConfig carries the Transport credentials. The Transport
// implementation itself is an external collaborator (spec.md §1).
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID   string `mapstructure:"chat_id" yaml:"chat_id"`
}

// LLMConfig selects and authenticates the Advisor. Absent entirely, the
// advisor is disabled and the classifier always takes the degraded path.
type LLMConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"`
	Model    string `mapstructure:"model" yaml:"model"`
}

// Enabled reports whether enough LLM configuration was supplied to
// construct an Advisor at all.
func (l LLMConfig) Enabled() bool {
	return l.APIKey != ""
}

// NotificationConfig tunes the dispatcher.
type NotificationConfig struct {
	RateLimitPerHour int      `mapstructure:"rate_limit_per_hour" yaml:"rate_limit_per_hour"`
	DebounceSeconds  int      `mapstructure:"debounce_seconds" yaml:"debounce_seconds"`
	SeverityLevels   []string `mapstructure:"severity_levels" yaml:"severity_levels"`
}

// MonitorConfig describes one source adapter.
type MonitorConfig struct {
	Type     string   `mapstructure:"type" yaml:"type"` // file | pid | journal
	Path     string   `mapstructure:"path" yaml:"path"`
	PID      int      `mapstructure:"pid" yaml:"pid"`
	Unit     string   `mapstructure:"unit" yaml:"unit"`
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
	Name     string   `mapstructure:"name" yaml:"name"`
}

// ProcessConfig drives the progress tracker.
type ProcessConfig struct {
	Name                    string        `mapstructure:"name" yaml:"name"`
	Stages                  []StageConfig `mapstructure:"stages" yaml:"stages"`
	ExpectedDurationMinutes float64       `mapstructure:"expected_duration_minutes" yaml:"expected_duration_minutes"`
}

// StageConfig describes one weighted stage of a monitored process.
type StageConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	Weight       int    `mapstructure:"weight" yaml:"weight"`
	StartPattern string `mapstructure:"start_pattern" yaml:"start_pattern"`
}

// AnomalyConfig tunes the anomaly detector.
type AnomalyConfig struct {
	SpikeThreshold float64 `mapstructure:"spike_threshold" yaml:"spike_threshold"`
	StallSeconds   int     `mapstructure:"stall_seconds" yaml:"stall_seconds"`
}

// Defaults returns a Config pre-populated with every default named in
// spec.md §6. Callers unmarshal on top of it so that unset keys keep the
// documented default rather than the Go zero value.
func Defaults() Config {
	return Config{
		Notification: NotificationConfig{
			RateLimitPerHour: 10,
			DebounceSeconds:  300,
			SeverityLevels:   []string{"info", "warning", "critical"},
		},
		Anomaly: AnomalyConfig{
			SpikeThreshold: 3.0,
			StallSeconds:   300,
		},
	}
}

// Validate performs the structural checks that belong to startup
// ("Configuration error" in spec.md §7): required fields present,
// numeric ranges sane. It does not reach out to the network or the
// filesystem — that belongs to the adapters' own startup checks.
func (c Config) Validate() error {
	if c.Telegram.BotToken == "" || c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id are required")
	}
	if len(c.Monitors) == 0 {
		return fmt.Errorf("at least one monitor is required")
	}
	for i, m := range c.Monitors {
		switch m.Type {
		case "file":
			if m.Path == "" {
				return fmt.Errorf("monitors[%d]: file monitor requires path", i)
			}
		case "pid":
			if m.PID == 0 {
				return fmt.Errorf("monitors[%d]: pid monitor requires pid", i)
			}
		case "journal":
			if m.Unit == "" {
				return fmt.Errorf("monitors[%d]: journal monitor requires unit", i)
			}
		default:
			return fmt.Errorf("monitors[%d]: unknown type %q", i, m.Type)
		}
	}
	if c.Notification.RateLimitPerHour <= 0 {
		return fmt.Errorf("notification.rate_limit_per_hour must be positive")
	}
	if c.Notification.DebounceSeconds < 0 {
		return fmt.Errorf("notification.debounce_seconds must not be negative")
	}
	for i, s := range c.Process.Stages {
		if s.Weight <= 0 {
			return fmt.Errorf("process.stages[%d]: weight must be positive", i)
		}
	}
	return nil
}

// DebounceWindow is the dispatcher's coalescing window as a Duration.
func (n NotificationConfig) DebounceWindow() time.Duration {
	return time.Duration(n.DebounceSeconds) * time.Second
}

// AllowsSeverity reports whether sev is in the configured allowlist.
func (n NotificationConfig) AllowsSeverity(sev string) bool {
	if len(n.SeverityLevels) == 0 {
		return true
	}
	for _, s := range n.SeverityLevels {
		if s == sev {
			return true
		}
	}
	return false
}

// StallWindow is the anomaly detector's stall threshold as a Duration.
func (a AnomalyConfig) StallWindow() time.Duration {
	return time.Duration(a.StallSeconds) * time.Second
}
