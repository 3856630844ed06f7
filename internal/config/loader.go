package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load reads configuration from the given viper instance (already told
// about a config file path, env prefix, etc. by the CLI layer) on top of
// the documented defaults. Callers decide when structural validation
// applies (dry-run mode tolerates an incomplete Telegram section); this
// is the only piece of file/wizard-adjacent plumbing the core ships
// with, actual wizard UX is out of scope (spec.md §1).
func Load(v *viper.Viper) (Config, error) {
	cfg := Defaults()

	v.SetDefault("notification.rate_limit_per_hour", cfg.Notification.RateLimitPerHour)
	v.SetDefault("notification.debounce_seconds", cfg.Notification.DebounceSeconds)
	v.SetDefault("notification.severity_levels", cfg.Notification.SeverityLevels)
	v.SetDefault("anomaly.spike_threshold", cfg.Anomaly.SpikeThreshold)
	v.SetDefault("anomaly.stall_seconds", cfg.Anomaly.StallSeconds)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}
