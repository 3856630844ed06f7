package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Telegram = TelegramConfig{BotToken: "token", ChatID: "chat"}
	cfg.Monitors = []MonitorConfig{{Type: "file", Path: "/var/log/app.log"}}
	return cfg
}

func TestValidate_AcceptsMinimalValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_RequiresTelegramCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.ChatID = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RequiresAtLeastOneMonitor(t *testing.T) {
	cfg := validConfig()
	cfg.Monitors = nil
	assert.Error(t, cfg.Validate())
}

func TestValidate_MonitorTypeSpecificRequirements(t *testing.T) {
	cases := []struct {
		name    string
		monitor MonitorConfig
		wantErr bool
	}{
		{"file without path", MonitorConfig{Type: "file"}, true},
		{"pid without pid", MonitorConfig{Type: "pid"}, true},
		{"pid with pid", MonitorConfig{Type: "pid", PID: 123}, false},
		{"journal without unit", MonitorConfig{Type: "journal"}, true},
		{"journal with unit", MonitorConfig{Type: "journal", Unit: "nginx.service"}, false},
		{"unknown type", MonitorConfig{Type: "bogus"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Monitors = []MonitorConfig{c.monitor}
			err := cfg.Validate()
			if c.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_RejectsNonPositiveRateLimit(t *testing.T) {
	cfg := validConfig()
	cfg.Notification.RateLimitPerHour = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNegativeDebounce(t *testing.T) {
	cfg := validConfig()
	cfg.Notification.DebounceSeconds = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveStageWeight(t *testing.T) {
	cfg := validConfig()
	cfg.Process.Stages = []StageConfig{{Name: "build", Weight: 0}}
	assert.Error(t, cfg.Validate())
}

func TestAllowsSeverity_EmptyListAllowsEverything(t *testing.T) {
	n := NotificationConfig{}
	assert.True(t, n.AllowsSeverity("critical"))
}

func TestAllowsSeverity_RespectsConfiguredLevels(t *testing.T) {
	n := NotificationConfig{SeverityLevels: []string{"critical"}}
	assert.True(t, n.AllowsSeverity("critical"))
	assert.False(t, n.AllowsSeverity("info"))
}

func TestLLMConfig_EnabledRequiresAPIKey(t *testing.T) {
	assert.False(t, LLMConfig{}.Enabled())
	assert.True(t, LLMConfig{APIKey: "sk-ant-..."}.Enabled())
}
