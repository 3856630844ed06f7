package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsWhenNoFilePresent(t *testing.T) {
	v := viper.New()
	v.SetConfigName("telewatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(t.TempDir())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Notification.RateLimitPerHour)
	assert.Equal(t, 300, cfg.Notification.DebounceSeconds)
	assert.Equal(t, 3.0, cfg.Anomaly.SpikeThreshold)
}

func TestLoad_FileValuesOverrideDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telewatch.yaml")
	contents := "telegram:\n  bot_token: abc\n  chat_id: \"123\"\nnotification:\n  rate_limit_per_hour: 5\nmonitors:\n  - type: file\n    path: /tmp/app.log\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	v := viper.New()
	v.SetConfigFile(path)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.Telegram.BotToken)
	assert.Equal(t, 5, cfg.Notification.RateLimitPerHour)
	assert.Equal(t, 300, cfg.Notification.DebounceSeconds, "unset keys keep the default")
	require.Len(t, cfg.Monitors, 1)
	assert.Equal(t, "/tmp/app.log", cfg.Monitors[0].Path)
}

func TestLoad_DoesNotValidate(t *testing.T) {
	v := viper.New()
	v.SetConfigName("telewatch")
	v.AddConfigPath(t.TempDir())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate(), "Load leaves validation to the caller")
}
