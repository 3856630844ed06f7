package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/watchhound/telewatch/internal/config"
	"github.com/watchhound/telewatch/internal/errors"
)

var (
	cfgFile  string
	logLevel string
	noColor  bool
	cfg      config.Config
)

var rootCmd = &cobra.Command{
	Use:               "telewatch",
	Short:             "Watch a remote process's logs and page you when something breaks",
	Long:              `telewatch tails a log source, profiles its shape, flags anomalies and novel lines, classifies severity with an LLM advisor, tracks deploy progress, and notifies a chat channel.`,
	DisableAutoGenTag: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			os.Setenv("TELEWATCH_NO_COLOR", "1")
		}
		if cmd.Name() == "version" {
			return nil
		}
		loaded, err := config.Load(newConfigViper())
		if err != nil {
			return errors.Wrap(errors.KindConfiguration, "loading configuration", err)
		}
		cfg = loaded
		return nil
	},
}

// newConfigViper builds a Viper instance pointed at the explicit
// --config path, or else $HOME/.telewatch and the working directory,
// with TELEWATCH_-prefixed environment variables bound for the
// credentials operators don't want to put in a file on disk.
func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("telewatch")
	v.SetConfigType("yaml")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".telewatch"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TELEWATCH")
	v.AutomaticEnv()
	v.BindEnv("telegram.bot_token", "TELEWATCH_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("telegram.chat_id", "TELEWATCH_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")
	v.BindEnv("llm.api_key", "TELEWATCH_LLM_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

// Execute runs the root command, displaying any error in the teacher's
// style and exiting with the error kind's mapped status code.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		errors.DisplayError(err)
		os.Exit(errors.GetExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.telewatch/telewatch.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored error output")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newVersionCommand())
}

// GetConfig returns the configuration loaded by PersistentPreRunE.
func GetConfig() config.Config {
	return cfg
}
