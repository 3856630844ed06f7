package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/watchhound/telewatch/internal/advisor"
	"github.com/watchhound/telewatch/internal/engine"
	"github.com/watchhound/telewatch/internal/errors"
	"github.com/watchhound/telewatch/internal/logger"
	"github.com/watchhound/telewatch/internal/transport"
)

var runDryRun bool

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start monitoring the configured sources until interrupted",
		Long:  `run boots the pipeline from the loaded configuration and blocks, sending notifications to the configured chat channel, until Ctrl+C or SIGTERM.`,
		RunE:  runRun,
	}
	cmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print notifications to stdout instead of sending to chat")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	c := GetConfig()
	if !runDryRun {
		if err := c.Validate(); err != nil {
			return errors.Wrap(errors.KindConfiguration, "validating configuration", err)
		}
	}

	log := logger.NewLogrusWithLevel(logLevel)

	var tr transport.Transport
	if runDryRun {
		tr = transport.NewConsole()
	} else {
		tr = transport.NewTelegram(c.Telegram.BotToken, c.Telegram.ChatID, log)
	}

	var adv advisor.Advisor
	if c.LLM.Enabled() {
		claude, err := advisor.NewClaudeAdvisor(c.LLM.APIKey, c.LLM.Model, log)
		if err != nil {
			return errors.Wrap(errors.KindAdvisor, "constructing LLM advisor", err)
		}
		adv = claude
	}

	eng, err := engine.New(c, log, tr, adv)
	if err != nil {
		return errors.Wrap(errors.KindConfiguration, "constructing engine", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nreceived interrupt signal, shutting down...")
		cancel()
	}()

	if tg, ok := tr.(*transport.Telegram); ok {
		go tg.Run(ctx)
	}

	return eng.Run(ctx)
}
