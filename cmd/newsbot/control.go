package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/elitevogue/newsbot/internal/app"
	"github.com/elitevogue/newsbot/internal/metrics"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Run only the Telegram control bot",
	Long:  "Listen for /publicar, /estado and /logs commands. Runs are executed in this process.",
	RunE:  runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

func runControl(_ *cobra.Command, _ []string) error {
	cfg, log, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	if cfg.TelegramToken == "" {
		return errors.New("TELEGRAM_TOKEN is required for the control bot")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, _, cleanup, err := app.NewFromConfig(ctx, cfg, metrics.Global, log)
	if err != nil {
		return err
	}
	defer cleanup()

	bot, err := newControlBot(cfg.TelegramToken, cfg.TelegramAllowedChats, cfg.LogFile, runner, log)
	if err != nil {
		return err
	}
	bot.Metrics = metrics.Global
	return bot.Run(ctx)
}
