package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/elitevogue/newsbot/internal/app"
	"github.com/elitevogue/newsbot/internal/logger"
	"github.com/elitevogue/newsbot/internal/metrics"
	"github.com/elitevogue/newsbot/internal/scheduler"
	"github.com/elitevogue/newsbot/internal/server"
	"github.com/elitevogue/newsbot/internal/telegram"
)

var (
	serveSchedule string
	serveRunNow   bool
	servePort     int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run on a schedule with the control bot and monitoring server",
	Long: `Start the long-lived process: batches run on SCHEDULE, the Telegram control
bot listens when TELEGRAM_TOKEN is set and the monitoring server listens when
ENABLE_HTTP_MONITORING is true.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSchedule, "schedule", "", "Override SCHEDULE (cron expression)")
	serveCmd.Flags().BoolVar(&serveRunNow, "run-now", false, "Run one batch immediately at startup")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Override MONITORING_PORT and enable the monitoring server")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, log, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	if serveSchedule != "" {
		cfg.Schedule = serveSchedule
	}
	if servePort > 0 {
		cfg.MonitoringPort = servePort
		cfg.EnableHTTPMonitoring = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.Global
	runner, background, cleanup, err := app.NewFromConfig(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer cleanup()

	job := func(ctx context.Context) error {
		_, err := runner.Run(ctx)
		return err
	}
	sched, err := scheduler.New(cfg.Schedule, job,
		func(err error) bool { return errors.Is(err, app.ErrRunInProgress) }, log)
	if err != nil {
		return err
	}

	var bot *telegram.Bot
	if cfg.TelegramToken != "" {
		bot, err = newControlBot(cfg.TelegramToken, cfg.TelegramAllowedChats, cfg.LogFile, runner, log)
		if err != nil {
			return err
		}
		bot.Metrics = m
	}

	g, ctx := errgroup.WithContext(ctx)

	sched.Start(ctx)
	g.Go(func() error {
		<-ctx.Done()
		sched.Stop()
		return nil
	})

	g.Go(func() error {
		background(ctx)
		return nil
	})

	if serveRunNow {
		g.Go(func() error {
			if err := job(ctx); err != nil && !errors.Is(err, app.ErrRunInProgress) {
				log.Error("startup run failed", "err", err)
			}
			return nil
		})
	}

	if cfg.EnableHTTPMonitoring {
		srv := server.New(m, runner.Stats(), runner.Budget(), sched.NextRun, log)
		g.Go(func() error {
			return srv.Run(ctx, fmt.Sprintf(":%d", cfg.MonitoringPort))
		})
	}

	if bot != nil {
		g.Go(func() error { return bot.Run(ctx) })
	} else {
		log.Info("TELEGRAM_TOKEN not set, control bot disabled")
	}

	logger.Info("newsbot serving", "schedule", cfg.Schedule, "version", version)
	err = g.Wait()
	logger.Info("newsbot stopped", "err", err)
	return err
}

func newControlBot(token, allowed, logFile string, runner *app.Runner, log *slog.Logger) (*telegram.Bot, error) {
	ids, err := telegram.ParseChatIDs(allowed)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_ALLOWED_CHATS: %w", err)
	}
	return telegram.NewBot(token, logFile, ids, runner.Trigger, log), nil
}
