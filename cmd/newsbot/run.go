package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/elitevogue/newsbot/internal/app"
	"github.com/elitevogue/newsbot/internal/metrics"
)

var (
	runDryRun bool
	runLimit  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one batch of fresh news and exit",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Write posts to ARTICLES_DIR instead of publishing")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "Override MAX_ARTICLES_PER_RUN")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, log, closer, err := setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	if runDryRun {
		cfg.DryRun = true
	}
	if runLimit > 0 {
		cfg.MaxArticlesPerRun = runLimit
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, _, cleanup, err := app.NewFromConfig(ctx, cfg, metrics.Global, log)
	if err != nil {
		return err
	}
	defer cleanup()

	sum, err := runner.Run(ctx)
	if errors.Is(err, app.ErrRunInProgress) {
		fmt.Fprintln(cmd.OutOrStdout(), "Another run is in progress, nothing to do.")
		return nil
	}
	if sum != nil {
		fmt.Fprintln(cmd.OutOrStdout(), sum.String())
	}
	return err
}
