// Command newsbot collects fashion news, rewrites it and publishes it to WordPress.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/elitevogue/newsbot/internal/config"
	"github.com/elitevogue/newsbot/internal/logger"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "newsbot",
	Short:         "Fashion news publishing bot",
	Long:          "newsbot gathers fashion news from NewsAPI and RSS feeds, rewrites it in Spanish with an LLM, illustrates it and publishes it to WordPress.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "err", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and installs the process logger.
func setup() (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	closer := logger.Init(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	logger.Debug("configuration loaded",
		"storage", cfg.StorageDriver,
		"feeds", len(cfg.RSSFeeds),
		"dry_run", cfg.DryRun,
		"writer", cfg.WriterProvider)
	return cfg, logger.Logger, closer, nil
}
