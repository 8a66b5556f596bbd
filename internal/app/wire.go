package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/elitevogue/newsbot/internal/classify"
	"github.com/elitevogue/newsbot/internal/config"
	"github.com/elitevogue/newsbot/internal/gemini"
	"github.com/elitevogue/newsbot/internal/illustrate"
	"github.com/elitevogue/newsbot/internal/metrics"
	"github.com/elitevogue/newsbot/internal/news"
	"github.com/elitevogue/newsbot/internal/newsapi"
	"github.com/elitevogue/newsbot/internal/ratelimit"
	"github.com/elitevogue/newsbot/internal/retry"
	"github.com/elitevogue/newsbot/internal/rss"
	"github.com/elitevogue/newsbot/internal/scraper"
	"github.com/elitevogue/newsbot/internal/storage"
	"github.com/elitevogue/newsbot/internal/wordpress"
	"github.com/elitevogue/newsbot/internal/writer"
)

// Stores bundles the persistence backends chosen by STORAGE_DRIVER.
type Stores struct {
	Seen  storage.SeenStore
	Stats storage.StatsStore
	close func() error
}

func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores opens the file stores or, with STORAGE_DRIVER=postgres, one
// PostgreSQL store serving both roles.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	if cfg.StorageDriver == "postgres" {
		pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		return &Stores{Seen: pg, Stats: pg, close: pg.Close}, nil
	}
	return &Stores{
		Seen:  storage.NewFileStore(cfg.PublishedDBPath, logger),
		Stats: storage.NewFileStats(cfg.StatsDBPath, logger),
	}, nil
}

// Background runs housekeeping that only makes sense in a long-lived process.
type Background func(ctx context.Context)

// NewFromConfig builds every collaborator once and returns the runner, its
// background tasks and a cleanup function.
func NewFromConfig(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Runner, Background, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	classifier := classify.Default()
	if cfg.CategoryRulesPath != "" {
		c, err := classify.LoadRules(cfg.CategoryRulesPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load category rules: %w", err)
		}
		classifier = c
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open storage: %w", err)
	}

	client := &http.Client{Timeout: cfg.RequestTimeout}
	var sources []news.Source
	sources = append(sources, &newsapi.Source{
		APIKey:   cfg.NewsAPIKey,
		Query:    cfg.NewsAPIQuery,
		Enabled:  cfg.UseNewsAPI,
		PageSize: cfg.MaxArticlesPerRun * 5,
		Client:   client,
		Logger:   logger,
	})
	sources = append(sources, rss.NewSources(cfg.RSSFeeds, client, cfg.RequestTimeout, logger)...)
	for i, s := range sources {
		sources[i] = countingSource{Source: s, metrics: m}
	}

	var gen writer.Generator
	var geminiClient *gemini.Client
	if cfg.GeminiAPIKey != "" {
		gc, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("gemini client unavailable", "err", err)
		} else {
			geminiClient = gc
			gen = gc
		}
	}
	w := writer.Choose(cfg.WriterProvider, logger,
		writer.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, "", logger),
		writer.NewGemini(gen, logger),
	)

	var illustrator illustrate.Illustrator = illustrate.Disabled{}
	if cfg.GeminiAPIKey != "" {
		im, err := illustrate.NewImagen(ctx, illustrate.ImagenConfig{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.ImagenModel,
			OutputDir: cfg.ImagesDir,
			Timeout:   90 * time.Second,
		}, logger)
		if err != nil {
			logger.Warn("image generation unavailable", "err", err)
		} else {
			illustrator = im
		}
	}

	deps := Deps{
		Aggregator: &news.Aggregator{
			Sources:            sources,
			DefaultLimit:       news.DefaultLimit,
			CollapseDuplicates: cfg.CollapseDuplicates,
			Logger:             logger,
		},
		Seen:        stores.Seen,
		Stats:       stores.Stats,
		Classifier:  classifier,
		Writer:      w,
		Illustrator: illustrator,
		Publisher:   publisher,
		Budget:      ratelimit.NewFileBudget(filepath.Join(cfg.DataDir, "budget.json"), cfg.MaxTextGenerations, cfg.MaxImageGenerations, logger),
		Categories:  cfg,
		Metrics:     m,
		Logger:      logger,
	}

	var background Background = func(ctx context.Context) {}
	if cfg.EnrichContent {
		sc := scraper.New(cfg.RequestTimeout, logger)
		deps.Enricher = sc
		background = func(ctx context.Context) { sc.Cache.RunCleanup(ctx, 30*time.Minute) }
	}

	runner := NewRunner(deps, Options{
		Limit: cfg.MaxArticlesPerRun,
		Request: writer.Request{
			Style:              writer.ParseStyle(cfg.WriterStyle),
			TranslationEnabled: cfg.TranslationEnabled,
			TargetLanguage:     cfg.TargetLanguage,
		},
		LockPath: filepath.Join(cfg.DataDir, "run.lock"),
		DryRun:   cfg.DryRun,
	})

	cleanup := func() {
		if geminiClient != nil {
			geminiClient.Close()
		}
		if err := stores.Close(); err != nil {
			logger.Warn("close storage", "err", err)
		}
	}
	return runner, background, cleanup, nil
}

// newPublisher returns the dry-run publisher when DRY_RUN is set. Missing
// WordPress credentials are an error otherwise.
func newPublisher(cfg *config.Config, logger *slog.Logger) (wordpress.Publisher, error) {
	if cfg.DryRun {
		logger.Info("dry run, writing posts to disk", "dir", cfg.ArticlesDir)
		return wordpress.NewDryRun(cfg.ArticlesDir, logger), nil
	}
	if !cfg.WordPressConfigured() {
		return nil, fmt.Errorf("%w: set WP_BASE_URL, WP_USER and WP_APP_PASSWORD, or DRY_RUN=true", wordpress.ErrNotConfigured)
	}
	wp, err := wordpress.NewClient(cfg.WPBaseURL, cfg.WPUser, cfg.WPAppPassword, 60*time.Second,
		retry.RetryConfig{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true}, logger)
	if err != nil {
		return nil, err
	}
	return wp, nil
}

// Trigger adapts Run for the control bot. The summary is kept when the run
// fails after publishing.
func (r *Runner) Trigger(ctx context.Context) (string, error) {
	sum, err := r.Run(ctx)
	if sum == nil {
		return "", err
	}
	return sum.String(), err
}

// countingSource reports fetched item counts to metrics.
type countingSource struct {
	news.Source
	metrics *metrics.Metrics
}

func (s countingSource) Fetch(ctx context.Context) ([]news.Item, error) {
	items, err := s.Source.Fetch(ctx)
	if err == nil && s.metrics != nil {
		s.metrics.AddFetched(len(items))
	}
	return items, err
}
