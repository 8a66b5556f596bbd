// Package app runs one publication batch: aggregate fresh items, then
// classify, rewrite, illustrate and publish each of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/elitevogue/newsbot/internal/classify"
	"github.com/elitevogue/newsbot/internal/illustrate"
	"github.com/elitevogue/newsbot/internal/metrics"
	"github.com/elitevogue/newsbot/internal/news"
	"github.com/elitevogue/newsbot/internal/ratelimit"
	"github.com/elitevogue/newsbot/internal/storage"
	"github.com/elitevogue/newsbot/internal/wordpress"
	"github.com/elitevogue/newsbot/internal/writer"
)

var ErrRunInProgress = errors.New("run already in progress")

// Enricher replaces an item's content with the full article text when it can.
type Enricher interface {
	Enrich(ctx context.Context, it news.Item) news.Item
}

// CategoryMapper resolves a label to a WordPress category id.
type CategoryMapper interface {
	CategoryID(label, fallback string) (int, bool)
}

// Deps are the collaborators of a run. Enricher, Budget, Categories and
// Metrics are optional.
type Deps struct {
	Aggregator  *news.Aggregator
	Seen        storage.SeenStore
	Stats       storage.StatsStore
	Classifier  *classify.Classifier
	Writer      writer.Writer
	Illustrator illustrate.Illustrator
	Publisher   wordpress.Publisher
	Enricher    Enricher
	Budget      *ratelimit.Budget
	Categories  CategoryMapper
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

type Options struct {
	Limit   int
	Request writer.Request
	// LockPath is the cross-process run lock. Empty disables it.
	LockPath string
	// DryRun leaves the freshness and stats stores untouched, so items
	// written to disk instead of WordPress stay fresh for a real run.
	DryRun bool
}

// Runner executes batches one at a time.
type Runner struct {
	deps Deps
	opts Options
	mu   sync.Mutex
	now  func() time.Time
}

func NewRunner(deps Deps, opts Options) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.Default()
	}
	if deps.Writer == nil {
		deps.Writer = writer.Placeholder{}
	}
	if deps.Illustrator == nil {
		deps.Illustrator = illustrate.Disabled{}
	}
	return &Runner{deps: deps, opts: opts, now: time.Now}
}

// Budget is the generation budget shared by all runs, or nil.
func (r *Runner) Budget() *ratelimit.Budget { return r.deps.Budget }

// Stats is the publication counter store, or nil.
func (r *Runner) Stats() storage.StatsStore { return r.deps.Stats }

// Run processes one batch. It returns ErrRunInProgress when another run holds
// the in-process or the file lock. The summary is returned even when saving
// the freshness store fails.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	if !r.mu.TryLock() {
		r.deps.Metrics.IncrementRunsSkipped()
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	if r.opts.LockPath != "" {
		unlock, err := lockFile(r.opts.LockPath)
		if err != nil {
			if errors.Is(err, ErrRunInProgress) {
				r.deps.Metrics.IncrementRunsSkipped()
			}
			return nil, err
		}
		defer unlock()
	}

	start := r.now()
	sum := &RunSummary{RunID: uuid.NewString(), StartedAt: start, DryRun: r.opts.DryRun}
	log := r.deps.Logger.With("run_id", sum.RunID)
	log.Info("run started", "writer", r.deps.Writer.Name(), "illustrator", r.deps.Illustrator.Available(), "dry_run", r.opts.DryRun)

	seen := r.deps.Seen.LoadSeen(ctx)
	log.Info("freshness store loaded", "known", seen.Len())

	items := r.deps.Aggregator.Fresh(ctx, seen, r.opts.Limit)
	sum.Fresh = len(items)
	r.deps.Metrics.AddFresh(len(items))
	log.Info("fresh items selected", "count", len(items))

	for _, it := range items {
		if ctx.Err() != nil {
			log.Warn("run cancelled", "err", ctx.Err())
			break
		}
		res, err := r.process(ctx, log, it)
		switch {
		case errors.Is(err, errSkipped):
			sum.Skipped++
			continue
		case err != nil:
			sum.Failed++
			r.deps.Metrics.IncrementFailed()
			log.Error("item failed", "title", it.Title, "fingerprint", it.Fingerprint, "err", err)
			continue
		}

		seen.Add(it.Fingerprint)
		sum.Published++
		sum.Posts = append(sum.Posts, *res)
		r.deps.Metrics.IncrementPublished()

		if r.deps.Stats != nil && !r.opts.DryRun {
			if err := r.deps.Stats.Increment(ctx, it.Source, res.Category); err != nil {
				log.Warn("stats update failed", "err", err)
			}
		}
	}

	var saveErr error
	if r.opts.DryRun {
		log.Info("dry run, freshness store left untouched")
	} else {
		// published posts must be recorded even after a shutdown signal
		saveErr = r.deps.Seen.SaveSeen(context.WithoutCancel(ctx), seen)
	}
	sum.Duration = r.now().Sub(start)
	if saveErr != nil {
		err := fmt.Errorf("save freshness store: %w", saveErr)
		r.deps.Metrics.SetError(err.Error())
		log.Error("run finished with error", "err", err)
		return sum, err
	}

	r.deps.Metrics.RecordRun(sum.Duration)
	log.Info("run finished",
		"fresh", sum.Fresh,
		"published", sum.Published,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"duration", sum.Duration)
	return sum, nil
}

var errSkipped = errors.New("item skipped")

func (r *Runner) process(ctx context.Context, log *slog.Logger, it news.Item) (*PublishedPost, error) {
	log = log.With("fingerprint", it.Fingerprint)

	if r.deps.Enricher != nil {
		it = r.deps.Enricher.Enrich(ctx, it)
	}

	category := r.deps.Classifier.ClassifyItem(it)
	log.Info("processing item", "title", it.Title, "category", category)

	paid := r.deps.Writer.Available()
	if paid && r.deps.Budget != nil && !r.deps.Budget.Allow(ratelimit.Text) {
		log.Warn("text generation budget exhausted, item left for a later run", "title", it.Title)
		return nil, errSkipped
	}

	art, err := r.deps.Writer.Rewrite(ctx, it, r.opts.Request)
	if err != nil {
		r.deps.Metrics.IncrementRewriteFailed()
		return nil, fmt.Errorf("rewrite: %w", err)
	}
	if paid && r.deps.Budget != nil {
		if err := r.deps.Budget.Use(ratelimit.Text); err != nil {
			log.Warn("text budget accounting", "err", err)
		}
	}

	mediaID := r.illustrate(ctx, log, it)

	post := wordpress.Post{
		Title:         art.Title,
		Content:       art.HTMLBody,
		Excerpt:       art.MetaDescription,
		FeaturedMedia: mediaID,
		Status:        "publish",
	}
	if r.deps.Categories != nil {
		if id, ok := r.deps.Categories.CategoryID(category, r.deps.Classifier.Fallback()); ok {
			post.Categories = []int{id}
		}
	}

	postID, err := r.deps.Publisher.CreatePost(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	log.Info("article published", "post_id", postID, "title", art.Title)

	return &PublishedPost{
		PostID:      postID,
		Title:       art.Title,
		Category:    category,
		Source:      it.Source,
		Fingerprint: it.Fingerprint,
		MediaID:     mediaID,
	}, nil
}

// illustrate returns the uploaded media id, or 0 when the article goes out
// without an image.
func (r *Runner) illustrate(ctx context.Context, log *slog.Logger, it news.Item) int {
	if !r.deps.Illustrator.Available() {
		return 0
	}
	if r.deps.Budget != nil && !r.deps.Budget.Allow(ratelimit.Image) {
		log.Warn("image generation budget exhausted, publishing without image")
		return 0
	}

	path, err := r.deps.Illustrator.Illustrate(ctx, it, r.opts.Request.Style)
	if err != nil {
		r.deps.Metrics.IncrementImagesFailed()
		log.Warn("image generation failed, publishing without image", "err", err)
		return 0
	}
	if path == "" {
		return 0
	}
	r.deps.Metrics.IncrementImagesGenerated()
	if r.deps.Budget != nil {
		if err := r.deps.Budget.Use(ratelimit.Image); err != nil {
			log.Warn("image budget accounting", "err", err)
		}
	}

	id, err := r.deps.Publisher.UploadMedia(ctx, path)
	if err != nil {
		log.Warn("media upload failed, publishing without image", "path", path, "err", err)
		return 0
	}
	return id
}

// lockFile takes the cross-process lock at path.
func lockFile(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() { _ = fl.Unlock() }, nil
}
