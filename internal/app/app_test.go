package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elitevogue/newsbot/internal/classify"
	"github.com/elitevogue/newsbot/internal/metrics"
	"github.com/elitevogue/newsbot/internal/news"
	"github.com/elitevogue/newsbot/internal/ratelimit"
	"github.com/elitevogue/newsbot/internal/wordpress"
	"github.com/elitevogue/newsbot/internal/writer"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type staticSource struct{ items []news.Item }

func (s staticSource) Name() string                                  { return "static" }
func (s staticSource) Fetch(ctx context.Context) ([]news.Item, error) { return s.items, nil }

type memSeen struct {
	initial   news.Set
	saved     news.Set
	saveErr   error
	saveCalls int
	saveCtxOK bool
}

func (m *memSeen) LoadSeen(ctx context.Context) news.Set {
	out := news.NewSet()
	for h := range m.initial {
		out.Add(h)
	}
	return out
}

func (m *memSeen) SaveSeen(ctx context.Context, seen news.Set) error {
	m.saveCalls++
	m.saveCtxOK = ctx.Err() == nil
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = seen
	return nil
}

type memStats struct{ counts map[string]int }

func (m *memStats) Increment(ctx context.Context, source, category string) error {
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts["source:"+source]++
	m.counts["category:"+category]++
	return nil
}

func (m *memStats) LoadStats(ctx context.Context) map[string]int { return m.counts }

type fakeWriter struct {
	available bool
	failOn    string
	calls     int
}

func (w *fakeWriter) Name() string    { return "fake" }
func (w *fakeWriter) Available() bool { return w.available }
func (w *fakeWriter) Rewrite(ctx context.Context, it news.Item, req writer.Request) (*writer.Article, error) {
	w.calls++
	if it.Title == w.failOn {
		return nil, errors.New("model unavailable")
	}
	return &writer.Article{
		Title:           "ES: " + it.Title,
		HTMLBody:        "<p>" + it.Title + "</p>",
		MetaDescription: it.Title + "…",
	}, nil
}

type fakeIllustrator struct {
	err   error
	calls int
}

func (f *fakeIllustrator) Available() bool { return true }
func (f *fakeIllustrator) Illustrate(ctx context.Context, it news.Item, style writer.Style) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "/tmp/img_" + it.Fingerprint + ".png", nil
}

type fakePublisher struct {
	failOn string
	onPost func()
	posts  []wordpress.Post
	media  []string
}

func (p *fakePublisher) UploadMedia(ctx context.Context, path string) (int, error) {
	p.media = append(p.media, path)
	return 500 + len(p.media), nil
}

func (p *fakePublisher) CreatePost(ctx context.Context, post wordpress.Post) (int, error) {
	if post.Title == p.failOn {
		return 0, errors.New("wordpress 502")
	}
	p.posts = append(p.posts, post)
	if p.onPost != nil {
		p.onPost()
	}
	return 100 + len(p.posts), nil
}

type mapCategories map[string]int

func (m mapCategories) CategoryID(label, fallback string) (int, bool) {
	if id, ok := m[label]; ok {
		return id, true
	}
	id, ok := m[fallback]
	return id, ok
}

type fixture struct {
	seen   *memSeen
	stats  *memStats
	writer *fakeWriter
	ill    *fakeIllustrator
	pub    *fakePublisher
	m      *metrics.Metrics
	deps   Deps
}

var batch = []news.Item{
	{Source: "Vogue", URL: "https://vogue.com/1", Title: "Nuevo labial rojo", PublishedAt: "2024-03-02T10:00:00Z"},
	{Source: "WWD", URL: "https://wwd.com/2", Title: "Desfile en París", PublishedAt: "2024-03-01T10:00:00Z"},
}

func newFixture(items ...news.Item) *fixture {
	f := &fixture{
		seen:   &memSeen{},
		stats:  &memStats{},
		writer: &fakeWriter{available: true},
		ill:    &fakeIllustrator{},
		pub:    &fakePublisher{},
		m:      metrics.New(),
	}
	f.deps = Deps{
		Aggregator:  &news.Aggregator{Sources: []news.Source{staticSource{items: items}}, Logger: quiet()},
		Seen:        f.seen,
		Stats:       f.stats,
		Classifier:  classify.Default(),
		Writer:      f.writer,
		Illustrator: f.ill,
		Publisher:   f.pub,
		Categories:  mapCategories{"belleza": 7, "moda": 3},
		Metrics:     f.m,
		Logger:      quiet(),
	}
	return f
}

func TestRun_PublishesAndMarksSeen(t *testing.T) {
	f := newFixture(batch...)
	r := NewRunner(f.deps, Options{Limit: 5})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 2, sum.Fresh)
	assert.Equal(t, 2, sum.Published)
	assert.Zero(t, sum.Failed)

	require.Len(t, f.pub.posts, 2)
	first := f.pub.posts[0]
	assert.Equal(t, "ES: Nuevo labial rojo", first.Title)
	assert.Equal(t, []int{7}, first.Categories)
	assert.Equal(t, 501, first.FeaturedMedia)
	assert.Equal(t, "publish", first.Status)
	assert.Equal(t, []int{3}, f.pub.posts[1].Categories)

	assert.True(t, f.seen.saved.Contains(batch[0].ComputeFingerprint()))
	assert.True(t, f.seen.saved.Contains(batch[1].ComputeFingerprint()))

	assert.Equal(t, 1, f.stats.counts["source:Vogue"])
	assert.Equal(t, 1, f.stats.counts["category:belleza"])
	assert.Equal(t, 1, f.stats.counts["category:moda"])

	stats := f.m.GetStats()
	assert.EqualValues(t, 2, stats["articles_published"])
	assert.EqualValues(t, 2, stats["images_generated"])
	assert.EqualValues(t, 1, stats["runs_completed"])
}

func TestRun_SkipsHistory(t *testing.T) {
	f := newFixture(batch...)
	f.seen.initial = news.NewSet(batch[0].ComputeFingerprint())

	sum, err := NewRunner(f.deps, Options{Limit: 5}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Fresh)
	require.Len(t, f.pub.posts, 1)
	assert.Equal(t, "ES: Desfile en París", f.pub.posts[0].Title)
	assert.Equal(t, 2, f.seen.saved.Len())
}

func TestRun_PublishFailureDoesNotStopBatch(t *testing.T) {
	f := newFixture(batch...)
	f.pub.failOn = "ES: Nuevo labial rojo"

	sum, err := NewRunner(f.deps, Options{Limit: 5}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Published)
	assert.False(t, f.seen.saved.Contains(batch[0].ComputeFingerprint()))
	assert.True(t, f.seen.saved.Contains(batch[1].ComputeFingerprint()))
	assert.EqualValues(t, 1, f.m.GetStats()["articles_failed"])
}

func TestRun_RewriteFailureNotMarked(t *testing.T) {
	f := newFixture(batch...)
	f.writer.failOn = "Desfile en París"

	sum, err := NewRunner(f.deps, Options{Limit: 5}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.False(t, f.seen.saved.Contains(batch[1].ComputeFingerprint()))
	assert.EqualValues(t, 1, f.m.GetStats()["rewrites_failed"])
}

func TestRun_IllustrationFailurePublishesWithoutImage(t *testing.T) {
	f := newFixture(batch[:1]...)
	f.ill.err = errors.New("quota")

	sum, err := NewRunner(f.deps, Options{Limit: 5}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Published)
	require.Len(t, f.pub.posts, 1)
	assert.Zero(t, f.pub.posts[0].FeaturedMedia)
	assert.Empty(t, f.pub.media)
	assert.EqualValues(t, 1, f.m.GetStats()["images_failed"])
}

func TestRun_TextBudgetExhausted(t *testing.T) {
	f := newFixture(batch...)
	f.deps.Budget = ratelimit.NewBudget(1, 0, quiet())

	sum, err := NewRunner(f.deps, Options{Limit: 5}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Published)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, f.writer.calls)
	assert.False(t, f.seen.saved.Contains(batch[1].ComputeFingerprint()))
}

func TestRun_ImageBudgetExhausted(t *testing.T) {
	f := newFixture(batch...)
	f.deps.Budget = ratelimit.NewBudget(0, 1, quiet())

	sum, err := NewRunner(f.deps, Options{Limit: 5}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Published)
	assert.Equal(t, 1, f.ill.calls)
	assert.Zero(t, f.pub.posts[1].FeaturedMedia)
}

func TestRun_PlaceholderWriterIgnoresBudget(t *testing.T) {
	f := newFixture(batch...)
	f.deps.Writer = writer.Placeholder{}
	f.deps.Budget = ratelimit.NewBudget(1, 0, quiet())

	sum, err := NewRunner(f.deps, Options{Limit: 5}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Published)
}

func TestRun_NoCategoryWhenUnmapped(t *testing.T) {
	f := newFixture(batch[:1]...)
	f.deps.Categories = mapCategories{}

	_, err := NewRunner(f.deps, Options{Limit: 5}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, f.pub.posts, 1)
	assert.Nil(t, f.pub.posts[0].Categories)
}

func TestRun_SaveFailure(t *testing.T) {
	f := newFixture(batch...)
	f.seen.saveErr = errors.New("disk full")

	sum, err := NewRunner(f.deps, Options{Limit: 5}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	require.NotNil(t, sum)
	assert.Equal(t, 2, sum.Published)
	assert.False(t, f.m.Healthy())
}

func TestRun_InProcessLock(t *testing.T) {
	f := newFixture(batch...)
	r := NewRunner(f.deps, Options{Limit: 5})

	r.mu.Lock()
	_, err := r.Run(context.Background())
	r.mu.Unlock()
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Empty(t, f.pub.posts)
	assert.EqualValues(t, 1, f.m.GetStats()["runs_skipped"])
}

func TestRun_FileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "run.lock")
	f := newFixture(batch...)
	r := NewRunner(f.deps, Options{Limit: 5, LockPath: path})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Published)

	other := flock.New(path)
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer other.Unlock()

	_, err = newRunnerWithLock(path).Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func newRunnerWithLock(path string) *Runner {
	f := newFixture(batch...)
	return NewRunner(f.deps, Options{Limit: 5, LockPath: path})
}

func TestTrigger(t *testing.T) {
	f := newFixture(batch[:1]...)
	out, err := NewRunner(f.deps, Options{Limit: 5}).Trigger(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "Publicadas: 1")
	assert.Contains(t, out, "[belleza] ES: Nuevo labial rojo (post 101)")
}

func TestRun_DryRunLeavesStoresUntouched(t *testing.T) {
	f := newFixture(batch...)
	sum, err := NewRunner(f.deps, Options{Limit: 5, DryRun: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Published)
	assert.True(t, sum.DryRun)
	assert.Len(t, f.pub.posts, 2)
	assert.Zero(t, f.seen.saveCalls)
	assert.Nil(t, f.seen.saved)
	assert.Empty(t, f.stats.counts)
	assert.Contains(t, sum.String(), "Modo prueba")
}

func TestRun_SavesAfterCancel(t *testing.T) {
	f := newFixture(batch...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.pub.onPost = cancel

	sum, err := NewRunner(f.deps, Options{Limit: 5}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Published)
	assert.Equal(t, 1, f.seen.saveCalls)
	assert.True(t, f.seen.saveCtxOK)
	assert.True(t, f.seen.saved.Contains(batch[0].ComputeFingerprint()))
	assert.False(t, f.seen.saved.Contains(batch[1].ComputeFingerprint()))
}

func TestTrigger_SaveFailureKeepsSummary(t *testing.T) {
	f := newFixture(batch[:1]...)
	f.seen.saveErr = errors.New("disk full")

	out, err := NewRunner(f.deps, Options{Limit: 5}).Trigger(context.Background())
	assert.ErrorContains(t, err, "disk full")
	assert.Contains(t, out, "Publicadas: 1")
	assert.Contains(t, out, "(post 101)")
}

func TestRunSummary_String(t *testing.T) {
	s := &RunSummary{Fresh: 3, Published: 1, Failed: 1, Skipped: 1}
	assert.Equal(t, "Noticias nuevas: 3\nPublicadas: 1\nCon error: 1\nPospuestas: 1", s.String())
}
