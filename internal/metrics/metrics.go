package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	ItemsFetched       int64
	ItemsFresh         int64
	ArticlesPublished  int64
	ArticlesFailed     int64
	RewritesFailed     int64
	ImagesGenerated    int64
	ImagesFailed       int64
	RunsCompleted      int64
	RunsSkipped        int64
	ControlCommandsRun int64

	// Timings
	LastRunDuration    time.Duration
	AverageRunDuration time.Duration
	TotalRunDuration   time.Duration

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) add(field *int64, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field += n
}

func (m *Metrics) AddFetched(n int)            { m.add(&m.ItemsFetched, int64(n)) }
func (m *Metrics) AddFresh(n int)              { m.add(&m.ItemsFresh, int64(n)) }
func (m *Metrics) IncrementPublished()         { m.add(&m.ArticlesPublished, 1) }
func (m *Metrics) IncrementFailed()            { m.add(&m.ArticlesFailed, 1) }
func (m *Metrics) IncrementRewriteFailed()     { m.add(&m.RewritesFailed, 1) }
func (m *Metrics) IncrementImagesGenerated()   { m.add(&m.ImagesGenerated, 1) }
func (m *Metrics) IncrementImagesFailed()      { m.add(&m.ImagesFailed, 1) }
func (m *Metrics) IncrementRunsSkipped()       { m.add(&m.RunsSkipped, 1) }
func (m *Metrics) IncrementControlCommandRun() { m.add(&m.ControlCommandsRun, 1) }

// RecordRun stores the duration of a finished run and marks the process healthy.
func (m *Metrics) RecordRun(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RunsCompleted++
	m.LastRunDuration = duration
	m.TotalRunDuration += duration
	m.AverageRunDuration = m.TotalRunDuration / time.Duration(m.RunsCompleted)
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"items_fetched":        m.ItemsFetched,
		"items_fresh":          m.ItemsFresh,
		"articles_published":   m.ArticlesPublished,
		"articles_failed":      m.ArticlesFailed,
		"rewrites_failed":      m.RewritesFailed,
		"images_generated":     m.ImagesGenerated,
		"images_failed":        m.ImagesFailed,
		"runs_completed":       m.RunsCompleted,
		"runs_skipped":         m.RunsSkipped,
		"control_commands_run": m.ControlCommandsRun,
		"last_run_duration_ms": m.LastRunDuration.Milliseconds(),
		"average_run_ms":       m.AverageRunDuration.Milliseconds(),
		"last_run_time":        formatTime(m.LastRunTime),
		"last_error_time":      formatTime(m.LastErrorTime),
		"last_error":           m.LastError,
		"is_healthy":           m.IsHealthy,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
