// Package ratelimit caps how many paid generations run per day.
package ratelimit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/elitevogue/newsbot/internal/storage"
)

// Kind names a generation budget.
type Kind string

const (
	Text  Kind = "text"
	Image Kind = "image"
)

// ErrBudgetExhausted is returned by Use when a budget has no room left.
var ErrBudgetExhausted = errors.New("generation budget exhausted")

// Budget counts text and image generations in a rolling 24h window.
// A max of 0 means unlimited.
type Budget struct {
	mu        sync.Mutex
	counts    map[Kind]int
	limits    map[Kind]int
	resetTime time.Time
	window    time.Duration
	now       func() time.Time
	logger    *slog.Logger
	// path persists usage between processes. Empty keeps it in memory.
	path string
}

type budgetState struct {
	ResetTime time.Time    `json:"reset_time"`
	Counts    map[Kind]int `json:"counts"`
}

// NewBudget creates a budget with daily limits for text and image generation.
func NewBudget(maxText, maxImage int, logger *slog.Logger) *Budget {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Budget{
		counts: make(map[Kind]int),
		limits: map[Kind]int{Text: maxText, Image: maxImage},
		window: 24 * time.Hour,
		now:    time.Now,
		logger: logger,
	}
	b.resetTime = b.now().Add(b.window)
	return b
}

// NewFileBudget is NewBudget with usage kept in path, so one-shot
// invocations started by an external scheduler share the same window.
// A missing or unreadable file starts a fresh window.
func NewFileBudget(path string, maxText, maxImage int, logger *slog.Logger) *Budget {
	b := NewBudget(maxText, maxImage, logger)
	b.path = path
	b.load()
	return b
}

func (b *Budget) load() {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			b.logger.Warn("budget file unreadable, starting fresh", "path", b.path, "err", err)
		}
		return
	}
	var st budgetState
	if err := json.Unmarshal(data, &st); err != nil || st.ResetTime.IsZero() {
		b.logger.Warn("budget file corrupt, starting fresh", "path", b.path, "err", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetTime = st.ResetTime
	if limit := b.now().Add(b.window); b.resetTime.After(limit) {
		b.resetTime = limit
	}
	for k, n := range st.Counts {
		b.counts[k] = n
	}
	b.checkReset()
}

// save must be called with mu held.
func (b *Budget) save() {
	if b.path == "" {
		return
	}
	st := budgetState{ResetTime: b.resetTime, Counts: b.counts}
	if err := storage.WriteJSONAtomic(b.path, st); err != nil {
		b.logger.Warn("budget not persisted", "path", b.path, "err", err)
	}
}

// Allow reports whether one more generation of kind fits.
func (b *Budget) Allow(kind Kind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkReset()

	limit := b.limits[kind]
	if limit > 0 && b.counts[kind] >= limit {
		b.logger.Warn("generation budget reached", "kind", kind, "used", b.counts[kind], "limit", limit)
		return false
	}
	return true
}

// Use records one generation of kind, or fails if the budget is spent.
func (b *Budget) Use(kind Kind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkReset()

	limit := b.limits[kind]
	if limit > 0 && b.counts[kind] >= limit {
		return fmt.Errorf("%s: %w", kind, ErrBudgetExhausted)
	}
	b.counts[kind]++
	b.save()
	b.logger.Debug("generation recorded", "kind", kind, "used", b.counts[kind], "limit", limit)
	return nil
}

// GetStats returns usage for the monitoring endpoint.
func (b *Budget) GetStats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkReset()

	return map[string]interface{}{
		"text_used":   b.counts[Text],
		"text_limit":  b.limits[Text],
		"image_used":  b.counts[Image],
		"image_limit": b.limits[Image],
		"reset_time":  b.resetTime.Format(time.RFC3339),
	}
}

func (b *Budget) checkReset() {
	if b.now().After(b.resetTime) {
		b.logger.Info("resetting generation budget", "text_used", b.counts[Text], "image_used", b.counts[Image])
		b.counts = make(map[Kind]int)
		b.resetTime = b.now().Add(b.window)
	}
}
