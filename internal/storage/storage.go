// Package storage persists the set of processed fingerprints and the
// publication counters.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/elitevogue/newsbot/internal/news"
)

// SeenStore is the freshness store. LoadSeen never fails; SaveSeen replaces
// the persisted set with the given one.
type SeenStore interface {
	LoadSeen(ctx context.Context) news.Set
	SaveSeen(ctx context.Context, seen news.Set) error
}

// StatsStore counts publications per source and per category.
type StatsStore interface {
	Increment(ctx context.Context, source, category string) error
	LoadStats(ctx context.Context) map[string]int
}

// SourceKey and CategoryKey build the counter keys, substituting placeholders
// for empty values.
func SourceKey(source string) string {
	if source == "" {
		source = "unknown"
	}
	return "source:" + source
}

func CategoryKey(category string) string {
	if category == "" {
		category = "general"
	}
	return "category:" + category
}

// WriteJSONAtomic writes v as indented JSON to a temp file next to path,
// syncs it and renames it over path. Readers see the old or the new file,
// never a partial one.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
