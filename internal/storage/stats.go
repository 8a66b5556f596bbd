package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// FileStats keeps publication counters in a flat JSON object.
type FileStats struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

func NewFileStats(path string, logger *slog.Logger) *FileStats {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStats{path: path, logger: logger}
}

// Increment bumps the counters for source and category and rewrites the file.
func (s *FileStats) Increment(ctx context.Context, source, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := s.read()
	counts[SourceKey(source)]++
	counts[CategoryKey(category)]++

	if err := WriteJSONAtomic(s.path, counts); err != nil {
		return fmt.Errorf("save stats %s: %w", s.path, err)
	}
	return nil
}

// LoadStats returns all counters. Unreadable files count as empty.
func (s *FileStats) LoadStats(ctx context.Context) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStats) read() map[string]int {
	counts := make(map[string]int)
	data, err := os.ReadFile(s.path)
	if err != nil || len(data) == 0 {
		return counts
	}
	if err := json.Unmarshal(data, &counts); err != nil {
		s.logger.Warn("stats file corrupt, starting empty", "path", s.path, "err", err)
		return make(map[string]int)
	}
	if counts == nil {
		// a literal null decodes without error
		counts = make(map[string]int)
	}
	return counts
}
