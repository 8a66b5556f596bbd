package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/elitevogue/newsbot/internal/news"
)

type seenFile struct {
	Hashes []string `json:"hashes"`
}

// FileStore keeps processed fingerprints in a JSON file of the form
// {"hashes": ["...", ...]}.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a file-backed freshness store. logger may be nil.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Path() string { return s.path }

// LoadSeen reads the persisted set. A missing, unreadable or malformed file
// yields an empty set.
func (s *FileStore) LoadSeen(ctx context.Context) news.Set {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("freshness store missing, starting empty", "path", s.path)
		} else {
			s.logger.Warn("freshness store unreadable, starting empty", "path", s.path, "err", err)
		}
		return news.NewSet()
	}
	if len(data) == 0 {
		return news.NewSet()
	}

	var f seenFile
	if err := json.Unmarshal(data, &f); err != nil {
		s.logger.Warn("freshness store corrupt, starting empty", "path", s.path, "err", err)
		return news.NewSet()
	}
	return news.NewSet(f.Hashes...)
}

// SaveSeen persists the full set atomically.
func (s *FileStore) SaveSeen(ctx context.Context, seen news.Set) error {
	if err := WriteJSONAtomic(s.path, seenFile{Hashes: seen.Sorted()}); err != nil {
		return fmt.Errorf("save freshness store %s: %w", s.path, err)
	}
	s.logger.Debug("freshness store saved", "path", s.path, "hashes", seen.Len())
	return nil
}
