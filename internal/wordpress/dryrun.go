package wordpress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DryRun writes posts as JSON files instead of publishing them.
type DryRun struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	nextID int
	now    func() time.Time
}

func NewDryRun(dir string, logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{dir: dir, logger: logger, nextID: 1, now: time.Now}
}

type dryRunRecord struct {
	ID         int       `json:"id"`
	Post       *Post     `json:"post,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (d *DryRun) UploadMedia(ctx context.Context, path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("read media: %w", err)
	}
	id := d.take()
	d.logger.Info("dry run: media not uploaded", "file", path, "media_id", id)
	return id, nil
}

func (d *DryRun) CreatePost(ctx context.Context, p Post) (int, error) {
	if p.Status == "" {
		p.Status = "publish"
	}
	id := d.take()
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create articles dir: %w", err)
	}
	now := d.now().UTC()
	rec := dryRunRecord{ID: id, Post: &p, RecordedAt: now}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return 0, err
	}
	path, err := d.write(fmt.Sprintf("post_%s_%d", now.Format("20060102T150405.000000000"), id), data)
	if err != nil {
		return 0, fmt.Errorf("write article: %w", err)
	}
	d.logger.Info("dry run: post written", "path", path, "post_id", id)
	return id, nil
}

// write creates stem.json without replacing an existing file. Ids restart in
// every process, so a taken name gets a numeric suffix.
func (d *DryRun) write(stem string, data []byte) (string, error) {
	for n := 1; ; n++ {
		name := stem + ".json"
		if n > 1 {
			name = fmt.Sprintf("%s-%d.json", stem, n)
		}
		path := filepath.Join(d.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", err
		}
		return path, f.Close()
	}
}

func (d *DryRun) take() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	return id
}
