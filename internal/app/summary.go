package app

import (
	"fmt"
	"strings"
	"time"
)

type PublishedPost struct {
	PostID      int    `json:"post_id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Source      string `json:"source"`
	Fingerprint string `json:"fingerprint"`
	MediaID     int    `json:"media_id,omitempty"`
}

// RunSummary reports the outcome of one batch.
type RunSummary struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Fresh     int             `json:"fresh"`
	Published int             `json:"published"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
	DryRun    bool            `json:"dry_run,omitempty"`
	Posts     []PublishedPost `json:"posts,omitempty"`
}

// String renders the summary for chat replies.
func (s *RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Noticias nuevas: %d\n", s.Fresh)
	fmt.Fprintf(&b, "Publicadas: %d\n", s.Published)
	if s.Failed > 0 {
		fmt.Fprintf(&b, "Con error: %d\n", s.Failed)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "Pospuestas: %d\n", s.Skipped)
	}
	if s.DryRun {
		b.WriteString("Modo prueba: nada se marcó como publicado\n")
	}
	for _, p := range s.Posts {
		fmt.Fprintf(&b, "- [%s] %s (post %d)\n", p.Category, p.Title, p.PostID)
	}
	return strings.TrimRight(b.String(), "\n")
}
