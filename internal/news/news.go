package news

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Origin tags where an item came from. Informational only.
type Origin string

const (
	OriginNewsAPI Origin = "newsapi"
	OriginRSS     Origin = "rss"
)

// Item is a candidate news item produced by a source.
type Item struct {
	Source      string `json:"source"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
	PublishedAt string `json:"published_at,omitempty"` // free-form, "" means absent
	ImageURL    string `json:"image_url,omitempty"`
	Author      string `json:"author,omitempty"`
	Origin      Origin `json:"origin"`
	Fingerprint string `json:"fingerprint"`
}

// Source is anything that can hand us candidate items.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Item, error)
}

// Fingerprint creates a stable hash for a news item from its source, link and title.
func Fingerprint(source, url, title string) string {
	sum := sha256.Sum256([]byte(source + "|" + url + "|" + title))
	return hex.EncodeToString(sum[:])
}

// ComputeFingerprint returns the fingerprint of the item's (source, url, title) triple.
func (it Item) ComputeFingerprint() string {
	return Fingerprint(it.Source, it.URL, it.Title)
}

// Set is a set of fingerprints.
type Set map[string]struct{}

// NewSet builds a set from the given hashes.
func NewSet(hashes ...string) Set {
	s := make(Set, len(hashes))
	for _, h := range hashes {
		s[h] = struct{}{}
	}
	return s
}

func (s Set) Contains(hash string) bool {
	_, ok := s[hash]
	return ok
}

func (s Set) Add(hash string) {
	s[hash] = struct{}{}
}

func (s Set) Len() int {
	return len(s)
}

// Sorted returns the hashes in ascending order so persisted files diff cleanly.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for h := range s {
		out[h] = struct{}{}
	}
	return out
}
