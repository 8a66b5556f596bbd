package rss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/elitevogue/newsbot/internal/news"
)

// FeedsConfig is YAML config structure
// feeds:
//   - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads RSS feeds list from YAML file
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	var out []string
	for _, u := range cfg.Feeds {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

// DefaultSourceName is used when a feed has no title.
const DefaultSourceName = "RSS"

// Source reads one RSS or Atom feed.
type Source struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewSources builds one source per feed URL, skipping blanks.
func NewSources(urls []string, client *http.Client, timeout time.Duration, logger *slog.Logger) []news.Source {
	var out []news.Source
	for _, u := range urls {
		if u = strings.TrimSpace(u); u == "" {
			continue
		}
		out = append(out, &Source{URL: u, Client: client, Timeout: timeout, Logger: logger})
	}
	return out
}

func (s *Source) Name() string { return "rss:" + s.URL }

// Fetch downloads and parses the feed and maps every entry to an item.
func (s *Source) Fetch(ctx context.Context) ([]news.Item, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	parser := gofeed.NewParser()
	if s.Client != nil {
		parser.Client = s.Client
	}
	feed, err := parser.ParseURLWithContext(s.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", s.URL, err)
	}

	sourceName := strings.TrimSpace(feed.Title)
	if sourceName == "" {
		sourceName = DefaultSourceName
	}

	items := make([]news.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		items = append(items, toItem(sourceName, entry))
	}
	s.logger().Info("feed parsed", "url", s.URL, "source", sourceName, "items", len(items))
	return items, nil
}

func toItem(sourceName string, entry *gofeed.Item) news.Item {
	description := StripHTML(entry.Description)
	content := StripHTML(entry.Content)
	if content == "" {
		content = description
	}

	author := ""
	if entry.Author != nil {
		author = entry.Author.Name
	}

	return news.Item{
		Source:      sourceName,
		URL:         strings.TrimSpace(entry.Link),
		Title:       strings.TrimSpace(entry.Title),
		Description: description,
		Content:     content,
		PublishedAt: publishedAt(entry),
		ImageURL:    ImageURL(entry),
		Author:      author,
		Origin:      news.OriginRSS,
	}
}

// publishedAt normalizes parseable dates to RFC 3339 UTC so they sort next to
// NewsAPI timestamps. Unparseable dates are kept verbatim.
func publishedAt(entry *gofeed.Item) string {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC().Format(time.RFC3339)
	}
	if entry.Published != "" {
		return entry.Published
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC().Format(time.RFC3339)
	}
	return entry.Updated
}

// ImageURL picks media:content, then media:thumbnail, then an image
// enclosure, then the item image.
func ImageURL(entry *gofeed.Item) string {
	if media, ok := entry.Extensions["media"]; ok {
		for _, name := range []string{"content", "thumbnail"} {
			for _, ext := range media[name] {
				if u := ext.Attrs["url"]; u != "" {
					return u
				}
			}
		}
	}
	for _, enc := range entry.Enclosures {
		if enc != nil && strings.Contains(enc.Type, "image") && enc.URL != "" {
			return enc.URL
		}
	}
	if entry.Image != nil {
		return entry.Image.URL
	}
	return ""
}

// StripHTML returns the text content of an HTML fragment with collapsed whitespace.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func (s *Source) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
