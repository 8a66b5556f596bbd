package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/elitevogue/newsbot/internal/cache"
	"github.com/elitevogue/newsbot/internal/news"
)

// ArticleContent is full article content
type ArticleContent struct {
	Title   string
	Content string
	URL     string
}

// Scraper fetches article pages and extracts their body text. Results are
// cached per URL.
type Scraper struct {
	Client   *http.Client
	Cache    *cache.Cache[*ArticleContent]
	CacheTTL time.Duration
	// MaxChars caps the extracted text, cut at a paragraph boundary.
	MaxChars int
	Logger   *slog.Logger
}

func New(timeout time.Duration, logger *slog.Logger) *Scraper {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Scraper{
		Client:   &http.Client{Timeout: timeout},
		Cache:    cache.New[*ArticleContent](),
		CacheTTL: 6 * time.Hour,
		MaxChars: 6000,
		Logger:   logger,
	}
}

// ExtractFullArticle gets full text of article by URL
func (s *Scraper) ExtractFullArticle(ctx context.Context, url string) (*ArticleContent, error) {
	if s.Cache != nil {
		if a, ok := s.Cache.Get(url); ok {
			return a, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; newsbot/1.0)")

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	content := limitParagraphs(cleanContent(extractContent(doc)), s.MaxChars)
	if content == "" {
		return nil, fmt.Errorf("can't get content from %s", url)
	}

	a := &ArticleContent{Title: extractTitle(doc), Content: content, URL: url}
	if s.Cache != nil {
		s.Cache.Set(url, a, s.CacheTTL)
	}
	return a, nil
}

// Enrich replaces the item's content with the scraped page text when that
// text is longer. Failures leave the item unchanged.
func (s *Scraper) Enrich(ctx context.Context, it news.Item) news.Item {
	if it.URL == "" {
		return it
	}
	a, err := s.ExtractFullArticle(ctx, it.URL)
	if err != nil {
		s.logger().Warn("can't get full article", "url", it.URL, "err", err)
		return it
	}
	if len(a.Content) > len(it.Content) {
		s.logger().Debug("content enriched", "url", it.URL, "chars", len(a.Content))
		it.Content = a.Content
	}
	return it
}

var contentSelectors = []string{
	"article p",
	".article-body p",
	".article p",
	".post-content p",
	".entry-content p",
	".content p",
	"main p",
	"#content p",
	"p",
}

// extractContent tries the selectors in order and stops at the first one
// that yields at least three paragraphs.
func extractContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, aside, form").Remove()

	var best []string
	for _, selector := range contentSelectors {
		var paragraphs []string
		doc.Find(selector).Each(func(i int, sel *goquery.Selection) {
			text := strings.Join(strings.Fields(sel.Text()), " ")
			if len(text) > 20 {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > len(best) {
			best = paragraphs
		}
		if len(paragraphs) >= 3 {
			break
		}
	}
	return strings.Join(best, "\n\n")
}

// extractTitle gets article title
func extractTitle(doc *goquery.Document) string {
	selectors := []string{"h1", ".article-title", ".headline", ".entry-title", "title"}
	for _, selector := range selectors {
		title := strings.TrimSpace(doc.Find(selector).First().Text())
		if title != "" {
			return title
		}
	}
	return ""
}

var junkIndicators = []string{
	"cookie", "newsletter", "subscribe", "suscríbete", "sign up", "advertisement",
	"publicidad", "all rights reserved", "todos los derechos", "follow us", "síguenos",
}

// cleanContent drops boilerplate paragraphs and duplicates.
func cleanContent(content string) string {
	seen := make(map[string]bool)
	var kept []string
	for _, p := range strings.Split(content, "\n\n") {
		p = strings.TrimSpace(p)
		if len(p) < 30 || seen[p] {
			continue
		}
		lower := strings.ToLower(p)
		junk := false
		for _, ind := range junkIndicators {
			if strings.Contains(lower, ind) {
				junk = true
				break
			}
		}
		if junk {
			continue
		}
		seen[p] = true
		kept = append(kept, p)
	}
	return strings.Join(kept, "\n\n")
}

// limitParagraphs keeps whole paragraphs while the total stays under max.
func limitParagraphs(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	var out []string
	total := 0
	for _, p := range strings.Split(text, "\n\n") {
		if total+len(p) > max {
			break
		}
		out = append(out, p)
		total += len(p) + 2
	}
	if len(out) == 0 {
		return text[:max]
	}
	return strings.Join(out, "\n\n")
}

func (s *Scraper) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *Scraper) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
