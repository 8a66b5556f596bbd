// Package newsapi queries the NewsAPI /v2/everything endpoint.
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/elitevogue/newsbot/internal/news"
)

const DefaultBaseURL = "https://newsapi.org"

type Source struct {
	APIKey  string
	Query   string
	Enabled bool
	// PageSize is the number of articles requested; callers pass limit*5.
	PageSize int
	BaseURL  string
	Client   *http.Client
	Logger   *slog.Logger
}

type response struct {
	Status   string    `json:"status"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Articles []article `json:"articles"`
}

type article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

func (s *Source) Name() string { return "newsapi" }

// Fetch returns the matching articles. A disabled or keyless source returns
// nothing without error.
func (s *Source) Fetch(ctx context.Context) ([]news.Item, error) {
	log := s.logger()
	if !s.Enabled {
		log.Info("newsapi disabled by configuration")
		return nil, nil
	}
	if s.APIKey == "" {
		log.Warn("NEWSAPI_KEY not set, skipping newsapi")
		return nil, nil
	}

	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = news.DefaultLimit * 5
	}
	if pageSize > 100 {
		pageSize = 100
	}

	params := url.Values{}
	params.Set("q", s.Query)
	params.Set("sortBy", "publishedAt")
	params.Set("language", "en")
	params.Set("pageSize", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/v2/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", s.APIKey)

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	log.Info("requesting newsapi", "query", s.Query, "page_size", pageSize)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read newsapi response: %w", err)
	}

	var data response
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &data) == nil && data.Message != "" {
			return nil, fmt.Errorf("newsapi status %d: %s: %s", resp.StatusCode, data.Code, data.Message)
		}
		return nil, fmt.Errorf("newsapi status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode newsapi response: %w", err)
	}

	items := make([]news.Item, 0, len(data.Articles))
	for _, a := range data.Articles {
		items = append(items, news.Item{
			Source:      a.Source.Name,
			URL:         a.URL,
			Title:       a.Title,
			Description: a.Description,
			Content:     a.Content,
			PublishedAt: a.PublishedAt,
			ImageURL:    a.URLToImage,
			Author:      a.Author,
			Origin:      news.OriginNewsAPI,
		})
	}
	log.Info("newsapi returned articles", "count", len(items))
	return items, nil
}

func (s *Source) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
