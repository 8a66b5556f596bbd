// Package wordpress publishes articles through the WordPress REST API.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/elitevogue/newsbot/internal/retry"
)

var ErrNotConfigured = errors.New("wordpress: base url, user or application password missing")

// Post is the payload of a new post.
type Post struct {
	Title         string `json:"title"`
	Content       string `json:"content"`
	Excerpt       string `json:"excerpt,omitempty"`
	Categories    []int  `json:"categories,omitempty"`
	FeaturedMedia int    `json:"featured_media,omitempty"`
	Status        string `json:"status"`
}

// Publisher uploads media and creates posts. Ids are the ones WordPress assigns.
type Publisher interface {
	UploadMedia(ctx context.Context, path string) (int, error)
	CreatePost(ctx context.Context, p Post) (int, error)
}

// Client talks to a WordPress site authenticated with an application password.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
	retry    retry.RetryConfig
	logger   *slog.Logger
}

// NewClient returns ErrNotConfigured when any credential is empty.
func NewClient(baseURL, user, password string, timeout time.Duration, rc retry.RetryConfig, logger *slog.Logger) (*Client, error) {
	if baseURL == "" || user == "" || password == "" {
		return nil, ErrNotConfigured
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     user,
		password: password,
		http:     &http.Client{Timeout: timeout},
		retry:    rc,
		logger:   logger,
	}, nil
}

type idResponse struct {
	ID int `json:"id"`
}

// UploadMedia sends the image at path to the media library. Server errors are
// retried; 4xx answers are not.
func (c *Client) UploadMedia(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read media: %w", err)
	}
	name := filepath.Base(path)
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "image/png"
	}

	c.logger.Info("uploading media", "file", name)

	var id int
	err = retry.WithRetry(ctx, c.retry, func() error {
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, name))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return retry.Permanent(err)
		}
		if _, err := part.Write(data); err != nil {
			return retry.Permanent(err)
		}
		if err := mw.Close(); err != nil {
			return retry.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/wp-json/wp/v2/media", body)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))

		var out idResponse
		if err := c.do(req, &out); err != nil {
			c.logger.Warn("media upload attempt failed", "file", name, "err", err)
			return err
		}
		id = out.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upload media: %w", err)
	}
	c.logger.Info("media uploaded", "media_id", id)
	return id, nil
}

// CreatePost publishes p. It is not retried: a timeout after the server
// accepted the post would otherwise publish it twice.
func (c *Client) CreatePost(ctx context.Context, p Post) (int, error) {
	if p.Status == "" {
		p.Status = "publish"
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/wp-json/wp/v2/posts", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("creating post", "title", p.Title)
	var out idResponse
	if err := c.do(req, &out); err != nil {
		return 0, fmt.Errorf("create post: %w", err)
	}
	c.logger.Info("post created", "post_id", out.ID)
	return out.ID, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("wordpress status %d: %s", resp.StatusCode, errorMessage(raw))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(statusErr)
		}
		return statusErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return retry.Permanent(fmt.Errorf("decode wordpress response: %w", err))
	}
	return nil
}

func errorMessage(raw []byte) string {
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		return e.Code + ": " + e.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
