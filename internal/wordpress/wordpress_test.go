package wordpress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elitevogue/newsbot/internal/retry"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var fastRetry = retry.RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(url+"/", "editor", "app pass", time.Second, fastRetry, quiet())
	require.NoError(t, err)
	return c
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img_abc.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))
	return path
}

func TestNewClient_NotConfigured(t *testing.T) {
	_, err := NewClient("", "u", "p", 0, fastRetry, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewClient("https://example.com", "", "p", 0, fastRetry, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = NewClient("https://example.com", "u", "", 0, fastRetry, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestUploadMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wp/v2/media", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "editor", user)
		assert.Equal(t, "app pass", pass)
		assert.Equal(t, `attachment; filename="img_abc.png"`, r.Header.Get("Content-Disposition"))

		f, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer f.Close()
			data, _ := io.ReadAll(f)
			assert.Equal(t, "png-bytes", string(data))
			assert.Equal(t, "img_abc.png", hdr.Filename)
			assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":77}`)
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv.URL).UploadMedia(context.Background(), writeImage(t))
	require.NoError(t, err)
	assert.Equal(t, 77, id)
}

func TestUploadMedia_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{"id":5}`)
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv.URL).UploadMedia(context.Background(), writeImage(t))
	require.NoError(t, err)
	assert.Equal(t, 5, id)
	assert.EqualValues(t, 3, calls.Load())
}

func TestUploadMedia_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"code":"rest_cannot_create","message":"Sorry, you are not allowed"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).UploadMedia(context.Background(), writeImage(t))
	assert.ErrorContains(t, err, "rest_cannot_create")
	assert.EqualValues(t, 1, calls.Load())
}

func TestUploadMedia_MissingFile(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.UploadMedia(context.Background(), filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}

func TestCreatePost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wp/v2/posts", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Título", body["title"])
		assert.Equal(t, "<p>cuerpo</p>", body["content"])
		assert.Equal(t, "publish", body["status"])
		assert.Equal(t, []any{float64(12)}, body["categories"])
		assert.Equal(t, float64(77), body["featured_media"])
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":1001}`)
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv.URL).CreatePost(context.Background(), Post{
		Title:         "Título",
		Content:       "<p>cuerpo</p>",
		Categories:    []int{12},
		FeaturedMedia: 77,
	})
	require.NoError(t, err)
	assert.Equal(t, 1001, id)
}

func TestCreatePost_OmitsEmptyOptionalFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "categories")
		assert.NotContains(t, body, "featured_media")
		assert.NotContains(t, body, "excerpt")
		io.WriteString(w, `{"id":1}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CreatePost(context.Background(), Post{Title: "t", Content: "c"})
	require.NoError(t, err)
}

func TestCreatePost_NotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CreatePost(context.Background(), Post{Title: "t"})
	assert.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestDryRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "articles")
	d := NewDryRun(dir, quiet())
	var p Publisher = d

	mediaID, err := p.UploadMedia(context.Background(), writeImage(t))
	require.NoError(t, err)
	assert.Equal(t, 1, mediaID)

	postID, err := p.CreatePost(context.Background(), Post{Title: "Desfile", Content: "<p>x</p>", FeaturedMedia: mediaID})
	require.NoError(t, err)
	assert.Equal(t, 2, postID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	var rec dryRunRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, 2, rec.ID)
	assert.Equal(t, "Desfile", rec.Post.Title)
	assert.Equal(t, "publish", rec.Post.Status)
}

func TestDryRun_SeparateProcessesDoNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	fixed := func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }

	for _, title := range []string{"Primera", "Segunda"} {
		d := NewDryRun(dir, quiet())
		d.now = fixed
		id, err := d.CreatePost(context.Background(), Post{Title: title})
		require.NoError(t, err)
		assert.Equal(t, 1, id)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var titles []string
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		var rec dryRunRecord
		require.NoError(t, json.Unmarshal(data, &rec))
		titles = append(titles, rec.Post.Title)
	}
	assert.ElementsMatch(t, []string{"Primera", "Segunda"}, titles)
}

func TestDryRun_MissingMedia(t *testing.T) {
	d := NewDryRun(t.TempDir(), quiet())
	_, err := d.UploadMedia(context.Background(), "/does/not/exist.png")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
