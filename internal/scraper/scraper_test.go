package scraper

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elitevogue/newsbot/internal/news"
)

const page = `<html><head><title>Page title</title></head><body>
<nav><p>Home Fashion Beauty Runway Shows Lifestyle</p></nav>
<article>
<h1>Chanel closes Paris Fashion Week</h1>
<p>The house presented a collection built around tweed and pearls.</p>
<p>Creative director Virginie Viard sent out sixty looks under the dome.</p>
<p>Subscribe to our newsletter for more runway coverage every week.</p>
<p>Guests included actors and musicians seated along the runway.</p>
</article>
<footer><p>All rights reserved by the publisher of this magazine.</p></footer>
</body></html>`

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestExtractFullArticle(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		io.WriteString(w, page)
	}))
	defer srv.Close()

	s := New(5*time.Second, quiet())
	a, err := s.ExtractFullArticle(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Chanel closes Paris Fashion Week", a.Title)
	assert.Contains(t, a.Content, "tweed and pearls")
	assert.Contains(t, a.Content, "sixty looks")
	assert.NotContains(t, a.Content, "newsletter")
	assert.NotContains(t, a.Content, "All rights reserved")
	assert.Equal(t, 3, strings.Count(a.Content, "\n\n")+1)

	_, err = s.ExtractFullArticle(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestExtractFullArticle_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(time.Second, quiet()).ExtractFullArticle(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestEnrich(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, page)
	}))
	defer srv.Close()

	s := New(time.Second, quiet())
	it := news.Item{URL: srv.URL, Content: "short"}
	got := s.Enrich(context.Background(), it)
	assert.Contains(t, got.Content, "tweed and pearls")

	long := news.Item{URL: srv.URL, Content: strings.Repeat("x", 5000)}
	assert.Equal(t, long.Content, s.Enrich(context.Background(), long).Content)

	broken := news.Item{URL: "http://127.0.0.1:0/none", Content: "keep"}
	assert.Equal(t, "keep", s.Enrich(context.Background(), broken).Content)
}

func TestLimitParagraphs(t *testing.T) {
	text := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40) + "\n\n" + strings.Repeat("c", 40)
	assert.Equal(t, strings.Repeat("a", 40)+"\n\n"+strings.Repeat("b", 40), limitParagraphs(text, 90))
	assert.Equal(t, text, limitParagraphs(text, 0))
	assert.Len(t, limitParagraphs(strings.Repeat("z", 100), 10), 10)
}
