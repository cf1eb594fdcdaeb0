package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func htmlServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestScrapeArticle(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Test Article</title></head>
<body>
<article>
<h1>Test Article Title</h1>
<p>This is the main content of the article. It contains important information that should be extracted.</p>
<p>Second paragraph with more details about the topic.</p>
</article>
</body>
</html>`))
	}))
	defer server.Close()

	s := NewScraper(WithTimeout(5*time.Second), WithUserAgent("reddit-nlp-test"))
	content, err := s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Contains(t, content, "main content")
	assert.Equal(t, "reddit-nlp-test", gotUA)
}

func TestScrapeContentLimit(t *testing.T) {
	server := htmlServer(t, `<!DOCTYPE html>
<html>
<head><title>Test</title></head>
<body><p>`+strings.Repeat("é", 5000)+`</p></body>
</html>`)

	content, err := NewScraper(WithMaxContentLength(1000)).Scrape(context.Background(), server.URL)
	require.NoError(t, err)

	assert.NotEmpty(t, content)
	assert.LessOrEqual(t, utf8.RuneCountInString(content), 1000)
	assert.True(t, utf8.ValidString(content))
}

func TestScrapeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewScraper().Scrape(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestScrapeRejectsNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer server.Close()

	_, err := NewScraper().Scrape(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotHTML))
}

func TestScrapeContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte("<html><body>content</body></html>"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScraper().Scrape(ctx, server.URL)
	assert.Error(t, err)
}

func TestScrapeInvalidURL(t *testing.T) {
	_, err := NewScraper().Scrape(context.Background(), "not-a-valid-url")
	assert.Error(t, err)
}

func TestScrapeEmptyBody(t *testing.T) {
	server := htmlServer(t, "")

	content, err := NewScraper().Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestScrapeMinimalHTML(t *testing.T) {
	server := htmlServer(t, "<html><body><p>Simple text</p></body></html>")

	content, err := NewScraper().Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, content, "Simple text")
}

func TestShouldScrape(t *testing.T) {
	tests := map[string]bool{
		"https://example.com/news/story.html":                  true,
		"http://blog.example.org/post?id=3":                    true,
		"https://www.reddit.com/r/news/comments/abc/some_post": false,
		"https://i.redd.it/abc.jpg":                            false,
		"https://v.redd.it/xyz":                                false,
		"https://example.com/photo.PNG":                        false,
		"https://example.com/paper.pdf":                        false,
		"https://youtu.be/dQw4w9WgXcQ":                         false,
		"ftp://example.com/file":                               false,
		"":                                                     false,
		"/r/news":                                              false,
	}
	for in, want := range tests {
		assert.Equal(t, want, ShouldScrape(in), "ShouldScrape(%q)", in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "日本", truncate("日本語", 2))
	assert.Equal(t, "abc", truncate("abc", 0))
}

func TestDefaultScraper(t *testing.T) {
	s := NewScraper()
	assert.Equal(t, 4000, s.maxContentLen)
	assert.Equal(t, defaultUserAgent, s.userAgent)
}
