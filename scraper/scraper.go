// Package scraper fetches the page a link post points at and extracts its
// readable text.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

const (
	defaultMaxContentLen = 4000
	defaultUserAgent     = "Mozilla/5.0 (compatible; reddit-nlp/1.0)"
)

// ErrNotHTML is returned when the linked resource is not a web page.
var ErrNotHTML = errors.New("not an HTML page")

// Hosts that serve media or point back at Reddit itself.
var skippedHosts = map[string]bool{
	"i.redd.it":       true,
	"v.redd.it":       true,
	"preview.redd.it": true,
	"i.imgur.com":     true,
	"reddit.com":      true,
	"www.reddit.com":  true,
	"old.reddit.com":  true,
	"youtube.com":     true,
	"www.youtube.com": true,
	"youtu.be":        true,
}

var mediaExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".gifv": true,
	".webp": true, ".mp4": true, ".webm": true, ".pdf": true,
}

// Scraper extracts readable content from web pages.
type Scraper struct {
	httpClient    *http.Client
	maxContentLen int
	userAgent     string
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) {
		s.httpClient.Timeout = d
	}
}

// WithMaxContentLength sets the maximum content length, in characters, to
// return.
func WithMaxContentLength(n int) Option {
	return func(s *Scraper) {
		s.maxContentLen = n
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(s *Scraper) {
		s.userAgent = ua
	}
}

// NewScraper creates a new content scraper.
func NewScraper(opts ...Option) *Scraper {
	s := &Scraper{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		maxContentLen: defaultMaxContentLen,
		userAgent:     defaultUserAgent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShouldScrape reports whether rawURL looks like an article worth fetching:
// an http(s) URL that is not Reddit itself, an image or a video.
func ShouldScrape(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if skippedHosts[strings.ToLower(u.Hostname())] {
		return false
	}
	return !mediaExtensions[strings.ToLower(path.Ext(u.Path))]
}

// Scrape extracts readable text content from a URL.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err == nil && mediaType != "text/html" && mediaType != "application/xhtml+xml" {
			return "", fmt.Errorf("%w: %s", ErrNotHTML, mediaType)
		}
	}

	// Relative links resolve against where redirects ended up.
	article, err := readability.FromReader(resp.Body, resp.Request.URL)
	if err != nil {
		return "", fmt.Errorf("parse content: %w", err)
	}

	return truncate(strings.TrimSpace(article.TextContent), s.maxContentLen), nil
}

// truncate cuts s to at most n characters without splitting a UTF-8
// sequence.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
