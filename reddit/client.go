// Package reddit is a small client for the Reddit OAuth API covering what
// the collector needs: a subreddit's top submissions and their complete
// comment trees.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAuthURL = "https://www.reddit.com"
	defaultAPIURL  = "https://oauth.reddit.com"

	// maxListingLimit is the largest page the listing endpoints return.
	maxListingLimit = 100
	// maxMoreChildren is the most ids /api/morechildren accepts per call.
	maxMoreChildren = 100
)

// Credentials identify a Reddit "script" or "web" application.
type Credentials struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
}

// Client provides access to the Reddit API using an application-only token.
type Client struct {
	httpClient   *http.Client
	authURL      string
	apiURL       string
	creds        Credentials
	token        string
	tokenExpiry  time.Time
	commentLimit int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs sets custom token and API base URLs (for testing).
func WithBaseURLs(authURL, apiURL string) Option {
	return func(c *Client) {
		c.authURL = authURL
		c.apiURL = apiURL
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithCommentLimit sets how many comments the first comment-tree request asks for.
func WithCommentLimit(n int) Option {
	return func(c *Client) {
		c.commentLimit = n
	}
}

// NewClient creates a new Reddit API client.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		authURL:      defaultAuthURL,
		apiURL:       defaultAPIURL,
		creds:        creds,
		commentLimit: 500,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.creds.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, URL: req.URL.String()}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tok.Error != "" {
		return "", fmt.Errorf("token request rejected: %s", tok.Error)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}

	c.token = tok.AccessToken
	// Refresh a minute early.
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}

// get fetches path from the API and decodes the JSON body into out. A 401
// drops the cached token and retries once.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("raw_json", "1")
	endpoint := c.apiURL + path + "?" + query.Encode()

	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "bearer "+token)
		req.Header.Set("User-Agent", c.creds.UserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", path, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.token = ""
			continue
		}

		err = decodeResponse(resp, out)
		resp.Body.Close()
		return err
	}
	return &StatusError{StatusCode: http.StatusUnauthorized, URL: endpoint}
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, URL: resp.Request.URL.Path}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// TopThreads returns up to limit all-time top submissions of subreddit.
// Comment trees are not loaded until Thread.ExpandAllComments is called.
func (c *Client) TopThreads(ctx context.Context, subreddit string, limit int) ([]*Thread, error) {
	var threads []*Thread
	after := ""

	for len(threads) < limit {
		page := limit - len(threads)
		if page > maxListingLimit {
			page = maxListingLimit
		}

		query := url.Values{
			"t":     {"all"},
			"limit": {fmt.Sprint(page)},
		}
		if after != "" {
			query.Set("after", after)
		}

		var l listing
		if err := c.get(ctx, "/r/"+url.PathEscape(subreddit)+"/top", query, &l); err != nil {
			return nil, fmt.Errorf("fetch top threads: %w", err)
		}

		for _, child := range l.Data.Children {
			if child.Kind != kindPost {
				continue
			}
			var post Post
			if err := json.Unmarshal(child.Data, &post); err != nil {
				return nil, fmt.Errorf("decode post: %w", err)
			}
			threads = append(threads, &Thread{Post: post, client: c})
			if len(threads) == limit {
				break
			}
		}

		if l.Data.After == "" || len(l.Data.Children) == 0 {
			break
		}
		after = l.Data.After
	}

	return threads, nil
}
