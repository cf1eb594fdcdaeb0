// Package nlp is a client for the Cloud Natural Language entity-sentiment
// endpoint.
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"reddit-nlp/dataset"
)

const defaultBaseURL = "https://language.googleapis.com"

// TransientError marks a failure the caller may retry: the service was
// unreachable, timed out, throttled the request or reported itself
// unavailable.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("language service unavailable (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("language service unreachable: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient always reports true.
func (e *TransientError) Transient() bool { return true }

// APIError is a non-retryable error response.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("language service error %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("language service error %d", e.StatusCode)
}

// Client calls analyzeEntitySentiment.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLanguage sets the document language hint, e.g. "en".
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// NewClient creates a client authenticated with an API key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AnalyzeEntitySentiment returns the entities found in text that carry
// sentiment, most salient first.
func (c *Client) AnalyzeEntitySentiment(ctx context.Context, text string) (dataset.EntityList, error) {
	reqBody := analyzeRequest{
		Document: document{
			Type:     "PLAIN_TEXT",
			Content:  text,
			Language: c.language,
		},
		EncodingType: "UTF8",
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/documents:analyzeEntitySentiment?key=%s", c.baseURL, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("send request: %w", err)
		}
		if isNetworkError(err) {
			return nil, &TransientError{Err: err}
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var result analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return toEntityList(&result), nil
}

func toEntityList(resp *analyzeResponse) dataset.EntityList {
	entities := make([]dataset.Entity, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		entities = append(entities, dataset.Entity{
			Type:               e.Type,
			Name:               e.Name,
			Salience:           e.Salience,
			SentimentScore:     e.Sentiment.Score,
			SentimentMagnitude: e.Sentiment.Magnitude,
		})
	}
	return dataset.NewEntityList(entities)
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var apiErr errorResponse
	message := ""
	status := ""
	if json.Unmarshal(body, &apiErr) == nil {
		message = apiErr.Error.Message
		status = apiErr.Error.Status
	}

	switch resp.StatusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return &TransientError{
			StatusCode: resp.StatusCode,
			Err:        &APIError{StatusCode: resp.StatusCode, Status: status, Message: message},
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Status: status, Message: message}
}

// isNetworkError looks past the *url.Error wrapper, which satisfies
// net.Error for every failure including malformed requests.
func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// Natural Language API types

type analyzeRequest struct {
	Document     document `json:"document"`
	EncodingType string   `json:"encodingType"`
}

type document struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

type analyzeResponse struct {
	Entities []apiEntity `json:"entities"`
	Language string      `json:"language"`
}

type apiEntity struct {
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	Salience  float64      `json:"salience"`
	Sentiment apiSentiment `json:"sentiment"`
}

type apiSentiment struct {
	Magnitude float64 `json:"magnitude"`
	Score     float64 `json:"score"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
