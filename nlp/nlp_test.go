package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeEntitySentiment(t *testing.T) {
	apiResp := map[string]interface{}{
		"entities": []map[string]interface{}{
			{"name": "Go", "type": "OTHER", "salience": 0.2, "sentiment": map[string]interface{}{"magnitude": 0.9, "score": 0.8}},
			{"name": "Gopher", "type": "PERSON", "salience": 0.7, "sentiment": map[string]interface{}{"magnitude": 0.5, "score": -0.3}},
			{"name": "Noise", "type": "OTHER", "salience": 0.9, "sentiment": map[string]interface{}{"magnitude": 0.0, "score": 0.0}},
		},
		"language": "en",
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/documents:analyzeEntitySentiment", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "PLAIN_TEXT", req.Document.Type)
		assert.Equal(t, "Gophers love Go", req.Document.Content)
		assert.Equal(t, "UTF8", req.EncodingType)

		json.NewEncoder(w).Encode(apiResp)
	}))
	defer server.Close()

	c := NewClient("test-key", WithBaseURL(server.URL), WithTimeout(5*time.Second))
	entities, err := c.AnalyzeEntitySentiment(context.Background(), "Gophers love Go")
	require.NoError(t, err)

	require.Len(t, entities, 2)
	assert.Equal(t, "Gopher", entities[0].Name)
	assert.Equal(t, "PERSON", entities[0].Type)
	assert.Equal(t, 0.7, entities[0].Salience)
	assert.Equal(t, -0.3, entities[0].SentimentScore)
	assert.Equal(t, 0.5, entities[0].SentimentMagnitude)
	assert.Equal(t, "Go", entities[1].Name)
}

func TestAnalyzeEntitySentimentLanguageHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "en", req.Document.Language)
		w.Write([]byte(`{"entities": []}`))
	}))
	defer server.Close()

	c := NewClient("k", WithBaseURL(server.URL), WithLanguage("en"))
	entities, err := c.AnalyzeEntitySentiment(context.Background(), "text")
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestAnalyzeEntitySentimentTransientStatuses(t *testing.T) {
	for _, status := range []int{
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				w.Write([]byte(`{"error": {"code": 503, "message": "try later", "status": "UNAVAILABLE"}}`))
			}))
			defer server.Close()

			c := NewClient("k", WithBaseURL(server.URL))
			_, err := c.AnalyzeEntitySentiment(context.Background(), "text")
			require.Error(t, err)

			var transient *TransientError
			require.True(t, errors.As(err, &transient))
			assert.True(t, transient.Transient())
			assert.Equal(t, status, transient.StatusCode)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, "try later", apiErr.Message)
		})
	}
}

func TestAnalyzeEntitySentimentFatalStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": 400, "message": "The document is empty.", "status": "INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	c := NewClient("k", WithBaseURL(server.URL))
	_, err := c.AnalyzeEntitySentiment(context.Background(), "text")
	require.Error(t, err)

	var transient *TransientError
	assert.False(t, errors.As(err, &transient))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_ARGUMENT", apiErr.Status)
	assert.Equal(t, "The document is empty.", apiErr.Message)
}

func TestAnalyzeEntitySentimentUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	c := NewClient("k", WithBaseURL(baseURL))
	_, err := c.AnalyzeEntitySentiment(context.Background(), "text")
	require.Error(t, err)

	var transient *TransientError
	assert.True(t, errors.As(err, &transient))
}

func TestAnalyzeEntitySentimentTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := NewClient("k", WithBaseURL(server.URL), WithTimeout(20*time.Millisecond))
	_, err := c.AnalyzeEntitySentiment(context.Background(), "text")

	var transient *TransientError
	assert.True(t, errors.As(err, &transient))
}

func TestAnalyzeEntitySentimentCancelledIsNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewClient("k", WithBaseURL(server.URL))
	_, err := c.AnalyzeEntitySentiment(ctx, "text")
	require.Error(t, err)

	var transient *TransientError
	assert.False(t, errors.As(err, &transient))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnalyzeEntitySentimentInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := NewClient("k", WithBaseURL(server.URL))
	_, err := c.AnalyzeEntitySentiment(context.Background(), "text")
	require.Error(t, err)

	var transient *TransientError
	assert.False(t, errors.As(err, &transient))
}
