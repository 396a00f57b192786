package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider speaks a trivial JSON format against httptest servers.
type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string                   { return s.name }
func (s *stubProvider) BuildURL(baseURL string) string { return baseURL + "/complete" }
func (s *stubProvider) SetHeaders(req *http.Request, apiKey string) {
	req.Header.Set("X-Api-Key", apiKey)
}

func (s *stubProvider) BuildRequestBody(model string, messages []Message, _ *float64, _ int) ([]byte, error) {
	return json.Marshal(map[string]any{"model": model, "messages": messages})
}

func (s *stubProvider) ParseResponse(body []byte) (*Response, error) {
	var out struct {
		Text   string `json:"text"`
		Tokens int    `json:"tokens"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return &Response{Content: out.Text, TokensUsed: out.Tokens}, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1.0,
		MaxBackoff:        time.Millisecond,
	}
}

func TestCompleteSuccess(t *testing.T) {
	RegisterProvider(&stubProvider{name: "stub-ok"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/complete", r.URL.Path)
		assert.Equal(t, "k1", r.Header.Get("X-Api-Key"))
		fmt.Fprint(w, `{"text":"done","tokens":9}`)
	}))
	defer srv.Close()

	c := NewClientWithChain(
		[]Endpoint{{Provider: "stub-ok", Model: "m1", BaseURL: srv.URL, APIKey: "k1"}},
		WithRetryConfig(fastRetry()),
	)
	resp, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, 9, resp.TokensUsed)
	assert.Equal(t, "stub-ok", resp.Provider)
	assert.Equal(t, "m1", resp.Model)
}

func TestCompleteRetriesTransient(t *testing.T) {
	RegisterProvider(&stubProvider{name: "stub-retry"})

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"text":"eventually","tokens":1}`)
	}))
	defer srv.Close()

	c := NewClientWithChain(
		[]Endpoint{{Provider: "stub-retry", BaseURL: srv.URL}},
		WithRetryConfig(fastRetry()),
	)
	resp, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "eventually", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteFatalSkipsRetries(t *testing.T) {
	RegisterProvider(&stubProvider{name: "stub-fatal"})

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClientWithChain(
		[]Endpoint{{Provider: "stub-fatal", BaseURL: srv.URL}},
		WithRetryConfig(fastRetry()),
	)
	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteFallsBackToSecondEndpoint(t *testing.T) {
	RegisterProvider(&stubProvider{name: "stub-fb"})

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"text":"fallback answer","tokens":2}`)
	}))
	defer good.Close()

	c := NewClientWithChain(
		[]Endpoint{
			{Provider: "stub-fb", BaseURL: bad.URL},
			{Provider: "stub-fb", BaseURL: good.URL},
		},
		WithRetryConfig(fastRetry()),
	)
	resp, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", resp.Content)
}

func TestCompleteRequiresMessages(t *testing.T) {
	c := NewClientWithChain([]Endpoint{{Provider: "stub-ok"}})
	_, err := c.Complete(context.Background(), Request{})
	assert.Error(t, err)
}
