package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/jodi-app/jodi-server/internal/config"
	"github.com/jodi-app/jodi-server/internal/logger"
)

// Response bodies larger than this are truncated reads; completions never
// legitimately approach it.
const maxResponseSize = 10 * 1024 * 1024

// Endpoint binds a provider to a model and credentials.
type Endpoint struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// Client walks its endpoint chain in order: the primary provider with
// retries, then the fallback. A fatal error on one endpoint still lets the
// next one try, since keys and quotas differ per vendor.
type Client struct {
	chain       []Endpoint
	httpClient  *http.Client
	retryConfig RetryConfig
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRetryConfig(rc RetryConfig) Option {
	return func(c *Client) { c.retryConfig = rc }
}

// NewClient builds the endpoint chain from config. The fallback provider
// reuses the configured model unless it is vendor-specific, in which case
// the vendor default is used.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	chain := []Endpoint{endpointFor(cfg, cfg.LLM.Provider, cfg.LLM.Model)}
	if cfg.LLM.Fallback != "" && cfg.LLM.Fallback != cfg.LLM.Provider {
		chain = append(chain, endpointFor(cfg, cfg.LLM.Fallback, ""))
	}

	rc := DefaultRetryConfig()
	if cfg.LLM.MaxAttempts > 0 {
		rc.MaxAttempts = cfg.LLM.MaxAttempts
	}

	c := &Client{
		chain:       chain,
		retryConfig: rc,
		httpClient:  &http.Client{Timeout: cfg.LLM.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientWithChain is used by tests to point at a stub server.
func NewClientWithChain(chain []Endpoint, opts ...Option) *Client {
	c := &Client{
		chain:       chain,
		retryConfig: DefaultRetryConfig(),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func endpointFor(cfg *config.Config, provider, model string) Endpoint {
	ep := Endpoint{Provider: provider, Model: model, BaseURL: cfg.LLM.BaseURL}
	switch provider {
	case "anthropic":
		ep.APIKey = cfg.LLM.AnthropicKey
		if ep.Model == "" {
			ep.Model = "claude-3-5-haiku-latest"
		}
	default:
		ep.APIKey = cfg.LLM.OpenAIKey
		if ep.Model == "" {
			ep.Model = "gpt-4o-mini"
		}
	}
	return ep
}

// Request is a completion request.
type Request struct {
	Messages    []Message
	Temperature *float64
	MaxTokens   int
}

// Complete runs the request against the endpoint chain.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	var lastErr error
	for _, ep := range c.chain {
		resp, err := c.tryEndpoint(ctx, ep, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("llm endpoint failed, trying next",
			"provider", ep.Provider, "model", ep.Model, "error", err)
	}
	return nil, fmt.Errorf("all llm endpoints failed: %w", lastErr)
}

func (c *Client) tryEndpoint(ctx context.Context, ep Endpoint, req Request) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, ep, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if IsFatal(err) {
			return nil, err
		}
		if attempt < c.retryConfig.MaxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}
	}
	return nil, lastErr
}

// backoff grows exponentially with +/-25% jitter so concurrent agents do not
// retry in lockstep.
func (c *Client) backoff(attempt int) time.Duration {
	mult := 1.0
	for i := 1; i < attempt; i++ {
		mult *= c.retryConfig.BackoffMultiplier
	}
	d := time.Duration(float64(c.retryConfig.BackoffBase) * mult)
	if d > c.retryConfig.MaxBackoff {
		d = c.retryConfig.MaxBackoff
	}
	jitter := float64(d) * 0.25 * (rand.Float64()*2 - 1)
	return d + time.Duration(jitter)
}

func (c *Client) doRequest(ctx context.Context, ep Endpoint, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	body, err := provider.BuildRequestBody(ep.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.BuildURL(ep.BaseURL), bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq, ep.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("http request: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response: %w", err))
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	resp, err := provider.ParseResponse(respBody)
	if err != nil {
		return nil, NewFatalError(err)
	}
	resp.Provider = ep.Provider
	if resp.Model == "" {
		resp.Model = ep.Model
	}
	return resp, nil
}

func classifyHTTPError(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	err := fmt.Errorf("llm api error (status %d): %s", status, snippet)

	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return NewTransientError(err)
	default:
		return NewFatalError(err)
	}
}
