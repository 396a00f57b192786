// Package llm is a provider-agnostic client for the chat-completion APIs the
// agents call. Providers register themselves by name; the client walks a
// primary/fallback endpoint chain with retries.
package llm

import (
	"net/http"
	"sync"
)

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// Response is a normalized completion result.
type Response struct {
	Content      string
	Model        string
	Provider     string
	TokensUsed   int
	FinishReason string
}

// Provider adapts one vendor's wire format.
type Provider interface {
	Name() string

	// BuildURL resolves the completion endpoint, falling back to the
	// vendor's public URL when baseURL is empty.
	BuildURL(baseURL string) string

	// SetHeaders adds vendor auth headers. The key comes from config so
	// tests can inject their own.
	SetHeaders(req *http.Request, apiKey string)

	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	ParseResponse(body []byte) (*Response, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Provider)
)

// RegisterProvider adds a provider to the registry. Called from provider
// package init functions.
func RegisterProvider(p Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Name()] = p
}

// GetProvider returns a registered provider or nil.
func GetProvider(name string) Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}
