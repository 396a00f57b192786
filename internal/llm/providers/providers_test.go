package providers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jodi-app/jodi-server/internal/llm"
)

func TestProvidersRegistered(t *testing.T) {
	assert.NotNil(t, llm.GetProvider("openai"))
	assert.NotNil(t, llm.GetProvider("anthropic"))
	assert.Nil(t, llm.GetProvider("unknown"))
}

func TestOpenAIBuildURL(t *testing.T) {
	p := &OpenAIProvider{}
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", p.BuildURL(""))
	assert.Equal(t, "http://gateway:8080/v1/chat/completions", p.BuildURL("http://gateway:8080/v1/"))
	assert.Equal(t, "http://gateway/v1/chat/completions", p.BuildURL("http://gateway/v1/chat/completions"))
}

func TestOpenAIHeadersAndBody(t *testing.T) {
	p := &OpenAIProvider{}

	req, _ := http.NewRequest(http.MethodPost, "http://x", nil)
	p.SetHeaders(req, "sk-test")
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))

	temp := 0.4
	body, err := p.BuildRequestBody("gpt-4o-mini", []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}, &temp, 200)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "gpt-4o-mini", decoded["model"])
	assert.Equal(t, 0.4, decoded["temperature"])
	assert.Equal(t, float64(200), decoded["max_tokens"])
	assert.Len(t, decoded["messages"], 2)
}

func TestOpenAIParseResponse(t *testing.T) {
	p := &OpenAIProvider{}
	raw := `{"model":"gpt-4o-mini","choices":[{"message":{"content":"hello"},"finish_reason":"stop"}],"usage":{"total_tokens":42}}`

	resp, err := p.ParseResponse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 42, resp.TokensUsed)
	assert.Equal(t, "stop", resp.FinishReason)

	_, err = p.ParseResponse([]byte(`{"choices":[]}`))
	assert.Error(t, err)
}

func TestAnthropicBuildURLAndHeaders(t *testing.T) {
	p := &AnthropicProvider{}
	assert.Equal(t, "https://api.anthropic.com/v1/messages", p.BuildURL(""))

	req, _ := http.NewRequest(http.MethodPost, "http://x", nil)
	p.SetHeaders(req, "key-1")
	assert.Equal(t, "key-1", req.Header.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", req.Header.Get("anthropic-version"))
}

func TestAnthropicSystemPromptLifted(t *testing.T) {
	p := &AnthropicProvider{}
	body, err := p.BuildRequestBody("claude-3-5-haiku-latest", []llm.Message{
		{Role: "system", Content: "you are a matchmaker"},
		{Role: "user", Content: "score this pair"},
	}, nil, 0)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "you are a matchmaker", decoded["system"])
	assert.Equal(t, float64(1024), decoded["max_tokens"])
	assert.Len(t, decoded["messages"], 1)
	assert.NotContains(t, decoded, "temperature")
}

func TestAnthropicParseResponse(t *testing.T) {
	p := &AnthropicProvider{}
	raw := `{"model":"claude-3-5-haiku-latest","content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`

	resp, err := p.ParseResponse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "part one part two", resp.Content)
	assert.Equal(t, 15, resp.TokensUsed)
}
