package llm

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRouterModelSupportsTools(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		expected bool
	}{
		{"Llama", "meta-llama/llama-3.1-8b-instruct", true},
		{"Qwen", "qwen/qwen-2.5-72b-instruct", true},
		{"Mistral", "mistralai/mistral-7b-instruct", true},
		{"Mixtral", "mistralai/mixtral-8x7b", true},
		{"DeepSeek", "deepseek/deepseek-chat", true},
		{"PhiBlocked", "microsoft/phi-3-medium", false},
		{"UnknownDefaultsTrue", "some-lab/novel-model", true},
		{"CaseInsensitive", "Meta-Llama/Llama-4", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, OpenRouterModelSupportsTools(tt.model))
		})
	}
}

func TestOpenRouterProvider_SupportsToolCalling(t *testing.T) {
	supported := NewOpenRouterProvider(OpenRouterConfig{APIKey: "k", Model: "meta-llama/llama-3.1-8b-instruct"})
	assert.True(t, supported.SupportsToolCalling())

	blocked := NewOpenRouterProvider(OpenRouterConfig{APIKey: "k", Model: "microsoft/phi-3-mini"})
	assert.False(t, blocked.SupportsToolCalling())
}

func TestOpenRouterProvider_Identity(t *testing.T) {
	p := NewOpenRouterProvider(OpenRouterConfig{APIKey: "k", Model: "qwen/qwen-2.5"})

	assert.Equal(t, ProviderOpenRouter, p.Name())
	assert.Equal(t, "qwen/qwen-2.5", p.Model())
}

func TestOpenRouterTransport_SetsIdentificationHeaders(t *testing.T) {
	var captured http.Header
	transport := &openRouterTransport{
		siteURL:  "https://studium.example",
		siteName: "Studium",
		base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			captured = req.Header
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
	}

	req, err := http.NewRequest(http.MethodPost, "https://openrouter.ai/api/v1/chat/completions", nil)
	require.NoError(t, err)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://studium.example", captured.Get("HTTP-Referer"))
	assert.Equal(t, "Studium", captured.Get("X-Title"))
	// The original request must stay untouched.
	assert.Empty(t, req.Header.Get("HTTP-Referer"))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
