package llm

import (
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Model families with reliable tool calling on OpenRouter. Anything not
// listed is attempted optimistically, except the explicitly blocked ones.
var openRouterToolFamilies = []string{
	"llama",
	"qwen",
	"mistral",
	"mixtral",
	"deepseek",
}

var openRouterBlockedFamilies = []string{
	"phi",
}

// OpenRouterConfig configures the OpenRouter-compatible endpoint
type OpenRouterConfig struct {
	APIKey   string
	Model    string
	BaseURL  string
	SiteURL  string
	SiteName string
}

// OpenRouterProvider reuses the OpenAI completion core against the
// OpenRouter endpoint. It pre-flight checks whether the bound model is
// known to support tool calling and degrades to plain streaming when not.
type OpenRouterProvider struct {
	OpenAIProvider
}

// NewOpenRouterProvider creates a provider bound to one OpenRouter model
func NewOpenRouterProvider(cfg OpenRouterConfig) *OpenRouterProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	} else {
		clientCfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	clientCfg.HTTPClient = &http.Client{
		Transport: &openRouterTransport{
			siteURL:  cfg.SiteURL,
			siteName: cfg.SiteName,
			base:     http.DefaultTransport,
		},
	}

	return &OpenRouterProvider{
		OpenAIProvider: OpenAIProvider{
			name:   ProviderOpenRouter,
			model:  cfg.Model,
			client: openai.NewClientWithConfig(clientCfg),
		},
	}
}

// SupportsToolCalling reports whether the bound model is expected to handle
// bound tools. Unknown models default to true so new families are attempted.
func (p *OpenRouterProvider) SupportsToolCalling() bool {
	return OpenRouterModelSupportsTools(p.model)
}

// OpenRouterModelSupportsTools checks a model name against the known
// tool-calling families
func OpenRouterModelSupportsTools(model string) bool {
	lower := strings.ToLower(model)

	for _, family := range openRouterToolFamilies {
		if strings.Contains(lower, family) {
			return true
		}
	}

	for _, family := range openRouterBlockedFamilies {
		if strings.Contains(lower, family) {
			return false
		}
	}

	return true
}

// openRouterTransport injects the identification headers OpenRouter uses
// for attribution and rate limiting
type openRouterTransport struct {
	siteURL  string
	siteName string
	base     http.RoundTripper
}

func (t *openRouterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.siteURL != "" {
		clone.Header.Set("HTTP-Referer", t.siteURL)
	}
	if t.siteName != "" {
		clone.Header.Set("X-Title", t.siteName)
	}
	return t.base.RoundTrip(clone)
}
