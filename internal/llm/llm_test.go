package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantKey     string
		wantBaseURL string
	}{
		{
			name:        "openai uses the openai key",
			cfg:         Config{Provider: " OpenAI ", Model: "gpt-4o-mini", OpenAIAPIKey: "sk", OpenRouterAPIKey: "or"},
			wantKey:     "sk",
			wantBaseURL: defaultOpenAIBaseURL,
		},
		{
			name:        "openrouter defaults its gateway",
			cfg:         Config{Provider: "openrouter", Model: "anthropic/claude-3.5-haiku", OpenAIAPIKey: "sk", OpenRouterAPIKey: "or"},
			wantKey:     "or",
			wantBaseURL: openRouterBaseURL,
		},
		{
			name:        "openrouter keeps a custom gateway",
			cfg:         Config{Provider: "openrouter", BaseURL: "https://proxy.local/v1/", OpenRouterAPIKey: "or"},
			wantKey:     "or",
			wantBaseURL: "https://proxy.local/v1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg)
			require.NoError(t, err)
			openai, ok := provider.(*OpenAIProvider)
			require.True(t, ok, "got %T", provider)
			assert.Equal(t, tt.wantKey, openai.apiKey)
			assert.Equal(t, tt.wantBaseURL, openai.baseURL)
		})
	}
}

func TestNewProviderUnsupported(t *testing.T) {
	_, err := NewProvider(Config{Provider: "bard"})
	var unsupported ErrUnsupportedProvider
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "bard", unsupported.Provider)
	assert.Contains(t, err.Error(), "openrouter")
}

func TestDefaultIfEmpty(t *testing.T) {
	assert.Equal(t, "fallback", defaultIfEmpty("", "fallback"))
	assert.Equal(t, "fallback", defaultIfEmpty("  ", "fallback"))
	assert.Equal(t, "value", defaultIfEmpty("value", "fallback"))
}
