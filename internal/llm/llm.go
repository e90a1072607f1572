// Package llm talks to chat-completion models on behalf of the agents.
package llm

import (
	"context"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"

	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider turns a conversation into the model's next reply.
type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

type Config struct {
	Provider         string
	Model            string
	BaseURL          string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
}

// gateways maps a provider name to the credential and endpoint it uses. Both
// speak the OpenAI chat completions protocol.
var gateways = map[string]func(Config) OpenAIConfig{
	ProviderOpenAI: func(cfg Config) OpenAIConfig {
		return OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.Model, BaseURL: cfg.BaseURL}
	},
	ProviderOpenRouter: func(cfg Config) OpenAIConfig {
		return OpenAIConfig{
			APIKey:  cfg.OpenRouterAPIKey,
			Model:   cfg.Model,
			BaseURL: defaultIfEmpty(cfg.BaseURL, openRouterBaseURL),
		}
	},
}

func NewProvider(cfg Config) (Provider, error) {
	gateway, ok := gateways[strings.ToLower(strings.TrimSpace(cfg.Provider))]
	if !ok {
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
	return NewOpenAIProvider(gateway(cfg)), nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
