package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingAPIKey = errors.New("missing API key for chat provider")
	ErrMissingModel  = errors.New("missing model for chat provider")
	ErrNoChoices     = errors.New("chat completion had no choices")
	ErrEmptyReply    = errors.New("chat completion was empty")
)

type ErrUnsupportedProvider struct {
	Provider string
}

func (e ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported LLM provider %q (want %s or %s)", e.Provider, ProviderOpenAI, ProviderOpenRouter)
}

// APIError is a non-2xx reply from the chat completions endpoint. Message
// is the provider's error message when the body carried one.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat completion failed: %s", e.Status)
	}
	return fmt.Sprintf("chat completion failed: %s: %s", e.Status, e.Message)
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
