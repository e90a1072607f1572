package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultHTTPTimeoutSeconds = 30.0
	httpErrorBodyMax          = 2000
)

var errUnsupportedMethod = errors.New("unsupported method")

type HTTPRequester struct {
	client   *resty.Client
	recorder Recorder
	logger   *zap.Logger
}

func NewHTTPRequester(client *resty.Client, recorder Recorder, logger *zap.Logger) *HTTPRequester {
	if client == nil {
		client = resty.New()
	}
	return &HTTPRequester{client: client, recorder: recorder, logger: loggerOrNop(logger)}
}

func (h *HTTPRequester) Tool() Tool {
	return Tool{
		Name:        NameHTTPRequest,
		Description: "Fetch a URL with an HTTP request. Use for static or simple pages.",
		Params: []Param{
			{Name: "url", Description: "Full URL to request.", Required: true},
			{Name: "method", Description: "GET (default), POST, or HEAD."},
			{Name: "headers", Description: "Request headers as an object of strings."},
			{Name: "timeout_seconds", Description: "Request timeout in seconds (default 30)."},
		},
		Run: func(ctx context.Context, input map[string]any) (string, error) {
			url := stringInput(input, "url", "")
			if url == "" {
				return "", errors.New("url is required")
			}
			return h.Fetch(ctx, url,
				strings.ToUpper(stringInput(input, "method", http.MethodGet)),
				stringMapInput(input, "headers"),
				floatInput(input, "timeout_seconds", defaultHTTPTimeoutSeconds),
			), nil
		},
	}
}

// Fetch performs the request and records it as a step whatever the outcome.
func (h *HTTPRequester) Fetch(ctx context.Context, url string, method string, headers map[string]string, timeoutSeconds float64) string {
	var headerArg any
	if headers != nil {
		headerArg = headers
	}
	args := map[string]any{
		"url":             url,
		"method":          method,
		"headers":         headerArg,
		"timeout_seconds": timeoutSeconds,
	}
	result := h.do(ctx, url, method, headers, timeoutSeconds)
	return recordStep(ctx, h.recorder, h.logger, url, NameHTTPRequest, args, result)
}

func (h *HTTPRequester) do(ctx context.Context, url string, method string, headers map[string]string, timeoutSeconds float64) string {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodHead:
	default:
		return fmt.Sprintf("Error fetching %s: %v %q", url, errUnsupportedMethod, method)
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = defaultHTTPTimeoutSeconds
	}
	reqCtx, cancel := context.WithTimeout(ctx, durationFromSeconds(timeoutSeconds))
	defer cancel()

	resp, err := h.client.R().
		SetContext(reqCtx).
		SetHeaders(headers).
		Execute(method, url)
	if err != nil {
		return fmt.Sprintf("Request failed for %s: %v", url, err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Sprintf("HTTP error %d for %s: %s", resp.StatusCode(), url, truncateRunes(resp.String(), httpErrorBodyMax))
	}
	if method == http.MethodHead {
		return fmt.Sprintf("Status: %d\nHeaders: %s", resp.StatusCode(), formatHeaders(resp.Header()))
	}
	return resp.String()
}

func formatHeaders(header http.Header) string {
	keys := make([]string, 0, len(header))
	for key := range header {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("'%s': '%s'", strings.ToLower(key), strings.Join(header.Values(key), ", ")))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func truncateRunes(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}
