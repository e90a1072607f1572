package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/history"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/metrics"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

const (
	NameHTTPRequest       = "http_request"
	NameBrowserNavigate   = "browser_navigate"
	NameBrowserGetContent = "browser_get_content"
	NameBrowserScroll     = "browser_scroll"
	NameSearchHistory     = "search_scrape_history"
	NameMarkStepOutcome   = "mark_scrape_step_outcome"
	NameScrapingAdvice    = "get_scraping_advice"
	NameTodayDate         = "get_today_date"
)

// Recorder is the slice of history.Recorder the adapters depend on.
type Recorder interface {
	LogStep(ctx context.Context, input history.StepInput) (history.StepRef, error)
	Search(ctx context.Context, filter store.SearchFilter) ([]store.ScrapeRequest, error)
	UpdateStepOutcome(ctx context.Context, requestID int64, stepID int, outcome store.StepOutcome) error
	GetAdvice(ctx context.Context, filter store.AdviceFilter) ([]store.AdviceEntry, error)
}

type Param struct {
	Name        string
	Description string
	Required    bool
}

// Tool is a named action an agent can call with a JSON object input. Run
// returns text for the model; external failures are part of that text.
type Tool struct {
	Name        string
	Description string
	Params      []Param
	Run         func(ctx context.Context, input map[string]any) (string, error)
}

type Registry struct {
	tools   map[string]Tool
	metrics *metrics.Metrics
}

func NewRegistry(m *metrics.Metrics, tools ...Tool) *Registry {
	r := &Registry{tools: map[string]Tool{}, metrics: m}
	for _, tool := range tools {
		r.Register(tool)
	}
	return r
}

func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name] = tool
}

func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[strings.TrimSpace(name)]
	return tool, ok
}

// Names lists registered tools in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Call(ctx context.Context, name string, input map[string]any) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	if input == nil {
		input = map[string]any{}
	}
	started := time.Now()
	defer func() {
		r.metrics.ObserveTool(tool.Name, time.Since(started))
	}()
	return tool.Run(ctx, input)
}

// Describe renders the tool list for a system prompt.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, name := range r.Names() {
		tool := r.tools[name]
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
		for _, param := range tool.Params {
			required := "optional"
			if param.Required {
				required = "required"
			}
			fmt.Fprintf(&b, "    %s (%s): %s\n", param.Name, required, param.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func stringInput(input map[string]any, key string, fallback string) string {
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return fallback
		}
		return strings.TrimSpace(typed)
	default:
		return fmt.Sprint(typed)
	}
}

func optionalStringInput(input map[string]any, key string) *string {
	value := stringInput(input, key, "")
	if value == "" {
		return nil
	}
	return &value
}

func floatInput(input map[string]any, key string, fallback float64) float64 {
	switch typed := input[key].(type) {
	case float64:
		return typed
	case float32:
		return float64(typed)
	case int:
		return float64(typed)
	case int64:
		return float64(typed)
	case json.Number:
		if parsed, err := typed.Float64(); err == nil {
			return parsed
		}
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func intInput(input map[string]any, key string, fallback int) int {
	if value, ok := parseInt(input[key]); ok {
		return value
	}
	return fallback
}

func parseInt(value any) (int, bool) {
	switch typed := value.(type) {
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case float64:
		return int(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		return int(parsed), err == nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		return parsed, err == nil
	}
	return 0, false
}

func requiredIntInput(input map[string]any, key string) (int64, error) {
	raw, ok := input[key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	value, ok := parseInt(raw)
	if !ok {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return int64(value), nil
}

func boolInput(input map[string]any, key string) (bool, bool) {
	switch typed := input[key].(type) {
	case bool:
		return typed, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		return parsed, err == nil
	}
	return false, false
}

func stringMapInput(input map[string]any, key string) map[string]string {
	raw, ok := input[key].(map[string]any)
	if !ok {
		if typed, ok := input[key].(map[string]string); ok {
			return typed
		}
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func clampInt(value int, lo int, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func secondsLabel(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

func durationFromSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
