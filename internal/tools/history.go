package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/session"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

const (
	historyDefaultLimit   = 30
	adviceDefaultLimit    = 20
	toolMaxLimit          = 100
	finalResultPreviewMax = 200
	stepSummaryPreviewMax = 150
)

type HistoryTools struct {
	recorder Recorder
}

func NewHistoryTools(recorder Recorder) *HistoryTools {
	return &HistoryTools{recorder: recorder}
}

func (h *HistoryTools) SearchTool() Tool {
	return Tool{
		Name:        NameSearchHistory,
		Description: "Search past scrape requests. Returns each request with its prompt, domain, status and every tool call it made. Use it to see what worked before for a site.",
		Params: []Param{
			{Name: "domain", Description: "Partial domain filter, e.g. example.com or github."},
			{Name: "url_contains", Description: "Only requests that touched a URL containing this text."},
			{Name: "limit", Description: "Maximum requests to return (default 30, max 100)."},
		},
		Run: func(ctx context.Context, input map[string]any) (string, error) {
			return h.Search(ctx,
				stringInput(input, "domain", ""),
				stringInput(input, "url_contains", ""),
				intInput(input, "limit", historyDefaultLimit),
			)
		},
	}
}

func (h *HistoryTools) MarkOutcomeTool() Tool {
	return Tool{
		Name:        NameMarkStepOutcome,
		Description: "Mark whether a step of a scrape request helped fetch the requested data.",
		Params: []Param{
			{Name: "request_id", Description: "Request id shown as Request #<id> by search_scrape_history.", Required: true},
			{Name: "step_id", Description: "Step index shown as [<i>] by search_scrape_history.", Required: true},
			{Name: "led_to_data", Description: "true if the step produced useful data.", Required: true},
			{Name: "notes", Description: "Optional explanation."},
		},
		Run: func(ctx context.Context, input map[string]any) (string, error) {
			requestID, err := requiredIntInput(input, "request_id")
			if err != nil {
				return "", err
			}
			stepID, err := requiredIntInput(input, "step_id")
			if err != nil {
				return "", err
			}
			ledToData, ok := boolInput(input, "led_to_data")
			if !ok {
				return "", errors.New("led_to_data must be true or false")
			}
			return h.MarkOutcome(ctx, requestID, int(stepID), ledToData, optionalStringInput(input, "notes"))
		},
	}
}

func (h *HistoryTools) AdviceTool() Tool {
	return Tool{
		Name:        NameScrapingAdvice,
		Description: "Get stored scraping advice, optionally for one domain. Check it before scraping a site.",
		Params: []Param{
			{Name: "domain", Description: "Partial domain filter; omit for all advice."},
			{Name: "limit", Description: "Maximum entries to return (default 20, max 100)."},
		},
		Run: func(ctx context.Context, input map[string]any) (string, error) {
			return h.Advice(ctx, stringInput(input, "domain", ""), intInput(input, "limit", adviceDefaultLimit))
		},
	}
}

func TodayDateTool() Tool {
	return Tool{
		Name:        NameTodayDate,
		Description: "Get today's date in ISO format (YYYY-MM-DD).",
		Run: func(ctx context.Context, _ map[string]any) (string, error) {
			return session.Today(ctx), nil
		},
	}
}

func (h *HistoryTools) Search(ctx context.Context, domain string, urlContains string, limit int) (string, error) {
	requests, err := h.recorder.Search(ctx, store.SearchFilter{
		Domain:      domain,
		URLContains: urlContains,
		Limit:       clampInt(limit, 1, toolMaxLimit),
	})
	if err != nil {
		return "", fmt.Errorf("search scrape history: %w", err)
	}
	return FormatHistory(requests, domain, urlContains), nil
}

func (h *HistoryTools) MarkOutcome(ctx context.Context, requestID int64, stepID int, ledToData bool, notes *string) (string, error) {
	err := h.recorder.UpdateStepOutcome(ctx, requestID, stepID, store.StepOutcome{
		LedToData:      &ledToData,
		EvaluatorNotes: notes,
	})
	if err != nil {
		return "", err
	}
	result := fmt.Sprintf("Updated request %d, step %d as %s.", requestID, stepID, outcomeLabel(&ledToData))
	if notes != nil {
		result += " Notes: " + *notes
	}
	return result, nil
}

func (h *HistoryTools) Advice(ctx context.Context, domain string, limit int) (string, error) {
	entries, err := h.recorder.GetAdvice(ctx, store.AdviceFilter{Domain: domain, Limit: clampInt(limit, 1, toolMaxLimit)})
	if err != nil {
		return "", fmt.Errorf("get scraping advice: %w", err)
	}
	return FormatAdvice(entries, domain), nil
}

// FormatHistory renders requests one block per prompt, steps as an indexed list.
func FormatHistory(requests []store.ScrapeRequest, domain string, urlContains string) string {
	if len(requests) == 0 {
		result := "No scrape history found."
		if domain != "" || urlContains != "" {
			result += fmt.Sprintf(" (domain like '%s', url containing '%s')", orAny(domain), orAny(urlContains))
		}
		return result
	}

	lines := []string{}
	for _, req := range requests {
		requestDomain := store.UnknownDomain
		if req.Domain != nil && *req.Domain != "" {
			requestDomain = *req.Domain
		}
		lines = append(lines, fmt.Sprintf("Request #%d: %s", req.ID, req.Prompt))
		lines = append(lines, fmt.Sprintf("  Domain: %s | Status: %s | Created: %s", requestDomain, statusLabel(req.Success), req.CreatedAt))
		if req.FinalResult != nil && *req.FinalResult != "" {
			lines = append(lines, "  Final result: "+preview(*req.FinalResult, finalResultPreviewMax))
		}
		if len(req.Steps) == 0 {
			lines = append(lines, "  Steps: (none)")
		} else {
			lines = append(lines, fmt.Sprintf("  Steps (%d tool calls):", len(req.Steps)))
			for _, step := range req.Steps {
				notes := ""
				if step.EvaluatorNotes != nil && *step.EvaluatorNotes != "" {
					notes = " | notes=" + *step.EvaluatorNotes
				}
				argumentsJSON := step.ArgumentsJSON
				if argumentsJSON == "" {
					argumentsJSON = "{}"
				}
				lines = append(lines, fmt.Sprintf("    [%d] %s | %s | %s | outcome=%s%s", step.StepID, step.ToolName, step.URL, step.Timestamp, outcomeLabel(step.LedToData), notes))
				lines = append(lines, "      args: "+argumentsJSON)
				lines = append(lines, "      result: "+preview(step.ResultSummary, stepSummaryPreviewMax))
			}
		}
		lines = append(lines, "")
	}
	return "Scrape history (one row per prompt, steps as array):\n\n" + strings.TrimRight(strings.Join(lines, "\n"), " \n")
}

func FormatAdvice(entries []store.AdviceEntry, domain string) string {
	if len(entries) == 0 {
		result := "No scraping advice found."
		if domain != "" {
			result += fmt.Sprintf(" (domain like '%s')", domain)
		}
		return result
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", entry.CreatedAt, entry.Domain, entry.Advice))
	}
	return "Scraping advice:\n\n" + strings.Join(lines, "\n")
}

func statusLabel(success *bool) string {
	switch {
	case success == nil:
		return "⏳ Unknown"
	case *success:
		return "✅ Success"
	default:
		return "❌ Failed"
	}
}

func outcomeLabel(ledToData *bool) string {
	switch {
	case ledToData == nil:
		return "unknown"
	case *ledToData:
		return "helpful"
	default:
		return "not helpful"
	}
}

func preview(value string, max int) string {
	if utf8.RuneCountInString(value) <= max {
		return value
	}
	return truncateRunes(value, max) + "..."
}

func orAny(value string) string {
	if value == "" {
		return "any"
	}
	return value
}
