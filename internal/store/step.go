package store

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// NewStep builds an unnumbered step; the backend assigns StepID on append.
func NewStep(rawURL string, toolName string, arguments map[string]any, result string, at time.Time) Step {
	if arguments == nil {
		arguments = map[string]any{}
	}
	arguments = cloneMap(arguments)
	return Step{
		URL:           rawURL,
		Domain:        DomainFromURL(rawURL),
		ToolName:      toolName,
		Arguments:     arguments,
		ArgumentsJSON: encodeArguments(arguments),
		Result:        result,
		ResultSummary: Summarize(result, ResultSummaryMax),
		Timestamp:     FormatTime(at),
	}
}

// Summarize truncates value to max runes and appends "..." when it was cut.
func Summarize(value string, max int) string {
	if utf8.RuneCountInString(value) <= max {
		return value
	}
	runes := []rune(value)
	return string(runes[:max]) + "..."
}

// ClampLimit maps limit into [1, max], treating zero as fallback.
func ClampLimit(limit int, fallback int, max int) int {
	if limit == 0 {
		limit = fallback
	}
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}

func RequestNotFound(requestID int64) error {
	return fmt.Errorf("scrape request %d %w", requestID, ErrNotFound)
}

func StepOutOfRange(requestID int64, stepID int) error {
	return fmt.Errorf("step %d not found in request %d: %w", stepID, requestID, ErrOutOfRange)
}

// ApplyOutcome edits steps[stepID] in place.
func ApplyOutcome(requestID int64, steps []Step, stepID int, outcome StepOutcome) error {
	if stepID < 0 || stepID >= len(steps) {
		return StepOutOfRange(requestID, stepID)
	}
	if outcome.LedToData != nil {
		value := *outcome.LedToData
		steps[stepID].LedToData = &value
	}
	if outcome.EvaluatorNotes != nil {
		value := *outcome.EvaluatorNotes
		steps[stepID].EvaluatorNotes = &value
	}
	return nil
}

// AdoptDomain returns the request domain after a step on stepDomain is
// appended. The first real host wins.
func AdoptDomain(current *string, stepDomain string) *string {
	if current != nil && *current != "" {
		return current
	}
	if IsPlaceholderDomain(stepDomain) {
		return current
	}
	value := stepDomain
	return &value
}

func EncodeSteps(steps []Step) (string, error) {
	if steps == nil {
		steps = []Step{}
	}
	raw, err := json.Marshal(steps)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func DecodeSteps(raw string) ([]Step, error) {
	steps := []Step{}
	if raw == "" {
		return steps, nil
	}
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return steps, nil
}

func encodeArguments(arguments map[string]any) string {
	raw, err := json.Marshal(arguments)
	if err != nil {
		return fmt.Sprintf("%v", arguments)
	}
	return string(raw)
}
