package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrOutOfRange = errors.New("out of range")
)

const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 500
	ResultSummaryMax   = 500
	AutoCreatedPrompt  = "(auto-created from tool call)"

	// TimeLayout is fixed width so stored timestamps sort lexically.
	TimeLayout = "2006-01-02T15:04:05.000000Z07:00"
)

type ScrapeRequest struct {
	ID          int64   `json:"id"`
	Prompt      string  `json:"prompt"`
	Domain      *string `json:"domain"`
	Steps       []Step  `json:"steps"`
	FinalResult *string `json:"final_result"`
	Success     *bool   `json:"success"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type Step struct {
	StepID         int            `json:"step_id"`
	URL            string         `json:"url"`
	Domain         string         `json:"domain"`
	ToolName       string         `json:"tool_name"`
	Arguments      map[string]any `json:"arguments"`
	ArgumentsJSON  string         `json:"arguments_json"`
	Result         string         `json:"result"`
	ResultSummary  string         `json:"result_summary"`
	Timestamp      string         `json:"timestamp"`
	LedToData      *bool          `json:"led_to_data"`
	EvaluatorNotes *string        `json:"evaluator_notes"`
}

type AdviceEntry struct {
	ID        int64  `json:"id"`
	Domain    string `json:"domain"`
	Advice    string `json:"advice"`
	CreatedAt string `json:"created_at"`
}

// FinalResultUpdate leaves nil fields untouched.
type FinalResultUpdate struct {
	FinalResult *string
	Success     *bool
}

func (u FinalResultUpdate) Empty() bool {
	return u.FinalResult == nil && u.Success == nil
}

// StepOutcome leaves nil fields untouched.
type StepOutcome struct {
	LedToData      *bool
	EvaluatorNotes *string
}

func (o StepOutcome) Empty() bool {
	return o.LedToData == nil && o.EvaluatorNotes == nil
}

type SearchFilter struct {
	Domain      string
	URLContains string
	Limit       int
}

type AdviceFilter struct {
	Domain string
	Limit  int
}

type Store interface {
	StartRequest(ctx context.Context, prompt string) (int64, error)
	GetRequest(ctx context.Context, requestID int64) (*ScrapeRequest, error)
	// AppendStep assigns the step id as the current length of the
	// request's steps under a per-request exclusive section.
	AppendStep(ctx context.Context, requestID int64, step Step) (Step, error)
	UpdateFinalResult(ctx context.Context, requestID int64, update FinalResultUpdate) error
	UpdateStepOutcome(ctx context.Context, requestID int64, stepID int, outcome StepOutcome) error
	SearchRequests(ctx context.Context, filter SearchFilter) ([]ScrapeRequest, error)
	AddAdvice(ctx context.Context, domain string, advice string) (int64, error)
	ListAdvice(ctx context.Context, filter AdviceFilter) ([]AdviceEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

func Now() string {
	return FormatTime(time.Now())
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
