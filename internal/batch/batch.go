package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/agent"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/config"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/metrics"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

const (
	StatusOK    = "ok"
	StatusError = "error"

	timestampLayout = "2006-01-02T15:04:05.000000"
)

var (
	ErrNoPrompts = errors.New("no prompts found in prompts file")

	failureMarkers = []string{"error", "failed", "timeout", "unable", "cannot"}
)

// Runner is an agent that answers one prompt.
type Runner interface {
	Run(ctx context.Context, input string) (agent.Result, error)
}

// Recorder is the part of history.Recorder a batch needs.
type Recorder interface {
	StartRequest(ctx context.Context, prompt string) (context.Context, int64, error)
	UpdateFinalResult(ctx context.Context, requestID int64, update store.FinalResultUpdate) error
}

// PromptResult is one prompt's outcome. Success means the agent produced a
// final answer; the stored request gets the stricter LooksSuccessful verdict.
type PromptResult struct {
	Prompt    string `json:"prompt"`
	RequestID int64  `json:"request_id"`
	Success   bool   `json:"success"`
	Output    string `json:"output"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

type Summary struct {
	Status     string `json:"status"`
	Prompts    int    `json:"prompts"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	OutputMD   string `json:"output_md"`
	OutputHTML string `json:"output_html,omitempty"`
}

type Options struct {
	PromptsFile  string
	OutputFile   string
	GenerateHTML bool
	Concurrency  int
}

// LooksSuccessful reports whether a final answer reads as a successful scrape.
func LooksSuccessful(output string) bool {
	if strings.TrimSpace(output) == "" {
		return false
	}
	lower := strings.ToLower(output)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

type Batch struct {
	recorder Recorder
	runner   Runner
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Batch)

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Batch) {
		b.metrics = m
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(b *Batch) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Batch) {
		if now != nil {
			b.now = now
		}
	}
}

func New(recorder Recorder, runner Runner, opts ...Option) *Batch {
	b := &Batch{
		recorder: recorder,
		runner:   runner,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RunPrompt runs one prompt in a fresh session and stores its final result.
func (b *Batch) RunPrompt(ctx context.Context, prompt string) PromptResult {
	result := PromptResult{Prompt: prompt, Timestamp: b.now().Format(timestampLayout)}
	sessionCtx, requestID, err := b.recorder.StartRequest(ctx, prompt)
	if err != nil {
		result.Error = fmt.Sprintf("start request: %v", err)
		b.metrics.IncBatchPrompt(false)
		return result
	}
	result.RequestID = requestID

	final, runErr := b.runner.Run(sessionCtx, prompt)
	update := store.FinalResultUpdate{}
	if runErr != nil {
		result.Error = runErr.Error()
		failed := false
		update.FinalResult = &result.Error
		update.Success = &failed
	} else {
		result.Success = true
		result.Output = final.Output
		verdict := LooksSuccessful(final.Output)
		update.FinalResult = &result.Output
		update.Success = &verdict
	}
	// The session context may already be canceled; the final result is
	// still written.
	if err := b.recorder.UpdateFinalResult(context.WithoutCancel(sessionCtx), requestID, update); err != nil {
		b.logger.Error("store final result", zap.Int64("request_id", requestID), zap.Error(err))
	}
	b.metrics.IncBatchPrompt(result.Success)
	return result
}

// RunPrompts runs prompts with at most concurrency in flight. Results keep
// prompt order.
func (b *Batch) RunPrompts(ctx context.Context, prompts []string, concurrency int) []PromptResult {
	results := make([]PromptResult, len(prompts))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(concurrency, 1))
	for i, prompt := range prompts {
		group.Go(func() error {
			b.logger.Info("running prompt",
				zap.Int("index", i+1),
				zap.Int("total", len(prompts)),
				zap.String("prompt", store.Summarize(prompt, 60)),
			)
			results[i] = b.RunPrompt(groupCtx, prompt)
			if results[i].Success {
				b.logger.Info("prompt succeeded", zap.Int("index", i+1), zap.Int64("request_id", results[i].RequestID))
			} else {
				b.logger.Warn("prompt failed", zap.Int("index", i+1), zap.String("error", results[i].Error))
			}
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// Run loads prompts, runs them and writes the reports.
func (b *Batch) Run(ctx context.Context, opts Options) (Summary, error) {
	started := b.now()
	defer func() {
		b.metrics.ObserveBatch(b.now().Sub(started))
	}()

	prompts, err := LoadPrompts(opts.PromptsFile)
	if err != nil {
		return Summary{Status: StatusError}, err
	}
	if len(prompts) == 0 {
		return Summary{Status: StatusError}, ErrNoPrompts
	}
	b.logger.Info("starting batch", zap.Int("prompts", len(prompts)), zap.String("prompts_file", opts.PromptsFile))

	results := b.RunPrompts(ctx, prompts, opts.Concurrency)
	return b.WriteReports(Report{Date: started.Format("2006-01-02"), Results: results}, opts.OutputFile, opts.GenerateHTML)
}

// WriteReports stamps the report's generation time, writes the markdown file
// and optionally the HTML file beside it.
func (b *Batch) WriteReports(report Report, outputFile string, generateHTML bool) (Summary, error) {
	if report.Date == "" {
		report.Date = b.now().Format("2006-01-02")
	}
	report.Generated = b.now().Format("2006-01-02 15:04:05")
	summary := Summary{
		Status:     StatusOK,
		Prompts:    len(report.Results),
		Successful: report.Successful(),
		Failed:     report.Failed(),
		OutputMD:   outputFile,
	}
	if err := WriteMarkdown(outputFile, report); err != nil {
		return Summary{Status: StatusError}, err
	}
	b.logger.Info("markdown report written", zap.String("path", outputFile))
	if generateHTML {
		summary.OutputHTML = config.HTMLPath(outputFile)
		if err := WriteHTML(summary.OutputHTML, report); err != nil {
			return Summary{Status: StatusError}, err
		}
		b.logger.Info("html report written", zap.String("path", summary.OutputHTML))
	}
	return summary, nil
}
