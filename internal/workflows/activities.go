package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/batch"
)

const nonRetryableErrorType = "BatchInputError"

type LoadPromptsInput struct {
	PromptsFile string
}

type LoadPromptsOutput struct {
	Prompts []string
}

type RunPromptInput struct {
	BatchID string
	Index   int
	Prompt  string
}

type WriteReportInput struct {
	BatchID      string
	Date         string
	OutputFile   string
	GenerateHTML bool
	Results      []batch.PromptResult
}

// BatchActivities runs batch steps on the worker, where the store, browser
// and LLM provider live.
type BatchActivities struct {
	batch *batch.Batch
}

func NewBatchActivities(b *batch.Batch) *BatchActivities {
	return &BatchActivities{batch: b}
}

// Register adds the workflow and its activities under their stable names.
func Register(registry worker.Registry, activities *BatchActivities) {
	registry.RegisterWorkflow(BatchWorkflow)
	registry.RegisterActivityWithOptions(activities.LoadPrompts, activity.RegisterOptions{Name: ActivityLoadPrompts})
	registry.RegisterActivityWithOptions(activities.RunPrompt, activity.RegisterOptions{Name: ActivityRunPrompt})
	registry.RegisterActivityWithOptions(activities.WriteReport, activity.RegisterOptions{Name: ActivityWriteReport})
}

func (a *BatchActivities) LoadPrompts(ctx context.Context, input LoadPromptsInput) (LoadPromptsOutput, error) {
	prompts, err := batch.LoadPrompts(input.PromptsFile)
	if errors.Is(err, batch.ErrPromptsNotFound) {
		return LoadPromptsOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), nonRetryableErrorType, err)
	}
	if err != nil {
		return LoadPromptsOutput{}, err
	}
	if len(prompts) == 0 {
		return LoadPromptsOutput{}, temporal.NewNonRetryableApplicationError(batch.ErrNoPrompts.Error(), nonRetryableErrorType, batch.ErrNoPrompts)
	}
	activity.GetLogger(ctx).Info("loaded prompts", "file", input.PromptsFile, "count", len(prompts))
	return LoadPromptsOutput{Prompts: prompts}, nil
}

func (a *BatchActivities) RunPrompt(ctx context.Context, input RunPromptInput) (batch.PromptResult, error) {
	result := a.batch.RunPrompt(ctx, input.Prompt)
	activity.GetLogger(ctx).Info("prompt finished",
		"batch_id", input.BatchID,
		"index", input.Index,
		"request_id", result.RequestID,
		"success", result.Success,
	)
	return result, nil
}

func (a *BatchActivities) WriteReport(ctx context.Context, input WriteReportInput) (batch.Summary, error) {
	summary, err := a.batch.WriteReports(batch.Report{Date: input.Date, Results: input.Results}, input.OutputFile, input.GenerateHTML)
	if err != nil {
		return summary, err
	}
	activity.GetLogger(ctx).Info("batch report written", "batch_id", input.BatchID, "output", summary.OutputMD)
	return summary, nil
}
