package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/batch"
)

const (
	ActivityLoadPrompts = "LoadPrompts"
	ActivityRunPrompt   = "RunPrompt"
	ActivityWriteReport = "WriteReport"
)

type BatchInput struct {
	BatchID      string
	PromptsFile  string
	OutputFile   string
	GenerateHTML bool
	Concurrency  int
}

// BatchWorkflow loads the prompt file, runs every prompt as its own activity
// and writes the reports. A failed prompt activity is reported as a failed
// prompt; it does not fail the batch.
func BatchWorkflow(ctx workflow.Context, input BatchInput) (batch.Summary, error) {
	logger := workflow.GetLogger(ctx)
	date := workflow.Now(ctx).UTC().Format("2006-01-02")

	ioCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{nonRetryableErrorType},
		},
	})
	promptCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 20 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var loaded LoadPromptsOutput
	if err := workflow.ExecuteActivity(ioCtx, ActivityLoadPrompts, LoadPromptsInput{PromptsFile: input.PromptsFile}).Get(ctx, &loaded); err != nil {
		logger.Error("loading prompts failed", "batch_id", input.BatchID, "error", err)
		return batch.Summary{Status: batch.StatusError}, err
	}
	logger.Info("running batch", "batch_id", input.BatchID, "prompts", len(loaded.Prompts))

	concurrency := max(input.Concurrency, 1)
	results := make([]batch.PromptResult, len(loaded.Prompts))
	for start := 0; start < len(loaded.Prompts); start += concurrency {
		end := min(start+concurrency, len(loaded.Prompts))
		futures := make([]workflow.Future, 0, end-start)
		for i := start; i < end; i++ {
			futures = append(futures, workflow.ExecuteActivity(promptCtx, ActivityRunPrompt, RunPromptInput{
				BatchID: input.BatchID,
				Index:   i,
				Prompt:  loaded.Prompts[i],
			}))
		}
		for offset, future := range futures {
			i := start + offset
			if err := future.Get(ctx, &results[i]); err != nil {
				logger.Error("prompt activity failed", "batch_id", input.BatchID, "index", i, "error", err)
				results[i] = batch.PromptResult{
					Prompt:    loaded.Prompts[i],
					Error:     err.Error(),
					Timestamp: workflow.Now(ctx).UTC().Format("2006-01-02T15:04:05.000000"),
				}
			}
		}
	}

	var summary batch.Summary
	if err := workflow.ExecuteActivity(ioCtx, ActivityWriteReport, WriteReportInput{
		BatchID:      input.BatchID,
		Date:         date,
		OutputFile:   input.OutputFile,
		GenerateHTML: input.GenerateHTML,
		Results:      results,
	}).Get(ctx, &summary); err != nil {
		logger.Error("writing report failed", "batch_id", input.BatchID, "error", err)
		return batch.Summary{Status: batch.StatusError}, err
	}
	return summary, nil
}
