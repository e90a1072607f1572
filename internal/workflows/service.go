package workflows

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/batch"
)

const DefaultTaskQueue = "scraper-batches"

type Service struct {
	client    client.Client
	taskQueue string
}

func NewService(client client.Client, taskQueue string) *Service {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Service{client: client, taskQueue: taskQueue}
}

// StartBatch starts a batch workflow and returns its batch id.
func (s *Service) StartBatch(ctx context.Context, input BatchInput) (string, error) {
	if input.BatchID == "" {
		input.BatchID = uuid.NewString()
	}
	_, err := s.client.ExecuteWorkflow(ctx, s.startOptions(input.BatchID), BatchWorkflow, input)
	if err != nil {
		return "", err
	}
	return input.BatchID, nil
}

// RunBatch starts a batch workflow and waits for its summary.
func (s *Service) RunBatch(ctx context.Context, input BatchInput) (batch.Summary, error) {
	if input.BatchID == "" {
		input.BatchID = uuid.NewString()
	}
	run, err := s.client.ExecuteWorkflow(ctx, s.startOptions(input.BatchID), BatchWorkflow, input)
	if err != nil {
		return batch.Summary{Status: batch.StatusError}, err
	}
	var summary batch.Summary
	if err := run.Get(ctx, &summary); err != nil {
		return batch.Summary{Status: batch.StatusError}, err
	}
	return summary, nil
}

func (s *Service) CancelBatch(ctx context.Context, batchID string) error {
	return s.client.CancelWorkflow(ctx, workflowID(batchID), "")
}

func (s *Service) startOptions(batchID string) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:        workflowID(batchID),
		TaskQueue: s.taskQueue,
	}
}

func workflowID(batchID string) string {
	return fmt.Sprintf("batch:%s", batchID)
}
