package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/batch"
)

func TestNewServiceDefaultsTaskQueue(t *testing.T) {
	service := NewService(mocks.NewClient(t), "")
	require.Equal(t, DefaultTaskQueue, service.taskQueue)
}

func TestStartBatch_Success(t *testing.T) {
	mockClient := mocks.NewClient(t)
	workflowRun := mocks.NewWorkflowRun(t)
	taskQueue := "scraper-test"
	input := BatchInput{BatchID: "batch-1", PromptsFile: "p.txt"}

	mockClient.On(
		"ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(opts client.StartWorkflowOptions) bool {
			return opts.ID == workflowID("batch-1") && opts.TaskQueue == taskQueue
		}),
		mock.Anything,
		input,
	).Return(workflowRun, nil)

	id, err := NewService(mockClient, taskQueue).StartBatch(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "batch-1", id)
}

func TestStartBatch_GeneratesID(t *testing.T) {
	mockClient := mocks.NewClient(t)
	workflowRun := mocks.NewWorkflowRun(t)

	mockClient.On(
		"ExecuteWorkflow",
		mock.Anything,
		mock.Anything,
		mock.Anything,
		mock.MatchedBy(func(in BatchInput) bool { return in.BatchID != "" }),
	).Return(workflowRun, nil)

	id, err := NewService(mockClient, "").StartBatch(context.Background(), BatchInput{})
	require.NoError(t, err)
	require.Len(t, id, 36)
}

func TestStartBatch_Error(t *testing.T) {
	mockClient := mocks.NewClient(t)
	expectedErr := errors.New("start failed")

	mockClient.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return((*mocks.WorkflowRun)(nil), expectedErr)

	_, err := NewService(mockClient, "").StartBatch(context.Background(), BatchInput{BatchID: "x"})
	require.ErrorIs(t, err, expectedErr)
}

func TestRunBatch_WaitsForSummary(t *testing.T) {
	mockClient := mocks.NewClient(t)
	workflowRun := mocks.NewWorkflowRun(t)
	expected := batch.Summary{Status: batch.StatusOK, Prompts: 2, Successful: 2, OutputMD: "r.md"}

	mockClient.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(workflowRun, nil)
	workflowRun.On("Get", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			*args.Get(1).(*batch.Summary) = expected
		}).
		Return(nil)

	summary, err := NewService(mockClient, "").RunBatch(context.Background(), BatchInput{BatchID: "b"})
	require.NoError(t, err)
	require.Equal(t, expected, summary)
}

func TestRunBatch_WorkflowError(t *testing.T) {
	mockClient := mocks.NewClient(t)
	workflowRun := mocks.NewWorkflowRun(t)
	expectedErr := errors.New("workflow failed")

	mockClient.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(workflowRun, nil)
	workflowRun.On("Get", mock.Anything, mock.Anything).Return(expectedErr)

	summary, err := NewService(mockClient, "").RunBatch(context.Background(), BatchInput{BatchID: "b"})
	require.ErrorIs(t, err, expectedErr)
	require.Equal(t, batch.StatusError, summary.Status)
}

func TestCancelBatch(t *testing.T) {
	mockClient := mocks.NewClient(t)
	mockClient.On("CancelWorkflow", mock.Anything, workflowID("b-9"), "").Return(nil)

	require.NoError(t, NewService(mockClient, "").CancelBatch(context.Background(), "b-9"))
}
