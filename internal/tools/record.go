package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/history"
)

// recordStep logs a finished external action. A store failure never hides
// the action's result from the agent; it is appended as an Error line.
func recordStep(ctx context.Context, recorder Recorder, logger *zap.Logger, url string, tool string, args map[string]any, result string) string {
	if recorder == nil {
		return result
	}
	ref, err := recorder.LogStep(ctx, history.StepInput{
		URL:       url,
		ToolName:  tool,
		Arguments: args,
		Result:    result,
	})
	if err != nil {
		logger.Error("failed to record tool step", zap.String("tool", tool), zap.String("url", url), zap.Error(err))
		return fmt.Sprintf("%s\n\nError: step not recorded: %v", result, err)
	}
	if ref.AutoCreated {
		logger.Warn("tool step recorded on an auto-created request", zap.String("tool", tool), zap.Int64("request_id", ref.RequestID))
	}
	return result
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
