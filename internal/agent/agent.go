package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/llm"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/tools"
)

const (
	DefaultMaxTurns    = 12
	maxToolResultChars = 60000
)

var ErrMaxTurns = errors.New("turn limit reached without a final answer")

// Agent drives one model through a tool-calling loop until it answers
// without a tool block.
type Agent struct {
	name         string
	instructions string
	provider     llm.Provider
	registry     *tools.Registry
	maxTurns     int
	logger       *zap.Logger
}

type Option func(*Agent)

func WithMaxTurns(turns int) Option {
	return func(a *Agent) {
		if turns > 0 {
			a.maxTurns = turns
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func New(name string, instructions string, provider llm.Provider, registry *tools.Registry, opts ...Option) *Agent {
	a := &Agent{
		name:         name,
		instructions: strings.TrimSpace(instructions),
		provider:     provider,
		registry:     registry,
		maxTurns:     DefaultMaxTurns,
		logger:       zap.NewNop(),
	}
	if a.registry == nil {
		a.registry = tools.NewRegistry(nil)
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("agent", name))
	return a
}

func (a *Agent) Name() string {
	return a.name
}

// Result is the outcome of one agent run.
type Result struct {
	Output    string
	Turns     int
	ToolCalls []ToolCall
}

func (a *Agent) Run(ctx context.Context, input string) (Result, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: a.systemPrompt()},
		{Role: llm.RoleUser, Content: input},
	}
	var result Result
	for turn := 1; turn <= a.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		reply, err := a.provider.Generate(ctx, messages)
		if err != nil {
			return result, fmt.Errorf("%s: %w", a.name, err)
		}
		result.Turns = turn
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: reply})

		calls, status := parseToolCalls(reply)
		if len(calls) == 0 {
			if status.invalid() {
				a.logger.Warn("discarding unparseable tool block", zap.Int("turn", turn))
				messages = append(messages, llm.Message{Role: llm.RoleUser, Content: recoveryPrompt(status)})
				continue
			}
			result.Output = strings.TrimSpace(reply)
			return result, nil
		}
		result.ToolCalls = append(result.ToolCalls, calls...)
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: a.runTools(ctx, calls)})
	}
	return result, fmt.Errorf("%s: %w (%d turns)", a.name, ErrMaxTurns, a.maxTurns)
}

// runTools executes calls in order and renders their outputs as one message.
// Tool errors are reported to the model instead of ending the run.
func (a *Agent) runTools(ctx context.Context, calls []ToolCall) string {
	var b strings.Builder
	b.WriteString("Tool results:")
	for i, call := range calls {
		output, err := a.registry.Call(ctx, call.ToolName, call.Input)
		if err != nil {
			a.logger.Warn("tool call failed", zap.String("tool", call.ToolName), zap.Error(err))
			output = "Error: " + err.Error()
		} else {
			a.logger.Debug("tool call completed", zap.String("tool", call.ToolName), zap.Int("chars", len(output)))
		}
		fmt.Fprintf(&b, "\n\n[%d] %s\n%s", i+1, call.ToolName, tools.TruncateContent(output, maxToolResultChars))
	}
	return b.String()
}

func (a *Agent) systemPrompt() string {
	var b strings.Builder
	b.WriteString(a.instructions)
	b.WriteString("\n\nAvailable tools:\n")
	b.WriteString(a.registry.Describe())
	b.WriteString("\n\nTo call a tool, reply with one fenced block and nothing else:\n")
	b.WriteString("```tool\n{\"tool_name\": \"<name>\", \"input\": {\"<param>\": \"<value>\"}}\n```\n")
	b.WriteString("Several independent calls can be sent together as {\"tool_calls\": [{\"tool_name\": ..., \"input\": {...}}, ...]}. ")
	b.WriteString("Results arrive in the next message. When you are done, reply with the final answer and no tool block.")
	return b.String()
}

// AsTool exposes the agent to another agent as a tool taking free-form
// instructions. The nested run shares the caller's context, so its steps land
// in the same scrape request.
func (a *Agent) AsTool(name string, description string) tools.Tool {
	return tools.Tool{
		Name:        name,
		Description: description,
		Params: []tools.Param{
			{Name: "input", Description: "Instructions for the agent: URL, what to extract, and any guidance.", Required: true},
		},
		Run: func(ctx context.Context, input map[string]any) (string, error) {
			instructions := ""
			for _, key := range []string{"input", "instructions", "prompt", "task"} {
				if value := readStringAny(input[key]); value != "" {
					instructions = value
					break
				}
			}
			if instructions == "" {
				return "", errors.New("input is required")
			}
			result, err := a.Run(ctx, instructions)
			if err != nil {
				return "", err
			}
			return result.Output, nil
		},
	}
}
