package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	maxToolJSONChars         = 120000
	maxToolParseContentChars = 240000
	fence                    = "```"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ToolName string         `json:"tool_name"`
	Input    map[string]any `json:"input"`
}

type parseStatus struct {
	sawToolBlock  bool
	hadIncomplete bool
	hadOversized  bool
}

// invalid reports a reply that tried to call a tool but produced nothing
// executable.
func (s parseStatus) invalid() bool {
	return s.sawToolBlock || s.hadIncomplete || s.hadOversized
}

// callPayload accepts the shapes models produce for a tool call: our own
// {"tool_name", "input"}, a {"tool_calls": [...]} batch, and the OpenAI
// {"function": {"name", "arguments"}} form.
type callPayload struct {
	ToolName   string          `json:"tool_name"`
	Name       string          `json:"name"`
	Input      json.RawMessage `json:"input"`
	Arguments  json.RawMessage `json:"arguments"`
	Args       json.RawMessage `json:"args"`
	Parameters json.RawMessage `json:"parameters"`
	Function   *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
	ToolCalls []callPayload `json:"tool_calls"`
}

type codeBlock struct {
	lang     string
	body     string
	complete bool
}

func parseToolCalls(content string) ([]ToolCall, parseStatus) {
	if len(content) > maxToolParseContentChars {
		content = content[len(content)-maxToolParseContentChars:]
	}
	var status parseStatus
	for _, block := range codeBlocks(content) {
		if block.lang != "tool" && block.lang != "json" {
			continue
		}
		body := strings.TrimSpace(block.body)
		if block.lang == "tool" || strings.Contains(body, `"tool_name"`) || strings.Contains(body, `"tool_calls"`) {
			status.sawToolBlock = true
		}
		switch {
		case !block.complete:
			if block.lang == "tool" || body != "" {
				status.hadIncomplete = true
			}
			continue
		case len(body) > maxToolJSONChars:
			status.hadOversized = true
			status.sawToolBlock = true
			continue
		}
		if calls := decodeToolCalls(body); len(calls) > 0 {
			return calls, status
		}
	}

	bare := strings.TrimSpace(content)
	if strings.HasPrefix(bare, "{") && strings.HasSuffix(bare, "}") && len(bare) <= maxToolJSONChars {
		if calls := decodeToolCalls(bare); len(calls) > 0 {
			status.sawToolBlock = true
			return calls, status
		}
	}
	return nil, status
}

// codeBlocks splits content into fenced blocks. The language tag is the word
// right after the opening fence; the body may start on the same line.
func codeBlocks(content string) []codeBlock {
	var blocks []codeBlock
	rest := content
	for {
		start := strings.Index(rest, fence)
		if start < 0 {
			return blocks
		}
		rest = rest[start+len(fence):]
		lang := rest
		if end := strings.IndexFunc(rest, func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
		}); end >= 0 {
			lang = rest[:end]
		}
		rest = rest[len(lang):]
		block := codeBlock{lang: strings.ToLower(lang)}
		end := strings.Index(rest, fence)
		if end < 0 {
			block.body = rest
			return append(blocks, block)
		}
		block.body, block.complete = rest[:end], true
		blocks = append(blocks, block)
		rest = rest[end+len(fence):]
	}
}

func decodeToolCalls(text string) []ToolCall {
	var payload callPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil
	}
	if len(payload.ToolCalls) > 0 {
		calls := make([]ToolCall, 0, len(payload.ToolCalls))
		for _, entry := range payload.ToolCalls {
			if call, ok := entry.toolCall(); ok {
				calls = append(calls, call)
			}
		}
		return calls
	}
	if call, ok := payload.toolCall(); ok {
		return []ToolCall{call}
	}
	return nil
}

func (p callPayload) toolCall() (ToolCall, bool) {
	input, hasInput := firstInput(p.Input, p.Arguments, p.Args, p.Parameters)
	name := strings.TrimSpace(p.ToolName)
	// A bare "name" only counts with arguments next to it, so JSON answers
	// describing a record are not mistaken for calls.
	if name == "" && hasInput {
		name = strings.TrimSpace(p.Name)
	}
	if p.Function != nil {
		if name == "" {
			name = strings.TrimSpace(p.Function.Name)
		}
		if !hasInput {
			input, hasInput = firstInput(p.Function.Arguments)
		}
	}
	if name == "" {
		return ToolCall{}, false
	}
	if !hasInput {
		input = map[string]any{}
	}
	return ToolCall{ToolName: strings.ToLower(name), Input: input}, true
}

// firstInput decodes the first usable argument object. Arguments may arrive
// as an object or as a JSON-encoded string.
func firstInput(candidates ...json.RawMessage) (map[string]any, bool) {
	for _, raw := range candidates {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		if raw[0] == '"' {
			var encoded string
			if err := json.Unmarshal(raw, &encoded); err != nil {
				continue
			}
			encoded = strings.TrimSpace(encoded)
			if encoded == "" {
				return map[string]any{}, true
			}
			raw = []byte(encoded)
		}
		var input map[string]any
		if err := json.Unmarshal(raw, &input); err == nil && input != nil {
			return input, true
		}
	}
	return nil, false
}

func recoveryPrompt(status parseStatus) string {
	switch {
	case status.hadIncomplete && status.hadOversized:
		return fmt.Sprintf("Your last tool call was incomplete and too large to parse. Send a single closed ```tool block, break the work into smaller calls, and stay under %d characters per block.", maxToolJSONChars)
	case status.hadIncomplete:
		return "Your last tool call looks incomplete: the ``` fence was never closed or the JSON was cut off. Send a single closed ```tool block and nothing else."
	case status.hadOversized:
		return fmt.Sprintf("Your last tool call was too large to parse. Use smaller calls and stay under %d characters per ```tool block.", maxToolJSONChars)
	default:
		return "Your last tool call was invalid and did not run. Either send one valid ```tool JSON block or answer normally without a tool block."
	}
}

func readStringAny(value any) string {
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}
