package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

var ErrPromptsNotFound = errors.New("prompts file not found")

// LoadPrompts reads a prompt file. An empty file yields no prompts.
func LoadPrompts(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPromptsNotFound, path)
		}
		return nil, fmt.Errorf("read prompts: %w", err)
	}
	return ParsePrompts(string(data)), nil
}

// ParsePrompts accepts a JSON array, an object with a "prompts" array, or
// one prompt per line with # comments. JSON that does not decode, or decodes
// to no prompts, is read as text.
func ParsePrompts(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if strings.HasPrefix(content, "[") || strings.HasPrefix(content, "{") {
		if prompts := parseJSONPrompts(content); len(prompts) > 0 {
			return prompts
		}
	}
	var prompts []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	return prompts
}

func parseJSONPrompts(content string) []string {
	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return nil
	}
	var items []any
	switch typed := decoded.(type) {
	case []any:
		items = typed
	case map[string]any:
		items, _ = typed["prompts"].([]any)
	}
	prompts := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil || item == false || item == float64(0) {
			continue
		}
		text := strings.TrimSpace(fmt.Sprint(item))
		if text != "" {
			prompts = append(prompts, text)
		}
	}
	return prompts
}
