package batch

import (
	"bytes"
	_ "embed"
	"fmt"
	"html"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	labelSuccess = "✅ Success"
	labelFailed  = "❌ Failed"
)

//go:embed report.html.tmpl
var reportTemplateText string

var (
	reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
		"content":     formatContent,
		"statusLabel": statusLabel,
		"inc":         func(i int) int { return i + 1 },
	}).Parse(reportTemplateText))

	urlRE          = regexp.MustCompile(`(https?://[^\s\)]+)`)
	numberedItemRE = regexp.MustCompile(`^\d+[\.\)]\s+`)
	bulletItemRE   = regexp.MustCompile(`^[-*]\s+`)
)

// Report is one batch run as rendered to markdown and HTML.
type Report struct {
	Date      string
	Generated string
	Results   []PromptResult
}

func (r Report) Successful() int {
	count := 0
	for _, result := range r.Results {
		if result.Success {
			count++
		}
	}
	return count
}

func (r Report) Failed() int {
	return len(r.Results) - r.Successful()
}

func statusLabel(success bool) string {
	if success {
		return labelSuccess
	}
	return labelFailed
}

func RenderMarkdown(r Report) string {
	lines := []string{
		"# Scraping Batch Results",
		"",
		"**Date:** " + r.Date,
		"**Generated:** " + r.Generated,
		fmt.Sprintf("**Total prompts:** %d", len(r.Results)),
		fmt.Sprintf("**Successful:** %d", r.Successful()),
		fmt.Sprintf("**Failed:** %d", r.Failed()),
		"",
		"---",
		"",
	}
	for i, result := range r.Results {
		lines = append(lines,
			fmt.Sprintf("## Prompt %d: %s", i+1, statusLabel(result.Success)),
			"",
			"**Prompt:** "+result.Prompt,
			"**Timestamp:** "+result.Timestamp,
			"",
		)
		if result.Success {
			lines = append(lines, "**Result:**", "", "```", result.Output, "```", "")
		} else {
			message := result.Error
			if message == "" {
				message = "Unknown error"
			}
			lines = append(lines, "**Error:**", "", "```", message, "```", "")
		}
		lines = append(lines, "---", "")
	}
	return strings.Join(lines, "\n")
}

// ParseMarkdown reads a report written by RenderMarkdown back into a Report.
// Request ids are not part of the markdown and stay zero.
func ParseMarkdown(content string) Report {
	var report Report
	lines := strings.Split(content, "\n")
	var current *PromptResult
	flush := func() {
		if current != nil {
			report.Results = append(report.Results, *current)
			current = nil
		}
	}
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case strings.HasPrefix(line, "**Date:**"):
			report.Date = strings.TrimSpace(strings.TrimPrefix(line, "**Date:**"))
		case strings.HasPrefix(line, "**Generated:**"):
			report.Generated = strings.TrimSpace(strings.TrimPrefix(line, "**Generated:**"))
		case strings.HasPrefix(line, "## Prompt"):
			flush()
			current = &PromptResult{Success: strings.Contains(line, labelSuccess)}
		case current == nil:
		case strings.HasPrefix(line, "**Prompt:**"):
			current.Prompt = strings.TrimSpace(strings.TrimPrefix(line, "**Prompt:**"))
		case strings.HasPrefix(line, "**Timestamp:**"):
			current.Timestamp = strings.TrimSpace(strings.TrimPrefix(line, "**Timestamp:**"))
		case strings.HasPrefix(line, "**Result:**"), strings.HasPrefix(line, "**Error:**"):
			var body string
			body, i = readFencedBody(lines, i+1)
			if strings.HasPrefix(line, "**Result:**") {
				current.Output = body
			} else {
				current.Error = body
			}
		}
	}
	flush()
	return report
}

// readFencedBody collects the fenced block starting at or after lines[i]
// and returns the index of its closing fence.
func readFencedBody(lines []string, i int) (string, int) {
	if i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
		i++
	}
	var body []string
	for i < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
		body = append(body, lines[i])
		i++
	}
	return strings.TrimSpace(strings.Join(body, "\n")), i
}

func RenderHTML(w io.Writer, r Report) error {
	return reportTemplate.Execute(w, r)
}

func WriteMarkdown(path string, r Report) error {
	return writeFile(path, []byte(RenderMarkdown(r)))
}

func WriteHTML(path string, r Report) error {
	var buf bytes.Buffer
	if err := RenderHTML(&buf, r); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// formatContent escapes text, links URLs and turns list lines into HTML
// lists. Runs of blank lines collapse to one break.
func formatContent(text string) template.HTML {
	if text == "" {
		return ""
	}
	escaped := urlRE.ReplaceAllString(html.EscapeString(text), `<a href="$1" target="_blank" rel="noopener noreferrer">$1</a>`)

	var out []string
	listType := ""
	closeList := func() {
		if listType != "" {
			out = append(out, "</"+listType+">")
			listType = ""
		}
	}
	openList := func(kind string) {
		if listType != kind {
			closeList()
			out = append(out, "<"+kind+">")
			listType = kind
		}
	}
	blank := 0
	for _, line := range strings.Split(escaped, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			blank++
			closeList()
			if blank == 1 {
				out = append(out, "<br>")
			}
			continue
		}
		blank = 0
		switch {
		case numberedItemRE.MatchString(stripped):
			openList("ol")
			out = append(out, "<li>"+numberedItemRE.ReplaceAllString(stripped, "")+"</li>")
		case bulletItemRE.MatchString(stripped) && !strings.HasPrefix(stripped, "---"):
			openList("ul")
			out = append(out, "<li>"+bulletItemRE.ReplaceAllString(stripped, "")+"</li>")
		default:
			closeList()
			out = append(out, "<p>"+stripped+"</p>")
		}
	}
	closeList()
	return template.HTML(strings.Join(out, "\n"))
}
