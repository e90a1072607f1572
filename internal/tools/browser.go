package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	defaultBrowserTimeoutSeconds = 30.0
	defaultMaxLength             = 150000
	defaultScrollTimes           = 3
	defaultScrollDelaySeconds    = 0.5
	pageStateContentMax          = 50000

	FormatText = "text"
	FormatHTML = "html"

	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitNetworkIdle      = "networkidle"
)

type PageRequest struct {
	URL       string
	WaitUntil string
	Timeout   time.Duration
	// Format selects the captured content; empty captures nothing beyond the title.
	Format      string
	ScrollTimes int
	ScrollDelay time.Duration
	ScrollUp    bool
}

type Page struct {
	URL     string
	Title   string
	Content string
}

// NavigationTimeoutError reports a navigation that did not finish in time.
// State holds whatever could be read from the page afterwards.
type NavigationTimeoutError struct {
	Err   error
	State string
}

func (e *NavigationTimeoutError) Error() string {
	return e.Err.Error()
}

func (e *NavigationTimeoutError) Unwrap() error {
	return e.Err
}

// Browser opens a page in a headless browser.
type Browser interface {
	Open(ctx context.Context, req PageRequest) (Page, error)
}

type BrowserTools struct {
	browser  Browser
	recorder Recorder
	logger   *zap.Logger
}

func NewBrowserTools(browser Browser, recorder Recorder, logger *zap.Logger) *BrowserTools {
	return &BrowserTools{browser: browser, recorder: recorder, logger: loggerOrNop(logger)}
}

func (b *BrowserTools) Tools() []Tool {
	return []Tool{b.NavigateTool(), b.GetContentTool(), b.ScrollTool()}
}

func (b *BrowserTools) NavigateTool() Tool {
	return Tool{
		Name:        NameBrowserNavigate,
		Description: "Open a URL in a headless browser and wait for it to load. Returns the page title. Use for JS-heavy or dynamic sites.",
		Params: []Param{
			{Name: "url", Description: "Full URL to open.", Required: true},
			{Name: "wait_until", Description: "load (default), domcontentloaded, or networkidle."},
			{Name: "timeout_seconds", Description: "Navigation timeout in seconds (default 30)."},
		},
		Run: func(ctx context.Context, input map[string]any) (string, error) {
			url := stringInput(input, "url", "")
			if url == "" {
				return "", errors.New("url is required")
			}
			return b.Navigate(ctx, url, stringInput(input, "wait_until", WaitLoad), floatInput(input, "timeout_seconds", defaultBrowserTimeoutSeconds)), nil
		},
	}
}

func (b *BrowserTools) GetContentTool() Tool {
	return Tool{
		Name:        NameBrowserGetContent,
		Description: "Open a URL in a headless browser and return the rendered page content as text or HTML. Use for JS-rendered or SPA sites.",
		Params: []Param{
			{Name: "url", Description: "Full URL to scrape.", Required: true},
			{Name: "format", Description: "text (default, visible text) or html (full page HTML)."},
			{Name: "wait_until", Description: "load (default), domcontentloaded, or networkidle."},
			{Name: "timeout_seconds", Description: "Navigation timeout in seconds (default 30)."},
			{Name: "max_length", Description: "Maximum characters to return (default 150000)."},
		},
		Run: func(ctx context.Context, input map[string]any) (string, error) {
			url := stringInput(input, "url", "")
			if url == "" {
				return "", errors.New("url is required")
			}
			return b.GetContent(ctx, url,
				stringInput(input, "format", FormatText),
				stringInput(input, "wait_until", WaitLoad),
				floatInput(input, "timeout_seconds", defaultBrowserTimeoutSeconds),
				intInput(input, "max_length", defaultMaxLength),
			), nil
		},
	}
}

func (b *BrowserTools) ScrollTool() Tool {
	return Tool{
		Name:        NameBrowserScroll,
		Description: "Open a URL, scroll it to trigger lazy loading or infinite scroll, then return the page content.",
		Params: []Param{
			{Name: "url", Description: "Full URL to open and scroll.", Required: true},
			{Name: "scroll_times", Description: "Number of scrolls (default 3)."},
			{Name: "scroll_delay_seconds", Description: "Seconds to wait after each scroll (default 0.5)."},
			{Name: "direction", Description: "down (default) or up."},
			{Name: "format", Description: "text (default) or html."},
			{Name: "wait_until", Description: "load (default), domcontentloaded, or networkidle."},
			{Name: "timeout_seconds", Description: "Navigation timeout in seconds (default 30)."},
			{Name: "max_length", Description: "Maximum characters to return (default 150000)."},
		},
		Run: func(ctx context.Context, input map[string]any) (string, error) {
			url := stringInput(input, "url", "")
			if url == "" {
				return "", errors.New("url is required")
			}
			return b.Scroll(ctx, ScrollOptions{
				URL:            url,
				ScrollTimes:    intInput(input, "scroll_times", defaultScrollTimes),
				DelaySeconds:   floatInput(input, "scroll_delay_seconds", defaultScrollDelaySeconds),
				Direction:      stringInput(input, "direction", "down"),
				Format:         stringInput(input, "format", FormatText),
				WaitUntil:      stringInput(input, "wait_until", WaitLoad),
				TimeoutSeconds: floatInput(input, "timeout_seconds", defaultBrowserTimeoutSeconds),
				MaxLength:      intInput(input, "max_length", defaultMaxLength),
			}), nil
		},
	}
}

func (b *BrowserTools) Navigate(ctx context.Context, url string, waitUntil string, timeoutSeconds float64) string {
	args := map[string]any{"url": url, "wait_until": waitUntil, "timeout_seconds": timeoutSeconds}
	page, err := b.browser.Open(ctx, PageRequest{
		URL:       url,
		WaitUntil: waitUntil,
		Timeout:   durationFromSeconds(timeoutSeconds),
	})
	var result string
	var timeout *NavigationTimeoutError
	switch {
	case errors.As(err, &timeout):
		result = fmt.Sprintf("Navigation timed out after %ss (%v). Page state and content:\n%s", secondsLabel(timeoutSeconds), timeout.Err, timeout.State)
	case err != nil:
		result = fmt.Sprintf("Browser navigation failed for %s: %v", url, err)
	default:
		result = fmt.Sprintf("Navigated to %s. Page title: %s", url, page.Title)
	}
	return recordStep(ctx, b.recorder, b.logger, url, NameBrowserNavigate, args, result)
}

func (b *BrowserTools) GetContent(ctx context.Context, url string, format string, waitUntil string, timeoutSeconds float64, maxLength int) string {
	args := map[string]any{
		"url":             url,
		"format":          format,
		"wait_until":      waitUntil,
		"timeout_seconds": timeoutSeconds,
		"max_length":      maxLength,
	}
	page, err := b.browser.Open(ctx, PageRequest{
		URL:       url,
		WaitUntil: waitUntil,
		Timeout:   durationFromSeconds(timeoutSeconds),
		Format:    format,
	})
	result := b.contentResult(url, "Browser scrape failed", timeoutSeconds, maxLength, page, err)
	return recordStep(ctx, b.recorder, b.logger, url, NameBrowserGetContent, args, result)
}

type ScrollOptions struct {
	URL            string
	ScrollTimes    int
	DelaySeconds   float64
	Direction      string
	Format         string
	WaitUntil      string
	TimeoutSeconds float64
	MaxLength      int
}

func (b *BrowserTools) Scroll(ctx context.Context, opts ScrollOptions) string {
	args := map[string]any{
		"url":                  opts.URL,
		"scroll_times":         opts.ScrollTimes,
		"scroll_delay_seconds": opts.DelaySeconds,
		"direction":            opts.Direction,
		"format":               opts.Format,
		"wait_until":           opts.WaitUntil,
		"timeout_seconds":      opts.TimeoutSeconds,
		"max_length":           opts.MaxLength,
	}
	page, err := b.browser.Open(ctx, PageRequest{
		URL:         opts.URL,
		WaitUntil:   opts.WaitUntil,
		Timeout:     durationFromSeconds(opts.TimeoutSeconds),
		Format:      opts.Format,
		ScrollTimes: max(0, opts.ScrollTimes),
		ScrollDelay: durationFromSeconds(opts.DelaySeconds),
		ScrollUp:    strings.EqualFold(opts.Direction, "up"),
	})
	result := b.contentResult(opts.URL, "Browser scroll failed", opts.TimeoutSeconds, opts.MaxLength, page, err)
	return recordStep(ctx, b.recorder, b.logger, opts.URL, NameBrowserScroll, args, result)
}

func (b *BrowserTools) contentResult(url string, failure string, timeoutSeconds float64, maxLength int, page Page, err error) string {
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}
	var timeout *NavigationTimeoutError
	switch {
	case errors.As(err, &timeout):
		result := fmt.Sprintf("Navigation timed out after %ss (%v). Page state and content so far:\n%s", secondsLabel(timeoutSeconds), timeout.Err, timeout.State)
		if n := utf8.RuneCountInString(result); n > maxLength {
			result = truncateRunes(result, maxLength) + fmt.Sprintf("\n\n... [truncated, total %d chars]", n)
		}
		return result
	case err != nil:
		return fmt.Sprintf("%s for %s: %v", failure, url, err)
	}
	return TruncateContent(page.Content, maxLength)
}

// TruncateContent cuts content to maxLength characters with a marker that
// keeps the original length.
func TruncateContent(content string, maxLength int) string {
	n := utf8.RuneCountInString(content)
	if n <= maxLength {
		return content
	}
	return truncateRunes(content, maxLength) + fmt.Sprintf("\n\n... [truncated, total length %d chars]", n)
}

// PageState describes what could be read from a page after a navigation
// timeout. Empty error fields mean the value was read.
type PageState struct {
	URL        string
	URLErr     error
	Title      string
	TitleErr   error
	Content    string
	ContentErr error
}

func (s PageState) String() string {
	parts := make([]string, 0, 4)
	if s.URLErr != nil {
		parts = append(parts, fmt.Sprintf("Current URL: (unable to get: %v)", s.URLErr))
	} else {
		parts = append(parts, "Current URL: "+s.URL)
	}
	if s.TitleErr != nil {
		parts = append(parts, fmt.Sprintf("Page title: (unable to get: %v)", s.TitleErr))
	} else {
		parts = append(parts, "Page title: "+s.Title)
	}
	if s.ContentErr != nil {
		parts = append(parts, fmt.Sprintf("Content: (unable to get: %v)", s.ContentErr))
		return strings.Join(parts, "\n")
	}
	n := utf8.RuneCountInString(s.Content)
	parts = append(parts, fmt.Sprintf("Content (%d chars):\n%s", n, truncateRunes(s.Content, pageStateContentMax)))
	if n > pageStateContentMax {
		parts = append(parts, fmt.Sprintf("\n... [truncated at 50k chars, total %d]", n))
	}
	return strings.Join(parts, "\n")
}
