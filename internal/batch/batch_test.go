package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/agent"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/history"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/metrics"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/session"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store/memory"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, input string) (agent.Result, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(agent.Result), args.Error(1)
}

type funcRunner func(ctx context.Context, input string) (agent.Result, error)

func (f funcRunner) Run(ctx context.Context, input string) (agent.Result, error) {
	return f(ctx, input)
}

var fixedNow = func() time.Time {
	return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
}

func writePrompts(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLooksSuccessful(t *testing.T) {
	require.True(t, LooksSuccessful("The page lists three articles."))
	require.False(t, LooksSuccessful("   "))
	require.False(t, LooksSuccessful("Request FAILED after retries"))
	require.False(t, LooksSuccessful("Navigation timeout"))
	require.False(t, LooksSuccessful("I cannot reach the site"))
	require.False(t, LooksSuccessful("No errors were found"))
}

func TestParsePrompts(t *testing.T) {
	cases := map[string]struct {
		content string
		want    []string
	}{
		"json array":      {`["a", " b ", "", null, 3]`, []string{"a", "b", "3"}},
		"prompts object":  {`{"prompts": ["x", "y"]}`, []string{"x", "y"}},
		"text":            {"# header\nfirst\n\n  second  \n#skip", []string{"first", "second"}},
		"broken json":     {"[not json\nsecond line", []string{"[not json", "second line"}},
		"empty json list": {"[]", []string{"[]"}},
		"empty":           {"  \n ", nil},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, ParsePrompts(tc.content))
		})
	}
}

func TestLoadPrompts(t *testing.T) {
	_, err := LoadPrompts(filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorIs(t, err, ErrPromptsNotFound)

	prompts, err := LoadPrompts(writePrompts(t, "one\ntwo\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, prompts)
}

func TestRunPromptStoresVerdict(t *testing.T) {
	rec := history.New(memory.New())
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, "good").Return(agent.Result{Output: "Here is the content."}, nil).Once()
	runner.On("Run", mock.Anything, "weak").Return(agent.Result{Output: "Unable to load the page."}, nil).Once()
	runner.On("Run", mock.Anything, "broken").Return(agent.Result{}, errors.New("Evaluator: LLM request failed: 500")).Once()
	b := New(rec, runner, WithClock(fixedNow))

	good := b.RunPrompt(context.Background(), "good")
	require.True(t, good.Success)
	require.Equal(t, "2026-03-04T05:06:07.000000", good.Timestamp)
	stored, err := rec.GetRequest(context.Background(), good.RequestID)
	require.NoError(t, err)
	require.Equal(t, "Here is the content.", *stored.FinalResult)
	require.True(t, *stored.Success)

	weak := b.RunPrompt(context.Background(), "weak")
	require.True(t, weak.Success)
	stored, err = rec.GetRequest(context.Background(), weak.RequestID)
	require.NoError(t, err)
	require.False(t, *stored.Success)

	broken := b.RunPrompt(context.Background(), "broken")
	require.False(t, broken.Success)
	require.Empty(t, broken.Output)
	require.Equal(t, "Evaluator: LLM request failed: 500", broken.Error)
	stored, err = rec.GetRequest(context.Background(), broken.RequestID)
	require.NoError(t, err)
	require.Equal(t, broken.Error, *stored.FinalResult)
	require.False(t, *stored.Success)

	runner.AssertExpectations(t)
	require.NotEqual(t, good.RequestID, weak.RequestID)
}

func TestRunPromptBindsSession(t *testing.T) {
	rec := history.New(memory.New())
	var seen int64
	runner := funcRunner(func(ctx context.Context, _ string) (agent.Result, error) {
		seen = session.RequestID(ctx)
		return agent.Result{Output: "ok"}, nil
	})

	result := New(rec, runner).RunPrompt(context.Background(), "p")
	require.NotZero(t, seen)
	require.Equal(t, result.RequestID, seen)
}

type failingStartRecorder struct{}

func (failingStartRecorder) StartRequest(ctx context.Context, _ string) (context.Context, int64, error) {
	return ctx, 0, errors.New("disk full")
}

func (failingStartRecorder) UpdateFinalResult(context.Context, int64, store.FinalResultUpdate) error {
	return nil
}

func TestRunPromptStartFailure(t *testing.T) {
	runner := &mockRunner{}
	result := New(failingStartRecorder{}, runner).RunPrompt(context.Background(), "p")
	require.False(t, result.Success)
	require.Equal(t, "start request: disk full", result.Error)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRunPromptsKeepsOrderAndLimit(t *testing.T) {
	rec := history.New(memory.New())
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	runner := funcRunner(func(_ context.Context, input string) (agent.Result, error) {
		current := inFlight.Add(1)
		mu.Lock()
		if current > peak.Load() {
			peak.Store(current)
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return agent.Result{Output: "answer " + input}, nil
	})
	prompts := []string{"a", "b", "c", "d", "e", "f"}

	results := New(rec, runner).RunPrompts(context.Background(), prompts, 2)
	require.Len(t, results, len(prompts))
	for i, result := range results {
		require.Equal(t, prompts[i], result.Prompt)
		require.Equal(t, "answer "+prompts[i], result.Output)
	}
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunWritesReports(t *testing.T) {
	rec := history.New(memory.New())
	m := metrics.New()
	runner := funcRunner(func(_ context.Context, input string) (agent.Result, error) {
		if input == "bad" {
			return agent.Result{}, errors.New("turn limit reached")
		}
		return agent.Result{Output: "Visit https://example.com/news\n1. first\n2. second"}, nil
	})
	out := filepath.Join(t.TempDir(), "results", "output.md")
	b := New(rec, runner, WithClock(fixedNow), WithMetrics(m))

	summary, err := b.Run(context.Background(), Options{
		PromptsFile:  writePrompts(t, `["good", "bad"]`),
		OutputFile:   out,
		GenerateHTML: true,
		Concurrency:  2,
	})
	require.NoError(t, err)
	require.Equal(t, Summary{
		Status:     StatusOK,
		Prompts:    2,
		Successful: 1,
		Failed:     1,
		OutputMD:   out,
		OutputHTML: strings.TrimSuffix(out, ".md") + ".html",
	}, summary)

	md, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(md), "**Total prompts:** 2")
	require.Contains(t, string(md), "## Prompt 2: ❌ Failed")

	page, err := os.ReadFile(summary.OutputHTML)
	require.NoError(t, err)
	require.Contains(t, string(page), `<a href="https://example.com/news" target="_blank" rel="noopener noreferrer">https://example.com/news</a>`)
	require.Contains(t, string(page), "<ol>\n<li>first</li>\n<li>second</li>\n</ol>")
	require.Contains(t, string(page), "turn limit reached")

	require.Equal(t, 1.0, testutil.ToFloat64(m.BatchPromptsTotal.WithLabelValues("successful")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.BatchPromptsTotal.WithLabelValues("failed")))
}

func TestRunWithoutPrompts(t *testing.T) {
	b := New(history.New(memory.New()), &mockRunner{})

	summary, err := b.Run(context.Background(), Options{PromptsFile: writePrompts(t, "# nothing\n")})
	require.ErrorIs(t, err, ErrNoPrompts)
	require.Equal(t, StatusError, summary.Status)

	_, err = b.Run(context.Background(), Options{PromptsFile: filepath.Join(t.TempDir(), "nope")})
	require.ErrorIs(t, err, ErrPromptsNotFound)
}
