// Package storetest holds behavior checks shared by every store backend.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Helper()
	t.Run("StartRequest", func(t *testing.T) { testStartRequest(t, newStore(t)) })
	t.Run("AppendStepFirstDomainWins", func(t *testing.T) { testFirstDomainWins(t, newStore(t)) })
	t.Run("AppendStepConcurrent", func(t *testing.T) { testConcurrentAppend(t, newStore(t)) })
	t.Run("AppendStepUnknownRequest", func(t *testing.T) { testAppendUnknown(t, newStore(t)) })
	t.Run("UpdateFinalResult", func(t *testing.T) { testUpdateFinalResult(t, newStore(t)) })
	t.Run("UpdateStepOutcome", func(t *testing.T) { testUpdateStepOutcome(t, newStore(t)) })
	t.Run("SearchRequests", func(t *testing.T) { testSearch(t, newStore(t)) })
	t.Run("SearchLimitClamp", func(t *testing.T) { testSearchClamp(t, newStore(t)) })
	t.Run("ReturnedCopies", func(t *testing.T) { testReturnedCopies(t, newStore(t)) })
	t.Run("Advice", func(t *testing.T) { testAdvice(t, newStore(t)) })
}

func step(url string, tool string, result string) store.Step {
	return store.NewStep(url, tool, map[string]any{"url": url}, result, time.Now())
}

func testStartRequest(t *testing.T, st store.Store) {
	ctx := context.Background()
	first, err := st.StartRequest(ctx, "scrape foo")
	require.NoError(t, err)
	second, err := st.StartRequest(ctx, "scrape bar")
	require.NoError(t, err)
	require.Greater(t, second, first)

	req, err := st.GetRequest(ctx, first)
	require.NoError(t, err)
	require.Equal(t, "scrape foo", req.Prompt)
	require.Nil(t, req.Domain)
	require.Nil(t, req.FinalResult)
	require.Nil(t, req.Success)
	require.Empty(t, req.Steps)
	require.NotEmpty(t, req.CreatedAt)

	_, err = st.GetRequest(ctx, second+100)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testFirstDomainWins(t *testing.T, st store.Store) {
	ctx := context.Background()
	id, err := st.StartRequest(ctx, "scrape foo")
	require.NoError(t, err)

	noHost, err := st.AppendStep(ctx, id, step("not-a-url", "http_request", "x"))
	require.NoError(t, err)
	require.Equal(t, 0, noHost.StepID)

	first, err := st.AppendStep(ctx, id, step("https://Example.com/a", "http_request", "a"))
	require.NoError(t, err)
	require.Equal(t, 1, first.StepID)
	second, err := st.AppendStep(ctx, id, step("https://other.org/b", "browser_get_content", "b"))
	require.NoError(t, err)
	require.Equal(t, 2, second.StepID)

	req, err := st.GetRequest(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, req.Domain)
	require.Equal(t, "example.com", *req.Domain)
	require.Len(t, req.Steps, 3)
	require.Equal(t, "other.org", req.Steps[2].Domain)
	require.GreaterOrEqual(t, req.UpdatedAt, req.CreatedAt)
}

func testConcurrentAppend(t *testing.T, st store.Store) {
	ctx := context.Background()
	id, err := st.StartRequest(ctx, "concurrent")
	require.NoError(t, err)

	const n = 24
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.AppendStep(ctx, id, step(fmt.Sprintf("https://example.com/%d", i), "http_request", "ok"))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	req, err := st.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Len(t, req.Steps, n)
	seen := map[string]bool{}
	for i, s := range req.Steps {
		require.Equal(t, i, s.StepID)
		seen[s.URL] = true
	}
	require.Len(t, seen, n)
}

func testAppendUnknown(t *testing.T, st store.Store) {
	_, err := st.AppendStep(context.Background(), 4242, step("https://example.com", "http_request", "x"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateFinalResult(t *testing.T, st store.Store) {
	ctx := context.Background()
	id, err := st.StartRequest(ctx, "final")
	require.NoError(t, err)

	result := "done"
	require.NoError(t, st.UpdateFinalResult(ctx, id, store.FinalResultUpdate{FinalResult: &result}))
	req, err := st.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "done", *req.FinalResult)
	require.Nil(t, req.Success)

	success := false
	require.NoError(t, st.UpdateFinalResult(ctx, id, store.FinalResultUpdate{Success: &success}))
	next := "done again"
	require.NoError(t, st.UpdateFinalResult(ctx, id, store.FinalResultUpdate{FinalResult: &next}))
	req, err = st.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "done again", *req.FinalResult)
	require.False(t, *req.Success)

	require.NoError(t, st.UpdateFinalResult(ctx, id+100, store.FinalResultUpdate{}))
	err = st.UpdateFinalResult(ctx, id+100, store.FinalResultUpdate{FinalResult: &result})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateStepOutcome(t *testing.T, st store.Store) {
	ctx := context.Background()
	id, err := st.StartRequest(ctx, "outcome")
	require.NoError(t, err)
	_, err = st.AppendStep(ctx, id, step("https://example.com/a", "http_request", "a"))
	require.NoError(t, err)
	_, err = st.AppendStep(ctx, id, step("https://example.com/b", "http_request", "b"))
	require.NoError(t, err)

	helpful := true
	notes := "worked"
	require.NoError(t, st.UpdateStepOutcome(ctx, id, 0, store.StepOutcome{LedToData: &helpful, EvaluatorNotes: &notes}))
	require.NoError(t, st.UpdateStepOutcome(ctx, id, 1, store.StepOutcome{}))

	reqs, err := st.SearchRequests(ctx, store.SearchFilter{Domain: "example.com"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.True(t, *reqs[0].Steps[0].LedToData)
	require.Equal(t, "worked", *reqs[0].Steps[0].EvaluatorNotes)
	require.Nil(t, reqs[0].Steps[1].LedToData)
	require.Nil(t, reqs[0].Steps[1].EvaluatorNotes)

	err = st.UpdateStepOutcome(ctx, id, 5, store.StepOutcome{LedToData: &helpful})
	require.ErrorIs(t, err, store.ErrOutOfRange)
	err = st.UpdateStepOutcome(ctx, id+100, 0, store.StepOutcome{LedToData: &helpful})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testSearch(t *testing.T, st store.Store) {
	ctx := context.Background()
	foo, err := st.StartRequest(ctx, "scrape foo")
	require.NoError(t, err)
	_, err = st.AppendStep(ctx, foo, step("https://Example.com/a", "http_request", "a"))
	require.NoError(t, err)
	_, err = st.AppendStep(ctx, foo, step("https://example.com/b", "http_request", "b"))
	require.NoError(t, err)

	bar, err := st.StartRequest(ctx, "scrape bar")
	require.NoError(t, err)
	_, err = st.AppendStep(ctx, bar, step("https://www.github.com/docs/x", "browser_get_content", "c"))
	require.NoError(t, err)

	baz, err := st.StartRequest(ctx, "scrape baz")
	require.NoError(t, err)
	_, err = st.AppendStep(ctx, baz, step("https://shop.example.com/cart", "http_request", "d"))
	require.NoError(t, err)

	_, err = st.StartRequest(ctx, "empty")
	require.NoError(t, err)

	reqs, err := st.SearchRequests(ctx, store.SearchFilter{Domain: "example"})
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	require.Equal(t, baz, reqs[0].ID)
	require.Equal(t, foo, reqs[1].ID)
	require.Len(t, reqs[1].Steps, 2)
	require.Equal(t, 0, reqs[1].Steps[0].StepID)
	require.Equal(t, 1, reqs[1].Steps[1].StepID)
	require.Equal(t, "example.com", *reqs[1].Domain)

	reqs, err = st.SearchRequests(ctx, store.SearchFilter{Domain: "EXAMPLE.COM"})
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	reqs, err = st.SearchRequests(ctx, store.SearchFilter{URLContains: "/DOCS"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, bar, reqs[0].ID)

	reqs, err = st.SearchRequests(ctx, store.SearchFilter{Domain: "example.com", URLContains: "/b"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Steps, 2, "url filter selects requests, not steps")

	reqs, err = st.SearchRequests(ctx, store.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, reqs, 4)
	for i := 1; i < len(reqs); i++ {
		require.Greater(t, reqs[i-1].ID, reqs[i].ID)
	}

	reqs, err = st.SearchRequests(ctx, store.SearchFilter{Domain: "100%"})
	require.NoError(t, err)
	require.Empty(t, reqs)
}

func testSearchClamp(t *testing.T, st store.Store) {
	ctx := context.Background()
	total := store.MaxSearchLimit + 12
	for i := 0; i < total; i++ {
		id, err := st.StartRequest(ctx, fmt.Sprintf("p%d", i))
		require.NoError(t, err)
		_, err = st.AppendStep(ctx, id, step(fmt.Sprintf("https://example.com/page/%d", i), "http_request", "ok"))
		require.NoError(t, err)
	}

	reqs, err := st.SearchRequests(ctx, store.SearchFilter{Limit: -3})
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	reqs, err = st.SearchRequests(ctx, store.SearchFilter{Limit: 10000})
	require.NoError(t, err)
	require.Len(t, reqs, store.MaxSearchLimit)

	reqs, err = st.SearchRequests(ctx, store.SearchFilter{URLContains: "example.com/page/", Limit: 10000})
	require.NoError(t, err)
	require.Len(t, reqs, store.MaxSearchLimit)
	require.Equal(t, fmt.Sprintf("p%d", total-1), reqs[0].Prompt)

	reqs, err = st.SearchRequests(ctx, store.SearchFilter{Domain: "example.com", URLContains: "/page/", Limit: 10000})
	require.NoError(t, err)
	require.Len(t, reqs, store.MaxSearchLimit)
}

func testReturnedCopies(t *testing.T, st store.Store) {
	ctx := context.Background()
	id, err := st.StartRequest(ctx, "copy")
	require.NoError(t, err)
	_, err = st.AppendStep(ctx, id, step("https://example.com/a", "http_request", "a"))
	require.NoError(t, err)

	req, err := st.GetRequest(ctx, id)
	require.NoError(t, err)
	req.Steps[0].Result = "mutated"
	req.Steps = append(req.Steps, store.Step{})

	again, err := st.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Len(t, again.Steps, 1)
	require.Equal(t, "a", again.Steps[0].Result)
}

func testAdvice(t *testing.T, st store.Store) {
	ctx := context.Background()
	first, err := st.AddAdvice(ctx, "Example.com", "use browser fetch")
	require.NoError(t, err)
	second, err := st.AddAdvice(ctx, "www.example.com", "wait for networkidle")
	require.NoError(t, err)
	_, err = st.AddAdvice(ctx, "github.com", "use http_request")
	require.NoError(t, err)
	require.Greater(t, second, first)

	entries, err := st.ListAdvice(ctx, store.AdviceFilter{Domain: "EXAMPLE"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "wait for networkidle", entries[0].Advice)
	require.Equal(t, "use browser fetch", entries[1].Advice)
	require.Equal(t, "example.com", entries[1].Domain)

	all, err := st.ListAdvice(ctx, store.AdviceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	limited, err := st.ListAdvice(ctx, store.AdviceFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "github.com", limited[0].Domain)

	summary := store.AdviceSummary("example.com", entries)
	require.Contains(t, summary, "use browser fetch")
}
