package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store/storetest"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "scraper_memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func TestSQLiteStoreBehavior(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestNew_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	st, err := New(path)
	require.NoError(t, err)
	defer st.Close()
	require.FileExists(t, path)
}

func TestNew_OpenError(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(driverName, dataSourceName string) (*sql.DB, error) {
		return nil, errors.New("boom")
	}
	_, err := New(filepath.Join(t.TempDir(), "x.db"))
	require.ErrorContains(t, err, "boom")
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	id, err := st.StartRequest(ctx, "keep me")
	require.NoError(t, err)

	require.NoError(t, st.EnsureSchema(ctx))
	require.NoError(t, st.EnsureSchema(ctx))

	req, err := st.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "keep me", req.Prompt)
}

func TestReopen_PersistsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := New(path)
	require.NoError(t, err)
	id, err := st.StartRequest(ctx, "persist")
	require.NoError(t, err)
	_, err = st.AppendStep(ctx, id, store.NewStep("https://example.com/a", "http_request", map[string]any{"method": "GET"}, "ok", time.Now()))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()
	req, err := reopened.GetRequest(ctx, id)
	require.NoError(t, err)
	require.Len(t, req.Steps, 1)
	require.Equal(t, "GET", req.Steps[0].Arguments["method"])
	require.Equal(t, `{"method":"GET"}`, req.Steps[0].ArgumentsJSON)
}

func TestSuccessStoredAsInteger(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	id, err := st.StartRequest(ctx, "flag")
	require.NoError(t, err)
	success := true
	require.NoError(t, st.UpdateFinalResult(ctx, id, store.FinalResultUpdate{Success: &success}))

	var raw int
	require.NoError(t, st.db.QueryRowContext(ctx, "SELECT success FROM scrape_requests WHERE id = ?", id).Scan(&raw))
	require.Equal(t, 1, raw)
}

func TestSearchRequests_URLFilterWithSpecialCharacters(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	id, err := st.StartRequest(ctx, "query")
	require.NoError(t, err)
	_, err = st.AppendStep(ctx, id, store.NewStep("https://example.com/search?a=1&b=2", "http_request", nil, "ok", time.Now()))
	require.NoError(t, err)

	reqs, err := st.SearchRequests(ctx, store.SearchFilter{URLContains: "a=1&b"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
}

func TestPrefilterable(t *testing.T) {
	require.True(t, prefilterable("/docs"))
	require.False(t, prefilterable("a&b"))
	require.False(t, prefilterable("café"))
}

func TestIsBusy(t *testing.T) {
	require.True(t, isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	require.False(t, isBusy(errors.New("no such table")))
}
