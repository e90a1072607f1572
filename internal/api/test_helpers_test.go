package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/config"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/events"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/history"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store/memory"
)

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) GetRequest(ctx context.Context, requestID int64) (*store.ScrapeRequest, error) {
	args := m.Called(ctx, requestID)
	if value := args.Get(0); value != nil {
		return value.(*store.ScrapeRequest), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockHistory) Search(ctx context.Context, filter store.SearchFilter) ([]store.ScrapeRequest, error) {
	args := m.Called(ctx, filter)
	var result []store.ScrapeRequest
	if value := args.Get(0); value != nil {
		result = value.([]store.ScrapeRequest)
	}
	return result, args.Error(1)
}

func (m *MockHistory) UpdateFinalResult(ctx context.Context, requestID int64, update store.FinalResultUpdate) error {
	args := m.Called(ctx, requestID, update)
	return args.Error(0)
}

func (m *MockHistory) UpdateStepOutcome(ctx context.Context, requestID int64, stepID int, outcome store.StepOutcome) error {
	args := m.Called(ctx, requestID, stepID, outcome)
	return args.Error(0)
}

func (m *MockHistory) AddAdvice(ctx context.Context, domain string, advice string) (int64, error) {
	args := m.Called(ctx, domain, advice)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockHistory) GetAdvice(ctx context.Context, filter store.AdviceFilter) ([]store.AdviceEntry, error) {
	args := m.Called(ctx, filter)
	var result []store.AdviceEntry
	if value := args.Get(0); value != nil {
		result = value.([]store.AdviceEntry)
	}
	return result, args.Error(1)
}

func (m *MockHistory) AdviceSummary(ctx context.Context, domain string) (string, error) {
	args := m.Called(ctx, domain)
	return args.String(0), args.Error(1)
}

func (m *MockHistory) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Subscribe(ctx context.Context, requestID int64) <-chan events.RequestEvent {
	args := m.Called(ctx, requestID)
	if value := args.Get(0); value != nil {
		if ch, ok := value.(chan events.RequestEvent); ok {
			return ch
		}
		if ch, ok := value.(<-chan events.RequestEvent); ok {
			return ch
		}
	}
	return nil
}

func (m *MockBroker) Since(requestID int64, afterSeq int64) []events.RequestEvent {
	args := m.Called(requestID, afterSeq)
	if value, ok := args.Get(0).([]events.RequestEvent); ok {
		return value
	}
	return nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func liveStore() store.Store {
	return memory.New()
}

// liveHistory is a recorder over an in-memory store, publishing to broker.
func liveHistory(broker *events.Broker) *history.Recorder {
	return history.New(liveStore(), history.WithBroker(broker))
}

func newTestServer(t *testing.T, history HistoryService, broker Broker, batches BatchRunner, cfg config.Config) *httptest.Server {
	t.Helper()
	server := NewServer(history, broker, batches, cfg)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts
}

type noFlushWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (w *noFlushWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *noFlushWriter) WriteHeader(status int) {
	w.status = status
}

func (w *noFlushWriter) Write(data []byte) (int, error) {
	return w.body.Write(data)
}
