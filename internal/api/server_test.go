package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/batch"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/config"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/events"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/history"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/metrics"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var value T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&value))
	return value
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNewServer(t *testing.T) {
	server := NewServer(&MockHistory{}, &MockBroker{}, nil, config.Config{})
	require.NotNil(t, server)
	require.NotNil(t, server.Router())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &MockHistory{}, &MockBroker{}, nil, config.Config{})

	resp := get(t, ts.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]string{"status": "ok"}, decodeBody[map[string]string](t, resp))
}

func TestReady(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		hist := &MockHistory{}
		hist.On("Ping", mock.Anything).Return(nil)
		runner := BatchRunnerFunc(func(context.Context) (batch.Summary, error) { return batch.Summary{}, nil })
		ts := newTestServer(t, hist, &MockBroker{}, runner, config.Config{})

		resp := get(t, ts.URL+"/ready")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[readinessResponse](t, resp)
		require.Equal(t, "ok", body.Status)
		require.Equal(t, "ok", body.Subsystems["store"].Status)
		require.Equal(t, "ok", body.Subsystems["batch"].Status)
		hist.AssertExpectations(t)
	})

	t.Run("degraded", func(t *testing.T) {
		hist := &MockHistory{}
		hist.On("Ping", mock.Anything).Return(errors.New("database is locked"))
		ts := newTestServer(t, hist, &MockBroker{}, nil, config.Config{})

		resp := get(t, ts.URL+"/ready")
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		body := decodeBody[readinessResponse](t, resp)
		require.Equal(t, "degraded", body.Status)
		require.Equal(t, "database is locked", body.Subsystems["store"].Error)
		require.Equal(t, "skipped", body.Subsystems["batch"].Status)
	})
}

func TestReports(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{OutputFile: filepath.Join(dir, "output.md")}
	ts := newTestServer(t, &MockHistory{}, &MockBroker{}, nil, cfg)

	resp := get(t, ts.URL+"/")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Report not generated yet.", decodeBody[map[string]string](t, resp)["detail"])

	resp = get(t, ts.URL+"/report.md")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, os.WriteFile(cfg.OutputFile, []byte("# Scraping Results\n"), 0o644))
	require.NoError(t, os.WriteFile(cfg.HTMLOutputFile(), []byte("<html>report</html>"), 0o644))

	resp = get(t, ts.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "<html>report</html>", string(body))

	resp = get(t, ts.URL+"/report.md")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "# Scraping Results\n", string(body))
}

func TestRunBatch(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		runner := BatchRunnerFunc(func(context.Context) (batch.Summary, error) {
			return batch.Summary{Status: batch.StatusOK, Prompts: 3, Successful: 2, Failed: 1, OutputMD: "results/output.md"}, nil
		})
		ts := newTestServer(t, &MockHistory{}, &MockBroker{}, runner, config.Config{})

		resp := postJSON(t, ts.URL+"/run-batch", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		summary := decodeBody[batch.Summary](t, resp)
		require.Equal(t, batch.StatusOK, summary.Status)
		require.Equal(t, 3, summary.Prompts)
		require.Equal(t, 1, summary.Failed)
	})

	t.Run("failure", func(t *testing.T) {
		runner := BatchRunnerFunc(func(context.Context) (batch.Summary, error) {
			return batch.Summary{Status: batch.StatusError}, errors.New("prompts file missing")
		})
		ts := newTestServer(t, &MockHistory{}, &MockBroker{}, runner, config.Config{})

		resp := postJSON(t, ts.URL+"/run-batch", "")
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Equal(t, "Batch job failed: prompts file missing", decodeBody[map[string]string](t, resp)["detail"])
	})

	t.Run("not configured", func(t *testing.T) {
		ts := newTestServer(t, &MockHistory{}, &MockBroker{}, nil, config.Config{})

		resp := postJSON(t, ts.URL+"/run-batch", "")
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	t.Run("already running", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		runner := BatchRunnerFunc(func(context.Context) (batch.Summary, error) {
			close(started)
			<-release
			return batch.Summary{Status: batch.StatusOK}, nil
		})
		server := NewServer(&MockHistory{}, &MockBroker{}, runner, config.Config{})
		ts := httptest.NewServer(server.Router())
		t.Cleanup(ts.Close)

		done := make(chan error, 1)
		go func() {
			_, err := server.RunBatch(context.Background())
			done <- err
		}()
		<-started

		resp := postJSON(t, ts.URL+"/run-batch", "")
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		_, err := server.RunBatch(context.Background())
		require.ErrorIs(t, err, ErrBatchRunning)

		close(release)
		require.NoError(t, <-done)
	})
}

func seedRequest(t *testing.T, recorder *history.Recorder) int64 {
	t.Helper()
	ctx, id, err := recorder.StartRequest(context.Background(), "Get the top stories from news.ycombinator.com")
	require.NoError(t, err)
	_, err = recorder.LogStep(ctx, history.StepInput{
		URL:       "https://news.ycombinator.com/",
		ToolName:  "http_get",
		Arguments: map[string]any{"url": "https://news.ycombinator.com/"},
		Result:    "<html>stories</html>",
	})
	require.NoError(t, err)
	return id
}

func TestRequestsAPI(t *testing.T) {
	recorder := liveHistory(events.NewBroker())
	id := seedRequest(t, recorder)
	ts := newTestServer(t, recorder, events.NewBroker(), nil, config.Config{})

	t.Run("search", func(t *testing.T) {
		resp := get(t, ts.URL+"/requests?domain=news.ycombinator.com")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[requestsResponse](t, resp)
		require.Len(t, body.Requests, 1)
		require.Equal(t, id, body.Requests[0].ID)

		resp = get(t, ts.URL+"/requests?url_contains=reddit")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Empty(t, decodeBody[requestsResponse](t, resp).Requests)

		resp = get(t, ts.URL+"/requests?limit=many")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("get", func(t *testing.T) {
		resp := get(t, ts.URL+"/requests/"+itoa(id))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		request := decodeBody[store.ScrapeRequest](t, resp)
		require.Len(t, request.Steps, 1)
		require.Equal(t, "news.ycombinator.com", request.Steps[0].Domain)

		require.Equal(t, http.StatusNotFound, get(t, ts.URL+"/requests/999").StatusCode)
		require.Equal(t, http.StatusBadRequest, get(t, ts.URL+"/requests/abc").StatusCode)
		require.Equal(t, http.StatusBadRequest, get(t, ts.URL+"/requests/0").StatusCode)
	})

	t.Run("final result", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/requests/"+itoa(id)+"/final-result", `{"final_result":"30 stories","success":true}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		request := decodeBody[store.ScrapeRequest](t, resp)
		require.NotNil(t, request.FinalResult)
		require.Equal(t, "30 stories", *request.FinalResult)
		require.True(t, *request.Success)

		resp = postJSON(t, ts.URL+"/requests/999/final-result", `{"success":false}`)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp = postJSON(t, ts.URL+"/requests/"+itoa(id)+"/final-result", `{`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("step outcome", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/requests/"+itoa(id)+"/steps/0/outcome", `{"led_to_data":true,"notes":"front page parsed"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		request := decodeBody[store.ScrapeRequest](t, resp)
		require.True(t, *request.Steps[0].LedToData)
		require.Equal(t, "front page parsed", *request.Steps[0].EvaluatorNotes)

		resp = postJSON(t, ts.URL+"/requests/"+itoa(id)+"/steps/5/outcome", `{"led_to_data":false}`)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		resp = postJSON(t, ts.URL+"/requests/"+itoa(id)+"/steps/0/outcome", `{"notes":"missing flag"}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp = postJSON(t, ts.URL+"/requests/"+itoa(id)+"/steps/first/outcome", `{"led_to_data":true}`)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSearchRequestsStoreError(t *testing.T) {
	hist := &MockHistory{}
	hist.On("Search", mock.Anything, store.SearchFilter{Domain: "example.com", Limit: 5}).
		Return(nil, errors.New("disk I/O error"))
	ts := newTestServer(t, hist, &MockBroker{}, nil, config.Config{})

	resp := get(t, ts.URL+"/requests?domain=example.com&limit=5")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "disk I/O error", decodeBody[map[string]string](t, resp)["detail"])
	hist.AssertExpectations(t)
}

func TestAdviceAPI(t *testing.T) {
	recorder := liveHistory(events.NewBroker())
	ts := newTestServer(t, recorder, events.NewBroker(), nil, config.Config{})

	resp := postJSON(t, ts.URL+"/advice", `{"domain":"https://www.Example.com/path","advice":"Use the API at /v1/items"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[addAdviceResponse](t, resp)
	require.Positive(t, created.ID)
	require.Equal(t, "example.com", created.Domain)

	resp = postJSON(t, ts.URL+"/advice", `{"domain":"example.com","advice":"Pages are rendered client side"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/advice", `{"domain":"example.com"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(t, ts.URL+"/advice?domain=example")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decodeBody[adviceResponse](t, resp).Advice, 2)

	resp = get(t, ts.URL+"/advice?domain=reddit.com")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, decodeBody[adviceResponse](t, resp).Advice)

	resp = get(t, ts.URL+"/advice/summary?domain=www.example.com")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decodeBody[adviceSummaryResponse](t, resp)
	require.Equal(t, "example.com", summary.Domain)
	require.True(t, strings.HasPrefix(summary.Summary, "[Advice for example.com: "))
	require.Contains(t, summary.Summary, "Use the API at /v1/items")
	require.Contains(t, summary.Summary, "Pages are rendered client side")

	resp = get(t, ts.URL+"/advice/summary")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func readEvent(t *testing.T, reader *bufio.Reader) map[string]string {
	t.Helper()
	fields := map[string]string{}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(fields) > 0 {
				return fields
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		key, value, _ := strings.Cut(line, ": ")
		fields[key] = value
	}
	t.Fatal("timed out waiting for event")
	return nil
}

func TestStreamEvents(t *testing.T) {
	broker := events.NewBroker()
	recorder := liveHistory(broker)
	ctx, id, err := recorder.StartRequest(context.Background(), "Find pricing on example.com")
	require.NoError(t, err)
	ts := newTestServer(t, recorder, broker, nil, config.Config{})

	streamCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, ts.URL+"/requests/"+itoa(id)+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	_, err = recorder.LogStep(ctx, history.StepInput{URL: "https://example.com/pricing", ToolName: "browser_navigate"})
	require.NoError(t, err)

	fields := readEvent(t, bufio.NewReader(resp.Body))
	require.Equal(t, events.TypeStepLogged, fields["event"])
	require.True(t, strings.HasPrefix(fields["id"], itoa(id)+":"))
	var event events.RequestEvent
	require.NoError(t, json.Unmarshal([]byte(fields["data"]), &event))
	require.Equal(t, id, event.RequestID)
	require.Equal(t, "example.com", event.Payload["domain"])
}

func TestStreamAllEvents(t *testing.T) {
	broker := events.NewBroker()
	recorder := liveHistory(broker)
	ts := newTestServer(t, recorder, broker, nil, config.Config{})

	streamCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	_, err = recorder.AddAdvice(context.Background(), "example.com", "Prices are in the JSON-LD block")
	require.NoError(t, err)

	fields := readEvent(t, bufio.NewReader(resp.Body))
	require.Equal(t, events.TypeAdviceAdded, fields["event"])
}

func TestStreamReplaysAfterLastEventID(t *testing.T) {
	broker := events.NewBroker()
	recorder := liveHistory(broker)
	ctx, id, err := recorder.StartRequest(context.Background(), "Find pricing on example.com")
	require.NoError(t, err)
	for _, url := range []string{"https://example.com/pricing", "https://example.com/plans"} {
		_, err = recorder.LogStep(ctx, history.StepInput{URL: url, ToolName: "browser_navigate"})
		require.NoError(t, err)
	}
	ts := newTestServer(t, recorder, broker, nil, config.Config{})

	streamCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, ts.URL+"/requests/"+itoa(id)+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", itoa(id)+":1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	second := readEvent(t, reader)
	require.Equal(t, itoa(id)+":2", first["id"])
	require.Equal(t, itoa(id)+":3", second["id"])
	require.Equal(t, events.TypeStepLogged, second["event"])
	require.Contains(t, second["data"], "https://example.com/plans")
}

func TestSearchRequestsExplicitZeroLimit(t *testing.T) {
	recorder := liveHistory(events.NewBroker())
	seedRequest(t, recorder)
	seedRequest(t, recorder)
	ts := newTestServer(t, recorder, events.NewBroker(), nil, config.Config{})

	resp := get(t, ts.URL+"/requests?limit=0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decodeBody[requestsResponse](t, resp).Requests, 1)

	resp = get(t, ts.URL+"/requests")
	require.Len(t, decodeBody[requestsResponse](t, resp).Requests, 2)
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: " 25 ", want: 25},
		{raw: "0", want: 1},
		{raw: "-4", want: 1},
		{raw: "ten", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseLimit(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		assert.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestLastEventSeq(t *testing.T) {
	tests := []struct {
		id   string
		want int64
		ok   bool
	}{
		{id: "", ok: false},
		{id: "7:42", want: 42, ok: true},
		{id: "42", want: 42, ok: true},
		{id: "7:abc", ok: false},
		{id: "7:-1", ok: false},
	}
	for _, tt := range tests {
		got, ok := lastEventSeq(tt.id)
		assert.Equal(t, tt.ok, ok, tt.id)
		assert.Equal(t, tt.want, got, tt.id)
	}
}

func TestStreamEventsErrors(t *testing.T) {
	t.Run("unknown request", func(t *testing.T) {
		hist := &MockHistory{}
		hist.On("GetRequest", mock.Anything, int64(42)).Return(nil, store.RequestNotFound(42))
		ts := newTestServer(t, hist, &MockBroker{}, nil, config.Config{})

		resp := get(t, ts.URL+"/requests/42/events")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("closed subscription", func(t *testing.T) {
		ch := make(chan events.RequestEvent)
		close(ch)
		broker := &MockBroker{}
		broker.On("Subscribe", mock.Anything, events.AllRequests).Return(ch)
		ts := newTestServer(t, &MockHistory{}, broker, nil, config.Config{})

		resp := get(t, ts.URL+"/events")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Empty(t, string(body))
		broker.AssertExpectations(t)
	})

	t.Run("no flusher", func(t *testing.T) {
		server := NewServer(&MockHistory{}, &MockBroker{}, nil, config.Config{})
		writer := &noFlushWriter{}
		server.streamAllEvents(writer, httptest.NewRequest(http.MethodGet, "/events", nil))
		require.Equal(t, http.StatusInternalServerError, writer.status)
	})
}

func TestStreamHeartbeat(t *testing.T) {
	orig := heartbeatInterval
	heartbeatInterval = 10 * time.Millisecond
	t.Cleanup(func() { heartbeatInterval = orig })

	ts := newTestServer(t, &MockHistory{}, events.NewBroker(), nil, config.Config{})
	streamCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": keep-alive\n", line)
}

func TestSendSSE(t *testing.T) {
	recorder := httptest.NewRecorder()
	sendSSE(recorder, events.RequestEvent{
		RequestID: 7,
		Seq:       3,
		Type:      events.TypeStepOutcome,
		Payload:   map[string]any{"step_id": 1},
	})
	out := recorder.Body.String()
	require.True(t, strings.HasPrefix(out, "id: 7:3\nevent: step.outcome\ndata: {"))
	require.True(t, strings.HasSuffix(out, "}\n\n"))
}

func TestShouldSuppressRequestLog(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/events", true},
		{http.MethodGet, "/requests/3/events", true},
		{http.MethodGet, "/health", true},
		{http.MethodGet, "/ready", true},
		{http.MethodGet, "/metrics", true},
		{http.MethodGet, "/requests", false},
		{http.MethodPost, "/run-batch", false},
		{http.MethodPost, "/health", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, shouldSuppressRequestLog(tc.method, tc.path), "%s %s", tc.method, tc.path)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, &MockHistory{}, &MockBroker{}, nil, config.Config{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/advice", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	recorder := history.New(liveStore(), history.WithMetrics(m))
	_, _, err := recorder.StartRequest(context.Background(), "count me")
	require.NoError(t, err)

	server := NewServer(recorder, events.NewBroker(), nil, config.Config{}, WithMetrics(m))
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	resp := get(t, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "scraper_requests_started_total 1")

	bare := newTestServer(t, &MockHistory{}, &MockBroker{}, nil, config.Config{})
	require.Equal(t, http.StatusOK, get(t, bare.URL+"/metrics").StatusCode)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	server := NewServer(&MockHistory{}, &MockBroker{}, nil, config.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx, "127.0.0.1:0")
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
