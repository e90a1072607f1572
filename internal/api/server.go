package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/batch"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/config"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/events"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/metrics"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

var ErrBatchRunning = errors.New("a batch is already running")

type Server struct {
	history HistoryService
	broker  Broker
	batches BatchRunner
	metrics *metrics.Metrics
	cfg     config.Config
	logger  *zap.Logger
	batchMu sync.Mutex
}

// HistoryService is implemented by history.Recorder.
type HistoryService interface {
	GetRequest(ctx context.Context, requestID int64) (*store.ScrapeRequest, error)
	Search(ctx context.Context, filter store.SearchFilter) ([]store.ScrapeRequest, error)
	UpdateFinalResult(ctx context.Context, requestID int64, update store.FinalResultUpdate) error
	UpdateStepOutcome(ctx context.Context, requestID int64, stepID int, outcome store.StepOutcome) error
	AddAdvice(ctx context.Context, domain string, advice string) (int64, error)
	GetAdvice(ctx context.Context, filter store.AdviceFilter) ([]store.AdviceEntry, error)
	AdviceSummary(ctx context.Context, domain string) (string, error)
	Ping(ctx context.Context) error
}

type Broker interface {
	Subscribe(ctx context.Context, requestID int64) <-chan events.RequestEvent
	Since(requestID int64, afterSeq int64) []events.RequestEvent
}

type BatchRunner interface {
	RunBatch(ctx context.Context) (batch.Summary, error)
}

// BatchRunnerFunc adapts a function to BatchRunner.
type BatchRunnerFunc func(ctx context.Context) (batch.Summary, error)

func (f BatchRunnerFunc) RunBatch(ctx context.Context) (batch.Summary, error) {
	return f(ctx)
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewServer(history HistoryService, broker Broker, batches BatchRunner, cfg config.Config, opts ...Option) *Server {
	s := &Server{
		history: history,
		broker:  broker,
		batches: batches,
		cfg:     cfg,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(quietRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/", s.getHTMLReport)
	r.Get("/report.md", s.getMarkdownReport)
	r.Post("/run-batch", s.runBatch)
	r.Get("/requests", s.searchRequests)
	r.Get("/requests/{id}", s.getRequest)
	r.Post("/requests/{id}/final-result", s.updateFinalResult)
	r.Post("/requests/{id}/steps/{stepID}/outcome", s.updateStepOutcome)
	r.Get("/requests/{id}/events", s.streamEvents)
	r.Get("/events", s.streamAllEvents)
	r.Get("/advice", s.listAdvice)
	r.Post("/advice", s.addAdvice)
	r.Get("/advice/summary", s.adviceSummary)
	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

func quietRequestLogger(next http.Handler) http.Handler {
	logged := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shouldSuppressRequestLog(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
}

func shouldSuppressRequestLog(method string, path string) bool {
	cleanPath := strings.TrimSpace(path)
	if method != http.MethodGet {
		return false
	}
	return strings.HasSuffix(cleanPath, "/events") ||
		cleanPath == "/health" ||
		cleanPath == "/ready" ||
		cleanPath == "/metrics"
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK
	if err := s.history.Ping(ctx); err != nil {
		subsystems["store"] = subsystemStatus{Status: "error", Error: err.Error()}
		overall = http.StatusServiceUnavailable
	} else {
		subsystems["store"] = subsystemStatus{Status: "ok"}
	}
	if s.batches == nil {
		subsystems["batch"] = subsystemStatus{Status: "skipped"}
	} else {
		subsystems["batch"] = subsystemStatus{Status: "ok"}
	}

	status := "ok"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{Status: status, Subsystems: subsystems}, overall)
}

// RunBatch runs one batch at a time; a concurrent call gets ErrBatchRunning.
// The scheduler and POST /run-batch both go through here.
func (s *Server) RunBatch(ctx context.Context) (batch.Summary, error) {
	if s.batches == nil {
		return batch.Summary{Status: batch.StatusError}, errors.New("batch runner not configured")
	}
	if !s.batchMu.TryLock() {
		return batch.Summary{Status: batch.StatusError}, ErrBatchRunning
	}
	defer s.batchMu.Unlock()

	s.logger.Info("starting batch scraping job")
	summary, err := s.batches.RunBatch(ctx)
	if err != nil {
		s.logger.Error("batch job failed", zap.Error(err))
		return summary, err
	}
	s.logger.Info("batch job finished",
		zap.Int("prompts", summary.Prompts),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request) {
	summary, err := s.RunBatch(r.Context())
	if errors.Is(err, ErrBatchRunning) {
		writeDetail(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Batch job failed: "+err.Error())
		return
	}
	writeJSON(w, summary)
}

func (s *Server) getHTMLReport(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, s.cfg.HTMLOutputFile(), "text/html; charset=utf-8")
}

func (s *Server) getMarkdownReport(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, s.cfg.OutputFile, "text/markdown; charset=utf-8")
}

func (s *Server) serveReport(w http.ResponseWriter, r *http.Request, path string, contentType string) {
	data, err := readReport(path)
	if err != nil {
		if errors.Is(err, errReportMissing) {
			writeDetail(w, http.StatusNotFound, "Report not generated yet.")
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, value any) {
	writeJSONStatus(w, value, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeDetail(w http.ResponseWriter, statusCode int, detail string) {
	writeJSONStatus(w, map[string]string{"detail": detail}, statusCode)
}

// writeStoreError maps store sentinels to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeDetail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrOutOfRange):
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeDetail(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
