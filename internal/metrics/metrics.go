package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors for scrape history and batch runs. All
// methods are safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	Registry             *prometheus.Registry
	RequestsStartedTotal prometheus.Counter
	RequestsAutoCreated  prometheus.Counter
	StepsLoggedTotal     *prometheus.CounterVec
	StepOutcomesTotal    *prometheus.CounterVec
	FinalResultsTotal    *prometheus.CounterVec
	AdviceAddedTotal     prometheus.Counter
	ToolDuration         *prometheus.HistogramVec
	StoreErrorsTotal     *prometheus.CounterVec
	BatchPromptsTotal    *prometheus.CounterVec
	BatchDuration        prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scraper_requests_started_total",
		Help: "Scrape requests opened by a session.",
	})
	autoCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scraper_requests_auto_created_total",
		Help: "Scrape requests created implicitly because a step arrived without a session request.",
	})
	stepsLogged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_steps_logged_total",
		Help: "Tool calls appended to scrape requests.",
	}, []string{"tool"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_step_outcomes_total",
		Help: "Step outcomes recorded by the evaluator.",
	}, []string{"led_to_data"})
	finalResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_final_results_total",
		Help: "Final results recorded on scrape requests.",
	}, []string{"success"})
	adviceAdded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scraper_advice_added_total",
		Help: "Scraping advice entries added.",
	})
	toolDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scraper_tool_duration_seconds",
		Help:    "Tool call latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})
	storeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_store_errors_total",
		Help: "History store failures by operation.",
	}, []string{"operation"})
	batchPrompts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_batch_prompts_total",
		Help: "Batch prompts processed by result.",
	}, []string{"status"})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scraper_batch_duration_seconds",
		Help:    "Wall time of a whole batch run.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	registry.MustRegister(requestsStarted, autoCreated, stepsLogged, outcomes, finalResults,
		adviceAdded, toolDuration, storeErrors, batchPrompts, batchDuration)

	return &Metrics{
		Registry:             registry,
		RequestsStartedTotal: requestsStarted,
		RequestsAutoCreated:  autoCreated,
		StepsLoggedTotal:     stepsLogged,
		StepOutcomesTotal:    outcomes,
		FinalResultsTotal:    finalResults,
		AdviceAddedTotal:     adviceAdded,
		ToolDuration:         toolDuration,
		StoreErrorsTotal:     storeErrors,
		BatchPromptsTotal:    batchPrompts,
		BatchDuration:        batchDuration,
	}
}

// Handler exposes the dedicated registry. A nil receiver serves an empty registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncRequestStarted() {
	if m == nil {
		return
	}
	m.RequestsStartedTotal.Inc()
}

func (m *Metrics) IncAutoCreated() {
	if m == nil {
		return
	}
	m.RequestsAutoCreated.Inc()
}

func (m *Metrics) IncStepLogged(tool string) {
	if m == nil {
		return
	}
	m.StepsLoggedTotal.WithLabelValues(tool).Inc()
}

func (m *Metrics) IncStepOutcome(ledToData *bool) {
	if m == nil {
		return
	}
	m.StepOutcomesTotal.WithLabelValues(boolLabel(ledToData)).Inc()
}

func (m *Metrics) IncFinalResult(success *bool) {
	if m == nil {
		return
	}
	m.FinalResultsTotal.WithLabelValues(boolLabel(success)).Inc()
}

func (m *Metrics) IncAdviceAdded() {
	if m == nil {
		return
	}
	m.AdviceAddedTotal.Inc()
}

func (m *Metrics) ObserveTool(tool string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) IncStoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncBatchPrompt(success bool) {
	if m == nil {
		return
	}
	status := "failed"
	if success {
		status = "successful"
	}
	m.BatchPromptsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(d.Seconds())
}

func boolLabel(value *bool) string {
	if value == nil {
		return "unset"
	}
	return strconv.FormatBool(*value)
}
