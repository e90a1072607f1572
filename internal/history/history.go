// Package history is the entry point agents and services use to record and
// query scrape activity. It binds the current request to the session
// context, publishes request events and keeps metrics.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/events"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/metrics"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/session"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

const (
	adviceCacheSize = 256
	// DefaultAdviceCacheTTL bounds how long a summary may lag advice added
	// through another store handle, such as the CLI next to the service.
	DefaultAdviceCacheTTL = 5 * time.Second
)

type Recorder struct {
	store       store.Store
	broker      *events.Broker
	metrics     *metrics.Metrics
	logger      *zap.Logger
	adviceCache *expirable.LRU[string, string]
	adviceTTL   time.Duration
	now         func() time.Time
}

type Option func(*Recorder)

func WithBroker(broker *events.Broker) Option {
	return func(r *Recorder) {
		r.broker = broker
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithAdviceCacheTTL sets how long advice summaries are cached. Zero or a
// negative value reads through to the store on every call.
func WithAdviceCacheTTL(ttl time.Duration) Option {
	return func(r *Recorder) {
		r.adviceTTL = ttl
	}
}

func New(st store.Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:     st,
		logger:    zap.NewNop(),
		adviceTTL: DefaultAdviceCacheTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.adviceTTL > 0 {
		r.adviceCache = expirable.NewLRU[string, string](adviceCacheSize, nil, r.adviceTTL)
	}
	return r
}

// StepInput describes one finished tool call. RequestID overrides the
// session binding when non-zero.
type StepInput struct {
	RequestID int64
	URL       string
	ToolName  string
	Arguments map[string]any
	Result    string
}

// StepRef identifies a logged step. AutoCreated reports that no request was
// bound to the call and a placeholder request was opened for it.
type StepRef struct {
	RequestID   int64
	StepID      int
	AutoCreated bool
}

// StartRequest opens a request for prompt and returns a context bound to it.
func (r *Recorder) StartRequest(ctx context.Context, prompt string) (context.Context, int64, error) {
	id, err := r.store.StartRequest(ctx, prompt)
	if err != nil {
		r.metrics.IncStoreError("start_request")
		return ctx, 0, err
	}
	r.metrics.IncRequestStarted()
	r.logger.Info("scrape request started", zap.Int64("request_id", id))
	r.publish(id, events.TypeRequestStarted, map[string]any{"prompt": prompt})
	bound := session.With(ctx, session.Session{
		RequestID: id,
		Prompt:    prompt,
		Today:     r.now().UTC().Format(time.DateOnly),
	})
	return bound, id, nil
}

// LogStep appends a step to the explicit request, else the session request.
// Without either it opens a placeholder request so the tool call is never
// lost; the caller sees that through StepRef.AutoCreated.
func (r *Recorder) LogStep(ctx context.Context, input StepInput) (StepRef, error) {
	ref := StepRef{RequestID: input.RequestID}
	if ref.RequestID == 0 {
		ref.RequestID = session.RequestID(ctx)
	}
	if ref.RequestID == 0 {
		id, err := r.store.StartRequest(ctx, store.AutoCreatedPrompt)
		if err != nil {
			r.metrics.IncStoreError("start_request")
			return StepRef{}, err
		}
		ref.RequestID = id
		ref.AutoCreated = true
		r.metrics.IncAutoCreated()
		r.logger.Warn("step logged without a bound request, opened placeholder request",
			zap.Int64("request_id", id), zap.String("tool", input.ToolName))
		r.publish(id, events.TypeRequestStarted, map[string]any{"prompt": store.AutoCreatedPrompt, "auto_created": true})
	}

	step := store.NewStep(input.URL, input.ToolName, input.Arguments, input.Result, r.now())
	appended, err := r.store.AppendStep(ctx, ref.RequestID, step)
	if err != nil {
		r.metrics.IncStoreError("append_step")
		return StepRef{}, err
	}
	ref.StepID = appended.StepID
	r.metrics.IncStepLogged(input.ToolName)
	r.logger.Debug("step logged",
		zap.Int64("request_id", ref.RequestID),
		zap.Int("step_id", ref.StepID),
		zap.String("tool", input.ToolName),
		zap.String("domain", appended.Domain))
	r.publish(ref.RequestID, events.TypeStepLogged, map[string]any{
		"step_id":        appended.StepID,
		"tool_name":      appended.ToolName,
		"url":            appended.URL,
		"domain":         appended.Domain,
		"result_summary": appended.ResultSummary,
	})
	return ref, nil
}

// UpdateFinalResult is last-write-wins. An empty update is a no-op.
func (r *Recorder) UpdateFinalResult(ctx context.Context, requestID int64, update store.FinalResultUpdate) error {
	if update.Empty() {
		return nil
	}
	if err := r.store.UpdateFinalResult(ctx, requestID, update); err != nil {
		r.recordStoreError("update_final_result", err)
		return err
	}
	r.metrics.IncFinalResult(update.Success)
	payload := map[string]any{}
	if update.Success != nil {
		payload["success"] = *update.Success
	}
	if update.FinalResult != nil {
		payload["final_result"] = store.Summarize(*update.FinalResult, store.ResultSummaryMax)
	}
	r.publish(requestID, events.TypeRequestCompleted, payload)
	return nil
}

func (r *Recorder) UpdateStepOutcome(ctx context.Context, requestID int64, stepID int, outcome store.StepOutcome) error {
	if outcome.Empty() {
		return nil
	}
	if err := r.store.UpdateStepOutcome(ctx, requestID, stepID, outcome); err != nil {
		r.recordStoreError("update_step_outcome", err)
		return err
	}
	r.metrics.IncStepOutcome(outcome.LedToData)
	payload := map[string]any{"step_id": stepID}
	if outcome.LedToData != nil {
		payload["led_to_data"] = *outcome.LedToData
	}
	if outcome.EvaluatorNotes != nil {
		payload["evaluator_notes"] = *outcome.EvaluatorNotes
	}
	r.publish(requestID, events.TypeStepOutcome, payload)
	return nil
}

func (r *Recorder) GetRequest(ctx context.Context, requestID int64) (*store.ScrapeRequest, error) {
	return r.store.GetRequest(ctx, requestID)
}

func (r *Recorder) Search(ctx context.Context, filter store.SearchFilter) ([]store.ScrapeRequest, error) {
	results, err := r.store.SearchRequests(ctx, filter)
	if err != nil {
		r.metrics.IncStoreError("search")
		return nil, err
	}
	return results, nil
}

func (r *Recorder) AddAdvice(ctx context.Context, domain string, advice string) (int64, error) {
	id, err := r.store.AddAdvice(ctx, domain, advice)
	if err != nil {
		r.metrics.IncStoreError("add_advice")
		return 0, err
	}
	// A partial-match summary for any cached domain may now include this entry.
	if r.adviceCache != nil {
		r.adviceCache.Purge()
	}
	r.metrics.IncAdviceAdded()
	r.logger.Info("scraping advice added", zap.Int64("advice_id", id), zap.String("domain", store.NormalizeDomain(domain)))
	if r.broker != nil {
		r.broker.Publish(events.RequestEvent{
			RequestID: events.AllRequests,
			Type:      events.TypeAdviceAdded,
			Payload:   map[string]any{"advice_id": id, "domain": store.NormalizeDomain(domain)},
		})
	}
	return id, nil
}

func (r *Recorder) GetAdvice(ctx context.Context, filter store.AdviceFilter) ([]store.AdviceEntry, error) {
	entries, err := r.store.ListAdvice(ctx, filter)
	if err != nil {
		r.metrics.IncStoreError("get_advice")
		return nil, err
	}
	return entries, nil
}

// AdviceSummary joins the newest advice for domain into one line, or "" when
// there is none. Non-empty summaries are cached for the advice cache TTL;
// "no advice yet" is never cached.
func (r *Recorder) AdviceSummary(ctx context.Context, domain string) (string, error) {
	key := store.NormalizeDomain(domain)
	if r.adviceCache != nil {
		if summary, ok := r.adviceCache.Get(key); ok {
			return summary, nil
		}
	}
	entries, err := r.GetAdvice(ctx, store.AdviceFilter{Domain: key, Limit: store.AdviceSummaryLimit})
	if err != nil {
		return "", err
	}
	summary := store.AdviceSummary(key, entries)
	if summary != "" && r.adviceCache != nil {
		r.adviceCache.Add(key, summary)
	}
	return summary, nil
}

func (r *Recorder) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func (r *Recorder) recordStoreError(operation string, err error) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrOutOfRange) {
		r.logger.Warn("history update rejected", zap.String("operation", operation), zap.Error(err))
		return
	}
	r.metrics.IncStoreError(operation)
	r.logger.Error("history update failed", zap.String("operation", operation), zap.Error(err))
}

func (r *Recorder) publish(requestID int64, eventType string, payload map[string]any) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(events.RequestEvent{
		RequestID: requestID,
		Type:      eventType,
		Payload:   payload,
	})
}
