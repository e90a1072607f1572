package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

type MemoryStore struct {
	mu           sync.RWMutex
	requests     map[int64]store.ScrapeRequest
	advice       []store.AdviceEntry
	nextRequest  int64
	nextAdviceID int64
}

func New() *MemoryStore {
	return &MemoryStore{
		requests: map[int64]store.ScrapeRequest{},
	}
}

func (m *MemoryStore) StartRequest(ctx context.Context, prompt string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRequest++
	now := store.Now()
	m.requests[m.nextRequest] = store.ScrapeRequest{
		ID:        m.nextRequest,
		Prompt:    prompt,
		Steps:     []store.Step{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return m.nextRequest, nil
}

func (m *MemoryStore) GetRequest(ctx context.Context, requestID int64) (*store.ScrapeRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[requestID]
	if !ok {
		return nil, store.RequestNotFound(requestID)
	}
	cloned := store.CloneRequest(req)
	return &cloned, nil
}

func (m *MemoryStore) AppendStep(ctx context.Context, requestID int64, step store.Step) (store.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return store.Step{}, store.RequestNotFound(requestID)
	}
	appended := store.CloneStep(step)
	appended.StepID = len(req.Steps)
	req.Steps = append(req.Steps, appended)
	req.Domain = store.AdoptDomain(req.Domain, appended.Domain)
	req.UpdatedAt = store.Now()
	m.requests[requestID] = req
	return store.CloneStep(appended), nil
}

// UpdateFinalResult on an unknown request returns store.ErrNotFound.
func (m *MemoryStore) UpdateFinalResult(ctx context.Context, requestID int64, update store.FinalResultUpdate) error {
	if update.Empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return store.RequestNotFound(requestID)
	}
	if update.FinalResult != nil {
		value := *update.FinalResult
		req.FinalResult = &value
	}
	if update.Success != nil {
		value := *update.Success
		req.Success = &value
	}
	req.UpdatedAt = store.Now()
	m.requests[requestID] = req
	return nil
}

func (m *MemoryStore) UpdateStepOutcome(ctx context.Context, requestID int64, stepID int, outcome store.StepOutcome) error {
	if outcome.Empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return store.RequestNotFound(requestID)
	}
	steps := store.CloneSteps(req.Steps)
	if err := store.ApplyOutcome(requestID, steps, stepID, outcome); err != nil {
		return err
	}
	req.Steps = steps
	req.UpdatedAt = store.Now()
	m.requests[requestID] = req
	return nil
}

func (m *MemoryStore) SearchRequests(ctx context.Context, filter store.SearchFilter) ([]store.ScrapeRequest, error) {
	filter = filter.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()
	matches := make([]store.ScrapeRequest, 0, len(m.requests))
	for _, req := range m.requests {
		if !filter.MatchesDomain(req) || !filter.MatchesURL(req.Steps) {
			continue
		}
		matches = append(matches, req)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt != matches[j].CreatedAt {
			return matches[i].CreatedAt > matches[j].CreatedAt
		}
		return matches[i].ID > matches[j].ID
	})
	if len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	results := make([]store.ScrapeRequest, len(matches))
	for i, req := range matches {
		results[i] = store.CloneRequest(req)
	}
	return results, nil
}

func (m *MemoryStore) AddAdvice(ctx context.Context, domain string, advice string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAdviceID++
	m.advice = append(m.advice, store.AdviceEntry{
		ID:        m.nextAdviceID,
		Domain:    store.NormalizeDomain(domain),
		Advice:    advice,
		CreatedAt: store.Now(),
	})
	return m.nextAdviceID, nil
}

func (m *MemoryStore) ListAdvice(ctx context.Context, filter store.AdviceFilter) ([]store.AdviceEntry, error) {
	filter = filter.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []store.AdviceEntry{}
	for i := len(m.advice) - 1; i >= 0 && len(results) < filter.Limit; i-- {
		entry := m.advice[i]
		if filter.Domain != "" && !strings.Contains(entry.Domain, filter.Domain) {
			continue
		}
		results = append(results, entry)
	}
	return results, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
