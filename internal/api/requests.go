package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/events"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

var heartbeatInterval = 15 * time.Second

type requestsResponse struct {
	Requests []store.ScrapeRequest `json:"requests"`
}

func (s *Server) searchRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	requests, err := s.history.Search(r.Context(), store.SearchFilter{
		Domain:      strings.TrimSpace(query.Get("domain")),
		URLContains: strings.TrimSpace(query.Get("url_contains")),
		Limit:       limit,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if requests == nil {
		requests = []store.ScrapeRequest{}
	}
	writeJSON(w, requestsResponse{Requests: requests})
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	request, err := s.history.GetRequest(r.Context(), requestID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, request)
}

type finalResultRequest struct {
	FinalResult *string `json:"final_result"`
	Success     *bool   `json:"success"`
}

func (s *Server) updateFinalResult(w http.ResponseWriter, r *http.Request) {
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	var body finalResultRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	update := store.FinalResultUpdate{FinalResult: body.FinalResult, Success: body.Success}
	if err := s.history.UpdateFinalResult(r.Context(), requestID, update); err != nil {
		writeStoreError(w, err)
		return
	}
	s.writeRequest(w, r, requestID)
}

type stepOutcomeRequest struct {
	LedToData *bool   `json:"led_to_data"`
	Notes     *string `json:"notes"`
}

func (s *Server) updateStepOutcome(w http.ResponseWriter, r *http.Request) {
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	stepID, err := strconv.Atoi(chi.URLParam(r, "stepID"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "step id must be an integer")
		return
	}
	var body stepOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if body.LedToData == nil {
		writeDetail(w, http.StatusBadRequest, "led_to_data is required")
		return
	}
	outcome := store.StepOutcome{LedToData: body.LedToData, EvaluatorNotes: body.Notes}
	if err := s.history.UpdateStepOutcome(r.Context(), requestID, stepID, outcome); err != nil {
		writeStoreError(w, err)
		return
	}
	s.writeRequest(w, r, requestID)
}

func (s *Server) writeRequest(w http.ResponseWriter, r *http.Request, requestID int64) {
	request, err := s.history.GetRequest(r.Context(), requestID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, request)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	if _, err := s.history.GetRequest(r.Context(), requestID); err != nil {
		writeStoreError(w, err)
		return
	}
	s.stream(w, r, requestID)
}

func (s *Server) streamAllEvents(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, events.AllRequests)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, requestID int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	eventsChan := s.broker.Subscribe(ctx, requestID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var lastSeq int64
	if seq, ok := lastEventSeq(r.Header.Get("Last-Event-ID")); ok {
		lastSeq = seq
		for _, event := range s.broker.Since(requestID, seq) {
			sendSSE(w, event)
			lastSeq = event.Seq
		}
	}
	flusher.Flush()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-eventsChan:
			if !ok {
				return
			}
			if event.Seq <= lastSeq {
				continue
			}
			sendSSE(w, event)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, event events.RequestEvent) {
	payload, _ := json.Marshal(event)
	fmt.Fprintf(w, "id: %d:%d\n", event.RequestID, event.Seq)
	fmt.Fprintf(w, "event: %s\n", event.Type)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

// lastEventSeq extracts the sequence number from an SSE id of the form
// "<request_id>:<seq>".
func lastEventSeq(id string) (int64, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, false
	}
	_, raw, found := strings.Cut(id, ":")
	if !found {
		raw = id
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

func requestIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	requestID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || requestID <= 0 {
		writeDetail(w, http.StatusBadRequest, "request id must be a positive integer")
		return 0, false
	}
	return requestID, true
}

// parseLimit returns 0 (the store default) when limit is omitted. An
// explicit value below 1 means 1.
func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer")
	}
	return max(limit, 1), nil
}
