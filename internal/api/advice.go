package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

type adviceResponse struct {
	Advice []store.AdviceEntry `json:"advice"`
}

func (s *Server) listAdvice(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.history.GetAdvice(r.Context(), store.AdviceFilter{
		Domain: strings.TrimSpace(query.Get("domain")),
		Limit:  limit,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if entries == nil {
		entries = []store.AdviceEntry{}
	}
	writeJSON(w, adviceResponse{Advice: entries})
}

type addAdviceRequest struct {
	Domain string `json:"domain"`
	Advice string `json:"advice"`
}

type addAdviceResponse struct {
	ID     int64  `json:"id"`
	Domain string `json:"domain"`
	Advice string `json:"advice"`
}

func (s *Server) addAdvice(w http.ResponseWriter, r *http.Request) {
	var body addAdviceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	body.Domain = strings.TrimSpace(body.Domain)
	body.Advice = strings.TrimSpace(body.Advice)
	if body.Domain == "" || body.Advice == "" {
		writeDetail(w, http.StatusBadRequest, "domain and advice are required")
		return
	}
	id, err := s.history.AddAdvice(r.Context(), body.Domain, body.Advice)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSONStatus(w, addAdviceResponse{
		ID:     id,
		Domain: store.NormalizeDomain(body.Domain),
		Advice: body.Advice,
	}, http.StatusCreated)
}

type adviceSummaryResponse struct {
	Domain  string `json:"domain"`
	Summary string `json:"summary"`
}

func (s *Server) adviceSummary(w http.ResponseWriter, r *http.Request) {
	domain := strings.TrimSpace(r.URL.Query().Get("domain"))
	if domain == "" {
		writeDetail(w, http.StatusBadRequest, "domain is required")
		return
	}
	summary, err := s.history.AdviceSummary(r.Context(), domain)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, adviceSummaryResponse{Domain: store.NormalizeDomain(domain), Summary: summary})
}
