package main

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/CTAG07/nest/pkg/pagestore"
)

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	store  *pagestore.Store
	logger *slog.Logger
}

// PageStatsResponse adds the derived average to the stored counters.
type PageStatsResponse struct {
	pagestore.PageStats
	AverageTime string `json:"average_time"`
}

func NewStatsAPI(store *pagestore.Store, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		store:  store,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/stats/pages", s.handlePages)
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, ScopeStatsRead) {
		return
	}
	summary, err := s.store.Summary(r.Context())
	if err != nil {
		s.logger.Error("Failed to get stats summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve stats summary")
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// handlePages returns per-page counters, most rendered first.
func (s *StatsAPI) handlePages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, ScopeStatsRead) {
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		if limit, err = strconv.Atoi(l); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
	}
	stats, err := s.store.Stats(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to get page stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve page stats")
		return
	}
	resp := make([]PageStatsResponse, len(stats))
	for i, st := range stats {
		resp[i] = PageStatsResponse{PageStats: st, AverageTime: st.AverageTime().String()}
	}
	respondWithJSON(w, http.StatusOK, resp)
}
