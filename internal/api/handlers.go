package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aryan-cs/hackaplan/internal/apperr"
	"github.com/aryan-cs/hackaplan/internal/devpost"
	"github.com/aryan-cs/hackaplan/internal/lookup"
)

type createLookupRequest struct {
	HackathonURL string `json:"hackathon_url"`
}

type lookupResponse struct {
	LookupID     string               `json:"lookup_id"`
	Status       lookup.Status        `json:"status"`
	HackathonURL string               `json:"hackathon_url"`
	CreatedAt    time.Time            `json:"created_at"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
	Error        *lookup.JobError     `json:"error,omitempty"`
	Result       *devpost.CrawlResult `json:"result,omitempty"`
}

func lookupResponseFromJob(job lookup.Job) lookupResponse {
	return lookupResponse{
		LookupID:     job.ID,
		Status:       job.Status,
		HackathonURL: job.HackathonURL,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
		Error:        job.Error,
	}
}

func (s *Server) createLookup(w http.ResponseWriter, r *http.Request) {
	var req createLookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest,
			string(apperr.CodeValidation), "request body must be JSON with hackathon_url")
		return
	}

	job, err := s.orch.Submit(r.Context(), req.HackathonURL)
	if err != nil {
		code := apperr.CodeOf(err)
		writeError(w, httpStatusForCode(code), string(code), err.Error())
		return
	}

	status := http.StatusAccepted
	if job.Status == lookup.StatusCompleted {
		status = http.StatusOK
	}
	writeJSON(w, status, lookupResponseFromJob(job))
}

func (s *Server) getLookup(w http.ResponseWriter, r *http.Request) {
	lookupID := chi.URLParam(r, "lookup_id")
	job, err := s.store.GetJob(r.Context(), lookupID)
	if err != nil {
		if errors.Is(err, lookup.ErrNotFound) {
			writeError(w, http.StatusNotFound,
				string(apperr.CodeNotFound), "lookup not found")
			return
		}
		s.logger.Error("loading lookup", zap.String("lookup_id", lookupID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load lookup")
		return
	}

	resp := lookupResponseFromJob(job)
	if job.Status == lookup.StatusCompleted {
		result, err := s.store.GetResult(r.Context(), lookupID)
		switch {
		case err == nil:
			resp.Result = result
		case !errors.Is(err, lookup.ErrNotFound):
			s.logger.Error("loading lookup result", zap.String("lookup_id", lookupID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchResponse struct {
	Query       string               `json:"query"`
	Suggestions []devpost.Suggestion `json:"suggestions"`
}

func (s *Server) searchHackathons(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 8
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest,
				string(apperr.CodeValidation), "limit must be an integer")
			return
		}
		limit = parsed
	}

	suggestions, err := s.searcher.SearchHackathons(r.Context(), query, limit)
	if err != nil {
		code := apperr.CodeOf(err)
		writeError(w, httpStatusForCode(code), string(code), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Suggestions: suggestions})
}

func httpStatusForCode(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeBlocked, apperr.CodeNetwork:
		return http.StatusBadGateway
	case apperr.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
