// Package api exposes the HTTP interface for the lookup service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aryan-cs/hackaplan/internal/config"
	"github.com/aryan-cs/hackaplan/internal/devpost"
	"github.com/aryan-cs/hackaplan/internal/lookup"
	"github.com/aryan-cs/hackaplan/internal/metrics"
)

// Searcher serves hackathon suggestions for the search endpoint.
type Searcher interface {
	SearchHackathons(ctx context.Context, query string, limit int) ([]devpost.Suggestion, error)
}

// Server wires HTTP handlers to the orchestrator and store.
type Server struct {
	router   chi.Router
	store    lookup.Store
	orch     *lookup.Orchestrator
	searcher Searcher
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store lookup.Store,
	orch *lookup.Orchestrator,
	searcher Searcher,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		orch:     orch,
		searcher: searcher,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))

	r.Get("/metrics", metrics.Handler().ServeHTTP)

	requestTimeout := time.Duration(cfg.Server.RequestTimeout) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	r.Route("/api/v1", func(r chi.Router) {
		// The event stream stays open for the life of a lookup, so it must
		// not sit behind the request timeout.
		r.Get("/lookups/{lookup_id}/events", s.streamLookupEvents)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(requestTimeout))
			r.Get("/hackathons/search", s.searchHackathons)
			r.With(s.rateLimitMiddleware("lookups")).Post("/lookups", s.createLookup)
			r.Get("/lookups/{lookup_id}", s.getLookup)
		})
	})

	r.Get("/health", s.health)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}
