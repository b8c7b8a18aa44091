// Package api exposes the analyzer over HTTP: model registry, analysis
// runs, fix sessions, query executions, and the rule catalog.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"modelsentry/internal/domain"
	"modelsentry/internal/service/analysis"
	"modelsentry/internal/service/autofix"
	"modelsentry/internal/service/queryexec"
)

// Handler serves the /v1 API. Autofix and Queries may be nil-free but
// degraded (see the services); the handler itself requires all three.
type Handler struct {
	analysis *analysis.Service
	autofix  *autofix.Service
	queries  *queryexec.Service
	rules    domain.RuleProvider
	logger   *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(
	analysisSvc *analysis.Service,
	autofixSvc *autofix.Service,
	queriesSvc *queryexec.Service,
	ruleProvider domain.RuleProvider,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		analysis: analysisSvc,
		autofix:  autofixSvc,
		queries:  queriesSvc,
		rules:    ruleProvider,
		logger:   logger,
	}
}

// Routes mounts every endpoint on a fresh sub-router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/models", func(r chi.Router) {
		r.Get("/", h.listModels)
		r.Post("/", h.registerModel)
		r.Get("/{databaseName}", h.getModel)
		r.Delete("/{databaseName}", h.deleteModel)
		r.Post("/{databaseName}/analyze", h.startRun)
		r.Get("/{databaseName}/runs", h.listRuns)
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/{id}", h.getRun)
		r.Post("/{id}/cancel", h.cancelRun)
		r.Get("/{id}/findings", h.listFindings)
	})

	r.Route("/findings", func(r chi.Router) {
		r.Get("/{id}", h.getFinding)
		r.Post("/{id}/fix", h.startFixSession)
		r.Get("/{id}/fix-sessions", h.listFixSessions)
	})

	r.Route("/fix-sessions", func(r chi.Router) {
		r.Get("/{id}", h.getFixSession)
		r.Post("/{id}/cancel", h.cancelFixSession)
		r.Get("/{id}/steps", h.listFixSteps)
	})

	r.Route("/queries", func(r chi.Router) {
		r.Post("/", h.submitQuery)
		r.Get("/history", h.queryHistory)
		r.Get("/{id}", h.getQuery)
		r.Post("/{id}/cancel", h.cancelQuery)
		r.Delete("/{id}", h.deleteQuery)
	})

	r.Get("/rules", h.listRules)

	return r
}

// respondJSON writes v as the JSON response body with the given status.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON parses the request body into v, mapping malformed input to
// a ValidationError.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}
