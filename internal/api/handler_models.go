package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"modelsentry/internal/domain"
)

type registerModelRequest struct {
	DatabaseName  string `json:"databaseName"`
	ServerAddress string `json:"serverAddress"`
	ModelName     string `json:"modelName"`
}

func (h *Handler) registerModel(w http.ResponseWriter, r *http.Request) {
	var req registerModelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	model, err := h.analysis.RegisterModel(r.Context(), &domain.RegisterModelRequest{
		DatabaseName:  req.DatabaseName,
		ServerAddress: req.ServerAddress,
		ModelName:     req.ModelName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, modelToAPI(model))
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.analysis.ListModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]Model, 0, len(models))
	for i := range models {
		out = append(out, modelToAPI(&models[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getModel(w http.ResponseWriter, r *http.Request) {
	model, err := h.analysis.GetModel(r.Context(), chi.URLParam(r, "databaseName"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, modelToAPI(model))
}

func (h *Handler) deleteModel(w http.ResponseWriter, r *http.Request) {
	if err := h.analysis.DeleteModel(r.Context(), chi.URLParam(r, "databaseName")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) startRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.analysis.StartRun(r.Context(), chi.URLParam(r, "databaseName"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, runToAPI(run))
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.analysis.ListRuns(r.Context(), chi.URLParam(r, "databaseName"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]Run, 0, len(runs))
	for i := range runs {
		out = append(out, runToAPI(&runs[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.analysis.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, runToAPI(run))
}

func (h *Handler) cancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.analysis.CancelRun(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	run, err := h.analysis.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, runToAPI(run))
}

func (h *Handler) listFindings(w http.ResponseWriter, r *http.Request) {
	findings, summary, err := h.analysis.ListFindings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	page := FindingsPage{
		Findings: make([]Finding, 0, len(findings)),
		Summary: RunSummary{
			ErrorCount:   summary.ErrorCount,
			WarningCount: summary.WarningCount,
			InfoCount:    summary.InfoCount,
		},
	}
	for i := range findings {
		page.Findings = append(page.Findings, findingToAPI(&findings[i]))
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handler) getFinding(w http.ResponseWriter, r *http.Request) {
	finding, err := h.analysis.GetFinding(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, findingToAPI(finding))
}
