package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"modelsentry/internal/domain"
)

type submitQueryRequest struct {
	Query  string `json:"query"`
	Prompt string `json:"prompt"`
}

// submitQuery accepts either raw query text or a natural-language
// prompt, then waits a bounded number of poll attempts before answering
// with whatever state the execution reached. A client X-Request-ID makes
// the submission idempotent.
func (h *Handler) submitQuery(w http.ResponseWriter, r *http.Request) {
	var req submitQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Query != "" && req.Prompt != "" {
		writeError(w, domain.ErrValidation("provide either query or prompt, not both"))
		return
	}

	requestID := r.Header.Get("X-Request-ID")

	var execution *domain.QueryExecution
	var err error
	if req.Prompt != "" {
		execution, err = h.queries.ExecuteNatural(r.Context(), req.Prompt, requestID)
	} else {
		execution, err = h.queries.Execute(r.Context(), req.Query, nil, requestID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	execution, err = h.queries.WaitForResult(r.Context(), execution.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, executionToAPI(execution))
}

func (h *Handler) getQuery(w http.ResponseWriter, r *http.Request) {
	execution, err := h.queries.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, executionToAPI(execution))
}

func (h *Handler) cancelQuery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queries.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	execution, err := h.queries.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, executionToAPI(execution))
}

func (h *Handler) deleteQuery(w http.ResponseWriter, r *http.Request) {
	if err := h.queries.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) queryHistory(w http.ResponseWriter, r *http.Request) {
	filter := domain.QueryHistoryFilter{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, domain.ErrValidation("invalid limit %q", v))
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, domain.ErrValidation("invalid offset %q", v))
			return
		}
		filter.Offset = n
	}

	entries, total, err := h.queries.History(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	page := QueryHistoryPage{
		Entries: make([]QueryHistoryEntry, 0, len(entries)),
		Total:   total,
		Limit:   filter.EffectiveLimit(),
		Offset:  filter.EffectiveOffset(),
	}
	for i := range entries {
		page.Entries = append(page.Entries, historyEntryToAPI(&entries[i]))
	}
	respondJSON(w, http.StatusOK, page)
}
