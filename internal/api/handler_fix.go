package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) startFixSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.autofix.StartSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, fixSessionToAPI(session))
}

func (h *Handler) listFixSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.autofix.ListSessions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]FixSession, 0, len(sessions))
	for i := range sessions {
		out = append(out, fixSessionToAPI(&sessions[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) getFixSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.autofix.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, fixSessionToAPI(session))
}

func (h *Handler) cancelFixSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.autofix.CancelSession(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	session, err := h.autofix.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, fixSessionToAPI(session))
}

func (h *Handler) listFixSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := h.autofix.ListSteps(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]FixStep, 0, len(steps))
	for i := range steps {
		out = append(out, fixStepToAPI(&steps[i]))
	}
	respondJSON(w, http.StatusOK, out)
}
