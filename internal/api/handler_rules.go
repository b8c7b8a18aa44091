package api

import (
	"net/http"
	"strings"
)

// listRules serves the cached rule catalog, optionally filtered by
// category (case-insensitive).
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.Fetch(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	category := r.URL.Query().Get("category")
	out := make([]Rule, 0, len(rules))
	for i := range rules {
		if category != "" && !strings.EqualFold(rules[i].Category, category) {
			continue
		}
		out = append(out, ruleToAPI(&rules[i]))
	}
	respondJSON(w, http.StatusOK, out)
}
