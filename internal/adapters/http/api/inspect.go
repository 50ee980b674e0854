// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"strconv"
)

// InspectHandler serves read-only views of tournament state: round
// diagnostics, ensemble snapshots, the extension plan, and model states.
type InspectHandler struct {
	deps Dependencies
}

// NewInspectHandler creates a new inspect handler.
func NewInspectHandler(deps Dependencies) *InspectHandler {
	return &InspectHandler{deps: deps}
}

// HandleGetDiagnostics handles GET /diagnostics?limit=N requests.
func (h *InspectHandler) HandleGetDiagnostics(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_diagnostics"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = v
	}
	writeJSON(w, http.StatusOK, h.deps.Diagnostics(limit))
}

// HandleGetEnsemble handles GET /ensemble requests.
func (h *InspectHandler) HandleGetEnsemble(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.EnsembleStates())
}

// HandleGetPlan handles GET /plan requests.
func (h *InspectHandler) HandleGetPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	plan, err := h.deps.Plan(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// modelView is the wire shape of one model's state.
type modelView struct {
	ID                   string         `json:"id"`
	Active               bool           `json:"active"`
	EliminatedInPhase    *int           `json:"eliminated_in_phase,omitempty"`
	EliminationReason    string         `json:"elimination_reason,omitempty"`
	QualifiedHorizons    []string       `json:"qualified_horizons"`
	DisqualifiedHorizons map[string]any `json:"disqualified_horizons,omitempty"`
	Rounds               int            `json:"rounds"`
}

// HandleGetModels handles GET /models requests.
func (h *InspectHandler) HandleGetModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	states, err := h.deps.Models(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	views := make([]modelView, 0, len(states))
	for _, st := range states {
		v := modelView{
			ID:                st.ID,
			Active:            st.Active,
			EliminationReason: st.EliminationReason,
			Rounds:            len(st.Rounds),
		}
		if phase, ok := st.EliminatedInPhase.Get(); ok {
			v.EliminatedInPhase = &phase
		}
		for _, hz := range st.QualifiedHorizons {
			v.QualifiedHorizons = append(v.QualifiedHorizons, string(hz))
		}
		if len(st.DisqualifiedHorizons) > 0 {
			v.DisqualifiedHorizons = make(map[string]any, len(st.DisqualifiedHorizons))
			for hz, dq := range st.DisqualifiedHorizons {
				v.DisqualifiedHorizons[string(hz)] = dq
			}
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}
