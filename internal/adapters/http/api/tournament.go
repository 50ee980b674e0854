// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// TournamentHandler drives the tournament lifecycle: start, step, phase,
// reset, and operator elimination.
type TournamentHandler struct {
	deps Dependencies
}

// NewTournamentHandler creates a new tournament handler.
func NewTournamentHandler(deps Dependencies) *TournamentHandler {
	return &TournamentHandler{deps: deps}
}

// HandleStart handles POST /tournament/start requests.
func (h *TournamentHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.Start(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "started", RunID: h.deps.RunID()})
}

// HandleStep handles POST /tournament/step requests: plays one round and
// returns its diagnostic record.
func (h *TournamentHandler) HandleStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	diag, err := h.deps.Step(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diag)
}

// HandlePhase handles POST /tournament/phase requests: runs the current
// elimination phase and returns its report.
func (h *TournamentHandler) HandlePhase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	report, err := h.deps.RunPhase(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleReset handles POST /tournament/reset requests.
func (h *TournamentHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.Reset(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "reset", RunID: h.deps.RunID()})
}

// eliminateRequest mirrors the JSON schema for POST /tournament/eliminate.
type eliminateRequest struct {
	ModelID string `json:"model_id"`
	Reason  string `json:"reason"`
}

func (e eliminateRequest) validate() error {
	if strings.TrimSpace(e.ModelID) == "" {
		return errors.New("missing model_id")
	}
	return nil
}

// HandleEliminate handles POST /tournament/eliminate requests.
func (h *TournamentHandler) HandleEliminate(w http.ResponseWriter, r *http.Request) {
	const op = "api.eliminate"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req eliminateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.Eliminate(r.Context(), req.ModelID, req.Reason); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "eliminated"})
}
