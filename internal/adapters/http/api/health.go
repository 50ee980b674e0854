// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
)

// healthResponse is the wire shape of GET /healthz.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	RunID   string `json:"run_id,omitempty"`
}

// HealthHandler answers liveness probes. It carries the current run id
// when a tournament is underway, so probes double as run identification.
type HealthHandler struct {
	deps Dependencies
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(deps Dependencies) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Service: "gauntlet"}
	if h.deps != nil {
		resp.RunID = h.deps.RunID()
	}
	writeJSON(w, http.StatusOK, resp)
}
