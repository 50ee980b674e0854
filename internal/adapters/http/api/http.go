// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sdcoffey/techan"

	"github.com/okian/gauntlet/internal/adapters/repository"
	service "github.com/okian/gauntlet/internal/app"
	"github.com/okian/gauntlet/internal/domain/ensemble"
	"github.com/okian/gauntlet/internal/domain/extension"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/internal/domain/phases"
	"github.com/okian/gauntlet/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Lifecycle.
	Start(ctx context.Context) error
	Reset(ctx context.Context) error
	RunID() string

	// Round and phase driving.
	Step(ctx context.Context) (model.RoundDiagnostic, error)
	RunPhase(ctx context.Context) (phases.Report, error)
	Eliminate(ctx context.Context, modelID, reason string) error

	// Read operations.
	Standings(ctx context.Context, n int) ([]phases.RankedModel, error)
	Plan(ctx context.Context) (extension.Plan, error)
	Models(ctx context.Context) ([]repository.ModelState, error)
	Diagnostics(limit int) []model.RoundDiagnostic
	EnsembleStates() []ensemble.State
}

// CandleSink receives ingested forward windows for label resolution.
type CandleSink interface {
	Put(horizon model.HorizonID, round int, series *techan.TimeSeries)
}

// Server wires HTTP routes for the tournament API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	tournamentHandler *TournamentHandler
	standingsHandler  *StandingsHandler
	inspectHandler    *InspectHandler
	candlesHandler    *CandlesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, sink CandleSink) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(deps),
		statsHandler:      NewStatsHandler(statsProvider),
		tournamentHandler: NewTournamentHandler(deps),
		standingsHandler:  NewStandingsHandler(deps),
		inspectHandler:    NewInspectHandler(deps),
		candlesHandler:    NewCandlesHandler(sink),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("/tournament/start", MetricsMiddleware(s.tournamentHandler.HandleStart, "tournament_start"))
	mux.HandleFunc("/tournament/step", MetricsMiddleware(s.tournamentHandler.HandleStep, "tournament_step"))
	mux.HandleFunc("/tournament/phase", MetricsMiddleware(s.tournamentHandler.HandlePhase, "tournament_phase"))
	mux.HandleFunc("/tournament/reset", MetricsMiddleware(s.tournamentHandler.HandleReset, "tournament_reset"))
	mux.HandleFunc("/tournament/eliminate", MetricsMiddleware(s.tournamentHandler.HandleEliminate, "tournament_eliminate"))

	mux.HandleFunc("/standings", MetricsMiddleware(s.standingsHandler.HandleGetStandings, "standings"))
	mux.HandleFunc("/diagnostics", MetricsMiddleware(s.inspectHandler.HandleGetDiagnostics, "diagnostics"))
	mux.HandleFunc("/ensemble", MetricsMiddleware(s.inspectHandler.HandleGetEnsemble, "ensemble"))
	mux.HandleFunc("/plan", MetricsMiddleware(s.inspectHandler.HandleGetPlan, "plan"))
	mux.HandleFunc("/models", MetricsMiddleware(s.inspectHandler.HandleGetModels, "models"))

	mux.HandleFunc("/candles", MetricsMiddleware(s.candlesHandler.HandlePostCandles, "candles"))
}

type ackResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps engine errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusConflict, "not_started", err)
	case errors.Is(err, repository.ErrUnknownModel), errors.Is(err, repository.ErrUnknownHorizon):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrAlreadyEliminated), errors.Is(err, repository.ErrModelEliminated):
		writeError(w, http.StatusConflict, "conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
