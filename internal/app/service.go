// Package service orchestrates one tournament run: it owns the state
// store, the forecast fan-out, the resolver, the phase runner and the
// ensemble, and exposes the operations the HTTP API and the simulator
// drive. A round is scored atomically; a round that fails part-way
// leaves no trace in the store.
package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/gauntlet/internal/adapters/forecast"
	"github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/adapters/resolver"
	"github.com/okian/gauntlet/internal/domain/dedupe"
	"github.com/okian/gauntlet/internal/domain/ensemble"
	"github.com/okian/gauntlet/internal/domain/extension"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/internal/domain/phases"
	"github.com/okian/gauntlet/internal/domain/qualify"
	"github.com/okian/gauntlet/internal/domain/scoring"
	"github.com/okian/gauntlet/internal/domain/validity"
	"github.com/okian/gauntlet/pkg/logger"
	"github.com/okian/gauntlet/pkg/metrics"
)

// Service runs the tournament engine. Construct with New, configure
// through options, then Start before stepping rounds.
type Service struct {
	mu sync.Mutex

	// Core components, built at Start.
	store   repository.Store
	runner  *phases.Runner
	blender *ensemble.Blender
	guard   dedupe.Guard
	pool    *forecast.Pool

	// Injected collaborators.
	forecasters []forecast.Forecaster
	resolver    resolver.Resolver
	policy      qualify.Policy

	// Configuration.
	modelIDs        []string
	horizons        []model.Horizon
	forecastTimeout time.Duration
	guardSize       int
	plannedRounds   int
	phaseCfg        phases.Config
	gateCfg         validity.Config
	extensionCfg    extension.Config
	ensembleCfg     ensemble.Config

	// State.
	runID       string
	diagnostics []model.RoundDiagnostic
	started     bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithModels registers the competing model ids.
func WithModels(ids []string) Option {
	return func(s *Service) {
		s.modelIDs = append([]string(nil), ids...)
	}
}

// WithHorizons sets the fixed horizon set.
func WithHorizons(hs []model.Horizon) Option {
	return func(s *Service) {
		s.horizons = append([]model.Horizon(nil), hs...)
	}
}

// WithForecasters registers the per-model forecast sources.
func WithForecasters(fs []forecast.Forecaster) Option {
	return func(s *Service) {
		s.forecasters = fs
	}
}

// WithResolver sets the ground-truth resolver.
func WithResolver(r resolver.Resolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithQualifyPolicy sets the phase-1 qualification policy.
func WithQualifyPolicy(p qualify.Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithForecastTimeout bounds each model's per-round forecast call.
func WithForecastTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.forecastTimeout = d
		}
	}
}

// WithGuardSize sets the size of the round-submission dedupe guard.
func WithGuardSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.guardSize = size
		}
	}
}

// WithPlannedRounds preallocates round history per model.
func WithPlannedRounds(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.plannedRounds = n
		}
	}
}

// WithPhaseConfig overrides the phase thresholds.
func WithPhaseConfig(cfg phases.Config) Option {
	return func(s *Service) {
		s.phaseCfg = cfg
	}
}

// WithValidityConfig overrides the validity-gate thresholds.
func WithValidityConfig(cfg validity.Config) Option {
	return func(s *Service) {
		s.gateCfg = cfg
	}
}

// WithExtensionConfig overrides the extension trigger thresholds.
func WithExtensionConfig(cfg extension.Config) Option {
	return func(s *Service) {
		s.extensionCfg = cfg
	}
}

// WithEnsembleConfig overrides the ensemble tunables.
func WithEnsembleConfig(cfg ensemble.Config) Option {
	return func(s *Service) {
		s.ensembleCfg = cfg
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		forecastTimeout: 30 * time.Second,
		guardSize:       50000,
		plannedRounds:   24,
		phaseCfg:        phases.DefaultConfig(),
		gateCfg:         validity.DefaultConfig(),
		extensionCfg:    extension.DefaultConfig(),
		ensembleCfg:     ensemble.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the tournament components and assigns a fresh run
// id. Starting an already-started service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if len(s.modelIDs) == 0 {
		return ErrNoModels
	}
	if len(s.horizons) == 0 {
		return ErrNoHorizons
	}
	if s.resolver == nil {
		return ErrNoResolver
	}
	if s.policy == nil {
		p, err := qualify.New(qualify.ModeTopPercent, 0, qualify.DefaultTopFraction)
		if err != nil {
			return err
		}
		s.policy = p
	}

	s.build(ctx)
	s.started = true
	s.logger.Info(ctx, "tournament started",
		logger.String("run_id", s.runID),
		logger.Int("models", len(s.modelIDs)),
		logger.Int("horizons", len(s.horizons)),
	)
	return nil
}

// Stop marks the service stopped. Tournament state stays inspectable.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "tournament stopped",
		logger.String("run_id", s.runID),
	)
}

// Reset discards all tournament state and starts a fresh run with the
// same configuration.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	old := s.runID
	s.build(ctx)
	s.diagnostics = nil
	s.logger.Info(ctx, "tournament reset",
		logger.String("previous_run_id", old),
		logger.String("run_id", s.runID),
	)
	return nil
}

// build wires fresh components for one run. Caller holds the lock.
func (s *Service) build(ctx context.Context) {
	s.runID = uuid.NewString()
	s.store = repository.NewMemoryStore(ctx, s.horizons, s.modelIDs,
		repository.WithRoundCapacity(s.plannedRounds),
	)
	s.runner = phases.New(s.store, s.policy, s.phaseCfg,
		phases.WithValidityConfig(s.gateCfg),
		phases.WithLogger(s.logger.Named("phases")),
	)
	s.blender = ensemble.New(s.ensembleCfg)
	s.guard = dedupe.NewMemoryGuard(dedupe.WithMaxSize(s.guardSize))
	s.pool = forecast.NewPool(s.forecasters,
		forecast.WithTimeout(s.forecastTimeout),
		forecast.WithLogger(s.logger.Named("forecast")),
	)
	metrics.UpdateCurrentPhase(s.store.Phase(ctx))
	metrics.UpdateCurrentRound(0)
	metrics.UpdateActiveModels(len(s.modelIDs))
}

// Step plays one tournament round: collect every model's forecasts,
// resolve ground truth per horizon, score, persist, and feed the
// ensemble. The round either lands in the store whole or is discarded
// whole.
func (s *Service) Step(ctx context.Context) (model.RoundDiagnostic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return model.RoundDiagnostic{}, ErrNotStarted
	}

	start := time.Now()
	round := s.store.Round(ctx) + 1

	collected, err := s.pool.Collect(ctx, round, s.horizons)
	if err != nil {
		metrics.RecordRoundDiscarded()
		return model.RoundDiagnostic{}, fmt.Errorf("collect round %d: %w", round, err)
	}

	labels := make([]model.Label, 0, len(s.horizons))
	labelByHorizon := make(map[model.HorizonID]model.Label, len(s.horizons))
	imputed := 0
	for _, h := range s.horizons {
		label, err := s.resolver.Resolve(ctx, h, round)
		if err != nil {
			metrics.RecordRoundDiscarded()
			return model.RoundDiagnostic{}, fmt.Errorf("resolve round %d: %w", round, err)
		}
		if label.Imputed {
			imputed++
			metrics.RecordLabelImputed()
		}
		labels = append(labels, label)
		labelByHorizon[h.ID] = label
	}

	diag := model.RoundDiagnostic{
		RunID:         s.runID,
		Round:         round,
		ScoredAt:      start.UTC(),
		Labels:        labels,
		ImputedLabels: imputed,
		ModelLogLoss:  make(map[string]float64),
	}

	scores := make(map[string]model.RoundScore)
	recorded := make([]string, 0, len(s.modelIDs))
	for _, id := range s.store.ActiveModels(ctx) {
		key := dedupe.RoundKey(id, round)
		if s.guard.SeenAndRecord(ctx, key) {
			metrics.RecordDuplicateSubmission()
			s.logger.Warn(ctx, "duplicate round submission ignored",
				logger.String("model", id),
				logger.Int("round", round),
			)
			continue
		}
		recorded = append(recorded, key)

		rs := model.RoundScore{
			Round:           round,
			HorizonLogLoss:  make(map[model.HorizonID]float64, len(s.horizons)),
			HorizonProb:     make(map[model.HorizonID]model.Opt[float64], len(s.horizons)),
			HorizonLabel:    make(map[model.HorizonID]bool, len(s.horizons)),
			ResolutionRatio: make(map[model.HorizonID]model.Opt[float64], len(s.horizons)),
		}
		sum := 0.0
		for _, pred := range collected.Predictions[id] {
			label := labelByHorizon[pred.Horizon]
			p, ok := pred.Probability.Get()
			loss, valid := scoring.SafeLogLoss(p, ok, label.Label)
			if valid {
				rs.HorizonProb[pred.Horizon] = model.Some(p)
				metrics.RecordPredictionScored()
			} else {
				diag.MissingProbs++
				metrics.RecordPredictionMissing()
			}
			rs.HorizonLogLoss[pred.Horizon] = loss
			rs.HorizonLabel[pred.Horizon] = label.Label
			rs.ResolutionRatio[pred.Horizon] = label.ResolutionRatio
			sum += loss
		}
		if n := len(rs.HorizonLogLoss); n > 0 {
			rs.OverallLogLoss = sum / float64(n)
		}
		scores[id] = rs
		diag.ModelLogLoss[id] = rs.OverallLogLoss
	}

	if err := s.apply(ctx, round, scores, labels, recorded); err != nil {
		metrics.RecordRoundDiscarded()
		return model.RoundDiagnostic{}, err
	}

	s.feedEnsemble(scores, labelByHorizon, &diag)

	diag.ElapsedMS = time.Since(start).Milliseconds()
	s.diagnostics = append(s.diagnostics, diag)

	metrics.RecordRoundScored()
	metrics.RecordRoundScoringLatency(float64(diag.ElapsedMS))
	metrics.UpdateCurrentRound(round)
	metrics.UpdateActiveModels(len(s.store.ActiveModels(ctx)))

	s.logger.Info(ctx, "round scored",
		logger.String("run_id", s.runID),
		logger.Int("round", round),
		logger.Int("models", len(scores)),
		logger.Int("imputed_labels", imputed),
		logger.Int("missing_probs", diag.MissingProbs),
	)
	return diag, nil
}

// apply lands one collected round in the store as a single atomic
// batch. On failure nothing was written and the guard keys are released
// so the round can be replayed.
func (s *Service) apply(ctx context.Context, round int, scores map[string]model.RoundScore, labels []model.Label, recorded []string) error {
	if err := s.store.ApplyRound(ctx, round, scores, labels); err != nil {
		for _, key := range recorded {
			s.guard.Unrecord(ctx, key)
		}
		return fmt.Errorf("persist round %d: %w", round, err)
	}
	return nil
}

// feedEnsemble blends per horizon, then observes the round's losses.
// Blending before observing keeps the weights a function of prior
// rounds only; the current round's label never influences its own
// blend. The first round therefore always skips.
func (s *Service) feedEnsemble(scores map[string]model.RoundScore, labels map[model.HorizonID]model.Label, diag *model.RoundDiagnostic) {
	for _, h := range s.horizons {
		losses := make(map[string]float64, len(scores))
		probs := make(map[string]float64, len(scores))
		for id, rs := range scores {
			if loss, ok := rs.HorizonLogLoss[h.ID]; ok {
				losses[id] = loss
			}
			if p, ok := rs.HorizonProb[h.ID].Get(); ok {
				probs[id] = p
			}
		}
		st, ok := s.blender.Blend(h.ID, probs, labels[h.ID].Label)
		s.blender.Observe(h.ID, losses)
		if !ok {
			metrics.RecordEnsembleSkipped()
			metrics.UpdateEnsembleCohort(string(h.ID), 0)
			continue
		}
		metrics.UpdateEnsembleCohort(string(h.ID), len(st.Weights))
		if blended, ok := st.Blended.Get(); ok {
			if diag.EnsembleProb == nil {
				diag.EnsembleProb = make(map[model.HorizonID]float64)
				diag.EnsembleLoss = make(map[model.HorizonID]float64)
			}
			diag.EnsembleProb[h.ID] = blended
			loss, _ := st.BlendLoss.Get()
			diag.EnsembleLoss[h.ID] = loss
		}
	}
}

// RunPhase executes the elimination phase the store currently points at
// and advances the phase counter.
func (s *Service) RunPhase(ctx context.Context) (phases.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return phases.Report{}, ErrNotStarted
	}

	report, err := s.runner.Step(ctx)
	if err != nil {
		return report, err
	}

	if report.Sanity != nil {
		for _, e := range report.Sanity.Eliminated {
			s.blender.Drop(e.ModelID)
			metrics.RecordElimination(strconv.Itoa(e.Phase))
		}
	}
	if report.Qualification != nil {
		for h, res := range report.Qualification.Horizons {
			for range res.Disqualified {
				metrics.RecordDisqualification(string(h))
			}
		}
		for _, id := range report.Qualification.GloballyOut {
			s.blender.Drop(id)
		}
	}
	if report.Stability != nil {
		for _, e := range report.Stability.Eliminated {
			s.blender.Drop(e.ModelID)
			metrics.RecordElimination(strconv.Itoa(e.Phase))
		}
	}

	metrics.UpdateCurrentPhase(s.store.Phase(ctx))
	metrics.UpdateActiveModels(len(s.store.ActiveModels(ctx)))
	return report, nil
}

// Eliminate removes a model by operator decision, stamped with the
// current phase.
func (s *Service) Eliminate(ctx context.Context, modelID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	if reason == "" {
		reason = "operator elimination"
	}
	if err := s.store.EliminateModel(ctx, modelID, s.store.Phase(ctx), reason); err != nil {
		return err
	}
	s.blender.Drop(modelID)
	metrics.RecordElimination(strconv.Itoa(s.store.Phase(ctx)))
	metrics.UpdateActiveModels(len(s.store.ActiveModels(ctx)))
	s.logger.Info(ctx, "model eliminated",
		logger.String("model", modelID),
		logger.String("reason", reason),
	)
	return nil
}

// Standings returns the current composite ranking, best first, capped
// at n (n <= 0 means no cap beyond the configured finalist limit).
// Ranking reads the store without mutating it and may be called in any
// phase.
func (s *Service) Standings(ctx context.Context, n int) ([]phases.RankedModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, ErrNotStarted
	}
	res, err := s.runner.RunRanking(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(res.Ranked) > n {
		res.Ranked = res.Ranked[:n]
	}
	return res.Ranked, nil
}

// Plan evaluates the extension trigger for every horizon.
func (s *Service) Plan(ctx context.Context) (extension.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return extension.Plan{}, ErrNotStarted
	}

	active := s.store.ActiveModels(ctx)
	stats := make([]extension.HorizonStats, 0, len(s.horizons))
	for _, h := range s.horizons {
		hs := extension.HorizonStats{
			Horizon: h.ID,
			Labels:  s.store.HorizonLabels(ctx, h.ID),
		}
		for _, id := range active {
			series, err := s.store.Series(ctx, id, h.ID)
			if err != nil {
				return extension.Plan{}, err
			}
			check, err := validity.Check(series.Probs, series.Labels, series.Failed, series.Total, s.gateCfg)
			if err != nil {
				return extension.Plan{}, err
			}
			if check.Valid {
				hs.Eligible = append(hs.Eligible, id)
			}
			st, err := s.store.Model(ctx, id)
			if err != nil {
				return extension.Plan{}, err
			}
			for _, qh := range st.QualifiedHorizons {
				if qh == h.ID {
					hs.Qualified = append(hs.Qualified, id)
					break
				}
			}
		}
		stats = append(stats, hs)
	}
	return extension.BuildPlan(stats, s.extensionCfg), nil
}

// Models returns snapshots of every model, eliminated ones included.
func (s *Service) Models(ctx context.Context) ([]repository.ModelState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store.Models(ctx), nil
}

// Diagnostics returns the most recent round diagnostics, newest last.
// limit <= 0 returns everything.
func (s *Service) Diagnostics(limit int) []model.RoundDiagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.diagnostics
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]model.RoundDiagnostic(nil), out...)
}

// EnsembleStates returns the latest per-horizon ensemble snapshots.
func (s *Service) EnsembleStates() []ensemble.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	return s.blender.States()
}

// RunID returns the current run's id, or "" before Start.
func (s *Service) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]interface{}{
		"started":  s.started,
		"models":   len(s.modelIDs),
		"horizons": len(s.horizons),
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	stats["run_id"] = s.runID
	stats["round"] = s.store.Round(ctx)
	stats["phase"] = s.store.Phase(ctx)
	stats["active_models"] = len(s.store.ActiveModels(ctx))
	stats["guard_entries"] = s.guard.Size()
	return stats
}
