// Package phases drives the four-phase elimination state machine:
// sanity, percentile qualification, stability/regret, and composite
// ranking. Phases run in order against the Model State Store, are
// idempotent over identical store contents, and never touch a model a
// strictly earlier phase already eliminated.
package phases

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/internal/domain/qualify"
	"github.com/okian/gauntlet/internal/domain/scoring"
	"github.com/okian/gauntlet/internal/domain/validity"
	"github.com/okian/gauntlet/pkg/logger"
)

// Phase numbers.
const (
	PhaseSanity        = 0
	PhaseQualification = 1
	PhaseStability     = 2
	PhaseRanking       = 3
)

// Default phase thresholds; injected through Config.
const (
	defaultSanityMinRounds    = 6
	defaultStabilityMinRounds = 12
	defaultRegretWindow       = 4
	defaultRegretThreshold    = 0.5
	defaultRegretHorizonCount = 2
	defaultMaxFinalists       = 8
)

// Config carries every phase threshold.
type Config struct {
	SanityMinRounds    int     `koanf:"sanity_min_rounds" validate:"gt=0"`
	StabilityMinRounds int     `koanf:"stability_min_rounds" validate:"gt=0"`
	RegretWindow       int     `koanf:"regret_window" validate:"gt=0"`
	RegretThreshold    float64 `koanf:"regret_threshold" validate:"gt=0"`
	RegretHorizonCount int     `koanf:"regret_horizon_count" validate:"gt=0"`
	MaxFinalists       int     `koanf:"max_finalists" validate:"gt=0"`

	// HorizonWeights weighs each horizon's mean log loss in the composite
	// ranking; missing horizons weigh 1.
	HorizonWeights map[model.HorizonID]float64 `koanf:"horizon_weights"`
}

// DefaultConfig returns the stock phase thresholds.
func DefaultConfig() Config {
	return Config{
		SanityMinRounds:    defaultSanityMinRounds,
		StabilityMinRounds: defaultStabilityMinRounds,
		RegretWindow:       defaultRegretWindow,
		RegretThreshold:    defaultRegretThreshold,
		RegretHorizonCount: defaultRegretHorizonCount,
		MaxFinalists:       defaultMaxFinalists,
	}
}

// Elimination explains one model's removal.
type Elimination struct {
	ModelID string `json:"model_id"`
	Phase   int    `json:"phase"`
	Reason  string `json:"reason"`
}

// SanityResult reports phase 0. Skipped models had too little history to
// judge; they neither passed nor failed.
type SanityResult struct {
	Eliminated []Elimination `json:"eliminated"`
	Skipped    []string      `json:"skipped,omitempty"`
	Checked    []string      `json:"checked"`
}

// QualificationResult reports phase 1 per horizon, plus the models left
// globally ineligible because their qualified set emptied.
type QualificationResult struct {
	Horizons     map[model.HorizonID]qualify.Result `json:"horizons"`
	GloballyOut  []string                           `json:"globally_out,omitempty"`
	InvalidCount int                                `json:"invalid_count"`
}

// StabilityResult reports phase 2. Regret holds the worst-window metric
// per surviving model per horizon for diagnostics.
type StabilityResult struct {
	Eliminated []Elimination                          `json:"eliminated"`
	Skipped    []string                               `json:"skipped,omitempty"`
	Regret     map[string]map[model.HorizonID]float64 `json:"regret"`
}

// RankedModel is one row of the final composite ranking.
type RankedModel struct {
	ModelID   string                      `json:"model_id"`
	Composite float64                     `json:"composite"`
	MeanLoss  map[model.HorizonID]float64 `json:"mean_loss"`
}

// RankingResult reports phase 3: at most MaxFinalists rows, best first.
type RankingResult struct {
	Ranked []RankedModel `json:"ranked"`
}

// Report wraps whichever phase Step just ran.
type Report struct {
	Phase         int                  `json:"phase"`
	Sanity        *SanityResult        `json:"sanity,omitempty"`
	Qualification *QualificationResult `json:"qualification,omitempty"`
	Stability     *StabilityResult     `json:"stability,omitempty"`
	Ranking       *RankingResult       `json:"ranking,omitempty"`
}

// Runner executes phases against a store. Construct one per tournament.
type Runner struct {
	store  repository.Store
	policy qualify.Policy
	gates  validity.Config
	cfg    Config
	logger logger.Logger
}

// Option applies a configuration option to the Runner.
type Option func(*Runner)

// WithLogger sets a custom logger for the runner.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithValidityConfig overrides the validity-gate thresholds.
func WithValidityConfig(cfg validity.Config) Option {
	return func(r *Runner) {
		r.gates = cfg
	}
}

// New constructs a phase runner over store using the given qualification
// policy and phase thresholds.
func New(store repository.Store, policy qualify.Policy, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		store:  store,
		policy: policy,
		gates:  validity.DefaultConfig(),
		cfg:    cfg,
		logger: logger.Get().Named("phases"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Step runs the phase the store currently points at and advances the
// phase counter, except at the terminal ranking phase which may be
// replayed freely.
func (r *Runner) Step(ctx context.Context) (Report, error) {
	phase := r.store.Phase(ctx)
	report := Report{Phase: phase}

	var err error
	switch phase {
	case PhaseSanity:
		var res SanityResult
		res, err = r.RunSanity(ctx)
		report.Sanity = &res
	case PhaseQualification:
		var res QualificationResult
		res, err = r.RunQualification(ctx)
		report.Qualification = &res
	case PhaseStability:
		var res StabilityResult
		res, err = r.RunStability(ctx)
		report.Stability = &res
	case PhaseRanking:
		var res RankingResult
		res, err = r.RunRanking(ctx)
		report.Ranking = &res
		return report, err
	default:
		return report, fmt.Errorf("%w: phase %d", ErrUnknownPhase, phase)
	}
	if err != nil {
		return report, err
	}

	if _, err := r.store.AdvancePhase(ctx); err != nil {
		return report, err
	}
	return report, nil
}

// RunSanity is phase 0: models with enough history are screened for
// degenerate behavior across their pooled horizon predictions. Models
// with fewer than SanityMinRounds rounds are skipped, not judged.
func (r *Runner) RunSanity(ctx context.Context) (SanityResult, error) {
	res := SanityResult{}
	for _, id := range r.store.ActiveModels(ctx) {
		if r.store.RoundCount(ctx, id) < r.cfg.SanityMinRounds {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		res.Checked = append(res.Checked, id)

		var probs []float64
		var labels []bool
		failed, total := 0, 0
		for _, h := range r.store.Horizons(ctx) {
			series, err := r.store.Series(ctx, id, h.ID)
			if err != nil {
				return res, err
			}
			probs = append(probs, series.Probs...)
			labels = append(labels, series.Labels...)
			failed += series.Failed
			total += series.Total
		}

		check, err := validity.Check(probs, labels, failed, total, r.gates)
		if err != nil {
			return res, err
		}
		reasons := degeneracyReasons(check.Reasons)
		if len(reasons) == 0 {
			continue
		}

		reason := "degenerate predictions: " + joinReasons(reasons)
		if err := r.store.EliminateModel(ctx, id, PhaseSanity, reason); err != nil {
			return res, err
		}
		res.Eliminated = append(res.Eliminated, Elimination{ModelID: id, Phase: PhaseSanity, Reason: reason})
		r.logger.Info(ctx, "sanity elimination",
			logger.String("model", id),
			logger.String("reason", reason),
		)
	}
	return res, nil
}

// RunQualification is phase 1: per horizon, gate-invalid models are
// excluded from the cohort, the rest are qualified or disqualified by the
// configured policy. A model whose qualified set empties becomes globally
// ineligible without counting as a phase elimination.
func (r *Runner) RunQualification(ctx context.Context) (QualificationResult, error) {
	res := QualificationResult{Horizons: make(map[model.HorizonID]qualify.Result)}

	active := r.store.ActiveModels(ctx)
	for _, h := range r.store.Horizons(ctx) {
		meanLoss := make(map[string]float64)
		for _, id := range active {
			series, err := r.store.Series(ctx, id, h.ID)
			if err != nil {
				return res, err
			}
			check, err := validity.Check(series.Probs, series.Labels, series.Failed, series.Total, r.gates)
			if err != nil {
				return res, err
			}
			if !check.Valid {
				res.InvalidCount++
				reason := "invalid: " + joinReasons(check.Reasons)
				if err := r.store.DisqualifyFromHorizon(ctx, id, h.ID, PhaseQualification, reason); err != nil {
					return res, err
				}
				continue
			}
			mean, err := scoring.MeanLogLoss(series.Probs, series.Labels)
			if err != nil {
				return res, err
			}
			meanLoss[id] = mean
		}

		baseline := scoring.PrevalenceBaseline(r.store.HorizonLabels(ctx, h.ID))
		outcome := r.policy.Qualify(h.ID, meanLoss, baseline)
		res.Horizons[h.ID] = outcome

		for _, id := range outcome.Disqualified {
			reason := fmt.Sprintf("mean log loss %.4f above qualification threshold %.4f", meanLoss[id], outcome.Threshold)
			if err := r.store.DisqualifyFromHorizon(ctx, id, h.ID, PhaseQualification, reason); err != nil {
				return res, err
			}
		}
	}

	for _, id := range active {
		st, err := r.store.Model(ctx, id)
		if err != nil {
			return res, err
		}
		if st.Active && len(st.QualifiedHorizons) == 0 {
			res.GloballyOut = append(res.GloballyOut, id)
		}
	}
	sort.Strings(res.GloballyOut)
	return res, nil
}

// RunStability is phase 2: models whose worst rolling-window loss exceeds
// their trailing mean by more than the regret threshold on enough
// horizons are eliminated. Occasional catastrophe costs more than flat
// mediocrity. Models with fewer than StabilityMinRounds rounds are
// skipped.
func (r *Runner) RunStability(ctx context.Context) (StabilityResult, error) {
	res := StabilityResult{Regret: make(map[string]map[model.HorizonID]float64)}

	for _, id := range r.store.ActiveModels(ctx) {
		if r.store.RoundCount(ctx, id) < r.cfg.StabilityMinRounds {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		st, err := r.store.Model(ctx, id)
		if err != nil {
			return res, err
		}

		regrets := make(map[model.HorizonID]float64)
		breached := 0
		for _, h := range st.QualifiedHorizons {
			losses := horizonLossSeries(st.Rounds, h)
			if len(losses) < r.cfg.RegretWindow {
				continue
			}
			regret := worstWindowRegret(losses, r.cfg.RegretWindow)
			regrets[h] = regret
			if regret > r.cfg.RegretThreshold {
				breached++
			}
		}
		res.Regret[id] = regrets

		if breached < r.cfg.RegretHorizonCount {
			continue
		}
		reason := fmt.Sprintf("regret above %.2f on %d horizons", r.cfg.RegretThreshold, breached)
		if err := r.store.EliminateModel(ctx, id, PhaseStability, reason); err != nil {
			return res, err
		}
		res.Eliminated = append(res.Eliminated, Elimination{ModelID: id, Phase: PhaseStability, Reason: reason})
		r.logger.Info(ctx, "stability elimination",
			logger.String("model", id),
			logger.String("reason", reason),
		)
	}
	return res, nil
}

// RunRanking is phase 3: surviving models are ordered by a weighted mean
// of their per-horizon mean log losses, ascending, capped at
// MaxFinalists. Ties break by model id for determinism.
func (r *Runner) RunRanking(ctx context.Context) (RankingResult, error) {
	res := RankingResult{}

	for _, id := range r.store.ActiveModels(ctx) {
		st, err := r.store.Model(ctx, id)
		if err != nil {
			return res, err
		}

		meanLoss := make(map[model.HorizonID]float64, len(st.QualifiedHorizons))
		weightSum, weighted := 0.0, 0.0
		for _, h := range st.QualifiedHorizons {
			series, err := r.store.Series(ctx, id, h)
			if err != nil {
				return res, err
			}
			if len(series.Probs) == 0 {
				continue
			}
			mean, err := scoring.MeanLogLoss(series.Probs, series.Labels)
			if err != nil {
				return res, err
			}
			meanLoss[h] = mean
			w := r.horizonWeight(h)
			weighted += w * mean
			weightSum += w
		}
		if weightSum == 0 {
			continue
		}
		res.Ranked = append(res.Ranked, RankedModel{
			ModelID:   id,
			Composite: weighted / weightSum,
			MeanLoss:  meanLoss,
		})
	}

	sort.Slice(res.Ranked, func(i, j int) bool {
		if res.Ranked[i].Composite != res.Ranked[j].Composite {
			return res.Ranked[i].Composite < res.Ranked[j].Composite
		}
		return res.Ranked[i].ModelID < res.Ranked[j].ModelID
	})
	if len(res.Ranked) > r.cfg.MaxFinalists {
		res.Ranked = res.Ranked[:r.cfg.MaxFinalists]
	}
	return res, nil
}

func (r *Runner) horizonWeight(h model.HorizonID) float64 {
	if w, ok := r.cfg.HorizonWeights[h]; ok && w > 0 {
		return w
	}
	return 1
}

// worstWindowRegret is the maximum rolling-window mean loss minus the
// trailing mean over the whole series.
func worstWindowRegret(losses []float64, window int) float64 {
	trailing := 0.0
	for _, l := range losses {
		trailing += l
	}
	trailing /= float64(len(losses))

	worst := math.Inf(-1)
	for start := 0; start+window <= len(losses); start++ {
		sum := 0.0
		for _, l := range losses[start : start+window] {
			sum += l
		}
		if mean := sum / float64(window); mean > worst {
			worst = mean
		}
	}
	return worst - trailing
}

func horizonLossSeries(rounds []model.RoundScore, h model.HorizonID) []float64 {
	out := make([]float64, 0, len(rounds))
	for _, rs := range rounds {
		if l, ok := rs.HorizonLogLoss[h]; ok {
			out = append(out, l)
		}
	}
	return out
}

func degeneracyReasons(reasons []validity.Reason) []validity.Reason {
	var out []validity.Reason
	for _, reason := range reasons {
		switch reason {
		case validity.ReasonConstantPredictor, validity.ReasonExtremePredictions, validity.ReasonExtremeWrongRate:
			out = append(out, reason)
		}
	}
	return out
}

func joinReasons(reasons []validity.Reason) string {
	parts := make([]string, len(reasons))
	for i, reason := range reasons {
		parts[i] = string(reason)
	}
	return strings.Join(parts, ",")
}
