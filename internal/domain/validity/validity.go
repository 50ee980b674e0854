// Package validity gates degenerate or dishonest prediction behavior out
// of the tournament. Checks run per model per horizon over the emitted
// probabilities and realized labels; a horizon that fails any gate is
// excluded from later phases for that model (excluded from the
// denominator, not eliminated).
package validity

import (
	"fmt"
	"math"

	"github.com/okian/gauntlet/internal/domain/scoring"
)

// Default gate thresholds. All of them are injected through Config; these
// values only seed DefaultConfig.
const (
	defaultMinCoverage        = 0.8
	defaultMaxFailureRate     = 0.1
	defaultStdThreshold       = 0.02
	defaultExtremeHigh        = 0.9
	defaultExtremeLow         = 0.1
	defaultMaxExtremeShare    = 0.9
	defaultConfidentHigh      = 0.8
	defaultConfidentLow       = 0.2
	defaultMaxConfidentWrong  = 0.2
	uniqueRoundingGranularity = 100 // probabilities rounded to 1/granularity when counting unique answers
)

// Reason is a typed gate-failure cause.
type Reason string

// Gate failure reasons.
const (
	ReasonLowCoverage        Reason = "low_coverage"
	ReasonHighFailureRate    Reason = "high_failure_rate"
	ReasonConstantPredictor  Reason = "constant_predictor"
	ReasonExtremePredictions Reason = "extreme_predictions"
	ReasonExtremeWrongRate   Reason = "extreme_wrong_rate"
)

// Config carries every gate threshold.
type Config struct {
	MinCoverage       float64 `koanf:"min_coverage" validate:"gte=0,lte=1"`
	MaxFailureRate    float64 `koanf:"max_failure_rate" validate:"gte=0,lte=1"`
	StdThreshold      float64 `koanf:"std_threshold" validate:"gte=0"`
	ExtremeHigh       float64 `koanf:"extreme_high" validate:"gte=0,lte=1"`
	ExtremeLow        float64 `koanf:"extreme_low" validate:"gte=0,lte=1"`
	MaxExtremeShare   float64 `koanf:"max_extreme_share" validate:"gte=0,lte=1"`
	ConfidentHigh     float64 `koanf:"confident_high" validate:"gte=0,lte=1"`
	ConfidentLow      float64 `koanf:"confident_low" validate:"gte=0,lte=1"`
	MaxConfidentWrong float64 `koanf:"max_confident_wrong" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the stock gate thresholds.
func DefaultConfig() Config {
	return Config{
		MinCoverage:       defaultMinCoverage,
		MaxFailureRate:    defaultMaxFailureRate,
		StdThreshold:      defaultStdThreshold,
		ExtremeHigh:       defaultExtremeHigh,
		ExtremeLow:        defaultExtremeLow,
		MaxExtremeShare:   defaultMaxExtremeShare,
		ConfidentHigh:     defaultConfidentHigh,
		ConfidentLow:      defaultConfidentLow,
		MaxConfidentWrong: defaultMaxConfidentWrong,
	}
}

// Metrics are the measurements the gates were judged on. They ride along
// in Result so an elimination is explainable after the fact.
type Metrics struct {
	EffectiveN         int     `json:"effective_n"`
	TotalN             int     `json:"total_n"`
	Coverage           float64 `json:"coverage"`
	FailureRate        float64 `json:"failure_rate"`
	UniquePredictions  int     `json:"unique_predictions"`
	PredictionStd      float64 `json:"prediction_std"`
	ExtremeRate        float64 `json:"extreme_rate"`
	ConfidentWrongRate float64 `json:"confident_wrong_rate"`

	// CalibrationError is NaN when the window holds fewer than
	// scoring.MinCalibrationSamples effective rounds.
	CalibrationError float64 `json:"-"`
}

// Result is the outcome of one gate evaluation. Computed fresh per
// elimination run; never persisted as mutable state.
type Result struct {
	Valid   bool     `json:"valid"`
	Reasons []Reason `json:"reasons,omitempty"`
	Metrics Metrics  `json:"metrics"`
}

// Check evaluates every gate over one model's window on one horizon.
// probs and labels are the effective (successfully parsed) rounds;
// failedRounds counts rounds with no usable probability; totalRounds is
// the full window size.
func Check(probs []float64, labels []bool, failedRounds, totalRounds int, cfg Config) (Result, error) {
	if len(probs) != len(labels) {
		return Result{}, fmt.Errorf("%w: %d probabilities vs %d labels", ErrLengthMismatch, len(probs), len(labels))
	}

	m := measure(probs, labels, failedRounds, totalRounds, cfg)

	var reasons []Reason
	if m.Coverage < cfg.MinCoverage {
		reasons = append(reasons, ReasonLowCoverage)
	}
	if m.FailureRate > cfg.MaxFailureRate {
		reasons = append(reasons, ReasonHighFailureRate)
	}
	if m.UniquePredictions <= 2 && m.PredictionStd <= cfg.StdThreshold && m.EffectiveN > 1 {
		reasons = append(reasons, ReasonConstantPredictor)
	}
	if m.ExtremeRate > cfg.MaxExtremeShare {
		reasons = append(reasons, ReasonExtremePredictions)
	}
	if m.ConfidentWrongRate > cfg.MaxConfidentWrong {
		reasons = append(reasons, ReasonExtremeWrongRate)
	}

	return Result{Valid: len(reasons) == 0, Reasons: reasons, Metrics: m}, nil
}

func measure(probs []float64, labels []bool, failedRounds, totalRounds int, cfg Config) Metrics {
	m := Metrics{
		EffectiveN: len(probs),
		TotalN:     totalRounds,
	}
	if totalRounds > 0 {
		m.Coverage = float64(len(probs)) / float64(totalRounds)
		m.FailureRate = float64(failedRounds) / float64(totalRounds)
	}
	if len(probs) == 0 {
		return m
	}

	unique := make(map[int]struct{}, len(probs))
	mean := 0.0
	extreme := 0
	confidentWrong := 0
	for i, p := range probs {
		unique[int(math.Round(p*uniqueRoundingGranularity))] = struct{}{}
		mean += p
		if p >= cfg.ExtremeHigh || p <= cfg.ExtremeLow {
			extreme++
		}
		if (p > cfg.ConfidentHigh && !labels[i]) || (p < cfg.ConfidentLow && labels[i]) {
			confidentWrong++
		}
	}
	mean /= float64(len(probs))

	variance := 0.0
	for _, p := range probs {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(probs))

	m.UniquePredictions = len(unique)
	m.PredictionStd = math.Sqrt(variance)
	m.ExtremeRate = float64(extreme) / float64(len(probs))
	m.ConfidentWrongRate = float64(confidentWrong) / float64(len(probs))
	// Lengths were validated by Check; only non-finite input can error,
	// and that leaves the zero value in place.
	if ce, err := scoring.CalibrationError(probs, labels); err == nil {
		m.CalibrationError = ce
	}
	return m
}
