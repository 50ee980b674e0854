// Package model contains domain records passed between layers.
package model

import "time"

// HorizonID identifies one evaluation horizon, e.g. "15m" or "4h".
type HorizonID string

// Detection selects the structural method used to resolve a horizon's
// ground-truth label from market data.
type Detection string

// Supported detection methods.
const (
	DetectionFractal Detection = "fractal"
	DetectionZigzag  Detection = "zigzag"
)

// Horizon is the fixed configuration of one evaluation horizon. Horizons
// are enumerated at tournament start and never change mid-run; every model
// is evaluated on the same horizon set.
type Horizon struct {
	ID             HorizonID     `json:"id"`
	BarSize        time.Duration `json:"bar_size"`
	LookbackBars   int           `json:"lookback_bars"`
	ForwardBars    int           `json:"forward_bars"`
	EventThreshold float64       `json:"event_threshold"` // max-drawdown fraction that counts as the event
	Detection      Detection     `json:"detection"`
}

// Prediction is one model's answer for one (round, horizon). Probability
// is absent when the upstream response could not be parsed; the engine
// treats absence as a failed round, never as zero.
type Prediction struct {
	ModelID     string       `json:"model_id"`
	Round       int          `json:"round"`
	Horizon     HorizonID    `json:"horizon"`
	Probability Opt[float64] `json:"probability"`
	Confidence  Opt[float64] `json:"confidence,omitempty"`
	CandlesBack Opt[int]     `json:"candles_back,omitempty"`
}

// Label is the resolved ground truth for one (round, horizon). Imputed is
// set when the resolution window had no market data and the benign outcome
// was substituted; downstream consumers may audit or exclude such rounds.
type Label struct {
	Horizon           HorizonID      `json:"horizon"`
	Label             bool           `json:"label"`
	FirstResolutionAt Opt[time.Time] `json:"first_resolution_at,omitempty"`
	ResolutionRatio   Opt[float64]   `json:"resolution_ratio,omitempty"` // fraction of the forward window elapsed at first resolution
	Imputed           bool           `json:"imputed,omitempty"`
}

// RoundScore is one model's scored record for one round. Immutable once
// appended to the store; ordering by Round is significant for the
// stability phase.
type RoundScore struct {
	Round           int                        `json:"round"`
	OverallLogLoss  float64                    `json:"overall_log_loss"`
	HorizonLogLoss  map[HorizonID]float64      `json:"horizon_log_loss"`
	HorizonProb     map[HorizonID]Opt[float64] `json:"horizon_prob"`
	HorizonLabel    map[HorizonID]bool         `json:"horizon_label"`
	ResolutionRatio map[HorizonID]Opt[float64] `json:"resolution_ratio,omitempty"`
}

// RoundDiagnostic is the append-only record emitted after each scored
// round, suitable for structured logging.
type RoundDiagnostic struct {
	RunID         string                `json:"run_id"`
	Round         int                   `json:"round"`
	ScoredAt      time.Time             `json:"scored_at"`
	Labels        []Label               `json:"labels"`
	ImputedLabels int                   `json:"imputed_labels"`
	MissingProbs  int                   `json:"missing_probs"`
	ModelLogLoss  map[string]float64    `json:"model_log_loss"`
	EnsembleProb  map[HorizonID]float64 `json:"ensemble_prob,omitempty"`
	EnsembleLoss  map[HorizonID]float64 `json:"ensemble_loss,omitempty"`
	ElapsedMS     int64                 `json:"elapsed_ms"`
}
