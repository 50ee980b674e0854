// Package repository holds the tournament's system of record: per-model
// round history, elimination and disqualification bookkeeping, and the
// phase counter. Every phase reads and mutates tournament state through
// this package only.
package repository

import (
	"context"

	"github.com/okian/gauntlet/internal/domain/model"
)

// Disqualification records why and when a model lost a horizon.
type Disqualification struct {
	Phase  int    `json:"phase"`
	Reason string `json:"reason"`
}

// ModelState is a read-only snapshot of one model's tournament state.
// Models are never deleted; an eliminated model stays inspectable.
type ModelState struct {
	ID                   string
	Active               bool
	EliminatedInPhase    model.Opt[int]
	EliminationReason    string
	QualifiedHorizons    []model.HorizonID
	DisqualifiedHorizons map[model.HorizonID]Disqualification
	Rounds               []model.RoundScore
}

// HorizonSeries is the effective per-horizon evaluation window for one
// model: parsed probabilities with their labels, plus the failed and
// total round counts the validity gates need.
type HorizonSeries struct {
	Probs  []float64
	Labels []bool
	Failed int
	Total  int
}

// Store provides read/write access to tournament state. Mutation happens
// only through the methods below; violating an invariant (touching an
// eliminated model, stepping past the terminal phase) is a programmer
// error and surfaces as a sentinel error, never a silent no-op.
type Store interface {
	// AddRoundScore appends one immutable round record for a model.
	// Rounds must arrive in strictly increasing order.
	AddRoundScore(ctx context.Context, modelID string, rs model.RoundScore) error

	// RecordLabels appends the cohort-wide resolved labels for a round.
	RecordLabels(ctx context.Context, round int, labels []model.Label) error

	// ApplyRound lands one round atomically: every model's score and the
	// cohort labels commit together, or nothing does.
	ApplyRound(ctx context.Context, round int, scores map[string]model.RoundScore, labels []model.Label) error

	// EliminateModel marks a model inactive with a phase stamp and reason.
	// Eliminations are final; eliminating twice is an invariant violation.
	EliminateModel(ctx context.Context, modelID string, phase int, reason string) error

	// DisqualifyFromHorizon removes one horizon from a model's qualified
	// set. Replaying the same disqualification keeps the earliest record.
	DisqualifyFromHorizon(ctx context.Context, modelID string, horizon model.HorizonID, phase int, reason string) error

	// QualifyForHorizon restores a horizon to a model's qualified set.
	QualifyForHorizon(ctx context.Context, modelID string, horizon model.HorizonID) error

	// AdvancePhase moves the tournament to the next phase and returns it.
	// Phase 3 is terminal.
	AdvancePhase(ctx context.Context) (int, error)

	// Phase returns the current phase (0-3).
	Phase(ctx context.Context) int

	// Model returns a snapshot of one model. ErrUnknownModel if absent.
	Model(ctx context.Context, modelID string) (ModelState, error)

	// Models returns snapshots of every model, sorted by id.
	Models(ctx context.Context) []ModelState

	// ActiveModels returns the ids of models still in contention, sorted.
	ActiveModels(ctx context.Context) []string

	// IsEliminated reports whether a model is out: explicitly eliminated,
	// or lazily ineligible because its qualified-horizon set is empty.
	IsEliminated(ctx context.Context, modelID string) bool

	// RoundCount returns how many rounds a model has been scored on.
	RoundCount(ctx context.Context, modelID string) int

	// Series returns a model's effective evaluation window on a horizon.
	Series(ctx context.Context, modelID string, horizon model.HorizonID) (HorizonSeries, error)

	// HorizonLabels returns the cohort's resolved labels for a horizon in
	// round order.
	HorizonLabels(ctx context.Context, horizon model.HorizonID) []bool

	// Horizons returns the fixed horizon set of this tournament.
	Horizons(ctx context.Context) []model.Horizon

	// Round returns the highest round number recorded so far, or 0.
	Round(ctx context.Context) int
}
