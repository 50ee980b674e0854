package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/gauntlet/internal/domain/model"
)

// Phase bounds.
const (
	firstPhase    = 0
	terminalPhase = 3
)

type modelRecord struct {
	id                string
	active            bool
	eliminatedInPhase model.Opt[int]
	eliminationReason string
	qualified         map[model.HorizonID]struct{}
	disqualified      map[model.HorizonID]Disqualification
	rounds            []model.RoundScore
}

// MemoryStore is the in-memory Store implementation. Its lifetime is one
// tournament run; it is explicitly constructed and passed by handle, never
// a process-wide singleton.
type MemoryStore struct {
	mu       sync.RWMutex
	horizons []model.Horizon
	models   map[string]*modelRecord
	labels   map[model.HorizonID][]bool
	phase    int
	round    int

	roundCapacity int
}

// NewMemoryStore creates the system of record for one tournament with
// every model active and qualified on every horizon.
func NewMemoryStore(ctx context.Context, horizons []model.Horizon, modelIDs []string, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		horizons:      append([]model.Horizon(nil), horizons...),
		models:        make(map[string]*modelRecord, len(modelIDs)),
		labels:        make(map[model.HorizonID][]bool, len(horizons)),
		phase:         firstPhase,
		roundCapacity: 0,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, id := range modelIDs {
		rec := &modelRecord{
			id:           id,
			active:       true,
			qualified:    make(map[model.HorizonID]struct{}, len(horizons)),
			disqualified: make(map[model.HorizonID]Disqualification),
			rounds:       make([]model.RoundScore, 0, s.roundCapacity),
		}
		for _, h := range horizons {
			rec.qualified[h.ID] = struct{}{}
		}
		s.models[id] = rec
	}
	return s
}

// AddRoundScore appends one round record. Scoring an eliminated model or
// rewinding the round order is an invariant violation.
func (s *MemoryStore) AddRoundScore(_ context.Context, modelID string, rs model.RoundScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.models[modelID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	if !rec.active {
		return fmt.Errorf("%w: %s", ErrModelEliminated, modelID)
	}
	if n := len(rec.rounds); n > 0 && rs.Round <= rec.rounds[n-1].Round {
		return fmt.Errorf("%w: round %d after round %d", ErrRoundOrder, rs.Round, rec.rounds[n-1].Round)
	}
	rec.rounds = append(rec.rounds, rs)
	if rs.Round > s.round {
		s.round = rs.Round
	}
	return nil
}

// RecordLabels appends the cohort labels resolved for one round.
func (s *MemoryStore) RecordLabels(_ context.Context, round int, labels []model.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range labels {
		if !s.knownHorizon(l.Horizon) {
			return fmt.Errorf("%w: %s", ErrUnknownHorizon, l.Horizon)
		}
	}
	for _, l := range labels {
		s.labels[l.Horizon] = append(s.labels[l.Horizon], l.Label)
	}
	if round > s.round {
		s.round = round
	}
	return nil
}

// ApplyRound commits one round's scores and labels as a unit. Every
// write is validated before the first mutation, so a rejected batch
// leaves the store untouched.
func (s *MemoryStore) ApplyRound(_ context.Context, round int, scores map[string]model.RoundScore, labels []model.Label) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rs := range scores {
		rec, ok := s.models[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownModel, id)
		}
		if !rec.active {
			return fmt.Errorf("%w: %s", ErrModelEliminated, id)
		}
		if n := len(rec.rounds); n > 0 && rs.Round <= rec.rounds[n-1].Round {
			return fmt.Errorf("%w: round %d after round %d", ErrRoundOrder, rs.Round, rec.rounds[n-1].Round)
		}
	}
	for _, l := range labels {
		if !s.knownHorizon(l.Horizon) {
			return fmt.Errorf("%w: %s", ErrUnknownHorizon, l.Horizon)
		}
	}

	for id, rs := range scores {
		s.models[id].rounds = append(s.models[id].rounds, rs)
	}
	for _, l := range labels {
		s.labels[l.Horizon] = append(s.labels[l.Horizon], l.Label)
	}
	if round > s.round {
		s.round = round
	}
	return nil
}

// EliminateModel marks a model out of the tournament, stamped with the
// phase that removed it. Final: a second elimination is rejected.
func (s *MemoryStore) EliminateModel(_ context.Context, modelID string, phase int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.models[modelID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	if rec.eliminatedInPhase.IsSet() {
		return fmt.Errorf("%w: %s", ErrAlreadyEliminated, modelID)
	}
	rec.active = false
	rec.eliminatedInPhase = model.Some(phase)
	rec.eliminationReason = reason
	return nil
}

// DisqualifyFromHorizon removes a horizon from a model's qualified set.
// The earliest disqualification record wins on replay, keeping phase runs
// idempotent.
func (s *MemoryStore) DisqualifyFromHorizon(_ context.Context, modelID string, horizon model.HorizonID, phase int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.models[modelID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	if !s.knownHorizon(horizon) {
		return fmt.Errorf("%w: %s", ErrUnknownHorizon, horizon)
	}
	delete(rec.qualified, horizon)
	if _, seen := rec.disqualified[horizon]; !seen {
		rec.disqualified[horizon] = Disqualification{Phase: phase, Reason: reason}
	}
	return nil
}

// QualifyForHorizon restores a horizon to a model's qualified set.
func (s *MemoryStore) QualifyForHorizon(_ context.Context, modelID string, horizon model.HorizonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.models[modelID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	if !s.knownHorizon(horizon) {
		return fmt.Errorf("%w: %s", ErrUnknownHorizon, horizon)
	}
	if !rec.active {
		return fmt.Errorf("%w: %s", ErrModelEliminated, modelID)
	}
	rec.qualified[horizon] = struct{}{}
	delete(rec.disqualified, horizon)
	return nil
}

// AdvancePhase steps the monotone phase counter. Phase 3 is terminal.
func (s *MemoryStore) AdvancePhase(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase >= terminalPhase {
		return s.phase, fmt.Errorf("%w: phase %d", ErrTerminalPhase, s.phase)
	}
	s.phase++
	return s.phase, nil
}

// Phase returns the current phase.
func (s *MemoryStore) Phase(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Model returns a snapshot of one model's state.
func (s *MemoryStore) Model(_ context.Context, modelID string) (ModelState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.models[modelID]
	if !ok {
		return ModelState{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return rec.snapshot(), nil
}

// Models returns snapshots of every model sorted by id.
func (s *MemoryStore) Models(_ context.Context) []ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ModelState, 0, len(s.models))
	for _, rec := range s.models {
		out = append(out, rec.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActiveModels returns ids of models still in contention, sorted.
func (s *MemoryStore) ActiveModels(_ context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.models))
	for id, rec := range s.models {
		if rec.active && len(rec.qualified) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// IsEliminated reports explicit elimination or lazy ineligibility (no
// qualified horizons left).
func (s *MemoryStore) IsEliminated(_ context.Context, modelID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.models[modelID]
	if !ok {
		return false
	}
	return !rec.active || len(rec.qualified) == 0
}

// RoundCount returns how many rounds a model has been scored on.
func (s *MemoryStore) RoundCount(_ context.Context, modelID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.models[modelID]
	if !ok {
		return 0
	}
	return len(rec.rounds)
}

// Series returns a model's effective window on one horizon: the parsed
// probabilities with their labels plus failed/total counts.
func (s *MemoryStore) Series(_ context.Context, modelID string, horizon model.HorizonID) (HorizonSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.models[modelID]
	if !ok {
		return HorizonSeries{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	if !s.knownHorizon(horizon) {
		return HorizonSeries{}, fmt.Errorf("%w: %s", ErrUnknownHorizon, horizon)
	}

	series := HorizonSeries{Total: len(rec.rounds)}
	for _, rs := range rec.rounds {
		p, okProb := rs.HorizonProb[horizon].Get()
		label, okLabel := rs.HorizonLabel[horizon]
		if !okProb || !okLabel {
			series.Failed++
			continue
		}
		series.Probs = append(series.Probs, p)
		series.Labels = append(series.Labels, label)
	}
	return series, nil
}

// HorizonLabels returns the cohort labels recorded for a horizon.
func (s *MemoryStore) HorizonLabels(_ context.Context, horizon model.HorizonID) []bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]bool(nil), s.labels[horizon]...)
}

// Horizons returns the tournament's fixed horizon set.
func (s *MemoryStore) Horizons(_ context.Context) []model.Horizon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Horizon(nil), s.horizons...)
}

// Round returns the highest round recorded so far.
func (s *MemoryStore) Round(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.round
}

func (s *MemoryStore) knownHorizon(id model.HorizonID) bool {
	for _, h := range s.horizons {
		if h.ID == id {
			return true
		}
	}
	return false
}

func (r *modelRecord) snapshot() ModelState {
	st := ModelState{
		ID:                   r.id,
		Active:               r.active,
		EliminatedInPhase:    r.eliminatedInPhase,
		EliminationReason:    r.eliminationReason,
		QualifiedHorizons:    make([]model.HorizonID, 0, len(r.qualified)),
		DisqualifiedHorizons: make(map[model.HorizonID]Disqualification, len(r.disqualified)),
		Rounds:               append([]model.RoundScore(nil), r.rounds...),
	}
	for h := range r.qualified {
		st.QualifiedHorizons = append(st.QualifiedHorizons, h)
	}
	sort.Slice(st.QualifiedHorizons, func(i, j int) bool { return st.QualifiedHorizons[i] < st.QualifiedHorizons[j] })
	for h, d := range r.disqualified {
		st.DisqualifiedHorizons[h] = d
	}
	return st
}
