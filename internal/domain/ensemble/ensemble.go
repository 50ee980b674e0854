// Package ensemble maintains the online blend of surviving models: a
// rolling loss window per model per horizon, softmax-style weights over
// the negative rolling means, and a weight-averaged combined probability
// scored with the same primitives as any individual model.
package ensemble

import (
	"math"
	"sort"

	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/internal/domain/scoring"
)

// Defaults; injected through Config.
const (
	defaultWindowSize = 6
	defaultAlpha      = 4.0
	defaultMinModels  = 3
)

// Config carries the ensemble tunables.
type Config struct {
	WindowSize int     `koanf:"window_size" validate:"gt=0"`
	Alpha      float64 `koanf:"alpha" validate:"gt=0"`
	MinModels  int     `koanf:"min_models" validate:"gt=0"`
}

// DefaultConfig returns the stock ensemble tunables.
func DefaultConfig() Config {
	return Config{
		WindowSize: defaultWindowSize,
		Alpha:      defaultAlpha,
		MinModels:  defaultMinModels,
	}
}

// State is the exposed per-horizon snapshot: current normalized weights
// and the blended probability of the round last scored.
type State struct {
	Horizon   model.HorizonID    `json:"horizon"`
	Weights   map[string]float64 `json:"weights"`
	Blended   model.Opt[float64] `json:"blended"`
	BlendLoss model.Opt[float64] `json:"blend_loss"`
}

// Blender keeps rolling windows and produces blended forecasts. Not safe
// for concurrent use; the engine is single-threaded by design.
type Blender struct {
	cfg     Config
	windows map[model.HorizonID]map[string][]float64
	states  map[model.HorizonID]*State
}

// New creates an empty blender.
func New(cfg Config) *Blender {
	return &Blender{
		cfg:     cfg,
		windows: make(map[model.HorizonID]map[string][]float64),
		states:  make(map[model.HorizonID]*State),
	}
}

// Observe appends one round's realized log losses for a horizon, aging
// out entries beyond the window. Models absent from losses keep their
// window untouched.
func (b *Blender) Observe(h model.HorizonID, losses map[string]float64) {
	wins, ok := b.windows[h]
	if !ok {
		wins = make(map[string][]float64)
		b.windows[h] = wins
	}
	for id, loss := range losses {
		w := append(wins[id], loss)
		if len(w) > b.cfg.WindowSize {
			w = w[len(w)-b.cfg.WindowSize:]
		}
		wins[id] = w
	}
}

// Drop forgets a model entirely, e.g. after elimination.
func (b *Blender) Drop(modelID string) {
	for _, wins := range b.windows {
		delete(wins, modelID)
	}
}

// Weights returns normalized softmax weights over the candidate models'
// rolling mean losses: weight_i ∝ exp(-alpha * rollingMean_i). Ensembling
// is skipped (nil, false) when fewer than MinModels candidates carry any
// window history.
func (b *Blender) Weights(h model.HorizonID, candidates []string) (map[string]float64, bool) {
	wins := b.windows[h]
	if wins == nil {
		return nil, false
	}

	eligible := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if len(wins[id]) > 0 {
			eligible = append(eligible, id)
		}
	}
	if len(eligible) < b.cfg.MinModels {
		return nil, false
	}
	sort.Strings(eligible)

	weights := make(map[string]float64, len(eligible))
	sum := 0.0
	for _, id := range eligible {
		w := math.Exp(-b.cfg.Alpha * mean(wins[id]))
		weights[id] = w
		sum += w
	}
	if sum == 0 {
		// All windows are catastrophically bad; fall back to uniform.
		for id := range weights {
			weights[id] = 1 / float64(len(weights))
		}
		return weights, true
	}
	for id := range weights {
		weights[id] /= sum
	}
	return weights, true
}

// Blend combines the candidates' probabilities for one round into the
// weight-averaged ensemble probability and scores it against the label.
// Returns the updated per-horizon state; ok is false when ensembling was
// skipped for this horizon/round.
func (b *Blender) Blend(h model.HorizonID, probs map[string]float64, label bool) (State, bool) {
	candidates := make([]string, 0, len(probs))
	for id := range probs {
		candidates = append(candidates, id)
	}
	weights, ok := b.Weights(h, candidates)
	if !ok {
		st := State{Horizon: h, Weights: nil}
		b.states[h] = &st
		return st, false
	}

	blended := 0.0
	for id, w := range weights {
		blended += w * probs[id]
	}
	st := State{
		Horizon:   h,
		Weights:   weights,
		Blended:   model.Some(blended),
		BlendLoss: model.Some(scoring.LogLoss(blended, label)),
	}
	b.states[h] = &st
	return st, true
}

// States returns the latest per-horizon snapshots, sorted by horizon.
func (b *Blender) States() []State {
	out := make([]State, 0, len(b.states))
	for _, st := range b.states {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Horizon < out[j].Horizon })
	return out
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
