package sim

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"

	"github.com/okian/gauntlet/internal/adapters/forecast"
	"github.com/okian/gauntlet/internal/domain/model"
)

// Profile names a synthetic forecasting behavior.
type Profile string

// Supported profiles.
const (
	// ProfileSharp knows the outcome most of the time and says so with
	// well-placed confidence.
	ProfileSharp Profile = "sharp"
	// ProfileCalibrated leans the right way with honest, moderate
	// probabilities.
	ProfileCalibrated Profile = "calibrated"
	// ProfileNoisy carries a weak signal under heavy noise.
	ProfileNoisy Profile = "noisy"
	// ProfileConstant answers the same probability every round.
	ProfileConstant Profile = "constant"
	// ProfileExtremist answers near 0 or near 1 with no signal.
	ProfileExtremist Profile = "extremist"
	// ProfileCoinFlip answers uniformly at random.
	ProfileCoinFlip Profile = "coinflip"
	// ProfileFlaky forecasts like calibrated but fails some rounds.
	ProfileFlaky Profile = "flaky"
)

// Behavior parameters.
const (
	sharpHitRate      = 0.9
	constantAnswer    = 0.47
	extremistHigh     = 0.995
	extremistLow      = 0.005
	flakyFailureRate  = 0.15
	flakyMissingRate  = 0.1
	errFlakySimulated = "simulated upstream failure"
)

// truthFunc reports the realized label for one (round, horizon).
type truthFunc func(round int, h model.HorizonID) bool

// profileForecaster implements forecast.Forecaster with a synthetic
// behavior. Each forecaster owns its rng; the pool calls distinct
// forecasters concurrently but never the same one twice in a round.
type profileForecaster struct {
	id      string
	profile Profile
	truth   truthFunc

	mu  sync.Mutex
	rng *rand.Rand
}

func newProfileForecaster(id string, profile Profile, truth truthFunc, seed int64) *profileForecaster {
	return &profileForecaster{
		id:      id,
		profile: profile,
		truth:   truth,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (f *profileForecaster) ModelID() string { return f.id }

func (f *profileForecaster) Forecast(_ context.Context, round int, horizons []model.Horizon) ([]model.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.profile == ProfileFlaky && f.rng.Float64() < flakyFailureRate {
		return nil, errors.New(errFlakySimulated)
	}

	out := make([]model.Prediction, 0, len(horizons))
	for _, h := range horizons {
		pred := model.Prediction{ModelID: f.id, Round: round, Horizon: h.ID}
		if f.profile == ProfileFlaky && f.rng.Float64() < flakyMissingRate {
			out = append(out, pred)
			continue
		}
		pred.Probability = model.Some(f.probability(round, h.ID))
		out = append(out, pred)
	}
	return out, nil
}

func (f *profileForecaster) probability(round int, h model.HorizonID) float64 {
	y := f.truth(round, h)
	switch f.profile {
	case ProfileSharp:
		lean := y
		if f.rng.Float64() > sharpHitRate {
			lean = !lean
		}
		if lean {
			return clamp(0.85 + 0.1*f.rng.Float64())
		}
		return clamp(0.15 - 0.1*f.rng.Float64())
	case ProfileCalibrated, ProfileFlaky:
		if y {
			return clamp(0.55 + 0.25*f.rng.Float64())
		}
		return clamp(0.45 - 0.25*f.rng.Float64())
	case ProfileNoisy:
		signal := -0.1
		if y {
			signal = 0.1
		}
		return clamp(0.5 + signal + 0.25*f.rng.NormFloat64())
	case ProfileConstant:
		return constantAnswer
	case ProfileExtremist:
		if f.rng.Float64() < 0.5 {
			return extremistHigh
		}
		return extremistLow
	default:
		return f.rng.Float64()
	}
}

func clamp(p float64) float64 {
	if p < 0.01 {
		return 0.01
	}
	if p > 0.99 {
		return 0.99
	}
	return p
}

// buildForecasters expands the config's profile counts into named
// forecasters with deterministic per-model seeds.
func buildForecasters(cfg Config, truth truthFunc) []forecast.Forecaster {
	type group struct {
		profile Profile
		count   int
	}
	groups := []group{
		{ProfileSharp, cfg.Sharp},
		{ProfileCalibrated, cfg.Calibrated},
		{ProfileNoisy, cfg.Noisy},
		{ProfileConstant, cfg.Constant},
		{ProfileExtremist, cfg.Extremist},
		{ProfileCoinFlip, cfg.CoinFlip},
		{ProfileFlaky, cfg.Flaky},
	}

	var out []forecast.Forecaster
	seed := cfg.Seed
	for _, g := range groups {
		for i := 1; i <= g.count; i++ {
			seed++
			id := string(g.profile) + "-" + strconv.Itoa(i)
			out = append(out, newProfileForecaster(id, g.profile, truth, seed))
		}
	}
	return out
}
