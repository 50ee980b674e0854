// Package forecast fans one round's forecast requests out to every
// competing model and collects the complete result set. This is the only
// concurrency in the system: the engine never observes a partial round —
// either every model's answer (or explicit failure) is in hand, or the
// round is discarded whole.
package forecast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
	"github.com/okian/gauntlet/pkg/metrics"
)

// Default pool configuration constants.
const (
	defaultTimeout = 30 * time.Second
)

// Forecaster produces one model's predictions for a round. Implementations
// wrap whatever actually answers — an LLM bridge, a baseline, a synthetic
// profile in the simulator.
type Forecaster interface {
	ModelID() string
	Forecast(ctx context.Context, round int, horizons []model.Horizon) ([]model.Prediction, error)
}

// Round is one fully collected round: every registered model has an
// entry, failed models with explicitly missing probabilities.
type Round struct {
	Round       int
	Predictions map[string][]model.Prediction
	Failed      map[string]error
}

// Pool queries registered forecasters concurrently with a per-model
// timeout.
type Pool struct {
	forecasters []Forecaster
	timeout     time.Duration
	logger      logger.Logger
}

// NewPool creates a fan-out pool over the given forecasters.
func NewPool(forecasters []Forecaster, opts ...Option) *Pool {
	p := &Pool{
		forecasters: forecasters,
		timeout:     defaultTimeout,
		logger:      logger.Get().Named("forecast"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Collect gathers every model's predictions for one round. A model that
// errors or times out contributes missing probabilities for every horizon
// (a recoverable, penalized condition); a cancelled context aborts the
// whole round instead.
func (p *Pool) Collect(ctx context.Context, round int, horizons []model.Horizon) (Round, error) {
	start := time.Now()
	out := Round{
		Round:       round,
		Predictions: make(map[string][]model.Prediction, len(p.forecasters)),
		Failed:      make(map[string]error),
	}

	type result struct {
		modelID     string
		predictions []model.Prediction
		err         error
	}

	results := make(chan result, len(p.forecasters))
	var wg sync.WaitGroup
	for _, f := range p.forecasters {
		wg.Add(1)
		go func(f Forecaster) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			preds, err := f.Forecast(callCtx, round, horizons)
			results <- result{modelID: f.ModelID(), predictions: preds, err: err}
		}(f)
	}
	wg.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		return Round{}, fmt.Errorf("%w: %v", ErrRoundAborted, err)
	}

	for res := range results {
		if res.err != nil {
			metrics.RecordForecastError()
			p.logger.Warn(ctx, "forecast failed; recording missing predictions",
				logger.String("model", res.modelID),
				logger.Int("round", round),
				logger.Error(res.err),
			)
			out.Failed[res.modelID] = res.err
			out.Predictions[res.modelID] = missingPredictions(res.modelID, round, horizons)
			continue
		}
		out.Predictions[res.modelID] = normalize(res.modelID, round, horizons, res.predictions)
	}

	metrics.RecordForecastLatency(float64(time.Since(start).Milliseconds()))
	return out, nil
}

// normalize guarantees exactly one prediction per horizon, filling gaps
// with explicit missing markers so absence is never conflated with zero.
func normalize(modelID string, round int, horizons []model.Horizon, preds []model.Prediction) []model.Prediction {
	byHorizon := make(map[model.HorizonID]model.Prediction, len(preds))
	for _, pred := range preds {
		byHorizon[pred.Horizon] = pred
	}
	out := make([]model.Prediction, 0, len(horizons))
	for _, h := range horizons {
		if pred, ok := byHorizon[h.ID]; ok {
			pred.ModelID = modelID
			pred.Round = round
			out = append(out, pred)
			continue
		}
		out = append(out, model.Prediction{ModelID: modelID, Round: round, Horizon: h.ID})
	}
	return out
}

func missingPredictions(modelID string, round int, horizons []model.Horizon) []model.Prediction {
	out := make([]model.Prediction, 0, len(horizons))
	for _, h := range horizons {
		out = append(out, model.Prediction{ModelID: modelID, Round: round, Horizon: h.ID})
	}
	return out
}
