// Package resolver turns market-data replay into ground-truth labels. The
// engine consumes one canonical contract — a boolean label plus an
// optional first-resolution timestamp — and the detection method (fractal
// or zigzag pivots over the forward candle window) stays pluggable here,
// outside the scoring engine.
package resolver

import (
	"context"
	"fmt"

	"github.com/sdcoffey/techan"

	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
)

// Resolver resolves the ground-truth label of one horizon for one round.
type Resolver interface {
	Resolve(ctx context.Context, horizon model.Horizon, round int) (model.Label, error)
}

// Feed supplies the forward candle window for a (horizon, round). An
// empty or nil series means the resolution window has no market data.
type Feed interface {
	ForwardWindow(ctx context.Context, horizon model.Horizon, round int) (*techan.TimeSeries, error)
}

// Replay resolves labels by replaying candles from a feed. The event is a
// drawdown from the window's opening price of at least the horizon's
// threshold, confirmed by the horizon's configured pivot detection.
type Replay struct {
	feed   Feed
	logger logger.Logger
}

// NewReplay creates a replay resolver over feed.
func NewReplay(feed Feed, opts ...Option) *Replay {
	r := &Replay{
		feed:   feed,
		logger: logger.Get().Named("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve computes the label for one horizon at one round. A window with
// no market data resolves to the benign label with Imputed set, never an
// error: missing forward data is an expected condition the caller audits
// through the flag.
func (r *Replay) Resolve(ctx context.Context, horizon model.Horizon, round int) (model.Label, error) {
	series, err := r.feed.ForwardWindow(ctx, horizon, round)
	if err != nil {
		return model.Label{}, fmt.Errorf("%w: horizon %s round %d: %v", ErrFeed, horizon.ID, round, err)
	}
	if series == nil || len(series.Candles) == 0 {
		r.logger.Warn(ctx, "no forward data; imputing benign label",
			logger.String("horizon", string(horizon.ID)),
			logger.Int("round", round),
		)
		return model.Label{Horizon: horizon.ID, Label: false, Imputed: true}, nil
	}

	var hit pivotHit
	switch horizon.Detection {
	case model.DetectionFractal:
		hit = firstFractalBreach(series, horizon.EventThreshold)
	case model.DetectionZigzag:
		hit = firstZigzagBreach(series, horizon.EventThreshold)
	default:
		return model.Label{}, fmt.Errorf("%w: %q", ErrUnknownDetection, horizon.Detection)
	}

	label := model.Label{Horizon: horizon.ID, Label: hit.found}
	if hit.found {
		label.FirstResolutionAt = model.Some(series.Candles[hit.index].Period.Start)
		if horizon.ForwardBars > 0 {
			label.ResolutionRatio = model.Some(float64(hit.index+1) / float64(horizon.ForwardBars))
		}
	}
	return label, nil
}

type pivotHit struct {
	found bool
	index int
}

// firstFractalBreach scans for the first three-bar fractal low whose
// drawdown from the window's opening price reaches the threshold.
func firstFractalBreach(series *techan.TimeSeries, threshold float64) pivotHit {
	candles := series.Candles
	anchor := candles[0].OpenPrice.Float()
	if anchor <= 0 {
		return pivotHit{}
	}
	for i := 1; i < len(candles)-1; i++ {
		low := candles[i].MinPrice.Float()
		if low >= candles[i-1].MinPrice.Float() || low >= candles[i+1].MinPrice.Float() {
			continue
		}
		if (anchor-low)/anchor >= threshold {
			return pivotHit{found: true, index: i}
		}
	}
	return pivotHit{}
}

// firstZigzagBreach tracks the running high and fires on the first
// retracement leg that gives back at least the threshold fraction.
func firstZigzagBreach(series *techan.TimeSeries, threshold float64) pivotHit {
	candles := series.Candles
	runningHigh := candles[0].MaxPrice.Float()
	if runningHigh <= 0 {
		return pivotHit{}
	}
	for i, c := range candles {
		if high := c.MaxPrice.Float(); high > runningHigh {
			runningHigh = high
		}
		if low := c.MinPrice.Float(); (runningHigh-low)/runningHigh >= threshold {
			return pivotHit{found: true, index: i}
		}
	}
	return pivotHit{}
}
