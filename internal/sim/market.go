package sim

import (
	"math/rand"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"

	"github.com/okian/gauntlet/internal/domain/model"
)

// Random-walk generation parameters.
const (
	basePrice = 100.0
	// volFraction scales per-bar volatility to the horizon's event
	// threshold so drawdown events land at a mid-range prevalence.
	volFraction = 0.6
)

// generateWindow builds one forward candle window as a geometric random
// walk whose per-bar volatility is tied to the horizon's event threshold.
func generateWindow(rng *rand.Rand, horizon model.Horizon, start time.Time) *techan.TimeSeries {
	series := techan.NewTimeSeries()
	vol := horizon.EventThreshold * volFraction

	price := basePrice * (1 + 0.1*rng.NormFloat64()*vol)
	for i := 0; i < horizon.ForwardBars; i++ {
		open := price
		ret := rng.NormFloat64() * vol
		closePrice := open * (1 + ret)

		high := open
		if closePrice > high {
			high = closePrice
		}
		high *= 1 + rng.Float64()*vol*0.5

		low := open
		if closePrice < low {
			low = closePrice
		}
		low *= 1 - rng.Float64()*vol*0.5

		candle := techan.NewCandle(techan.NewTimePeriod(start.Add(time.Duration(i)*horizon.BarSize), horizon.BarSize))
		candle.OpenPrice = big.NewDecimal(open)
		candle.MaxPrice = big.NewDecimal(high)
		candle.MinPrice = big.NewDecimal(low)
		candle.ClosePrice = big.NewDecimal(closePrice)
		candle.Volume = big.NewDecimal(1000 * (1 + rng.Float64()))
		series.AddCandle(candle)

		price = closePrice
	}
	return series
}
