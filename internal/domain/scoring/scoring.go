// Package scoring provides the pure calibration-loss primitives used by
// every tournament phase: Brier score, clamped binary log loss, batch
// means, percentile ranking, and the prevalence baseline.
package scoring

import (
	"fmt"
	"math"
	"sort"
)

// Numeric guard rails.
const (
	// logLossEpsilon clamps probabilities away from 0 and 1 before taking
	// logs. Without it a single perfectly-wrong-but-certain prediction
	// yields infinite loss and corrupts every downstream mean.
	logLossEpsilon = 1e-15

	// worstCaseProb is the probability charged for an unparseable or
	// out-of-range prediction. The resulting loss is large but finite, so
	// one bad round penalizes a model without aborting the tournament.
	worstCaseProb = 1e-6

	// neutralPercentile is returned for every member of a cohort too small
	// for percentiles to be statistically meaningful.
	neutralPercentile = 50.0

	// minPercentileCohort is the smallest cohort percentiles are computed
	// for; below it every model gets neutralPercentile.
	minPercentileCohort = 3

	// MinCalibrationSamples is the smallest window calibration error is
	// computed over; below it the estimate is dominated by bin noise and
	// the result degrades to NaN.
	MinCalibrationSamples = 20

	// calibrationBins is the number of equal-width probability bins used
	// by CalibrationError.
	calibrationBins = 10
)

// WorstCaseLogLoss is the loss constant charged for invalid probabilities.
var WorstCaseLogLoss = -math.Log(worstCaseProb)

// BrierScore returns (p - y)^2 with y mapped to {0,1}. The caller must
// supply p in [0,1]; out-of-range input is a caller bug, not clamped here.
func BrierScore(p float64, y bool) float64 {
	t := 0.0
	if y {
		t = 1.0
	}
	d := p - t
	return d * d
}

// LogLoss returns the binary log loss of predicting probability p for
// outcome y, with p clamped into [ε, 1-ε].
func LogLoss(p float64, y bool) float64 {
	p = math.Min(math.Max(p, logLossEpsilon), 1-logLossEpsilon)
	if y {
		return -math.Log(p)
	}
	return -math.Log(1 - p)
}

// MeanBrierScore reduces parallel prediction/label slices to a mean Brier
// score. Mismatched lengths and non-finite probabilities are errors; an
// empty batch returns 0.
func MeanBrierScore(probs []float64, labels []bool) (float64, error) {
	if err := checkBatch(probs, labels); err != nil {
		return 0, err
	}
	if len(probs) == 0 {
		return 0, nil
	}
	sum := 0.0
	for i, p := range probs {
		sum += BrierScore(p, labels[i])
	}
	return sum / float64(len(probs)), nil
}

// MeanLogLoss reduces parallel prediction/label slices to a mean log loss.
// Mismatched lengths and non-finite probabilities are errors; an empty
// batch returns 0.
func MeanLogLoss(probs []float64, labels []bool) (float64, error) {
	if err := checkBatch(probs, labels); err != nil {
		return 0, err
	}
	if len(probs) == 0 {
		return 0, nil
	}
	sum := 0.0
	for i, p := range probs {
		sum += LogLoss(p, labels[i])
	}
	return sum / float64(len(probs)), nil
}

func checkBatch(probs []float64, labels []bool) error {
	if len(probs) != len(labels) {
		return fmt.Errorf("%w: %d probabilities vs %d labels", ErrLengthMismatch, len(probs), len(labels))
	}
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: probability[%d]=%v", ErrNonFinite, i, p)
		}
	}
	return nil
}

// CalibrationError returns the expected calibration error over ten
// equal-width probability bins: the sample-weighted mean absolute gap
// between each bin's average predicted probability and its realized
// event frequency. Windows smaller than MinCalibrationSamples return
// NaN, the too-little-data sentinel, not an error.
func CalibrationError(probs []float64, labels []bool) (float64, error) {
	if err := checkBatch(probs, labels); err != nil {
		return 0, err
	}
	if len(probs) < MinCalibrationSamples {
		return math.NaN(), nil
	}

	var (
		count [calibrationBins]int
		sum   [calibrationBins]float64
		hits  [calibrationBins]int
	)
	for i, p := range probs {
		j := int(p * calibrationBins)
		if j < 0 {
			j = 0
		}
		if j >= calibrationBins {
			j = calibrationBins - 1
		}
		count[j]++
		sum[j] += p
		if labels[i] {
			hits[j]++
		}
	}

	total := float64(len(probs))
	ece := 0.0
	for j, n := range count {
		if n == 0 {
			continue
		}
		avgProb := sum[j] / float64(n)
		freq := float64(hits[j]) / float64(n)
		ece += float64(n) / total * math.Abs(avgProb-freq)
	}
	return ece, nil
}

// PercentileRanks maps each model's mean log loss to a percentile within
// the cohort: the lowest loss ranks near 100, the highest near 0. Ties are
// broken by model id so replays are deterministic. Cohorts smaller than
// three models get the neutral percentile for every member; the result
// never contains NaN.
func PercentileRanks(meanLoss map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(meanLoss))
	n := len(meanLoss)
	if n < minPercentileCohort {
		for id := range meanLoss {
			out[id] = neutralPercentile
		}
		return out
	}

	ids := make([]string, 0, n)
	for id := range meanLoss {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if meanLoss[ids[i]] != meanLoss[ids[j]] {
			return meanLoss[ids[i]] < meanLoss[ids[j]]
		}
		return ids[i] < ids[j]
	})

	for rank, id := range ids {
		out[id] = 100 * float64(n-1-rank) / float64(n-1)
	}
	return out
}

// PrevalenceBaseline returns the mean log loss of always predicting the
// observed base rate for the given labels. A 0%- or 100%-prevalence batch
// is degenerate and scores 0 by convention rather than -log(0).
func PrevalenceBaseline(labels []bool) float64 {
	if len(labels) == 0 {
		return 0
	}
	trues := 0
	for _, y := range labels {
		if y {
			trues++
		}
	}
	if trues == 0 || trues == len(labels) {
		return 0
	}
	pTrue := float64(trues) / float64(len(labels))
	return -(pTrue*math.Log(pTrue) + (1-pTrue)*math.Log(1-pTrue))
}

// SafeLogLoss scores a possibly-missing probability. Absent or
// out-of-range values are charged WorstCaseLogLoss and reported so the
// caller can record the round as failed rather than aborting.
func SafeLogLoss(p float64, ok bool, y bool) (loss float64, valid bool) {
	if !ok || math.IsNaN(p) || p < 0 || p > 1 {
		return WorstCaseLogLoss, false
	}
	return LogLoss(p, y), true
}
