// Package qualify implements the interchangeable per-horizon
// qualification policies used by the percentile phase and by extension
// planning.
package qualify

import (
	"fmt"
	"sort"

	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/internal/domain/scoring"
)

// Mode names a qualification policy.
type Mode string

// Supported modes.
const (
	// ModePrevalenceMargin qualifies a model when its mean log loss is at
	// or under the prevalence baseline plus a fixed margin.
	ModePrevalenceMargin Mode = "prevalence_margin"

	// ModeTopPercent qualifies the best fraction of the cohort by rank.
	ModeTopPercent Mode = "top_percent"
)

// Policy defaults.
const (
	DefaultMargin      = 0.1
	DefaultTopFraction = 0.7
)

// Result lists who qualified for one horizon and against what threshold.
type Result struct {
	Horizon      model.HorizonID `json:"horizon"`
	Qualified    []string        `json:"qualified"`
	Disqualified []string        `json:"disqualified"`
	Threshold    float64         `json:"threshold"`
	BaselineLoss float64         `json:"baseline_loss"`
}

// Policy decides per-horizon qualification from each model's mean log
// loss and the horizon's prevalence-baseline loss.
type Policy interface {
	Qualify(horizon model.HorizonID, meanLoss map[string]float64, baseline float64) Result
	Mode() Mode
}

// New builds the policy for mode. Margin applies to prevalence_margin,
// fraction to top_percent; non-positive values fall back to defaults.
func New(mode Mode, margin, fraction float64) (Policy, error) {
	switch mode {
	case ModePrevalenceMargin:
		if margin <= 0 {
			margin = DefaultMargin
		}
		return prevalenceMargin{margin: margin}, nil
	case ModeTopPercent:
		if fraction <= 0 || fraction > 1 {
			fraction = DefaultTopFraction
		}
		return topPercent{fraction: fraction}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

type prevalenceMargin struct {
	margin float64
}

func (p prevalenceMargin) Mode() Mode { return ModePrevalenceMargin }

// Qualify admits models whose mean log loss does not exceed
// baseline+margin. The boundary is inclusive.
func (p prevalenceMargin) Qualify(horizon model.HorizonID, meanLoss map[string]float64, baseline float64) Result {
	res := Result{
		Horizon:      horizon,
		Threshold:    baseline + p.margin,
		BaselineLoss: baseline,
	}
	for _, id := range sortedIDs(meanLoss) {
		if meanLoss[id] <= res.Threshold {
			res.Qualified = append(res.Qualified, id)
		} else {
			res.Disqualified = append(res.Disqualified, id)
		}
	}
	return res
}

type topPercent struct {
	fraction float64
}

func (p topPercent) Mode() Mode { return ModeTopPercent }

// Qualify admits models whose cohort percentile clears the bottom
// (1-fraction) of the field. Cohorts too small for meaningful percentiles
// qualify everyone: the neutral percentile never disqualifies.
func (p topPercent) Qualify(horizon model.HorizonID, meanLoss map[string]float64, baseline float64) Result {
	res := Result{
		Horizon:      horizon,
		Threshold:    100 * (1 - p.fraction),
		BaselineLoss: baseline,
	}
	ranks := scoring.PercentileRanks(meanLoss)
	for _, id := range sortedIDs(meanLoss) {
		if ranks[id] >= res.Threshold {
			res.Qualified = append(res.Qualified, id)
		} else {
			res.Disqualified = append(res.Disqualified, id)
		}
	}
	return res
}

func sortedIDs(meanLoss map[string]float64) []string {
	ids := make([]string, 0, len(meanLoss))
	for id := range meanLoss {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
