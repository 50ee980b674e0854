// Package extension decides, after the elimination phases, whether a
// horizon's evaluation earns extra rounds and which model cohort plays
// them. A horizon is only worth extending when it has enough examples of
// both outcomes to distinguish skill from luck.
package extension

import (
	"fmt"
	"sort"

	"github.com/okian/gauntlet/internal/domain/model"
)

// Cohort selects who plays the extra rounds.
type Cohort string

// Supported cohorts.
const (
	// CohortQualified extends only the models qualified on the horizon.
	CohortQualified Cohort = "qualified"
	// CohortEligible extends every gate-valid model, qualified or not.
	CohortEligible Cohort = "eligible"
)

// Default trigger thresholds; injected through Config.
const (
	defaultMinEffectiveRounds = 18
	defaultMinMinorityCount   = 8
	defaultMinPrevalence      = 0.2
	defaultMaxPrevalence      = 0.8
	defaultQualifiedThreshold = 5
	defaultExtraRounds        = 6
)

// Config carries the rankability and extension thresholds.
type Config struct {
	MinEffectiveRounds int     `koanf:"min_effective_rounds" validate:"gt=0"`
	MinMinorityCount   int     `koanf:"min_minority_count" validate:"gt=0"`
	MinPrevalence      float64 `koanf:"min_prevalence" validate:"gte=0,lte=1"`
	MaxPrevalence      float64 `koanf:"max_prevalence" validate:"gte=0,lte=1"`
	QualifiedThreshold int     `koanf:"qualified_threshold" validate:"gte=0"`
	ExtraRounds        int     `koanf:"extra_rounds" validate:"gt=0"`
	Cohort             Cohort  `koanf:"cohort" validate:"oneof=qualified eligible"`
}

// DefaultConfig returns the stock trigger thresholds.
func DefaultConfig() Config {
	return Config{
		MinEffectiveRounds: defaultMinEffectiveRounds,
		MinMinorityCount:   defaultMinMinorityCount,
		MinPrevalence:      defaultMinPrevalence,
		MaxPrevalence:      defaultMaxPrevalence,
		QualifiedThreshold: defaultQualifiedThreshold,
		ExtraRounds:        defaultExtraRounds,
		Cohort:             CohortQualified,
	}
}

// HorizonStats are the observed per-horizon statistics the trigger
// judges: resolved labels plus the qualified and eligible model ids.
type HorizonStats struct {
	Horizon   model.HorizonID
	Labels    []bool
	Qualified []string
	Eligible  []string
}

// Decision is the per-horizon outcome with a human-readable reason.
type Decision struct {
	Horizon        model.HorizonID `json:"horizon"`
	ShouldExtend   bool            `json:"should_extend"`
	Reason         string          `json:"reason"`
	Rankable       bool            `json:"rankable"`
	QualifiedCount int             `json:"qualified_count"`
	EligibleCount  int             `json:"eligible_count"`
	Cohort         []string        `json:"cohort,omitempty"`
	ExtraRounds    int             `json:"extra_rounds"`
}

// Plan aggregates every horizon's decision and the total extra rounds to
// schedule.
type Plan struct {
	Decisions        map[model.HorizonID]Decision `json:"decisions"`
	TotalExtraRounds int                          `json:"total_extra_rounds"`
}

// Decide evaluates the trigger for one horizon.
func Decide(stats HorizonStats, cfg Config) Decision {
	d := Decision{
		Horizon:        stats.Horizon,
		QualifiedCount: len(stats.Qualified),
		EligibleCount:  len(stats.Eligible),
	}

	effective := len(stats.Labels)
	minority, prevalence := classBalance(stats.Labels)

	switch {
	case effective < cfg.MinEffectiveRounds:
		d.Reason = fmt.Sprintf("not rankable: %d effective rounds, need %d", effective, cfg.MinEffectiveRounds)
	case minority < cfg.MinMinorityCount:
		d.Reason = fmt.Sprintf("not rankable: minority class %d, need %d", minority, cfg.MinMinorityCount)
	case prevalence < cfg.MinPrevalence || prevalence > cfg.MaxPrevalence:
		d.Reason = fmt.Sprintf("not rankable: prevalence %.2f outside [%.2f, %.2f]", prevalence, cfg.MinPrevalence, cfg.MaxPrevalence)
	default:
		d.Rankable = true
	}
	if !d.Rankable {
		return d
	}

	if len(stats.Qualified) <= cfg.QualifiedThreshold {
		d.Reason = fmt.Sprintf("rankable, but %d qualified models do not exceed threshold %d", len(stats.Qualified), cfg.QualifiedThreshold)
		return d
	}

	d.ShouldExtend = true
	d.ExtraRounds = cfg.ExtraRounds
	d.Cohort = append([]string(nil), stats.Qualified...)
	if cfg.Cohort == CohortEligible {
		d.Cohort = append([]string(nil), stats.Eligible...)
	}
	sort.Strings(d.Cohort)
	d.Reason = fmt.Sprintf("rankable with %d qualified models above threshold %d: extending %d rounds for %s cohort",
		len(stats.Qualified), cfg.QualifiedThreshold, cfg.ExtraRounds, cfg.Cohort)
	return d
}

// BuildPlan folds per-horizon decisions into an aggregate plan.
func BuildPlan(stats []HorizonStats, cfg Config) Plan {
	plan := Plan{Decisions: make(map[model.HorizonID]Decision, len(stats))}
	for _, s := range stats {
		d := Decide(s, cfg)
		plan.Decisions[s.Horizon] = d
		if d.ShouldExtend {
			plan.TotalExtraRounds += d.ExtraRounds
		}
	}
	return plan
}

func classBalance(labels []bool) (minority int, prevalence float64) {
	if len(labels) == 0 {
		return 0, 0
	}
	trues := 0
	for _, y := range labels {
		if y {
			trues++
		}
	}
	falses := len(labels) - trues
	minority = trues
	if falses < trues {
		minority = falses
	}
	return minority, float64(trues) / float64(len(labels))
}
