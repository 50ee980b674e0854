package extension_test

import (
	"testing"

	extension "github.com/okian/gauntlet/internal/domain/extension"
	"github.com/okian/gauntlet/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func labels(trues, falses int) []bool {
	out := make([]bool, 0, trues+falses)
	for i := 0; i < trues; i++ {
		out = append(out, true)
	}
	for i := 0; i < falses; i++ {
		out = append(out, false)
	}
	return out
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + string(rune('a'+i))
	}
	return out
}

func TestDecide(t *testing.T) {
	Convey("Given the default extension thresholds", t, func() {
		cfg := extension.DefaultConfig()

		Convey("When a horizon is rankable with more than five qualified models", func() {
			d := extension.Decide(extension.HorizonStats{
				Horizon:   "1h",
				Labels:    labels(8, 10),
				Qualified: ids("q", 6),
				Eligible:  ids("q", 7),
			}, cfg)

			Convey("Then it extends by six rounds", func() {
				So(d.Rankable, ShouldBeTrue)
				So(d.ShouldExtend, ShouldBeTrue)
				So(d.ExtraRounds, ShouldEqual, 6)
				So(len(d.Cohort), ShouldEqual, 6)
			})
		})

		Convey("When exactly five models qualify the trigger does not fire", func() {
			d := extension.Decide(extension.HorizonStats{
				Horizon:   "1h",
				Labels:    labels(9, 9),
				Qualified: ids("q", 5),
			}, cfg)
			So(d.Rankable, ShouldBeTrue)
			So(d.ShouldExtend, ShouldBeFalse)
		})

		Convey("When effective rounds fall short the horizon is not rankable", func() {
			d := extension.Decide(extension.HorizonStats{
				Horizon:   "4h",
				Labels:    labels(8, 9),
				Qualified: ids("q", 6),
			}, cfg)
			So(d.Rankable, ShouldBeFalse)
			So(d.ShouldExtend, ShouldBeFalse)
			So(d.Reason, ShouldContainSubstring, "effective rounds")
		})

		Convey("When the minority class is too thin the horizon is not rankable", func() {
			d := extension.Decide(extension.HorizonStats{
				Horizon:   "4h",
				Labels:    labels(7, 14),
				Qualified: ids("q", 6),
			}, cfg)
			So(d.Rankable, ShouldBeFalse)
			So(d.Reason, ShouldContainSubstring, "minority")
		})

		Convey("When prevalence leaves the allowed band the horizon is not rankable", func() {
			d := extension.Decide(extension.HorizonStats{
				Horizon:   "24h",
				Labels:    labels(8, 42),
				Qualified: ids("q", 6),
			}, cfg)
			So(d.Rankable, ShouldBeFalse)
			So(d.Reason, ShouldContainSubstring, "prevalence")
		})

		Convey("When the cohort mode is eligible the wider set plays", func() {
			cfg.Cohort = extension.CohortEligible
			d := extension.Decide(extension.HorizonStats{
				Horizon:   "1h",
				Labels:    labels(9, 10),
				Qualified: ids("q", 6),
				Eligible:  ids("e", 9),
			}, cfg)
			So(d.ShouldExtend, ShouldBeTrue)
			So(len(d.Cohort), ShouldEqual, 9)
		})
	})
}

func TestBuildPlan(t *testing.T) {
	Convey("Given decisions across several horizons", t, func() {
		cfg := extension.DefaultConfig()
		stats := []extension.HorizonStats{
			{Horizon: "15m", Labels: labels(9, 10), Qualified: ids("q", 6)},
			{Horizon: "1h", Labels: labels(9, 10), Qualified: ids("q", 7)},
			{Horizon: "4h", Labels: labels(2, 3), Qualified: ids("q", 7)},
		}

		Convey("When the plan is built", func() {
			plan := extension.BuildPlan(stats, cfg)

			Convey("Then only extending horizons add rounds", func() {
				So(plan.Decisions[model.HorizonID("15m")].ShouldExtend, ShouldBeTrue)
				So(plan.Decisions[model.HorizonID("1h")].ShouldExtend, ShouldBeTrue)
				So(plan.Decisions[model.HorizonID("4h")].ShouldExtend, ShouldBeFalse)
				So(plan.TotalExtraRounds, ShouldEqual, 12)
			})
		})
	})
}
