package qualify_test

import (
	"testing"

	qualify "github.com/okian/gauntlet/internal/domain/qualify"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNew(t *testing.T) {
	Convey("Given the policy factory", t, func() {
		Convey("When the mode is known it builds the matching policy", func() {
			p, err := qualify.New(qualify.ModePrevalenceMargin, 0.1, 0)
			So(err, ShouldBeNil)
			So(p.Mode(), ShouldEqual, qualify.ModePrevalenceMargin)

			p, err = qualify.New(qualify.ModeTopPercent, 0, 0.7)
			So(err, ShouldBeNil)
			So(p.Mode(), ShouldEqual, qualify.ModeTopPercent)
		})

		Convey("When parameters are out of range defaults apply", func() {
			p, err := qualify.New(qualify.ModeTopPercent, 0, 1.5)
			So(err, ShouldBeNil)
			res := p.Qualify("1h", map[string]float64{"a": 0.1, "b": 0.2, "c": 0.3}, 0.6)
			So(res.Threshold, ShouldAlmostEqual, 100*(1-qualify.DefaultTopFraction), 1e-9)
		})

		Convey("When the mode is unknown it is an error", func() {
			_, err := qualify.New("median", 0, 0)
			So(err, ShouldWrap, qualify.ErrUnknownMode)
		})
	})
}

func TestPrevalenceMargin(t *testing.T) {
	Convey("Given the prevalence-margin policy", t, func() {
		p, err := qualify.New(qualify.ModePrevalenceMargin, 0.1, 0)
		So(err, ShouldBeNil)

		Convey("When models straddle the threshold", func() {
			baseline := 0.65
			res := p.Qualify("4h", map[string]float64{
				"under":   0.60,
				"at":      0.75,
				"over":    0.7500001,
				"wayover": 1.4,
			}, baseline)

			Convey("Then the boundary is inclusive", func() {
				So(res.Qualified, ShouldResemble, []string{"at", "under"})
				So(res.Disqualified, ShouldResemble, []string{"over", "wayover"})
				So(res.Threshold, ShouldAlmostEqual, 0.75, 1e-12)
				So(res.BaselineLoss, ShouldEqual, baseline)
			})
		})

		Convey("When every model beats the threshold everyone qualifies", func() {
			res := p.Qualify("1h", map[string]float64{"a": 0.1, "b": 0.2}, 0.6)
			So(len(res.Qualified), ShouldEqual, 2)
			So(res.Disqualified, ShouldBeEmpty)
		})
	})
}

func TestTopPercent(t *testing.T) {
	Convey("Given the top-percent policy at fraction 0.7", t, func() {
		p, err := qualify.New(qualify.ModeTopPercent, 0, 0.7)
		So(err, ShouldBeNil)

		Convey("When ten models are evenly spread", func() {
			meanLoss := map[string]float64{
				"m0": 0.10, "m1": 0.20, "m2": 0.30, "m3": 0.40, "m4": 0.50,
				"m5": 0.60, "m6": 0.70, "m7": 0.80, "m8": 0.90, "m9": 1.00,
			}
			res := p.Qualify("15m", meanLoss, 0.6)

			Convey("Then the models under the 30th percentile are disqualified", func() {
				So(res.Disqualified, ShouldResemble, []string{"m7", "m8", "m9"})
				So(len(res.Qualified), ShouldEqual, 7)
			})
		})

		Convey("When the cohort is too small for percentiles everyone stays", func() {
			res := p.Qualify("15m", map[string]float64{"a": 0.9, "b": 0.1}, 0.6)
			So(len(res.Qualified), ShouldEqual, 2)
			So(res.Disqualified, ShouldBeEmpty)
		})
	})
}
