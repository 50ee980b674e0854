package validity_test

import (
	"math"
	"testing"

	validity "github.com/okian/gauntlet/internal/domain/validity"
	. "github.com/smartystreets/goconvey/convey"
)

func repeat(p float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func alternating(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = i%2 == 0
	}
	return out
}

func TestCheck(t *testing.T) {
	Convey("Given the validity gates with default thresholds", t, func() {
		cfg := validity.DefaultConfig()

		Convey("When a model answers 0.95 on every one of 20 rounds", func() {
			res, err := validity.Check(repeat(0.95, 20), alternating(20), 0, 20, cfg)
			So(err, ShouldBeNil)

			Convey("Then it fails the constant-predictor gate", func() {
				So(res.Valid, ShouldBeFalse)
				So(res.Reasons, ShouldContain, validity.ReasonConstantPredictor)
			})

			Convey("And it also fails the extreme-predictions gate", func() {
				So(res.Reasons, ShouldContain, validity.ReasonExtremePredictions)
			})

			Convey("And the calibration error records the 0.45 gap to the base rate", func() {
				So(res.Metrics.CalibrationError, ShouldAlmostEqual, 0.45, 1e-12)
			})
		})

		Convey("When a model varies honestly around the base rate", func() {
			probs := []float64{0.3, 0.5, 0.7, 0.4, 0.6, 0.45, 0.55, 0.35, 0.65, 0.5}
			labels := []bool{false, true, true, false, true, false, true, false, true, true}
			res, err := validity.Check(probs, labels, 0, 10, cfg)
			So(err, ShouldBeNil)
			So(res.Valid, ShouldBeTrue)
			So(res.Reasons, ShouldBeEmpty)

			Convey("Then ten samples are too few for a calibration estimate", func() {
				So(math.IsNaN(res.Metrics.CalibrationError), ShouldBeTrue)
			})
		})

		Convey("When coverage drops below the minimum", func() {
			res, err := validity.Check(repeat(0.5, 7), alternating(7), 0, 10, cfg)
			So(err, ShouldBeNil)
			So(res.Reasons, ShouldContain, validity.ReasonLowCoverage)
			So(res.Metrics.Coverage, ShouldAlmostEqual, 0.7, 1e-12)
		})

		Convey("When the failure rate exceeds the maximum", func() {
			probs := []float64{0.3, 0.5, 0.7, 0.4, 0.6, 0.45, 0.55, 0.35}
			labels := alternating(8)
			res, err := validity.Check(probs, labels, 2, 10, cfg)
			So(err, ShouldBeNil)
			So(res.Reasons, ShouldContain, validity.ReasonHighFailureRate)
		})

		Convey("When confident answers are wrong too often", func() {
			// Confident and wrong on 3 of 10 rounds.
			probs := []float64{0.9, 0.9, 0.9, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
			labels := []bool{false, false, false, true, false, true, false, true, false, true}
			res, err := validity.Check(probs, labels, 0, 10, cfg)
			So(err, ShouldBeNil)
			So(res.Reasons, ShouldContain, validity.ReasonExtremeWrongRate)
		})

		Convey("When a single prediction exists the constant gate stays quiet", func() {
			res, err := validity.Check([]float64{0.5}, []bool{true}, 0, 1, cfg)
			So(err, ShouldBeNil)
			So(res.Reasons, ShouldNotContain, validity.ReasonConstantPredictor)
		})

		Convey("When two distinct answers sit close together it still counts as constant", func() {
			probs := make([]float64, 12)
			for i := range probs {
				probs[i] = 0.50
				if i%2 == 0 {
					probs[i] = 0.51
				}
			}
			res, err := validity.Check(probs, alternating(12), 0, 12, cfg)
			So(err, ShouldBeNil)
			So(res.Reasons, ShouldContain, validity.ReasonConstantPredictor)
		})

		Convey("When the slices mismatch it is an error", func() {
			_, err := validity.Check([]float64{0.5}, []bool{true, false}, 0, 2, cfg)
			So(err, ShouldWrap, validity.ErrLengthMismatch)
		})

		Convey("When the window is empty only coverage can fire", func() {
			res, err := validity.Check(nil, nil, 0, 5, cfg)
			So(err, ShouldBeNil)
			So(res.Reasons, ShouldResemble, []validity.Reason{validity.ReasonLowCoverage})
		})
	})
}
