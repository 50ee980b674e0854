package ensemble_test

import (
	"math"
	"testing"

	ensemble "github.com/okian/gauntlet/internal/domain/ensemble"
	"github.com/okian/gauntlet/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestWeights(t *testing.T) {
	Convey("Given a blender with default tunables", t, func() {
		b := ensemble.New(ensemble.DefaultConfig())

		Convey("When fewer than MinModels have history ensembling is skipped", func() {
			b.Observe("1h", map[string]float64{"a": 0.3, "b": 0.4})
			_, ok := b.Weights("1h", []string{"a", "b"})
			So(ok, ShouldBeFalse)
		})

		Convey("When a horizon has no history at all ensembling is skipped", func() {
			_, ok := b.Weights("4h", []string{"a", "b", "c"})
			So(ok, ShouldBeFalse)
		})

		Convey("When enough models carry history", func() {
			b.Observe("1h", map[string]float64{"a": 0.2, "b": 0.5, "c": 0.9})
			weights, ok := b.Weights("1h", []string{"a", "b", "c"})
			So(ok, ShouldBeTrue)

			Convey("Then weights normalize to one", func() {
				sum := 0.0
				for _, w := range weights {
					sum += w
				}
				So(sum, ShouldAlmostEqual, 1, 1e-9)
			})

			Convey("And lower rolling loss earns higher weight", func() {
				So(weights["a"], ShouldBeGreaterThan, weights["b"])
				So(weights["b"], ShouldBeGreaterThan, weights["c"])
			})

			Convey("And the softmax ratio follows exp(-alpha*mean)", func() {
				want := math.Exp(-4.0*0.2) / math.Exp(-4.0*0.5)
				So(weights["a"]/weights["b"], ShouldAlmostEqual, want, 1e-9)
			})
		})

		Convey("When the window ages out only recent losses count", func() {
			cfg := ensemble.Config{WindowSize: 2, Alpha: 4, MinModels: 3}
			b := ensemble.New(cfg)
			for i := 0; i < 5; i++ {
				// Old catastrophic rounds for "a" that must age out.
				loss := 5.0
				if i >= 3 {
					loss = 0.1
				}
				b.Observe("1h", map[string]float64{"a": loss, "b": 0.5, "c": 0.5})
			}
			weights, ok := b.Weights("1h", []string{"a", "b", "c"})
			So(ok, ShouldBeTrue)
			So(weights["a"], ShouldBeGreaterThan, weights["b"])
		})
	})
}

func TestBlend(t *testing.T) {
	Convey("Given a blender with three observed models", t, func() {
		b := ensemble.New(ensemble.DefaultConfig())
		b.Observe("1h", map[string]float64{"a": 0.3, "b": 0.3, "c": 0.3})

		Convey("When identical losses blend identical probabilities", func() {
			st, ok := b.Blend("1h", map[string]float64{"a": 0.6, "b": 0.6, "c": 0.6}, true)
			So(ok, ShouldBeTrue)

			blended, set := st.Blended.Get()
			So(set, ShouldBeTrue)
			So(blended, ShouldAlmostEqual, 0.6, 1e-9)

			loss, set := st.BlendLoss.Get()
			So(set, ShouldBeTrue)
			So(loss, ShouldAlmostEqual, scoring.LogLoss(0.6, true), 1e-9)
		})

		Convey("When equal weights blend different probabilities it is their mean", func() {
			st, ok := b.Blend("1h", map[string]float64{"a": 0.2, "b": 0.5, "c": 0.8}, false)
			So(ok, ShouldBeTrue)
			blended, _ := st.Blended.Get()
			So(blended, ShouldAlmostEqual, 0.5, 1e-9)
		})

		Convey("When too few candidates submit probabilities the blend is skipped", func() {
			st, ok := b.Blend("1h", map[string]float64{"a": 0.5}, true)
			So(ok, ShouldBeFalse)
			So(st.Weights, ShouldBeNil)
		})
	})
}

func TestDropAndStates(t *testing.T) {
	Convey("Given a blender tracking three models", t, func() {
		b := ensemble.New(ensemble.Config{WindowSize: 6, Alpha: 4, MinModels: 2})
		b.Observe("1h", map[string]float64{"a": 0.3, "b": 0.4, "c": 0.5})
		b.Observe("4h", map[string]float64{"a": 0.3, "b": 0.4, "c": 0.5})

		Convey("When a model is dropped it leaves every horizon", func() {
			b.Drop("a")
			weights, ok := b.Weights("1h", []string{"a", "b", "c"})
			So(ok, ShouldBeTrue)
			So(weights, ShouldNotContainKey, "a")
		})

		Convey("When states are requested they come sorted by horizon", func() {
			_, _ = b.Blend("4h", map[string]float64{"a": 0.5, "b": 0.5}, true)
			_, _ = b.Blend("1h", map[string]float64{"a": 0.5, "b": 0.5}, false)
			states := b.States()
			So(len(states), ShouldEqual, 2)
			So(string(states[0].Horizon), ShouldEqual, "1h")
			So(string(states[1].Horizon), ShouldEqual, "4h")
		})
	})
}
