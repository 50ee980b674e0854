package repository_test

import (
	"context"
	"testing"
	"time"

	repository "github.com/okian/gauntlet/internal/adapters/repository"
	"github.com/okian/gauntlet/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func horizons() []model.Horizon {
	return []model.Horizon{
		{ID: "1h", BarSize: time.Hour, LookbackBars: 96, ForwardBars: 6, EventThreshold: 0.01, Detection: model.DetectionFractal},
		{ID: "4h", BarSize: 4 * time.Hour, LookbackBars: 90, ForwardBars: 6, EventThreshold: 0.02, Detection: model.DetectionZigzag},
	}
}

func score(round int, prob float64, label bool) model.RoundScore {
	return model.RoundScore{
		Round:          round,
		OverallLogLoss: 0.5,
		HorizonLogLoss: map[model.HorizonID]float64{"1h": 0.5},
		HorizonProb:    map[model.HorizonID]model.Opt[float64]{"1h": model.Some(prob)},
		HorizonLabel:   map[model.HorizonID]bool{"1h": label},
	}
}

func TestRoundBookkeeping(t *testing.T) {
	Convey("Given a fresh store with two models", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx, horizons(), []string{"alpha", "beta"})

		Convey("Then every model starts active and fully qualified", func() {
			So(s.ActiveModels(ctx), ShouldResemble, []string{"alpha", "beta"})
			st, err := s.Model(ctx, "alpha")
			So(err, ShouldBeNil)
			So(st.QualifiedHorizons, ShouldResemble, []model.HorizonID{"1h", "4h"})
			So(s.Phase(ctx), ShouldEqual, 0)
			So(s.Round(ctx), ShouldEqual, 0)
		})

		Convey("When rounds arrive in order they accumulate", func() {
			So(s.AddRoundScore(ctx, "alpha", score(1, 0.7, true)), ShouldBeNil)
			So(s.AddRoundScore(ctx, "alpha", score(2, 0.4, false)), ShouldBeNil)
			So(s.RoundCount(ctx, "alpha"), ShouldEqual, 2)
			So(s.Round(ctx), ShouldEqual, 2)

			Convey("And the horizon series reflects them", func() {
				series, err := s.Series(ctx, "alpha", "1h")
				So(err, ShouldBeNil)
				So(series.Probs, ShouldResemble, []float64{0.7, 0.4})
				So(series.Labels, ShouldResemble, []bool{true, false})
				So(series.Failed, ShouldEqual, 0)
				So(series.Total, ShouldEqual, 2)
			})
		})

		Convey("When a round has no parsed probability it counts as failed", func() {
			rs := score(1, 0, true)
			rs.HorizonProb = map[model.HorizonID]model.Opt[float64]{"1h": model.None[float64]()}
			So(s.AddRoundScore(ctx, "alpha", rs), ShouldBeNil)

			series, err := s.Series(ctx, "alpha", "1h")
			So(err, ShouldBeNil)
			So(series.Failed, ShouldEqual, 1)
			So(series.Probs, ShouldBeEmpty)
		})

		Convey("When a round replays or rewinds it is an invariant violation", func() {
			So(s.AddRoundScore(ctx, "alpha", score(2, 0.5, true)), ShouldBeNil)
			err := s.AddRoundScore(ctx, "alpha", score(2, 0.5, true))
			So(err, ShouldWrap, repository.ErrRoundOrder)
			err = s.AddRoundScore(ctx, "alpha", score(1, 0.5, true))
			So(err, ShouldWrap, repository.ErrRoundOrder)
		})

		Convey("When an unknown model is scored it is an error", func() {
			err := s.AddRoundScore(ctx, "ghost", score(1, 0.5, true))
			So(err, ShouldWrap, repository.ErrUnknownModel)
		})

		Convey("When labels are recorded they build the cohort series", func() {
			So(s.RecordLabels(ctx, 1, []model.Label{
				{Horizon: "1h", Label: true},
				{Horizon: "4h", Label: false},
			}), ShouldBeNil)
			So(s.HorizonLabels(ctx, "1h"), ShouldResemble, []bool{true})
			So(s.HorizonLabels(ctx, "4h"), ShouldResemble, []bool{false})
		})

		Convey("When a round batch is valid everything commits together", func() {
			err := s.ApplyRound(ctx, 1, map[string]model.RoundScore{
				"alpha": score(1, 0.7, true),
				"beta":  score(1, 0.4, true),
			}, []model.Label{
				{Horizon: "1h", Label: true},
				{Horizon: "4h", Label: false},
			})
			So(err, ShouldBeNil)
			So(s.RoundCount(ctx, "alpha"), ShouldEqual, 1)
			So(s.RoundCount(ctx, "beta"), ShouldEqual, 1)
			So(s.HorizonLabels(ctx, "1h"), ShouldResemble, []bool{true})
			So(s.Round(ctx), ShouldEqual, 1)
		})

		Convey("When one member of a round batch is invalid nothing lands", func() {
			So(s.EliminateModel(ctx, "beta", 1, "validity"), ShouldBeNil)

			err := s.ApplyRound(ctx, 1, map[string]model.RoundScore{
				"alpha": score(1, 0.7, true),
				"beta":  score(1, 0.4, true),
			}, []model.Label{{Horizon: "1h", Label: true}})
			So(err, ShouldWrap, repository.ErrModelEliminated)

			Convey("Then no score or label from the batch persisted", func() {
				So(s.RoundCount(ctx, "alpha"), ShouldEqual, 0)
				So(s.HorizonLabels(ctx, "1h"), ShouldBeEmpty)
				So(s.Round(ctx), ShouldEqual, 0)
			})
		})

		Convey("When a batch carries an unknown horizon label nothing lands", func() {
			err := s.ApplyRound(ctx, 1, map[string]model.RoundScore{
				"alpha": score(1, 0.7, true),
			}, []model.Label{{Horizon: "8h", Label: true}})
			So(err, ShouldWrap, repository.ErrUnknownHorizon)
			So(s.RoundCount(ctx, "alpha"), ShouldEqual, 0)
		})

		Convey("When a label names an unknown horizon nothing lands", func() {
			err := s.RecordLabels(ctx, 1, []model.Label{
				{Horizon: "1h", Label: true},
				{Horizon: "8h", Label: false},
			})
			So(err, ShouldWrap, repository.ErrUnknownHorizon)
			So(s.HorizonLabels(ctx, "1h"), ShouldBeEmpty)
		})
	})
}

func TestEliminationInvariants(t *testing.T) {
	Convey("Given a store with three models", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx, horizons(), []string{"a", "b", "c"})

		Convey("When a model is eliminated", func() {
			So(s.EliminateModel(ctx, "b", 0, "degenerate predictions"), ShouldBeNil)

			Convey("Then it leaves the active set but stays inspectable", func() {
				So(s.ActiveModels(ctx), ShouldResemble, []string{"a", "c"})
				So(s.IsEliminated(ctx, "b"), ShouldBeTrue)

				st, err := s.Model(ctx, "b")
				So(err, ShouldBeNil)
				So(st.Active, ShouldBeFalse)
				phase, ok := st.EliminatedInPhase.Get()
				So(ok, ShouldBeTrue)
				So(phase, ShouldEqual, 0)
				So(st.EliminationReason, ShouldEqual, "degenerate predictions")
			})

			Convey("And eliminating it again is an invariant violation", func() {
				err := s.EliminateModel(ctx, "b", 1, "again")
				So(err, ShouldWrap, repository.ErrAlreadyEliminated)
			})

			Convey("And scoring it afterwards is an invariant violation", func() {
				err := s.AddRoundScore(ctx, "b", score(1, 0.5, true))
				So(err, ShouldWrap, repository.ErrModelEliminated)
			})
		})

		Convey("When every horizon is disqualified the model is lazily out", func() {
			So(s.DisqualifyFromHorizon(ctx, "a", "1h", 1, "below threshold"), ShouldBeNil)
			So(s.IsEliminated(ctx, "a"), ShouldBeFalse)

			So(s.DisqualifyFromHorizon(ctx, "a", "4h", 1, "below threshold"), ShouldBeNil)
			So(s.IsEliminated(ctx, "a"), ShouldBeTrue)
			So(s.ActiveModels(ctx), ShouldNotContain, "a")

			Convey("But it carries no phase stamp", func() {
				st, err := s.Model(ctx, "a")
				So(err, ShouldBeNil)
				So(st.Active, ShouldBeTrue)
				So(st.EliminatedInPhase.IsSet(), ShouldBeFalse)
			})
		})

		Convey("When a disqualification replays the earliest record wins", func() {
			So(s.DisqualifyFromHorizon(ctx, "c", "1h", 1, "first"), ShouldBeNil)
			So(s.DisqualifyFromHorizon(ctx, "c", "1h", 2, "second"), ShouldBeNil)
			st, err := s.Model(ctx, "c")
			So(err, ShouldBeNil)
			So(st.DisqualifiedHorizons[model.HorizonID("1h")].Phase, ShouldEqual, 1)
			So(st.DisqualifiedHorizons[model.HorizonID("1h")].Reason, ShouldEqual, "first")
		})

		Convey("When a horizon is requalified the disqualification clears", func() {
			So(s.DisqualifyFromHorizon(ctx, "c", "1h", 1, "slump"), ShouldBeNil)
			So(s.QualifyForHorizon(ctx, "c", "1h"), ShouldBeNil)
			st, err := s.Model(ctx, "c")
			So(err, ShouldBeNil)
			So(st.QualifiedHorizons, ShouldContain, model.HorizonID("1h"))
			So(st.DisqualifiedHorizons, ShouldNotContainKey, model.HorizonID("1h"))
		})
	})
}

func TestPhaseCounter(t *testing.T) {
	Convey("Given a fresh store", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx, horizons(), []string{"a"})

		Convey("When the phase advances it is monotone up to the terminal phase", func() {
			for want := 1; want <= 3; want++ {
				phase, err := s.AdvancePhase(ctx)
				So(err, ShouldBeNil)
				So(phase, ShouldEqual, want)
			}

			Convey("And stepping past the terminal phase is an invariant violation", func() {
				_, err := s.AdvancePhase(ctx)
				So(err, ShouldWrap, repository.ErrTerminalPhase)
				So(s.Phase(ctx), ShouldEqual, 3)
			})
		})
	})
}
