package forecast_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	forecast "github.com/okian/gauntlet/internal/adapters/forecast"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

type stubForecaster struct {
	id string
	fn func(ctx context.Context, round int, horizons []model.Horizon) ([]model.Prediction, error)
}

func (s stubForecaster) ModelID() string { return s.id }

func (s stubForecaster) Forecast(ctx context.Context, round int, horizons []model.Horizon) ([]model.Prediction, error) {
	return s.fn(ctx, round, horizons)
}

func answer(prob float64) func(context.Context, int, []model.Horizon) ([]model.Prediction, error) {
	return func(_ context.Context, _ int, horizons []model.Horizon) ([]model.Prediction, error) {
		out := make([]model.Prediction, 0, len(horizons))
		for _, h := range horizons {
			out = append(out, model.Prediction{Horizon: h.ID, Probability: model.Some(prob)})
		}
		return out, nil
	}
}

func testHorizons() []model.Horizon {
	return []model.Horizon{
		{ID: "1h", BarSize: time.Hour, ForwardBars: 6, EventThreshold: 0.01, Detection: model.DetectionFractal},
		{ID: "4h", BarSize: 4 * time.Hour, ForwardBars: 6, EventThreshold: 0.02, Detection: model.DetectionZigzag},
	}
}

func TestCollect(t *testing.T) {
	Convey("Given a pool over three forecasters", t, func() {
		ctx := context.Background()
		boom := errors.New("upstream boom")
		pool := forecast.NewPool([]forecast.Forecaster{
			stubForecaster{id: "good", fn: answer(0.7)},
			stubForecaster{id: "broken", fn: func(context.Context, int, []model.Horizon) ([]model.Prediction, error) {
				return nil, boom
			}},
			stubForecaster{id: "partial", fn: func(_ context.Context, _ int, _ []model.Horizon) ([]model.Prediction, error) {
				return []model.Prediction{{Horizon: "4h", Probability: model.Some(0.3)}}, nil
			}},
		})

		Convey("When a round is collected", func() {
			round, err := pool.Collect(ctx, 7, testHorizons())
			So(err, ShouldBeNil)
			So(round.Round, ShouldEqual, 7)
			So(len(round.Predictions), ShouldEqual, 3)

			Convey("Then a healthy model answers every horizon with identity filled in", func() {
				preds := round.Predictions["good"]
				So(len(preds), ShouldEqual, 2)
				for _, pred := range preds {
					So(pred.ModelID, ShouldEqual, "good")
					So(pred.Round, ShouldEqual, 7)
					prob, ok := pred.Probability.Get()
					So(ok, ShouldBeTrue)
					So(prob, ShouldEqual, 0.7)
				}
			})

			Convey("And a failing model contributes explicit missing markers", func() {
				So(round.Failed["broken"], ShouldWrap, boom)
				preds := round.Predictions["broken"]
				So(len(preds), ShouldEqual, 2)
				for _, pred := range preds {
					So(pred.Probability.IsSet(), ShouldBeFalse)
				}
			})

			Convey("And a partial answer is padded per horizon", func() {
				preds := round.Predictions["partial"]
				So(len(preds), ShouldEqual, 2)
				byHorizon := make(map[model.HorizonID]model.Prediction, len(preds))
				for _, pred := range preds {
					byHorizon[pred.Horizon] = pred
				}
				So(byHorizon["1h"].Probability.IsSet(), ShouldBeFalse)
				prob, ok := byHorizon["4h"].Probability.Get()
				So(ok, ShouldBeTrue)
				So(prob, ShouldEqual, 0.3)
			})
		})

		Convey("When the round context is already cancelled the round aborts whole", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := pool.Collect(cancelled, 1, testHorizons())
			So(err, ShouldWrap, forecast.ErrRoundAborted)
		})

		Convey("When a forecaster outlives the per-model timeout it counts as failed", func() {
			slow := forecast.NewPool([]forecast.Forecaster{
				stubForecaster{id: "slow", fn: func(ctx context.Context, _ int, _ []model.Horizon) ([]model.Prediction, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				}},
				stubForecaster{id: "good", fn: answer(0.5)},
				stubForecaster{id: "fine", fn: answer(0.5)},
			}, forecast.WithTimeout(20*time.Millisecond))

			round, err := slow.Collect(ctx, 1, testHorizons())
			So(err, ShouldBeNil)
			So(round.Failed, ShouldContainKey, "slow")
			So(round.Failed, ShouldNotContainKey, "good")
		})
	})
}
