package forecast_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	forecast "github.com/okian/gauntlet/internal/adapters/forecast"
	"github.com/okian/gauntlet/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestHTTPForecaster(t *testing.T) {
	Convey("Given an upstream model endpoint", t, func() {
		ctx := context.Background()

		Convey("When the endpoint answers every horizon", func() {
			var gotRound int
			var decodeErr error
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Round    int             `json:"round"`
					Horizons []model.Horizon `json:"horizons"`
				}
				decodeErr = json.NewDecoder(r.Body).Decode(&req)
				gotRound = req.Round
				_, _ = w.Write([]byte(`[
					{"horizon": "1h", "probability": 0.72, "confidence": 0.9, "candles_back": 48},
					{"horizon": "4h", "probability": null}
				]`))
			}))
			defer srv.Close()

			f := forecast.NewHTTPForecaster("gpt-alpha", srv.URL, srv.Client())
			preds, err := f.Forecast(ctx, 3, testHorizons())
			So(err, ShouldBeNil)
			So(decodeErr, ShouldBeNil)
			So(gotRound, ShouldEqual, 3)
			So(len(preds), ShouldEqual, 2)

			Convey("Then answers carry the model identity and optional fields", func() {
				So(preds[0].ModelID, ShouldEqual, "gpt-alpha")
				So(preds[0].Round, ShouldEqual, 3)
				prob, ok := preds[0].Probability.Get()
				So(ok, ShouldBeTrue)
				So(prob, ShouldEqual, 0.72)
				back, ok := preds[0].CandlesBack.Get()
				So(ok, ShouldBeTrue)
				So(back, ShouldEqual, 48)

				So(preds[1].Probability.IsSet(), ShouldBeFalse)
			})
		})

		Convey("When the endpoint fails the call errors instead of faking answers", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			f := forecast.NewHTTPForecaster("gpt-alpha", srv.URL, srv.Client())
			_, err := f.Forecast(ctx, 1, testHorizons())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "unexpected status 500")
		})

		Convey("When the response is not JSON the call errors", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("not json"))
			}))
			defer srv.Close()

			f := forecast.NewHTTPForecaster("gpt-alpha", srv.URL, srv.Client())
			_, err := f.Forecast(ctx, 1, testHorizons())
			So(err, ShouldNotBeNil)
		})
	})
}
