package config_test

import (
	"context"
	"os"
	"testing"
	"time"

	config "github.com/okian/gauntlet/internal/config"
	"github.com/okian/gauntlet/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefaults(t *testing.T) {
	Convey("Given a fresh config", t, func() {
		cfg := config.New()

		Convey("Then the stock tunables are in place", func() {
			So(cfg.Addr, ShouldEqual, ":9080")
			So(cfg.LogLevel, ShouldEqual, "info")
			So(cfg.QualifyMode, ShouldEqual, "top_percent")
			So(cfg.QualifyMargin, ShouldEqual, 0.1)
			So(cfg.QualifyTopFraction, ShouldEqual, 0.7)
			So(cfg.ForecastTimeoutMS, ShouldEqual, 30000)
			So(cfg.PlannedRounds, ShouldEqual, 24)
			So(len(cfg.Horizons), ShouldEqual, 4)
			So(cfg.Phases.MaxFinalists, ShouldEqual, 8)
			So(cfg.Ensemble.MinModels, ShouldEqual, 3)
		})

		Convey("And it validates clean", func() {
			So(config.Validate(cfg), ShouldBeNil)
		})

		Convey("And horizons convert to their domain shape", func() {
			horizons, err := cfg.ModelHorizons()
			So(err, ShouldBeNil)
			So(len(horizons), ShouldEqual, 4)
			So(horizons[1].ID, ShouldEqual, model.HorizonID("1h"))
			So(horizons[1].BarSize, ShouldEqual, time.Hour)
			So(horizons[3].Detection, ShouldEqual, model.DetectionZigzag)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given a valid base config", t, func() {
		Convey("When a horizon carries a bad bar size", func() {
			cfg := config.New()
			cfg.Horizons[0].BarSize = "soon"
			err := config.Validate(cfg)
			So(err, ShouldWrap, config.ErrInvalidConfig)
		})

		Convey("When the detection method is unknown", func() {
			cfg := config.New()
			cfg.Horizons[0].Detection = "astrology"
			So(config.Validate(cfg), ShouldWrap, config.ErrInvalidConfig)
		})

		Convey("When the extreme band inverts", func() {
			cfg := config.New()
			cfg.Validity.ExtremeLow = 0.95
			cfg.Validity.ExtremeHigh = 0.05
			So(config.Validate(cfg), ShouldWrap, config.ErrInvalidConfig)
		})

		Convey("When the prevalence band inverts", func() {
			cfg := config.New()
			cfg.Extension.MinPrevalence = 0.9
			cfg.Extension.MaxPrevalence = 0.1
			So(config.Validate(cfg), ShouldWrap, config.ErrInvalidConfig)
		})

		Convey("When the stability phase is shorter than its regret window", func() {
			cfg := config.New()
			cfg.Phases.StabilityMinRounds = 2
			So(config.Validate(cfg), ShouldWrap, config.ErrInvalidConfig)
		})

		Convey("When a registered model has no forecast endpoint", func() {
			cfg := config.New()
			cfg.Models = []string{"gpt-alpha"}
			err := config.Validate(cfg)
			So(err, ShouldWrap, config.ErrInvalidConfig)
			So(err.Error(), ShouldContainSubstring, "gpt-alpha")

			cfg.ModelEndpoints = map[string]string{"gpt-alpha": "http://localhost:9100/forecast"}
			So(config.Validate(cfg), ShouldBeNil)
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given environment overrides", t, func() {
		ctx := context.Background()
		So(os.Setenv("GAUNTLET_ADDR", ":7070"), ShouldBeNil)
		So(os.Setenv("GAUNTLET_QUALIFY_MODE", "prevalence_margin"), ShouldBeNil)
		defer func() {
			_ = os.Unsetenv("GAUNTLET_ADDR")
			_ = os.Unsetenv("GAUNTLET_QUALIFY_MODE")
		}()

		Convey("When the config loads they take precedence over defaults", func() {
			cfg, err := config.Load(ctx)
			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":7070")
			So(cfg.QualifyMode, ShouldEqual, "prevalence_margin")
			So(cfg.PlannedRounds, ShouldEqual, 24)
		})

		Convey("When an override fails validation the load reports it", func() {
			So(os.Setenv("GAUNTLET_QUALIFY_MODE", "coin_toss"), ShouldBeNil)
			_, err := config.Load(ctx)
			So(err, ShouldWrap, config.ErrInvalidConfig)
		})
	})
}
