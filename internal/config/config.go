// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - All tunables the engine consumes are injected from here; engine
//   packages never hard-code thresholds.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"

	"github.com/okian/gauntlet/internal/domain/ensemble"
	"github.com/okian/gauntlet/internal/domain/extension"
	"github.com/okian/gauntlet/internal/domain/model"
	"github.com/okian/gauntlet/internal/domain/phases"
	"github.com/okian/gauntlet/internal/domain/validity"
)

// HorizonConfig is the file/env shape of one evaluation horizon.
type HorizonConfig struct {
	ID             string  `koanf:"id" validate:"required"`
	BarSize        string  `koanf:"bar_size" validate:"required"`
	LookbackBars   int     `koanf:"lookback_bars" validate:"gt=0"`
	ForwardBars    int     `koanf:"forward_bars" validate:"gt=0"`
	EventThreshold float64 `koanf:"event_threshold" validate:"gt=0,lt=1"`
	Detection      string  `koanf:"detection" validate:"oneof=fractal zigzag"`
}

// ToModel converts the config shape into the domain horizon.
func (h HorizonConfig) ToModel() (model.Horizon, error) {
	bar, err := time.ParseDuration(h.BarSize)
	if err != nil {
		return model.Horizon{}, fmt.Errorf("%w: horizon %s bar_size %q: %v", ErrInvalidConfig, h.ID, h.BarSize, err)
	}
	return model.Horizon{
		ID:             model.HorizonID(h.ID),
		BarSize:        bar,
		LookbackBars:   h.LookbackBars,
		ForwardBars:    h.ForwardBars,
		EventThreshold: h.EventThreshold,
		Detection:      model.Detection(h.Detection),
	}, nil
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" default:"info"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" default:":9080" validate:"required"`

	// Models lists the competing model ids registered at tournament start.
	Models []string `koanf:"models"`

	// ModelEndpoints maps model ids to their upstream forecast URLs.
	// Every id in Models needs an endpoint when serving over HTTP.
	ModelEndpoints map[string]string `koanf:"model_endpoints"`

	// Horizons enumerates the fixed horizon set.
	Horizons []HorizonConfig `koanf:"horizons" validate:"min=1,dive"`

	// ForecastTimeoutMS bounds each model's per-round forecast call.
	ForecastTimeoutMS int `koanf:"forecast_timeout_ms" default:"30000" validate:"gt=0"`

	// GuardSize bounds the round-submission dedupe guard.
	GuardSize int `koanf:"guard_size" default:"50000" validate:"gt=0"`

	// PlannedRounds preallocates round history per model.
	PlannedRounds int `koanf:"planned_rounds" default:"24" validate:"gt=0"`

	// QualifyMode selects the phase-1 policy: prevalence_margin or top_percent.
	QualifyMode string `koanf:"qualify_mode" default:"top_percent" validate:"oneof=prevalence_margin top_percent"`

	// QualifyMargin is the prevalence_margin allowance over the baseline.
	QualifyMargin float64 `koanf:"qualify_margin" default:"0.1" validate:"gt=0"`

	// QualifyTopFraction is the top_percent qualified fraction.
	QualifyTopFraction float64 `koanf:"qualify_top_fraction" default:"0.7" validate:"gt=0,lte=1"`

	// Nested engine tunables.
	Phases    phases.Config    `koanf:"phases"`
	Validity  validity.Config  `koanf:"validity"`
	Extension extension.Config `koanf:"extension"`
	Ensemble  ensemble.Config  `koanf:"ensemble"`
}

// New creates a Config with defaults: struct-tag defaults for scalars and
// each engine package's stock thresholds for the nested sections.
func New() *Config {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		// Tags are static; a failure here is a programming error.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	c.Horizons = defaultHorizons()
	c.Phases = phases.DefaultConfig()
	c.Validity = validity.DefaultConfig()
	c.Extension = extension.DefaultConfig()
	c.Ensemble = ensemble.DefaultConfig()
	return c
}

// ModelHorizons converts every configured horizon to its domain shape.
func (c *Config) ModelHorizons() ([]model.Horizon, error) {
	out := make([]model.Horizon, 0, len(c.Horizons))
	for _, h := range c.Horizons {
		mh, err := h.ToModel()
		if err != nil {
			return nil, err
		}
		out = append(out, mh)
	}
	return out, nil
}

func defaultHorizons() []HorizonConfig {
	return []HorizonConfig{
		{ID: "15m", BarSize: "15m", LookbackBars: 96, ForwardBars: 4, EventThreshold: 0.005, Detection: "fractal"},
		{ID: "1h", BarSize: "1h", LookbackBars: 96, ForwardBars: 6, EventThreshold: 0.01, Detection: "fractal"},
		{ID: "4h", BarSize: "4h", LookbackBars: 90, ForwardBars: 6, EventThreshold: 0.02, Detection: "zigzag"},
		{ID: "24h", BarSize: "24h", LookbackBars: 60, ForwardBars: 7, EventThreshold: 0.04, Detection: "zigzag"},
	}
}
