package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if GAUNTLET_CONFIG is set
//  3. env (prefix GAUNTLET_), after an optional .env bootstrap
func Load(ctx context.Context) (*Config, error) {
	// Pull a local .env into the process environment if present.
	_ = godotenv.Load()

	base := New()

	k := koanf.New(".")

	if path := os.Getenv("GAUNTLET_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: GAUNTLET_ADDR, GAUNTLET_QUALIFY_MODE, ...
	// Keys keep their underscores to match the koanf tags on the struct;
	// double underscores address nested sections, e.g.
	// GAUNTLET_PHASES__MAX_FINALISTS -> phases.max_finalists.
	envProvider := env.Provider("GAUNTLET_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "gauntlet_")
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces struct-tag constraints plus the cross-field rules the
// tags cannot express.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch {
	case cfg.Validity.ExtremeLow >= cfg.Validity.ExtremeHigh:
		return fmt.Errorf("%w: validity extreme_low must be below extreme_high", ErrInvalidConfig)
	case cfg.Validity.ConfidentLow >= cfg.Validity.ConfidentHigh:
		return fmt.Errorf("%w: validity confident_low must be below confident_high", ErrInvalidConfig)
	case cfg.Extension.MinPrevalence >= cfg.Extension.MaxPrevalence:
		return fmt.Errorf("%w: extension min_prevalence must be below max_prevalence", ErrInvalidConfig)
	case cfg.Phases.StabilityMinRounds < cfg.Phases.RegretWindow:
		return fmt.Errorf("%w: stability_min_rounds must cover at least one regret window", ErrInvalidConfig)
	}
	if _, err := cfg.ModelHorizons(); err != nil {
		return err
	}
	for _, id := range cfg.Models {
		if _, ok := cfg.ModelEndpoints[id]; !ok {
			return fmt.Errorf("%w: model %q has no endpoint in model_endpoints", ErrInvalidConfig, id)
		}
	}
	return nil
}
