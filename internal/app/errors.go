package service

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNotStarted = errors.New("service not started")
	ErrNoModels   = errors.New("no models configured")
	ErrNoHorizons = errors.New("no horizons configured")
	ErrNoResolver = errors.New("no resolver configured")
)
