package resolver

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrFeed             = errors.New("candle feed failed")
	ErrUnknownDetection = errors.New("unknown detection method")
)
