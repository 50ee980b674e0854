package scoring

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrLengthMismatch = errors.New("batch length mismatch")
	ErrNonFinite      = errors.New("non-finite probability")
)
