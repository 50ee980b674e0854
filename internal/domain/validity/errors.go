package validity

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrLengthMismatch = errors.New("window length mismatch")
)
