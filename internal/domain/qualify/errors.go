package qualify

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrUnknownMode = errors.New("unknown qualification mode")
)
