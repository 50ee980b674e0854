package forecast

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrRoundAborted = errors.New("round collection aborted")
)
