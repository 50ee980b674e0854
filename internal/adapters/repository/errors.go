package repository

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from
// callers; all of them mark invariant violations the caller must treat as
// fatal, not conditions to retry.
var (
	ErrUnknownModel      = errors.New("unknown model")
	ErrUnknownHorizon    = errors.New("unknown horizon")
	ErrModelEliminated   = errors.New("model already eliminated")
	ErrAlreadyEliminated = errors.New("elimination is final")
	ErrRoundOrder        = errors.New("round order violation")
	ErrTerminalPhase     = errors.New("tournament already at terminal phase")
)
