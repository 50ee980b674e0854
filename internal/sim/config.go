package sim

// Default simulation parameters.
const (
	defaultRounds     = 24
	defaultSeed       = 1
	defaultSharp      = 3
	defaultCalibrated = 3
	defaultNoisy      = 2
	defaultConstant   = 1
	defaultExtremist  = 1
	defaultCoinFlip   = 1
	defaultFlaky      = 1
)

// Config controls one simulated tournament: how many rounds to play and
// how many models of each synthetic profile compete.
type Config struct {
	Rounds int
	Seed   int64

	Sharp      int
	Calibrated int
	Noisy      int
	Constant   int
	Extremist  int
	CoinFlip   int
	Flaky      int
}

// DefaultConfig returns a field large enough to exercise every phase.
func DefaultConfig() Config {
	return Config{
		Rounds:     defaultRounds,
		Seed:       defaultSeed,
		Sharp:      defaultSharp,
		Calibrated: defaultCalibrated,
		Noisy:      defaultNoisy,
		Constant:   defaultConstant,
		Extremist:  defaultExtremist,
		CoinFlip:   defaultCoinFlip,
		Flaky:      defaultFlaky,
	}
}
