package repository

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithRoundCapacity preallocates each model's round history. Useful when
// the planned round count is known up front.
func WithRoundCapacity(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.roundCapacity = n
		}
	}
}
