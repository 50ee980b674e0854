package dedupe

// Option applies a configuration option to the memory guard.
type Option func(*memoryGuard)

// WithMaxSize bounds the number of keys kept in memory; older keys are
// evicted FIFO. maxSize <= 0 disables eviction.
func WithMaxSize(maxSize int) Option {
	return func(g *memoryGuard) {
		g.maxSize = maxSize
	}
}
