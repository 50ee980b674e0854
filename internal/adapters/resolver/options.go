package resolver

import (
	"github.com/okian/gauntlet/pkg/logger"
)

// Option applies a configuration option to the Replay resolver.
type Option func(*Replay)

// WithLogger sets a custom logger for the resolver.
func WithLogger(l logger.Logger) Option {
	return func(r *Replay) {
		if l != nil {
			r.logger = l
		}
	}
}
