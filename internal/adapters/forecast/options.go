package forecast

import (
	"time"

	"github.com/okian/gauntlet/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithTimeout bounds each model's forecast call.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
