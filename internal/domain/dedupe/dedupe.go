// Package dedupe guards round submissions for at-most-once scoring: a
// replayed (model, round) pair must never be scored twice.
package dedupe

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50000

// Guard records seen submission keys to ensure at-most-once scoring.
type Guard interface {
	// SeenAndRecord atomically checks whether key was seen and records it
	// if not. Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord removes a key, allowing a retry. Used when a submission was
	// recorded but the round's bookkeeping was discarded.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// RoundKey builds the canonical guard key for one model's submission to
// one round.
func RoundKey(modelID string, round int) string {
	return fmt.Sprintf("%s/%d", modelID, round)
}

// memoryGuard implements Guard with a map plus an insertion-ordered ring
// for bounded FIFO eviction. maxSize <= 0 disables eviction.
type memoryGuard struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string
	next    int
	maxSize int
	size    atomic.Int64
}

// NewMemoryGuard creates an in-memory guard.
func NewMemoryGuard(opts ...Option) Guard {
	g := &memoryGuard{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.seen = make(map[string]struct{})
	if g.maxSize > 0 {
		g.order = make([]string, g.maxSize)
	}
	return g
}

func (g *memoryGuard) SeenAndRecord(_ context.Context, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[key]; ok {
		return true
	}

	if g.maxSize > 0 {
		if old := g.order[g.next]; old != "" {
			if _, ok := g.seen[old]; ok {
				delete(g.seen, old)
				g.size.Add(-1)
			}
		}
		g.order[g.next] = key
		g.next = (g.next + 1) % g.maxSize
	}
	g.seen[key] = struct{}{}
	g.size.Add(1)
	return false
}

func (g *memoryGuard) Unrecord(_ context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[key]; ok {
		delete(g.seen, key)
		g.size.Add(-1)
	}
}

func (g *memoryGuard) Size() int64 {
	return g.size.Load()
}
