package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/sdcoffey/techan"

	"github.com/okian/gauntlet/internal/domain/model"
)

// StaticFeed serves pre-loaded forward windows, keyed by horizon and
// round. Used by the simulator, by tests, and by the HTTP candle
// ingestion endpoint; production deployments plug a live market-data
// feed behind the same interface.
type StaticFeed struct {
	mu      sync.RWMutex
	windows map[string]*techan.TimeSeries
}

// NewStaticFeed creates an empty static feed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{windows: make(map[string]*techan.TimeSeries)}
}

// Put registers the forward window for a (horizon, round).
func (f *StaticFeed) Put(horizon model.HorizonID, round int, series *techan.TimeSeries) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows[feedKey(horizon, round)] = series
}

// ForwardWindow returns the registered window, or nil when the round has
// no market data.
func (f *StaticFeed) ForwardWindow(_ context.Context, horizon model.Horizon, round int) (*techan.TimeSeries, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.windows[feedKey(horizon.ID, round)], nil
}

func feedKey(horizon model.HorizonID, round int) string {
	return fmt.Sprintf("%s/%d", horizon, round)
}
