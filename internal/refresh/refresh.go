// Package refresh drives the background refresh cycle and publishes
// deltas to whoever renders them.
package refresh

import (
	"context"
	"log"
	"time"

	"github.com/janekbaraniewski/claudeusage/internal/usage"
)

// DefaultInterval is the refresh cadence when the config does not say
// otherwise.
const DefaultInterval = 5 * time.Second

// Loop periodically refreshes the cache and emits a delta per cycle.
// Quiet cycles emit a heartbeat so consumers can tell "no changes" from
// "no loop". Refresh failures are logged and the loop keeps going.
type Loop struct {
	cache    *usage.Cache
	interval time.Duration
	nudge    chan struct{}
	deltas   chan usage.Delta
}

// NewLoop builds a loop over the cache. A non-positive interval falls
// back to the default.
func NewLoop(cache *usage.Cache, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		cache:    cache,
		interval: interval,
		nudge:    make(chan struct{}, 1),
		deltas:   make(chan usage.Delta, 16),
	}
}

// Deltas is the stream of per-cycle results.
func (l *Loop) Deltas() <-chan usage.Delta {
	return l.deltas
}

// Nudge asks for a refresh ahead of the next tick. Duplicate nudges
// between cycles collapse into one.
func (l *Loop) Nudge() {
	select {
	case l.nudge <- struct{}{}:
	default:
	}
}

// Run cycles until the context is canceled. The first cycle runs
// immediately.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.runCycle()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.runCycle()
		case <-l.nudge:
			l.runCycle()
		}
	}
}

func (l *Loop) runCycle() {
	if !l.cache.HasChanges() {
		l.publish(usage.Delta{})
		return
	}

	_, delta, err := l.cache.IncrementalLoadWithDelta()
	if err != nil {
		log.Printf("refresh: cycle failed: %v", err)
		return
	}
	l.publish(delta)
}

// publish never blocks the loop; when the consumer lags, the delta is
// dropped and the next full snapshot read catches them up.
func (l *Loop) publish(d usage.Delta) {
	select {
	case l.deltas <- d:
	default:
	}
}
