// Package rate implements the Rate Governor: a token-bucket limiter whose
// target rate moves smoothly toward a configured target between refreshes,
// wrapping golang.org/x/time/rate for the underlying token bucket.
package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Governor holds one synthesizer's emission rate, ramping current_rate
// toward target_rate by acceleration records/second per elapsed second,
// applied at most once per refresh interval.
type Governor struct {
	mu sync.Mutex

	starting     float64
	target       float64
	acceleration float64
	refresh      time.Duration

	current    float64
	lastAdjust time.Time
	limiter    *rate.Limiter
}

// New builds a Governor starting at startingRate and moving toward
// targetRate by accelerationPerSec records/second for every second elapsed
// since the last adjustment, adjusting at most once per refresh interval.
func New(startingRate, targetRate, accelerationPerSec float64, refresh time.Duration) *Governor {
	if startingRate < 0 {
		startingRate = 0
	}
	g := &Governor{
		starting:     startingRate,
		target:       targetRate,
		acceleration: accelerationPerSec,
		refresh:      refresh,
		current:      startingRate,
		lastAdjust:   time.Now(),
	}
	g.limiter = rate.NewLimiter(toLimit(startingRate), 1)
	return g
}

// Acquire blocks until a token is available at the current rate.
func (g *Governor) Acquire(ctx context.Context) error {
	g.maybeAdjust(time.Now())
	g.mu.Lock()
	limiter := g.limiter
	g.mu.Unlock()
	return limiter.Wait(ctx)
}

// CurrentRate returns the governor's present ramped rate (not its target),
// letting a
// consumer size its batch to the rate it is actually emitting at.
func (g *Governor) CurrentRate() float64 {
	g.maybeAdjust(time.Now())
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// SetTarget changes the rate the governor accelerates toward. Adjustment
// resumes from the current rate at the next refresh tick.
func (g *Governor) SetTarget(targetRate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.target = targetRate
}

// maybeAdjust moves current toward target by at most
// elapsed*acceleration, never overshooting, and rebuilds the underlying
// limiter when current actually changes.
func (g *Governor) maybeAdjust(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	elapsed := now.Sub(g.lastAdjust)
	if elapsed < g.refresh {
		return
	}
	g.lastAdjust = now

	if g.current == g.target {
		return
	}

	step := g.acceleration * elapsed.Seconds()
	if g.current < g.target {
		g.current += step
		if g.current > g.target {
			g.current = g.target
		}
	} else {
		g.current -= step
		if g.current < g.target {
			g.current = g.target
		}
	}
	if g.current < 0 {
		g.current = 0
	}

	g.limiter.SetLimit(toLimit(g.current))
}

func toLimit(recordsPerSecond float64) rate.Limit {
	if recordsPerSecond <= 0 {
		return rate.Limit(0)
	}
	return rate.Limit(recordsPerSecond)
}
