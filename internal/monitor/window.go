// Package monitor implements the Divergence Monitor: per-family sliding
// windows of tee'd Samples, compared each minute against a recipe's
// reference distributions along three statistical distances.
package monitor

import (
	"sync"
	"time"

	"github.com/wavefronthq/loadsynth/internal/synth"
)

const defaultMaxSamples = 10000

// SlidingWindow retains Samples younger than a duration, capped at a
// maximum count, guarded by its own mutex so producers never block on the
// monitor's statistical computation.
type SlidingWindow struct {
	mu         sync.Mutex
	duration   time.Duration
	maxSamples int
	samples    []synth.Sample
}

// NewSlidingWindow builds a window retaining samples for duration, capped
// at maxSamples (defaultMaxSamples if non-positive).
func NewSlidingWindow(duration time.Duration, maxSamples int) *SlidingWindow {
	if maxSamples <= 0 {
		maxSamples = defaultMaxSamples
	}
	return &SlidingWindow{duration: duration, maxSamples: maxSamples}
}

// Add appends a sample and evicts anything older than the window duration
// or beyond the sample cap.
func (w *SlidingWindow) Add(s synth.Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, s)

	cutoff := time.Now().Add(-w.duration)
	start := 0
	for start < len(w.samples) && w.samples[start].Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		w.samples = w.samples[start:]
	}
	if len(w.samples) > w.maxSamples {
		w.samples = w.samples[len(w.samples)-w.maxSamples:]
	}
}

// Snapshot returns a copy of the currently retained samples, so the
// monitor computes statistics without holding the window lock and
// blocking producers.
func (w *SlidingWindow) Snapshot() []synth.Sample {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]synth.Sample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Len reports the number of samples currently retained.
func (w *SlidingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}
