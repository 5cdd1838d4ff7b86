package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/wavefronthq/loadsynth/internal/synth"
)

// familyTickInterval matches the ~10 Hz per-family cadence.
const familyTickInterval = 100 * time.Millisecond

// rateLogEvery controls how often a family logs its effective emission
// rate since it started, mirroring the source generator's periodic rate
// line.
const rateLogEvery = 1000

// bufferFullFlushTimeout bounds how long a BufferFull retry waits for the
// forced flush to actually drain the buffer, per the policy of forcing a
// flush and retrying rather than blocking indefinitely.
const bufferFullFlushTimeout = 500 * time.Millisecond

// runFamily drives one family's synthesizer at handle until ctx is
// cancelled: each tick it computes the target rate, draws a randomly
// rounded number of lines for the elapsed interval (the fractional part of
// the expected count becomes one extra line with that probability), and fans each
// synthesized line out to every currently assigned endpoint's buffer.
func (w *Worker) runFamily(ctx context.Context, handle int) {
	ticker := time.NewTicker(familyTickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.tickFamily(handle, now, last)
			last = now
		}
	}
}

func (w *Worker) tickFamily(handle int, now, last time.Time) {
	w.mu.RLock()
	if handle >= len(w.families) || !w.families[handle].live {
		w.mu.RUnlock()
		return
	}
	slot := w.families[handle]
	a := w.assignment
	w.mu.RUnlock()
	if a == nil {
		return
	}

	targetRate := slot.synth.TargetRate(now, w.opts.BaseRate, a.Multiplier, a.BurstFactor)
	slot.governor.SetTarget(targetRate)
	rampedRate := slot.governor.CurrentRate()

	elapsed := now.Sub(last).Seconds()
	expected := rampedRate * elapsed
	linesToEmit := int(expected)
	if expected-float64(linesToEmit) > rand.Float64() {
		linesToEmit++
	}

	endpoints := w.endpointsSnapshot()
	opts := synth.Options{
		Multiplier:     a.Multiplier,
		SchemaDrift:    a.SchemaDrift,
		ErrorInjection: a.ErrorInjection,
	}

	emitted := 0
	for i := 0; i < linesToEmit; i++ {
		line, sample, err := slot.synth.NextRecord(now, opts)
		if err != nil {
			continue
		}
		if w.tee != nil {
			w.tee(slot.familyID, sample)
		}
		for _, ep := range endpoints {
			if ep.buffer.Add(line) {
				continue
			}
			ep.emitter.FlushSync(bufferFullFlushTimeout)
			if ep.buffer.Add(line) {
				continue
			}
			if w.counters != nil {
				w.counters.AddLinesDropped(slot.familyID, 1)
			}
			if w.log != nil {
				w.log.Warn("worker %s: family %s: dropped line to %s after buffer-full retry", w.id, slot.familyID, ep.endpoint)
			}
		}
		if w.counters != nil {
			w.counters.AddLinesEmitted(slot.familyID, 1)
			w.counters.AddBytesEmitted(slot.familyID, float64(len(line)))
		}
		emitted++
	}

	if emitted > 0 {
		w.recordEmission(handle, emitted, now)
	}
}

// recordEmission accumulates handle's lifetime emitted-line count and, every
// rateLogEvery lines, logs the effective rate since the family started.
func (w *Worker) recordEmission(handle, emitted int, now time.Time) {
	w.mu.Lock()
	if handle >= len(w.families) || !w.families[handle].live {
		w.mu.Unlock()
		return
	}
	before := w.families[handle].emittedCount
	w.families[handle].emittedCount = before + emitted
	total := w.families[handle].emittedCount
	familyID := w.families[handle].familyID
	startedAt := w.families[handle].startedAt
	w.mu.Unlock()

	if before/rateLogEvery == total/rateLogEvery {
		return
	}
	if w.log == nil {
		return
	}
	elapsed := now.Sub(startedAt).Seconds()
	if elapsed <= 0 {
		return
	}
	w.log.Info("worker %s: family %s: emitted %d lines at %.1f lines/sec effective rate", w.id, familyID, total, float64(total)/elapsed)
}
