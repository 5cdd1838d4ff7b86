package worker

import (
	"context"
	"time"

	"github.com/wavefronthq/loadsynth/internal/batch"
	"github.com/wavefronthq/loadsynth/internal/connpool"
	"github.com/wavefronthq/loadsynth/internal/controlplane"
	"github.com/wavefronthq/loadsynth/internal/emitter"
	"github.com/wavefronthq/loadsynth/internal/rate"
	"github.com/wavefronthq/loadsynth/internal/synth"
)

// PollAssignments runs the assignment poller until ctx is cancelled: an
// immediate poll followed by one every PollInterval. Poll failures retain
// the prior Assignment and keep emitting, per the AssignmentFetchError
// policy.
func (w *Worker) PollAssignments(ctx context.Context) {
	w.poll(ctx)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	a, err := w.cp.FetchAssignment(w.id)
	if err != nil {
		if err != controlplane.ErrNoAssignment && w.log != nil {
			w.log.Warn("worker %s: assignment fetch failed, retaining prior assignment: %v", w.id, err)
		}
		return
	}
	w.applyAssignment(ctx, a)
}

// applyAssignment reconfigures families and endpoints when a fetched
// Assignment differs from the one currently held, by the {families,
// multiplier, burst_factor} value-equality rule.
func (w *Worker) applyAssignment(ctx context.Context, a *controlplane.Assignment) {
	w.mu.Lock()
	unchanged := w.assignment != nil && w.assignment.Equal(*a)
	w.mu.Unlock()
	if unchanged {
		return
	}

	if w.log != nil {
		w.log.Info("worker %s: applying assignment: %d families, multiplier=%.2f", w.id, len(a.FamilyIDs), a.Multiplier)
	}

	w.mu.Lock()
	w.assignment = a
	w.mu.Unlock()

	w.reconcileEndpoints(a)
	w.reconcileFamilies(ctx, a)
}

func (w *Worker) reconcileEndpoints(a *controlplane.Assignment) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wanted := make(map[string]bool, len(a.Endpoints))
	for _, ep := range a.Endpoints {
		wanted[ep] = true
		if _, ok := w.endpointIdx[ep]; ok {
			continue
		}
		manager, err := connpool.New(ep, connpool.Options{
			Credential:       a.AuthCredential,
			BufferBytes:      w.opts.ConnBufferBytes,
			ReconnectInitial: w.opts.ReconnectInitial,
			ReconnectMax:     w.opts.ReconnectMax,
		}, w.log)
		if err != nil {
			if w.log != nil {
				w.log.Warn("worker %s: failed to build connection to %s: %v", w.id, ep, err)
			}
			continue
		}
		buffer := batch.New(w.opts.MaxLines, w.opts.MaxBytes)
		var counters emitter.Counters
		if w.counters != nil {
			counters = w.counters
		}
		em := emitter.New(ep, manager, buffer, counters, w.log, emitter.Options{
			MaxAttempts:   w.opts.MaxSendAttempts,
			FlushInterval: w.opts.FlushInterval,
		})
		ctx, cancel := context.WithCancel(context.Background())
		go manager.Run(ctx)
		go em.Run(ctx)

		w.endpoints = append(w.endpoints, endpointSlot{
			endpoint: ep,
			manager:  manager,
			buffer:   buffer,
			emitter:  em,
			cancel:   cancel,
		})
		w.endpointIdx[ep] = len(w.endpoints) - 1
	}

	live := w.endpoints[:0]
	for _, slot := range w.endpoints {
		if wanted[slot.endpoint] {
			live = append(live, slot)
			continue
		}
		slot.cancel()
	}
	w.endpoints = live

	w.endpointIdx = make(map[string]int, len(w.endpoints))
	for i, slot := range w.endpoints {
		w.endpointIdx[slot.endpoint] = i
	}
}

func (w *Worker) reconcileFamilies(ctx context.Context, a *controlplane.Assignment) {
	wanted := make(map[string]bool, len(a.FamilyIDs))
	for _, id := range a.FamilyIDs {
		wanted[id] = true
	}

	w.mu.Lock()
	for id, idx := range w.familyIndex {
		if wanted[id] {
			continue
		}
		if w.families[idx].live {
			w.families[idx].cancel()
			w.families[idx].live = false
		}
	}
	w.mu.Unlock()

	for _, id := range a.FamilyIDs {
		w.mu.RLock()
		idx, exists := w.familyIndex[id]
		alreadyLive := exists && w.families[idx].live
		w.mu.RUnlock()
		if alreadyLive {
			continue
		}

		r, err := w.recipes.Fetch(id)
		if err != nil {
			if w.log != nil {
				w.log.Warn("worker %s: failed to load recipe for family %s, skipping this assignment: %v", w.id, id, err)
			}
			continue
		}

		s, err := synth.New(r, id)
		if err != nil {
			if w.log != nil {
				w.log.Warn("worker %s: failed to build synthesizer for family %s: %v", w.id, id, err)
			}
			continue
		}

		governor := rate.New(0, w.opts.BaseRate, w.opts.Acceleration, 100*time.Millisecond)

		familyCtx, cancel := context.WithCancel(ctx)
		slot := familySlot{familyID: id, synth: s, recipe: r, governor: governor, cancel: cancel, live: true, startedAt: time.Now()}

		w.mu.Lock()
		var handle int
		if exists {
			handle = idx
			w.families[handle] = slot
		} else {
			w.families = append(w.families, slot)
			handle = len(w.families) - 1
			w.familyIndex[id] = handle
		}
		w.mu.Unlock()

		go w.runFamily(familyCtx, handle)
	}
}

// endpointsSnapshot returns the endpoint arena slots handed-out lines fan
// out to, taken under lock.
func (w *Worker) endpointsSnapshot() []endpointSlot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]endpointSlot, len(w.endpoints))
	copy(out, w.endpoints)
	return out
}
