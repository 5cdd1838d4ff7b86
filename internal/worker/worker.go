// Package worker implements the Worker Emission Core: it polls a control
// plane for an Assignment, materializes one Family Synthesizer per
// assigned family, drives each through a Rate Governor into a shared
// per-endpoint Batch Buffer, and serves health/status/metrics endpoints.
package worker

import (
	"sync"
	"time"

	"github.com/wavefronthq/loadsynth/internal/batch"
	"github.com/wavefronthq/loadsynth/internal/connpool"
	"github.com/wavefronthq/loadsynth/internal/controlplane"
	"github.com/wavefronthq/loadsynth/internal/emitter"
	"github.com/wavefronthq/loadsynth/internal/logging"
	"github.com/wavefronthq/loadsynth/internal/metrics"
	"github.com/wavefronthq/loadsynth/internal/rate"
	"github.com/wavefronthq/loadsynth/internal/recipe"
	"github.com/wavefronthq/loadsynth/internal/synth"
)

// Options configure a Worker.
type Options struct {
	WorkerID          string
	PollInterval      time.Duration
	BaseRate          float64
	Acceleration      float64
	MaxLines          int
	MaxBytes          int
	FlushInterval     time.Duration
	MaxSendAttempts   int
	ReconnectDeadline time.Duration
	ConnBufferBytes   int
	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 30 * time.Second
	}
	if o.BaseRate <= 0 {
		o.BaseRate = 1.0
	}
	if o.Acceleration <= 0 {
		o.Acceleration = 10.0
	}
	if o.MaxLines <= 0 {
		o.MaxLines = 1000
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 1 << 20
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.MaxSendAttempts <= 0 {
		o.MaxSendAttempts = 3
	}
	if o.ReconnectDeadline <= 0 {
		o.ReconnectDeadline = 60 * time.Second
	}
	return o
}

// familySlot is one entry in the synthesizer arena. Per-family goroutines
// address their slot by integer handle rather than holding a pointer back
// into the Worker, avoiding the assignment -> synthesizer -> pool cycle
// spec.md's redesign flags call out.
type familySlot struct {
	familyID     string
	synth        *synth.Synthesizer
	recipe       *recipe.Recipe
	governor     *rate.Governor
	cancel       func()
	live         bool
	startedAt    time.Time
	emittedCount int
}

// endpointSlot is one entry in the connection-manager arena, addressed the
// same way.
type endpointSlot struct {
	endpoint string
	manager  *connpool.Manager
	buffer   *batch.Buffer
	emitter  *emitter.Emitter
	cancel   func()
}

// SampleTee receives every Sample a family synthesizer produces, feeding
// the Divergence Monitor without the worker owning any monitor state.
type SampleTee func(familyID string, s synth.Sample)

// Worker orchestrates families and endpoints for one worker identity.
type Worker struct {
	id       string
	cp       *controlplane.Client
	recipes  *recipe.Client
	counters *metrics.Worker
	log      logging.Logger
	opts     Options
	tee      SampleTee

	mu          sync.RWMutex
	assignment  *controlplane.Assignment
	families    []familySlot
	familyIndex map[string]int
	endpoints   []endpointSlot
	endpointIdx map[string]int
	readyAt     time.Time
}

// New builds a Worker. tee may be nil if no Divergence Monitor is wired.
func New(id string, cp *controlplane.Client, recipes *recipe.Client, counters *metrics.Worker, log logging.Logger, opts Options, tee SampleTee) *Worker {
	return &Worker{
		id:          id,
		cp:          cp,
		recipes:     recipes,
		counters:    counters,
		log:         log,
		opts:        opts.withDefaults(),
		tee:         tee,
		familyIndex: make(map[string]int),
		endpointIdx: make(map[string]int),
	}
}

// HasAssignment reports whether an Assignment has ever been applied.
func (w *Worker) HasAssignment() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.assignment != nil
}

// SynthesizerCount reports the number of live per-family synthesizers.
func (w *Worker) SynthesizerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n := 0
	for _, f := range w.families {
		if f.live {
			n++
		}
	}
	return n
}

// BufferSize reports the sum of currently buffered lines across endpoints.
func (w *Worker) BufferSize() int {
	w.mu.RLock()
	endpoints := make([]*batch.Buffer, 0, len(w.endpoints))
	for _, e := range w.endpoints {
		endpoints = append(endpoints, e.buffer)
	}
	w.mu.RUnlock()

	total := 0
	for _, b := range endpoints {
		total += b.Len()
	}
	return total
}

// CurrentAssignment returns the most recently applied Assignment, or nil.
func (w *Worker) CurrentAssignment() *controlplane.Assignment {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.assignment
}

// Ready reports whether startup has completed.
func (w *Worker) Ready() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !w.readyAt.IsZero()
}

// MarkReady flips the worker into the ready state.
func (w *Worker) MarkReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readyAt.IsZero() {
		w.readyAt = time.Now()
	}
}

// Healthy reports whether an assignment is present, at least one
// synthesizer is loaded, at least one endpoint connection was actually
// built when the assignment named endpoints, and no endpoint's Connection
// Manager has been stuck Reconnecting past ReconnectDeadline.
func (w *Worker) Healthy() bool {
	if !w.HasAssignment() || w.SynthesizerCount() == 0 {
		return false
	}
	a := w.CurrentAssignment()

	w.mu.RLock()
	managers := make([]*connpool.Manager, 0, len(w.endpoints))
	for _, e := range w.endpoints {
		managers = append(managers, e.manager)
	}
	w.mu.RUnlock()

	if a != nil && len(a.Endpoints) > 0 && len(managers) == 0 {
		return false
	}

	for _, m := range managers {
		if m.State() == connpool.Reconnecting && m.ReconnectingSince() > w.opts.ReconnectDeadline {
			return false
		}
	}
	return true
}
