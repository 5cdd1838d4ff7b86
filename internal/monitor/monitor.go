package monitor

import (
	"sync"
	"time"

	"github.com/wavefronthq/loadsynth/internal/logging"
	"github.com/wavefronthq/loadsynth/internal/metrics"
	"github.com/wavefronthq/loadsynth/internal/synth"
)

// defaultRedMinutes is the number of consecutive red minutes before a
// family's status escalates to a critical alert.
const defaultRedMinutes = 15

// Options configure a Monitor's compute cadence, thresholds, and window
// sizing.
type Options struct {
	Thresholds  Thresholds
	RedMinutes  int
	WindowSize  time.Duration
	MaxSamples  int
	ComputeTick time.Duration
}

func (o Options) withDefaults() Options {
	if o.Thresholds == (Thresholds{}) {
		o.Thresholds = DefaultThresholds()
	}
	if o.RedMinutes <= 0 {
		o.RedMinutes = defaultRedMinutes
	}
	if o.WindowSize <= 0 {
		o.WindowSize = 5 * time.Minute
	}
	if o.ComputeTick <= 0 {
		o.ComputeTick = time.Minute
	}
	return o
}

// Monitor owns one FamilyMonitor per registered family, a shared
// gauge set, and the ticker that scores every family once per minute.
type Monitor struct {
	opts    Options
	metrics *metrics.Monitor
	log     logging.Logger

	mu       sync.RWMutex
	families map[string]*FamilyMonitor
	metricNm map[string]string // family_id -> metric_name, for the family_status label pair
}

// New builds a Monitor. m may be nil, in which case gauge updates are
// skipped (used by tests that only exercise the scoring math).
func New(opts Options, m *metrics.Monitor, log logging.Logger) *Monitor {
	return &Monitor{
		opts:     opts.withDefaults(),
		metrics:  m,
		log:      log,
		families: make(map[string]*FamilyMonitor),
		metricNm: make(map[string]string),
	}
}

// RegisterFamily adds or replaces the FamilyMonitor tracking familyID
// against ref. Re-registering the same family_id (e.g. after an
// assignment change swaps in a different recipe) resets its window.
func (mon *Monitor) RegisterFamily(ref *Reference) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.families[ref.FamilyID] = NewFamilyMonitor(ref, NewSlidingWindow(mon.opts.WindowSize, mon.opts.MaxSamples))
	mon.metricNm[ref.FamilyID] = ref.MetricName
}

// Unregister drops a family that is no longer assigned to any worker.
func (mon *Monitor) Unregister(familyID string) {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	delete(mon.families, familyID)
	delete(mon.metricNm, familyID)
}

// Tee is a worker.SampleTee: it feeds one produced Sample into the named
// family's window, a no-op if that family is not registered.
func (mon *Monitor) Tee(familyID string, s synth.Sample) {
	mon.mu.RLock()
	fm := mon.families[familyID]
	mon.mu.RUnlock()
	if fm == nil {
		return
	}
	fm.Tee(s)
}

// FamilyIDs lists the currently registered families.
func (mon *Monitor) FamilyIDs() []string {
	mon.mu.RLock()
	defer mon.mu.RUnlock()
	ids := make([]string, 0, len(mon.families))
	for id := range mon.families {
		ids = append(ids, id)
	}
	return ids
}

// Run ticks ComputeAll every ComputeTick until done is closed.
func (mon *Monitor) Run(done <-chan struct{}) {
	ticker := time.NewTicker(mon.opts.ComputeTick)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			mon.ComputeAll()
		}
	}
}

// ComputeAll scores every registered family against its window and
// updates the shared gauge set. Families with too few samples are skipped
// (DivergenceComputeError) without changing their reported status.
func (mon *Monitor) ComputeAll() {
	mon.mu.RLock()
	snapshot := make(map[string]*FamilyMonitor, len(mon.families))
	for id, fm := range mon.families {
		snapshot[id] = fm
	}
	mon.mu.RUnlock()

	now := time.Now()
	criticalCount := 0
	warningCount := 0

	for familyID, fm := range snapshot {
		scores, status, ok := fm.Compute(mon.opts.Thresholds, now)
		if !ok {
			if mon.log != nil {
				mon.log.Warn("monitor: family %s: fewer than %d samples in window, skipping this tick", familyID, minSamplesForCompute)
			}
			continue
		}

		_, _, consecutiveRed, _ := fm.Snapshot()
		if consecutiveRed >= mon.opts.RedMinutes {
			criticalCount++
		} else if status != StatusGreen {
			warningCount++
		}

		if mon.log != nil {
			mon.log.Debug("monitor: family %s: js=%.4f wasserstein=%.4f ks=%.4f status=%s consecutive_red=%d",
				familyID, scores.JensenShannonMean, scores.Wasserstein, scores.KolmogorovSmirnov, status, consecutiveRed)
		}

		mon.reportGauges(familyID, scores, status)
	}

	if mon.metrics != nil {
		mon.metrics.AlertsActive.WithLabelValues("critical", "sustained_divergence").Set(float64(criticalCount))
		mon.metrics.AlertsActive.WithLabelValues("warning", "divergence").Set(float64(warningCount))
	}
}

func (mon *Monitor) reportGauges(familyID string, scores Scores, status Status) {
	if mon.metrics == nil {
		return
	}
	for distType, v := range scores.JensenShannon {
		mon.metrics.JensenShannon.WithLabelValues(familyID, distType).Set(v)
	}
	mon.metrics.Wasserstein.WithLabelValues(familyID).Set(scores.Wasserstein)
	mon.metrics.KolmogorovSmirnov.WithLabelValues(familyID).Set(scores.KolmogorovSmirnov)

	mon.mu.RLock()
	metricName := mon.metricNm[familyID]
	mon.mu.RUnlock()
	mon.metrics.FamilyStatus.WithLabelValues(familyID, metricName).Set(float64(status))
}
