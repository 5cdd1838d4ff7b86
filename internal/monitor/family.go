package monitor

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/wavefronthq/loadsynth/internal/synth"
)

// minSamplesForCompute mirrors the ten-sample gate below which a
// computation is too noisy to trust; ticks with fewer samples are skipped
// as a DivergenceComputeError, not scored.
const minSamplesForCompute = 10

// Status classifies a family's most recently computed divergence scores.
type Status int

const (
	StatusGreen Status = iota
	StatusAmber
	StatusRed
)

func (s Status) String() string {
	switch s {
	case StatusGreen:
		return "green"
	case StatusAmber:
		return "amber"
	case StatusRed:
		return "red"
	default:
		return "unknown"
	}
}

// Scores is one tick's computed divergence for a family.
type Scores struct {
	JensenShannon       map[string]float64 // per distribution_type: "source" or "tag_"+tag key
	JensenShannonMean   float64
	Wasserstein         float64
	KolmogorovSmirnov   float64
	TemporalCorrelation float64
	SampleCount         int
	ComputedAt          time.Time
}

// FamilyMonitor tracks one family's window against its Reference and the
// status history derived from repeatedly scoring it.
type FamilyMonitor struct {
	reference *Reference
	window    *SlidingWindow

	mu             sync.Mutex
	scores         Scores
	status         Status
	consecutiveRed int
	hasScores      bool
}

// NewFamilyMonitor builds a FamilyMonitor comparing samples tee'd into
// window against ref.
func NewFamilyMonitor(ref *Reference, window *SlidingWindow) *FamilyMonitor {
	return &FamilyMonitor{reference: ref, window: window}
}

// Tee accepts one Sample from the synthesizer.
func (f *FamilyMonitor) Tee(s synth.Sample) {
	f.window.Add(s)
}

// Snapshot returns the most recently computed scores and status.
func (f *FamilyMonitor) Snapshot() (Scores, Status, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scores, f.status, f.consecutiveRed, f.hasScores
}

// Compute scores the family's current window against its reference and
// classifies the result. It returns false (a DivergenceComputeError) if
// fewer than minSamplesForCompute samples are currently retained; the
// family's status is left unchanged in that case.
func (f *FamilyMonitor) Compute(thresholds Thresholds, now time.Time) (Scores, Status, bool) {
	samples := f.window.Snapshot()
	if len(samples) < minSamplesForCompute {
		return Scores{}, StatusGreen, false
	}

	scores := Scores{
		JensenShannon: make(map[string]float64, 1+len(f.reference.TagDistributions)),
		SampleCount:   len(samples),
		ComputedAt:    now,
	}

	sourceCur := empiricalCategorical(samples, func(s synth.Sample) string { return s.Source })
	scores.JensenShannon["source"] = jensenShannon(f.reference.sourceProbabilities, sourceCur)

	for tagKey, refDist := range f.reference.TagDistributions {
		cur := empiricalCategorical(samples, func(s synth.Sample) string { return s.Tags[tagKey] })
		scores.JensenShannon["tag_"+tagKey] = jensenShannon(categoricalFrom(refDist), cur)
	}

	var jsSum float64
	for _, v := range scores.JensenShannon {
		jsSum += v
	}
	if len(scores.JensenShannon) > 0 {
		scores.JensenShannonMean = jsSum / float64(len(scores.JensenShannon))
	}

	values := make([]float64, len(samples))
	sizes := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
		sizes[i] = float64(s.LineSize)
	}
	probes := []float64{0.01, 0.05, 0.50, 0.95, 0.99}
	curValueQuantiles := computeQuantiles(values, probes)
	curSizeQuantiles := computeQuantiles(sizes, probes)

	scores.Wasserstein = wassersteinLike(f.reference.ValueQuantiles, curValueQuantiles)
	scores.KolmogorovSmirnov = kolmogorovSmirnovLike(f.reference.SizeQuantiles, curSizeQuantiles)

	counts := make(map[int]float64)
	for _, s := range samples {
		minute := s.Timestamp.Hour()*60 + s.Timestamp.Minute()
		counts[minute]++
	}
	scores.TemporalCorrelation = temporalCorrelation(counts, f.reference.IntensityCurve)

	status := classify(scores, thresholds)

	f.mu.Lock()
	f.scores = scores
	f.status = status
	f.hasScores = true
	if status == StatusRed {
		f.consecutiveRed++
	} else {
		f.consecutiveRed = 0
	}
	f.mu.Unlock()

	return scores, status, true
}

func empiricalCategorical(samples []synth.Sample, extract func(synth.Sample) string) map[string]float64 {
	counts := make(map[string]float64)
	total := 0.0
	for _, s := range samples {
		v := extract(s)
		if v == "" {
			continue
		}
		counts[v]++
		total++
	}
	if total == 0 {
		return counts
	}
	out := make(map[string]float64, len(counts))
	for k, c := range counts {
		out[k] = c / total
	}
	return out
}

// computeQuantiles linearly interpolates values (sorted internally) at
// each requested probability.
func computeQuantiles(values []float64, probes []float64) []float64 {
	if len(values) == 0 {
		return make([]float64, len(probes))
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	out := make([]float64, len(probes))
	n := len(sorted)
	for i, p := range probes {
		if n == 1 {
			out[i] = sorted[0]
			continue
		}
		pos := p * float64(n-1)
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		if lo == hi {
			out[i] = sorted[lo]
			continue
		}
		frac := pos - float64(lo)
		out[i] = sorted[lo]*(1-frac) + sorted[hi]*frac
	}
	return out
}

// Thresholds are the per-metric divergence thresholds a family's status is
// classified against.
type Thresholds struct {
	JensenShannon     float64
	Wasserstein       float64
	KolmogorovSmirnov float64
}

// DefaultThresholds mirrors the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{JensenShannon: 0.05, Wasserstein: 0.1, KolmogorovSmirnov: 0.05}
}

func classify(s Scores, t Thresholds) Status {
	red := s.JensenShannonMean > t.JensenShannon ||
		s.Wasserstein > t.Wasserstein ||
		s.KolmogorovSmirnov > t.KolmogorovSmirnov
	if red {
		return StatusRed
	}
	amber := s.JensenShannonMean > t.JensenShannon/2 ||
		s.Wasserstein > t.Wasserstein/2 ||
		s.KolmogorovSmirnov > t.KolmogorovSmirnov/2
	if amber {
		return StatusAmber
	}
	return StatusGreen
}
