package monitor

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wavefronthq/loadsynth/internal/metrics"
	"github.com/wavefronthq/loadsynth/internal/recipe"
	"github.com/wavefronthq/loadsynth/internal/synth"
)

func TestSlidingWindowEvictsOldSamplesAndCapsCount(t *testing.T) {
	w := NewSlidingWindow(50*time.Millisecond, 3)
	w.Add(synth.Sample{Timestamp: time.Now(), Value: 1})
	time.Sleep(60 * time.Millisecond)
	w.Add(synth.Sample{Timestamp: time.Now(), Value: 2})

	if got := w.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1 after the first sample aged out", got)
	}

	for i := 0; i < 5; i++ {
		w.Add(synth.Sample{Timestamp: time.Now(), Value: float64(i)})
	}
	if got := w.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3 (cap)", got)
	}
}

func TestJensenShannonZeroForIdenticalDistributions(t *testing.T) {
	dist := map[string]float64{"a": 0.5, "b": 0.5}
	if got := jensenShannon(dist, dist); got > 1e-9 {
		t.Fatalf("jensenShannon(same, same) = %v, want ~0", got)
	}
}

func TestJensenShannonPositiveForDisjointDistributions(t *testing.T) {
	ref := map[string]float64{"a": 1.0}
	cur := map[string]float64{"b": 1.0}
	got := jensenShannon(ref, cur)
	if got < 0.9 {
		t.Fatalf("jensenShannon(disjoint) = %v, want close to 1", got)
	}
}

func TestWassersteinLikeZeroForIdenticalQuantiles(t *testing.T) {
	q := []float64{1, 5, 50, 95, 99}
	if got := wassersteinLike(q, q); got != 0 {
		t.Fatalf("wassersteinLike(same, same) = %v, want 0", got)
	}
}

func TestWassersteinLikePositiveForShiftedQuantiles(t *testing.T) {
	ref := []float64{1, 5, 50, 95, 99}
	cur := []float64{2, 10, 60, 96, 100}
	if got := wassersteinLike(ref, cur); got <= 0 {
		t.Fatalf("wassersteinLike(shifted) = %v, want > 0", got)
	}
}

func TestKolmogorovSmirnovLikeIsNotAlwaysZero(t *testing.T) {
	ref := []float64{1, 5, 50, 95, 99}
	cur := []float64{50, 55, 100, 145, 149}
	got := kolmogorovSmirnovLike(ref, cur)
	if got <= 0 {
		t.Fatalf("kolmogorovSmirnovLike(shifted) = %v, want > 0 (must not reproduce the always-zero form)", got)
	}
}

func TestKolmogorovSmirnovLikeZeroForIdenticalQuantiles(t *testing.T) {
	q := []float64{1, 5, 50, 95, 99}
	if got := kolmogorovSmirnovLike(q, q); got != 0 {
		t.Fatalf("kolmogorovSmirnovLike(same, same) = %v, want 0", got)
	}
}

func TestComputeQuantilesInterpolatesSortedValues(t *testing.T) {
	values := []float64{5, 1, 3, 2, 4}
	got := computeQuantiles(values, []float64{0, 0.5, 1.0})
	if got[0] != 1 || got[2] != 5 {
		t.Fatalf("computeQuantiles endpoints = %v, want [1 ... 5]", got)
	}
	if got[1] != 3 {
		t.Fatalf("computeQuantiles median = %v, want 3", got[1])
	}
}

func testReference() *Reference {
	r := &recipe.Recipe{
		FamilyID:   "fam-1",
		MetricName: "cpu.util",
		Kind:       recipe.KindMetric,
		ValueDistribution: recipe.Quantiles{P01: 1, P05: 5, P50: 50, P95: 95, P99: 99},
		SizeQuantiles:     recipe.Quantiles{P01: 40, P05: 45, P50: 60, P95: 80, P99: 90},
		SourceDistribution: recipe.Distribution{
			TopValues: []recipe.WeightedValue{{Value: "host-01", Frequency: 1.0}},
		},
	}
	return ReferenceFromRecipe(r)
}

func TestFamilyMonitorComputeSkipsBelowSampleThreshold(t *testing.T) {
	fm := NewFamilyMonitor(testReference(), NewSlidingWindow(time.Minute, 100))
	for i := 0; i < minSamplesForCompute-1; i++ {
		fm.Tee(synth.Sample{Timestamp: time.Now(), Value: 50, Source: "host-01"})
	}
	_, _, ok := fm.Compute(DefaultThresholds(), time.Now())
	if ok {
		t.Fatal("Compute() = ok with fewer than the minimum sample count")
	}
}

func TestFamilyMonitorComputeGreenWhenMatchingReference(t *testing.T) {
	fm := NewFamilyMonitor(testReference(), NewSlidingWindow(time.Minute, 200))
	const n = 100
	for i := 0; i < n; i++ {
		frac := float64(i) / float64(n-1)
		value := 1 + frac*(99-1)
		size := 40 + frac*(90-40)
		fm.Tee(synth.Sample{Timestamp: time.Now(), Value: value, Source: "host-01", LineSize: int(size)})
	}
	scores, status, ok := fm.Compute(DefaultThresholds(), time.Now())
	if !ok {
		t.Fatal("Compute() = not ok with 100 samples")
	}
	if status != StatusGreen {
		t.Fatalf("status = %v, want green for matching samples, scores=%+v", status, scores)
	}
}

func TestFamilyMonitorComputeRedWhenDivergent(t *testing.T) {
	fm := NewFamilyMonitor(testReference(), NewSlidingWindow(time.Minute, 100))
	for i := 0; i < 20; i++ {
		fm.Tee(synth.Sample{Timestamp: time.Now(), Value: 500, Source: "host-99", LineSize: 400})
	}
	_, status, ok := fm.Compute(DefaultThresholds(), time.Now())
	if !ok {
		t.Fatal("Compute() = not ok with 20 samples")
	}
	if status != StatusRed {
		t.Fatalf("status = %v, want red for badly divergent samples", status)
	}
}

func TestFamilyMonitorConsecutiveRedIncrementsAndResets(t *testing.T) {
	fm := NewFamilyMonitor(testReference(), NewSlidingWindow(time.Minute, 100))
	feedRed := func() {
		for i := 0; i < 20; i++ {
			fm.Tee(synth.Sample{Timestamp: time.Now(), Value: 900, Source: "host-99", LineSize: 900})
		}
	}
	feedGreen := func() {
		const n = 100
		for i := 0; i < n; i++ {
			frac := float64(i) / float64(n-1)
			fm.Tee(synth.Sample{
				Timestamp: time.Now(),
				Value:     1 + frac*(99-1),
				Source:    "host-01",
				LineSize:  int(40 + frac*(90-40)),
			})
		}
	}

	feedRed()
	fm.Compute(DefaultThresholds(), time.Now())
	feedRed()
	fm.Compute(DefaultThresholds(), time.Now())
	_, _, consecutiveRed, _ := fm.Snapshot()
	if consecutiveRed != 2 {
		t.Fatalf("consecutiveRed = %d, want 2 after two red computes", consecutiveRed)
	}

	feedGreen()
	_, status, _ := fm.Compute(DefaultThresholds(), time.Now())
	if status != StatusGreen {
		t.Fatalf("status = %v, want green after matching samples again", status)
	}
	_, _, consecutiveRed, _ = fm.Snapshot()
	if consecutiveRed != 0 {
		t.Fatalf("consecutiveRed = %d, want reset to 0 after a green compute", consecutiveRed)
	}
}

func TestMonitorRegisterTeeComputeUpdatesGauges(t *testing.T) {
	m := metrics.NewMonitor()
	mon := New(Options{ComputeTick: time.Hour}, m, nil)
	mon.RegisterFamily(testReference())

	for i := 0; i < 20; i++ {
		mon.Tee("fam-1", synth.Sample{Timestamp: time.Now(), Value: 50, Source: "host-01", LineSize: 60})
	}
	mon.ComputeAll()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 200 {
		t.Fatalf("metrics handler status = %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "family_status") {
		t.Fatalf("metrics body missing family_status gauge: %s", body)
	}
}

func TestMonitorTeeIsNoopForUnregisteredFamily(t *testing.T) {
	mon := New(Options{}, nil, nil)
	mon.Tee("unknown", synth.Sample{Timestamp: time.Now(), Value: 1})
}

func TestFamiliesEndpointReportsRegisteredFamilies(t *testing.T) {
	mon := New(Options{}, nil, nil)
	mon.RegisterFamily(testReference())

	rr := httptest.NewRecorder()
	mon.Router().ServeHTTP(rr, httptest.NewRequest("GET", "/families", nil))

	var out []familyStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode /families body: %v", err)
	}
	if len(out) != 1 || out[0].FamilyID != "fam-1" {
		t.Fatalf("unexpected /families body: %+v", out)
	}
}

func TestComputeEndpointReturns202(t *testing.T) {
	mon := New(Options{}, nil, nil)
	mon.RegisterFamily(testReference())

	rr := httptest.NewRecorder()
	mon.Router().ServeHTTP(rr, httptest.NewRequest("POST", "/compute", nil))
	if rr.Code != 202 {
		t.Fatalf("POST /compute status = %d, want 202", rr.Code)
	}
}
