package synth

import (
	"strings"
	"testing"
	"time"

	"github.com/wavefronthq/loadsynth/internal/recipe"
)

func plainMetricRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		FamilyID:           "f1",
		MetricName:         "cpu.util",
		Kind:               recipe.KindMetric,
		ValueDistribution:  recipe.Quantiles{P01: 42, P05: 42, P50: 42, P95: 42, P99: 42},
		SourceDistribution: recipe.Distribution{TopValues: []recipe.WeightedValue{{Value: "host-01", Frequency: 1.0}}},
	}
}

func TestNewRejectsInvalidRecipe(t *testing.T) {
	_, err := New(&recipe.Recipe{}, "seed")
	if err == nil {
		t.Fatal("New() expected error for invalid recipe")
	}
}

func TestNextRecordPlainMetric(t *testing.T) {
	s, err := New(plainMetricRecipe(), "family-1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	line, sample, err := s.NextRecord(now, Options{Multiplier: 1.0})
	if err != nil {
		t.Fatalf("NextRecord() error = %v", err)
	}
	if !strings.HasPrefix(line, "cpu.util 42.0 1700000000 source=host-01") {
		t.Fatalf("NextRecord() line = %q, want cpu.util 42.0 ... source=host-01 prefix", line)
	}
	if sample.Source != "host-01" {
		t.Fatalf("Sample.Source = %q, want host-01", sample.Source)
	}
}

func TestNoEmittedLineLacksSource(t *testing.T) {
	r := plainMetricRecipe()
	r.SourceDistribution = recipe.Distribution{}
	s, err := New(r, "family-2")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 20; i++ {
		line, _, err := s.NextRecord(now, Options{Multiplier: 1.0})
		if err != nil {
			t.Fatalf("NextRecord() error = %v", err)
		}
		if !strings.Contains(line, "source=") {
			t.Fatalf("NextRecord() line = %q, missing source= despite empty source_distribution", line)
		}
	}
}

func TestPresenceZeroTagsNeverEmitted(t *testing.T) {
	r := plainMetricRecipe()
	r.TagSchema = map[string]recipe.TagSchema{"env": {Presence: 0, Type: "string"}}
	s, err := New(r, "family-3")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 50; i++ {
		line, sample, err := s.NextRecord(now, Options{Multiplier: 1.0})
		if err != nil {
			t.Fatalf("NextRecord() error = %v", err)
		}
		if strings.Contains(line, "env=") {
			t.Fatalf("NextRecord() line = %q, expected no env tag with presence=0", line)
		}
		if len(sample.Tags) != 0 {
			t.Fatalf("Sample.Tags = %+v, want empty", sample.Tags)
		}
	}
}

func TestDeltaAccumulatesWithinMinuteAndResetsAcrossMinutes(t *testing.T) {
	r := &recipe.Recipe{
		FamilyID:           "f2",
		MetricName:         "requests.count",
		Kind:               recipe.KindDelta,
		ValueDistribution:  recipe.Quantiles{P01: 1, P05: 1, P50: 1, P95: 1, P99: 1},
		SourceDistribution: recipe.Distribution{TopValues: []recipe.WeightedValue{{Value: "host-01", Frequency: 1.0}}},
	}
	s, err := New(r, "family-4")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	base := time.Unix(1700000000, 0).UTC()
	_, first, err := s.NextRecord(base, Options{Multiplier: 1.0})
	if err != nil {
		t.Fatalf("NextRecord() error = %v", err)
	}
	_, second, err := s.NextRecord(base.Add(10*time.Second), Options{Multiplier: 1.0})
	if err != nil {
		t.Fatalf("NextRecord() error = %v", err)
	}
	if second.Value <= first.Value {
		t.Fatalf("expected accumulation within the same minute: first=%v second=%v", first.Value, second.Value)
	}

	_, third, err := s.NextRecord(base.Add(90*time.Second), Options{Multiplier: 1.0})
	if err != nil {
		t.Fatalf("NextRecord() error = %v", err)
	}
	if third.Value >= second.Value {
		t.Fatalf("expected reset in the next minute: second=%v third=%v", second.Value, third.Value)
	}
}

func TestNextRecordHistogramShape(t *testing.T) {
	r := &recipe.Recipe{
		FamilyID:           "f3",
		MetricName:         "response.latency",
		Kind:               recipe.KindHistogram,
		ValueDistribution:  recipe.Quantiles{P01: 10, P05: 10, P50: 20, P95: 30, P99: 30},
		SourceDistribution: recipe.Distribution{TopValues: []recipe.WeightedValue{{Value: "host-01", Frequency: 1.0}}},
	}
	s, err := New(r, "family-5")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	found := false
	for i := 0; i < 200 && !found; i++ {
		line, _, err := s.NextRecord(now, Options{Multiplier: 1.0})
		if err != nil {
			t.Fatalf("NextRecord() error = %v", err)
		}
		if strings.HasPrefix(line, "!M ") {
			found = true
			if !strings.Contains(line, "\n") {
				t.Fatalf("histogram line = %q, expected two lines separated by newline", line)
			}
		}
	}
	if !found {
		t.Fatal("expected at least one histogram line across 200 draws")
	}
}

func TestTargetRateZeroIntensityYieldsZeroRate(t *testing.T) {
	r := plainMetricRecipe()
	s, err := New(r, "family-6")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if rate := s.TargetRate(now, 100, 1.0, 1.0); rate != 0 {
		t.Fatalf("TargetRate() = %v, want 0 for zero intensity minute", rate)
	}
}

func TestSampleTagsUsesCooccurrenceCombination(t *testing.T) {
	r := plainMetricRecipe()
	r.TagCombinations = []recipe.TagCombination{
		{Tags: map[string]string{"region": "us-east", "az": "1a"}, Weight: 1},
	}
	s, err := New(r, "family-8")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 20; i++ {
		_, sample, err := s.NextRecord(now, Options{Multiplier: 1.0})
		if err != nil {
			t.Fatalf("NextRecord() error = %v", err)
		}
		if sample.Tags["region"] != "us-east" || sample.Tags["az"] != "1a" {
			t.Fatalf("Sample.Tags = %+v, want region/az from the declared combination", sample.Tags)
		}
	}
}

func TestSampleTagsFallsBackToPresenceForKeysOutsideCombination(t *testing.T) {
	r := plainMetricRecipe()
	r.TagCombinations = []recipe.TagCombination{
		{Tags: map[string]string{"region": "us-east"}, Weight: 1},
	}
	r.TagSchema = map[string]recipe.TagSchema{"env": {Presence: 1, Type: "string"}}
	r.TagDistributions = map[string]recipe.Distribution{
		"env": {TopValues: []recipe.WeightedValue{{Value: "prod", Frequency: 1.0}}},
	}
	s, err := New(r, "family-9")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	_, sample, err := s.NextRecord(now, Options{Multiplier: 1.0})
	if err != nil {
		t.Fatalf("NextRecord() error = %v", err)
	}
	if sample.Tags["region"] != "us-east" {
		t.Fatalf("Sample.Tags[region] = %q, want value from combination", sample.Tags["region"])
	}
	if sample.Tags["env"] != "prod" {
		t.Fatalf("Sample.Tags[env] = %q, want presence-sampled value for a key outside the combination", sample.Tags["env"])
	}
}

func TestNextRecordLogNormalValueKindStaysPositive(t *testing.T) {
	r := plainMetricRecipe()
	r.ValueKind = recipe.ValueKindLogNormal
	r.ValueDistributionParams = recipe.ValueDistributionParams{Mu: 0, Sigma: 1}
	s, err := New(r, "family-10")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 50; i++ {
		if _, sample, err := s.NextRecord(now, Options{Multiplier: 1.0}); err != nil {
			t.Fatalf("NextRecord() error = %v", err)
		} else if sample.Value <= 0 {
			t.Fatalf("Sample.Value = %v, want > 0 from a lognormal sampler", sample.Value)
		}
	}
}

func TestNextRecordExponentialValueKindStaysPositive(t *testing.T) {
	r := plainMetricRecipe()
	r.ValueKind = recipe.ValueKindExponential
	r.ValueDistributionParams = recipe.ValueDistributionParams{Lambda: 2.0}
	s, err := New(r, "family-11")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 50; i++ {
		if _, sample, err := s.NextRecord(now, Options{Multiplier: 1.0}); err != nil {
			t.Fatalf("NextRecord() error = %v", err)
		} else if sample.Value <= 0 {
			t.Fatalf("Sample.Value = %v, want > 0 from an exponential sampler", sample.Value)
		}
	}
}

func TestTargetRateScalesWithIntensityAndMultiplier(t *testing.T) {
	r := plainMetricRecipe()
	r.IntensityCurve[0] = 2.0
	s, err := New(r, "family-7")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rate := s.TargetRate(now, 10, 3.0, 1.0)
	want := 10.0 * 2.0 * 3.0
	if rate != want {
		t.Fatalf("TargetRate() = %v, want %v", rate, want)
	}
}
