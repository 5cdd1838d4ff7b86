// Package synth implements the Family Synthesizer: given a loaded recipe
// and a virtual clock, it produces protocol-conformant records matching the
// recipe's schema, value distribution, tag distributions, temporal
// intensity curve, and burstiness.
package synth

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"pgregory.net/rand"

	"github.com/wavefronthq/loadsynth/internal/protocol"
	"github.com/wavefronthq/loadsynth/internal/recipe"
	"github.com/wavefronthq/loadsynth/internal/sampler"
	"github.com/wavefronthq/loadsynth/internal/seed"
)

const (
	histogramChance  = 0.1
	burstChance      = 0.1
	driftNewTagRate  = 0.5
	driftMutateRate  = 0.3
	minCentroids     = 1
	maxCentroidSpan  = 5
	baseHistogramMin = 10
	baseHistogramMax = 100
)

// ErrorPolicy identifies one of the five error-injection strategies applied
// to an already-encoded line.
type ErrorPolicy int

const (
	ErrorMalformedName ErrorPolicy = iota
	ErrorStripSource
	ErrorNaNValue
	ErrorTruncate
	ErrorDoubleEquals
	errorPolicyCount
)

// Synthesizer owns one recipe's samplers, its seeded random source, and its
// per-minute delta accumulator. It is not safe for concurrent use: the
// Worker Core runs exactly one goroutine per family.
type Synthesizer struct {
	recipe *recipe.Recipe
	rng    *rand.Rand

	sourceSampler *sampler.Categorical
	sourcePattern *sampler.StringPattern
	tagSamplers   map[string]*sampler.Categorical
	tagPatterns   map[string]*sampler.StringPattern
	cooccurrence  *sampler.Cooccurrence
	valueSampler  *sampler.Numeric

	deltaAccumulator map[string]deltaBucket
}

type deltaBucket struct {
	minute int64
	total  float64
}

// New builds a Synthesizer for recipe r. familySeed derives the
// synthesizer's PRNG so that replaying the same family twice, in a test or
// across a worker restart, reproduces the same sample sequence. A
// structurally invalid recipe returns *recipe.LoadError.
func New(r *recipe.Recipe, familySeed string) (*Synthesizer, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	s := &Synthesizer{
		recipe:           r,
		rng:              rand.New(uint64(seed.FromString(familySeed))),
		tagSamplers:      make(map[string]*sampler.Categorical),
		tagPatterns:      make(map[string]*sampler.StringPattern),
		deltaAccumulator: make(map[string]deltaBucket),
	}

	if len(r.SourceDistribution.TopValues) > 0 {
		s.sourceSampler = sampler.NewCategorical(toWeightedItems(r.SourceDistribution.TopValues))
	}
	if len(r.SourcePatterns) > 0 {
		s.sourcePattern = sampler.NewStringPattern(toWeightedPatterns(r.SourcePatterns))
	}
	for key, dist := range r.TagDistributions {
		if len(dist.TopValues) > 0 {
			s.tagSamplers[key] = sampler.NewCategorical(toWeightedItems(dist.TopValues))
		}
	}
	for key, patterns := range r.TagValuePatterns {
		if len(patterns) > 0 {
			s.tagPatterns[key] = sampler.NewStringPattern(toWeightedPatterns(patterns))
		}
	}
	if len(r.TagCombinations) > 0 {
		s.cooccurrence = sampler.NewCooccurrence(toTagCombinations(r.TagCombinations))
	}

	switch r.ValueKind {
	case recipe.ValueKindLogNormal:
		s.valueSampler = sampler.NewLogNormalSampler(r.ValueDistributionParams.Mu, r.ValueDistributionParams.Sigma)
	case recipe.ValueKindExponential:
		s.valueSampler = sampler.NewExponentialSampler(r.ValueDistributionParams.Lambda)
	default:
		s.valueSampler = sampler.NewQuantileSampler(r.ValueDistribution.Slice())
	}

	return s, nil
}

func toWeightedItems(values []recipe.WeightedValue) []sampler.WeightedItem {
	items := make([]sampler.WeightedItem, len(values))
	for i, v := range values {
		items[i] = sampler.WeightedItem{Value: v.Value, Weight: v.Frequency}
	}
	return items
}

func toWeightedPatterns(patterns []recipe.WeightedPattern) []sampler.WeightedPattern {
	out := make([]sampler.WeightedPattern, len(patterns))
	for i, p := range patterns {
		out[i] = sampler.WeightedPattern{Pattern: p.Pattern, Weight: p.Frequency}
	}
	return out
}

func toTagCombinations(combos []recipe.TagCombination) []sampler.TagCombination {
	out := make([]sampler.TagCombination, len(combos))
	for i, c := range combos {
		out[i] = sampler.TagCombination{Tags: c.Tags, Weight: c.Weight}
	}
	return out
}

// Options carry the per-tick knobs an Assignment applies to every record a
// Synthesizer produces.
type Options struct {
	Multiplier     float64
	SchemaDrift    float64
	ErrorInjection float64
}

// NextRecord produces one line of output for virtual time now, plus the
// Sample that should be tee'd to the divergence monitor. now drives every
// time-dependent decision (delta minute bucketing, histogram timestamp,
// span start) so that replaying a canned sequence of `now` values is
// deterministic regardless of wall clock.
func (s *Synthesizer) NextRecord(now time.Time, opts Options) (line string, sample Sample, err error) {
	switch s.recipe.Kind {
	case recipe.KindHistogram:
		if s.rng.Float64() < histogramChance {
			return s.nextHistogram(now, opts)
		}
		return s.nextMetric(now, opts, false)
	case recipe.KindSpan:
		return s.nextSpan(now, opts)
	case recipe.KindDelta:
		return s.nextMetric(now, opts, true)
	default:
		return s.nextMetric(now, opts, false)
	}
}

func (s *Synthesizer) nextMetric(now time.Time, opts Options, isDelta bool) (string, Sample, error) {
	value := s.valueSampler.Sample(s.rng) * opts.Multiplier

	source := s.sampleSource()
	tags := s.sampleTags()
	tags = s.injectSchemaDrift(tags, opts.SchemaDrift)

	if isDelta {
		value = s.accumulateDelta(now, source, tags, value)
	}

	kind := protocol.KindMetric
	if isDelta {
		kind = protocol.KindDelta
	}
	rec := protocol.Record{
		Kind:      kind,
		Name:      s.recipe.MetricName,
		Value:     value,
		Timestamp: now,
		Source:    source,
		Tags:      tags,
	}
	line := protocol.Encode(rec)
	line = s.injectErrors(line, opts.ErrorInjection)

	return line, Sample{
		Timestamp: now,
		Value:     value,
		Source:    source,
		Tags:      tags,
		LineSize:  len(line),
	}, nil
}

// accumulateDelta resets the running total when now crosses into a new
// virtual minute, keyed by name+source+sorted tag values so that different
// series within the same family accumulate independently. The bucket is
// clocked against now (the record's own virtual timestamp), not wall time,
// so replaying a canned sequence of timestamps is deterministic.
func (s *Synthesizer) accumulateDelta(now time.Time, source string, tags map[string]string, value float64) float64 {
	key := s.recipe.MetricName + "|" + source + "|" + tagTuple(tags)
	minute := now.Unix() / 60

	bucket := s.deltaAccumulator[key]
	if bucket.minute != minute {
		bucket = deltaBucket{minute: minute}
	}
	bucket.total += value
	s.deltaAccumulator[key] = bucket
	return bucket.total
}

// tagTuple renders a tag map as a stable, order-independent string key.
func tagTuple(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(tags[k])
		b.WriteByte(',')
	}
	return b.String()
}

func (s *Synthesizer) nextHistogram(now time.Time, opts Options) (string, Sample, error) {
	granularity := byte('M')
	if s.rng.Float64() < 0.05 {
		granularity = 'D'
	} else if s.rng.Float64() < 0.2 {
		granularity = 'H'
	}

	centroidCount := minCentroids + s.rng.Intn(maxCentroidSpan)
	totalCount := int(opts.Multiplier * float64(baseHistogramMin+s.rng.Intn(baseHistogramMax-baseHistogramMin)))

	centroids := make([]protocol.Centroid, centroidCount)
	remaining := totalCount
	for i := 0; i < centroidCount; i++ {
		count := totalCount / centroidCount
		if i == centroidCount-1 {
			count = remaining
		}
		remaining -= count
		mean := s.valueSampler.Sample(s.rng)
		centroids[i] = protocol.Centroid{Count: count, Mean: mean}
	}

	source := s.sampleSource()
	tags := s.sampleTags()

	rec := protocol.Record{
		Kind:        protocol.KindHistogram,
		Name:        s.recipe.MetricName,
		Timestamp:   now,
		Source:      source,
		Tags:        tags,
		Granularity: granularity,
		TotalCount:  totalCount,
		Centroids:   centroids,
	}
	line := protocol.Encode(rec)
	line = s.injectErrors(line, opts.ErrorInjection)

	return line, Sample{
		Timestamp: now,
		Value:     float64(totalCount),
		Source:    source,
		Tags:      tags,
		LineSize:  len(line),
	}, nil
}

func (s *Synthesizer) nextSpan(now time.Time, opts Options) (string, Sample, error) {
	source := s.sampleSource()
	tags := s.sampleTags()
	durationMs := int64(s.rng.ExpFloat64()*1000) + 1

	rec := protocol.Record{
		Kind:       protocol.KindSpan,
		Name:       s.recipe.MetricName,
		Source:     source,
		Tags:       tags,
		StartMs:    now.UnixMilli(),
		DurationMs: durationMs,
	}
	line := protocol.Encode(rec)
	line = s.injectErrors(line, opts.ErrorInjection)

	return line, Sample{
		Timestamp: now,
		Value:     float64(durationMs),
		Source:    source,
		Tags:      tags,
		LineSize:  len(line),
	}, nil
}

// sampleSource follows the fallback chain: recipe categorical, then
// pattern sampler, then a bounded synthetic host name. No emitted line
// ever lacks a source.
func (s *Synthesizer) sampleSource() string {
	if s.sourceSampler != nil {
		if v := s.sourceSampler.Sample(s.rng); v != "" {
			return v
		}
	}
	if s.sourcePattern != nil {
		return s.sourcePattern.Generate(s.rng)
	}
	return fmt.Sprintf("host-%d", s.rng.Intn(1000))
}

func (s *Synthesizer) sampleTags() map[string]string {
	var tags map[string]string
	if s.cooccurrence != nil {
		tags = s.cooccurrence.Sample(s.rng)
	} else {
		tags = make(map[string]string)
	}
	for key, schema := range s.recipe.TagSchema {
		if _, ok := tags[key]; ok {
			continue
		}
		if s.rng.Float64() >= schema.Presence {
			continue
		}
		value := s.sampleTagValue(key)
		if value != "" {
			tags[key] = value
		}
	}
	return tags
}

func (s *Synthesizer) sampleTagValue(key string) string {
	if cat, ok := s.tagSamplers[key]; ok {
		if v := cat.Sample(s.rng); v != "" {
			return v
		}
	}
	if pattern, ok := s.tagPatterns[key]; ok {
		return pattern.Generate(s.rng)
	}
	return s.defaultTagValue(key)
}

// defaultTagValue mirrors the original synthesizer's heuristic defaults for
// common tag key substrings so an under-specified recipe still emits
// plausible-looking values.
func (s *Synthesizer) defaultTagValue(key string) string {
	lower := strings.ToLower(key)
	switch {
	case strings.Contains(lower, "env"):
		envs := []string{"prod", "staging", "dev", "test"}
		return envs[s.rng.Intn(len(envs))]
	case strings.Contains(lower, "region"):
		regions := []string{"us-east-1", "us-west-2", "eu-west-1", "ap-southeast-1"}
		return regions[s.rng.Intn(len(regions))]
	case strings.Contains(lower, "service"):
		return fmt.Sprintf("service-%d", s.rng.Intn(100))
	case strings.Contains(lower, "version"):
		return fmt.Sprintf("v%d.%d.%d", s.rng.Intn(10), s.rng.Intn(20), s.rng.Intn(100))
	default:
		return fmt.Sprintf("value-%d", s.rng.Intn(1000))
	}
}

// injectSchemaDrift, with probability driftRate, adds a fresh
// drift_tag_k=value_v tag and/or prefixes an existing tag's value with
// drift_ (two independent draws, so both or neither can happen).
func (s *Synthesizer) injectSchemaDrift(tags map[string]string, driftRate float64) map[string]string {
	if driftRate <= 0 || s.rng.Float64() >= driftRate {
		return tags
	}
	if s.rng.Float64() < driftNewTagRate {
		key := fmt.Sprintf("drift_tag_%d", s.rng.Intn(10))
		tags[key] = fmt.Sprintf("value_%d", s.rng.Intn(100))
	}
	if len(tags) > 0 && s.rng.Float64() < driftMutateRate {
		keys := make([]string, 0, len(tags))
		for k := range tags {
			keys = append(keys, k)
		}
		key := keys[s.rng.Intn(len(keys))]
		tags[key] = "drift_" + tags[key]
	}
	return tags
}

var (
	sourceTagPattern = regexp.MustCompile(`source=\S+`)
	numericPattern   = regexp.MustCompile(`\s-?\d+\.?\d*\s`)
)

// injectErrors applies one of five uniformly chosen corruption policies to
// an already-encoded line, with probability errorRate.
func (s *Synthesizer) injectErrors(line string, errorRate float64) string {
	if errorRate <= 0 || s.rng.Float64() >= errorRate {
		return line
	}
	switch ErrorPolicy(s.rng.Intn(int(errorPolicyCount))) {
	case ErrorMalformedName:
		return strings.Replace(line, s.recipe.MetricName, "invalid metric name", 1)
	case ErrorStripSource:
		return sourceTagPattern.ReplaceAllString(line, "")
	case ErrorNaNValue:
		return numericPattern.ReplaceAllString(line, " NaN ")
	case ErrorTruncate:
		if len(line) > 10 {
			return line[:len(line)/2]
		}
		return line
	case ErrorDoubleEquals:
		return strings.Replace(line, "=", "==", 1)
	default:
		return line
	}
}

// TargetRate computes the current target emission rate in records/second:
// base * intensity[minute_of_day(now)] * multiplier, with a 10% chance of
// a Hawkes-like burst inflation when burst > 1.
func (s *Synthesizer) TargetRate(now time.Time, base, multiplier, burst float64) float64 {
	minute := minuteOfDay(now)
	intensity := s.recipe.IntensityCurve[minute]

	if burst > 1.0 && s.rng.Float64() < burstChance {
		intensity *= 1.0 + (burst-1.0)*s.rng.Float64()
	}

	return base * intensity * multiplier
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Sample is one produced record's statistical fingerprint, tee'd to both
// the emitter (via the encoded line) and the divergence monitor.
type Sample struct {
	Timestamp time.Time
	Value     float64
	Source    string
	Tags      map[string]string
	LineSize  int
}
