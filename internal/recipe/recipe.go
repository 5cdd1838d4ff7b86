// Package recipe defines the compact statistical profile a Family
// Synthesizer replays traffic from, and the client that fetches recipes
// from the control plane's catalog.
package recipe

import "fmt"

// Kind selects which wire shape a Recipe's family emits.
type Kind string

const (
	KindMetric    Kind = "metric"
	KindDelta     Kind = "delta"
	KindHistogram Kind = "histogram"
	KindSpan      Kind = "span"
)

// TagSchema describes how one tag key should be treated during synthesis.
type TagSchema struct {
	Presence float64 `json:"presence" yaml:"presence"`
	Type     string  `json:"type" yaml:"type"`
}

// WeightedValue is one labeled outcome with its observed frequency, the
// shape recipes use for both source and tag categorical distributions.
type WeightedValue struct {
	Value     string  `json:"value" yaml:"value"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
}

// Distribution is a weighted categorical distribution over string values.
type Distribution struct {
	TopValues []WeightedValue `json:"top_values" yaml:"top_values"`
}

// Quantiles is the value-distribution summary a Recipe carries: five fixed
// percentiles of the family's observed numeric values.
type Quantiles struct {
	P01 float64 `json:"p01" yaml:"p01"`
	P05 float64 `json:"p05" yaml:"p05"`
	P50 float64 `json:"p50" yaml:"p50"`
	P95 float64 `json:"p95" yaml:"p95"`
	P99 float64 `json:"p99" yaml:"p99"`
}

// Slice returns the quantiles as an ordered vector suitable for
// sampler.NewQuantileSampler.
func (q Quantiles) Slice() []float64 {
	return []float64{q.P01, q.P05, q.P50, q.P95, q.P99}
}

// WeightedPattern is a string-generation template with a relative
// frequency, mirroring Distribution's shape for regex-subset patterns.
type WeightedPattern struct {
	Pattern   string  `json:"pattern" yaml:"pattern"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
}

// Burstiness parameterizes the stochastic burst inflation applied to the
// target rate.
type Burstiness struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	Stddev float64 `json:"stddev" yaml:"stddev"`
}

// TagCombination is one correlated set of tag values with a relative
// frequency, for families whose tags must co-occur rather than being drawn
// independently per key (e.g. region and az always agreeing).
type TagCombination struct {
	Tags   map[string]string `json:"tags" yaml:"tags"`
	Weight float64           `json:"weight" yaml:"weight"`
}

// ValueKind selects which shape a Recipe's numeric value sampler draws
// from. ValueKindQuantiles (the default) interpolates ValueDistribution's
// five-point summary; the others draw from a closed-form distribution
// parameterized by ValueDistributionParams.
type ValueKind string

const (
	ValueKindQuantiles   ValueKind = "quantiles"
	ValueKindLogNormal   ValueKind = "lognormal"
	ValueKindExponential ValueKind = "exponential"
)

// ValueDistributionParams carries the parameters for the closed-form
// ValueKinds; only the fields relevant to the selected kind are read.
type ValueDistributionParams struct {
	Mu     float64 `json:"mu,omitempty" yaml:"mu,omitempty"`
	Sigma  float64 `json:"sigma,omitempty" yaml:"sigma,omitempty"`
	Lambda float64 `json:"lambda,omitempty" yaml:"lambda,omitempty"`
}

// Recipe is the compact, immutable statistical profile of one family, as
// loaded from the control plane's recipe catalog.
type Recipe struct {
	FamilyID   string               `json:"family_id" yaml:"family_id"`
	MetricName string               `json:"metric_name" yaml:"metric_name"`
	Kind       Kind                 `json:"kind" yaml:"kind"`
	TagSchema  map[string]TagSchema `json:"tag_schema" yaml:"tag_schema"`

	ValueDistribution       Quantiles                    `json:"value_distribution" yaml:"value_distribution"`
	ValueKind               ValueKind                    `json:"value_kind,omitempty" yaml:"value_kind,omitempty"`
	ValueDistributionParams ValueDistributionParams      `json:"value_distribution_params,omitempty" yaml:"value_distribution_params,omitempty"`
	SourceDistribution      Distribution                 `json:"source_distribution" yaml:"source_distribution"`
	TagDistributions        map[string]Distribution      `json:"tag_distributions" yaml:"tag_distributions"`
	TagCombinations         []TagCombination             `json:"tag_combinations,omitempty" yaml:"tag_combinations,omitempty"`
	IntensityCurve          [1440]float64                `json:"intensity_curve" yaml:"intensity_curve"`
	Burstiness              Burstiness                   `json:"burstiness" yaml:"burstiness"`
	SizeQuantiles           Quantiles                    `json:"size_quantiles" yaml:"size_quantiles"`
	SourcePatterns          []WeightedPattern            `json:"source_patterns,omitempty" yaml:"source_patterns,omitempty"`
	TagValuePatterns        map[string][]WeightedPattern `json:"tag_value_patterns,omitempty" yaml:"tag_value_patterns,omitempty"`
}

// LoadError reports a malformed or structurally invalid recipe. Family
// Synthesizer construction fails with this error rather than panicking on
// a bad catalog entry.
type LoadError struct {
	FamilyID string
	Reason   string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("recipe: family %q: %s", e.FamilyID, e.Reason)
}

// Validate checks the structural invariants a Recipe must hold before a
// synthesizer can be built from it: every tag_schema key must have
// presence in [0,1], and there must be at least a metric name and family
// id.
func (r *Recipe) Validate() error {
	if r.FamilyID == "" {
		return &LoadError{FamilyID: r.FamilyID, Reason: "missing family_id"}
	}
	if r.MetricName == "" {
		return &LoadError{FamilyID: r.FamilyID, Reason: "missing metric_name"}
	}
	switch r.Kind {
	case KindMetric, KindDelta, KindHistogram, KindSpan:
	default:
		return &LoadError{FamilyID: r.FamilyID, Reason: fmt.Sprintf("unknown kind %q", r.Kind)}
	}
	for key, schema := range r.TagSchema {
		if schema.Presence < 0 || schema.Presence > 1 {
			return &LoadError{FamilyID: r.FamilyID, Reason: fmt.Sprintf("tag %q presence out of range: %v", key, schema.Presence)}
		}
	}
	for i, v := range r.IntensityCurve {
		if v < 0 {
			return &LoadError{FamilyID: r.FamilyID, Reason: fmt.Sprintf("negative intensity at minute %d", i)}
		}
	}
	switch r.ValueKind {
	case "", ValueKindQuantiles, ValueKindLogNormal, ValueKindExponential:
	default:
		return &LoadError{FamilyID: r.FamilyID, Reason: fmt.Sprintf("unknown value_kind %q", r.ValueKind)}
	}
	return nil
}

// Summary is the abbreviated entry returned by the recipe catalog listing.
type Summary struct {
	FamilyID   string `json:"family_id"`
	MetricName string `json:"metric_name"`
	Kind       Kind   `json:"kind"`
}
