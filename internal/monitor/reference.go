package monitor

import "github.com/wavefronthq/loadsynth/internal/recipe"

// Reference is the statistical baseline a family's windowed samples are
// compared against. It is derived directly from the same Recipe the
// synthesizer replays, rather than from a separately maintained snapshot,
// so the monitor and the synthesizer can never silently drift apart.
type Reference struct {
	FamilyID            string
	MetricName          string
	TagDistributions    map[string][]recipe.WeightedValue
	sourceProbabilities map[string]float64
	ValueQuantiles      []float64
	SizeQuantiles       []float64
	IntensityCurve      [1440]float64
}

// ReferenceFromRecipe builds a Reference from the same Recipe a
// Synthesizer was built from.
func ReferenceFromRecipe(r *recipe.Recipe) *Reference {
	tags := make(map[string][]recipe.WeightedValue, len(r.TagDistributions))
	for key, dist := range r.TagDistributions {
		tags[key] = dist.TopValues
	}
	return &Reference{
		FamilyID:            r.FamilyID,
		MetricName:          r.MetricName,
		TagDistributions:    tags,
		sourceProbabilities: categoricalFrom(r.SourceDistribution.TopValues),
		ValueQuantiles:      r.ValueDistribution.Slice(),
		SizeQuantiles:       r.SizeQuantiles.Slice(),
		IntensityCurve:      r.IntensityCurve,
	}
}

// categoricalFrom turns a weighted-value reference distribution into a
// probability map, ignoring zero-weight entries.
func categoricalFrom(values []recipe.WeightedValue) map[string]float64 {
	total := 0.0
	for _, v := range values {
		total += v.Frequency
	}
	out := make(map[string]float64, len(values))
	if total <= 0 {
		return out
	}
	for _, v := range values {
		out[v.Value] = v.Frequency / total
	}
	return out
}
