package sampler

import (
	"math"
	"sort"

	"pgregory.net/rand"
)

// Numeric draws float64 values from a distribution built at construction
// time. The distribution itself is opaque to callers; only Sample matters.
type Numeric struct {
	draw func(*rand.Rand) float64
}

// Sample returns one value from the underlying distribution.
func (n *Numeric) Sample(rng *rand.Rand) float64 {
	return n.draw(rng)
}

// NewQuantileSampler builds a Numeric sampler that interpolates linearly
// between recipe-declared quantile values. Fewer than three quantiles is
// not enough to shape a distribution meaningfully, so it falls back to
// N(50, 10), matching the fallback a malformed recipe should degrade to
// rather than reject outright.
func NewQuantileSampler(quantiles []float64) *Numeric {
	if len(quantiles) < 3 {
		return &Numeric{draw: func(rng *rand.Rand) float64 {
			return rng.NormFloat64()*10 + 50
		}}
	}
	sorted := append([]float64(nil), quantiles...)
	sort.Float64s(sorted)
	return &Numeric{draw: func(rng *rand.Rand) float64 {
		return interpolateQuantile(sorted, rng.Float64())
	}}
}

// NewLogNormalSampler builds a Numeric sampler drawing from a log-normal
// distribution with the given location and scale.
func NewLogNormalSampler(mu, sigma float64) *Numeric {
	return &Numeric{draw: func(rng *rand.Rand) float64 {
		return math.Exp(rng.NormFloat64()*sigma + mu)
	}}
}

// NewExponentialSampler builds a Numeric sampler drawing from an
// exponential distribution with the given rate.
func NewExponentialSampler(lambda float64) *Numeric {
	return &Numeric{draw: func(rng *rand.Rand) float64 {
		return rng.ExpFloat64() / lambda
	}}
}

func interpolateQuantile(quantiles []float64, p float64) float64 {
	if p <= 0 {
		return quantiles[0]
	}
	if p >= 1 {
		return quantiles[len(quantiles)-1]
	}
	n := len(quantiles) - 1
	pos := p * float64(n)
	idx := int(pos)
	if idx >= n {
		return quantiles[n]
	}
	frac := pos - float64(idx)
	return quantiles[idx] + frac*(quantiles[idx+1]-quantiles[idx])
}
