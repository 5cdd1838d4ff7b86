package monitor

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// jensenShannon computes the normalized Jensen-Shannon divergence between
// two categorical distributions given as probability maps. Keys present in
// only one distribution are treated as zero-probability in the other. The
// raw divergence is halved and divided by ln(2) so the result lies in
// [0,1].
func jensenShannon(ref, cur map[string]float64) float64 {
	keys := make(map[string]struct{}, len(ref)+len(cur))
	for k := range ref {
		keys[k] = struct{}{}
	}
	for k := range cur {
		keys[k] = struct{}{}
	}
	if len(keys) == 0 {
		return 0
	}

	var sum float64
	for k := range keys {
		p := ref[k]
		q := cur[k]
		m := (p + q) / 2
		sum += klTerm(p, m) + klTerm(q, m)
	}
	return (sum / 2) / math.Ln2
}

func klTerm(p, m float64) float64 {
	if p <= 0 || m <= 0 {
		return 0
	}
	return p * math.Log(p/m)
}

// wassersteinLike scores the Wasserstein-like distance between two
// quantile vectors sampled at the same probabilities: the mean absolute
// quantile-value delta, normalized by the reference vector's range so the
// score is comparable across families with different value scales.
func wassersteinLike(ref, cur []float64) float64 {
	n := len(ref)
	if len(cur) < n {
		n = len(cur)
	}
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(ref[i] - cur[i])
	}

	rng := ref[len(ref)-1] - ref[0]
	if rng <= 0 {
		return 0
	}
	return sum / rng / float64(n)
}

// kolmogorovSmirnovLike scores the largest single quantile-value gap
// between two quantile vectors sampled at the same probabilities,
// normalized by the reference vector's range. This is the corrected form
// of the statistic: computing it as a difference of matched quantile
// probabilities (i/k - i/k) is always zero and useless as a
// discriminator, so the discriminator here is the value gap at each
// matched probability, taken as a supremum rather than an average.
func kolmogorovSmirnovLike(ref, cur []float64) float64 {
	n := len(ref)
	if len(cur) < n {
		n = len(cur)
	}
	if n == 0 {
		return 0
	}

	var maxDiff float64
	for i := 0; i < n; i++ {
		d := math.Abs(ref[i] - cur[i])
		if d > maxDiff {
			maxDiff = d
		}
	}

	rng := ref[len(ref)-1] - ref[0]
	if rng <= 0 {
		return maxDiff
	}
	return maxDiff / rng
}

// temporalCorrelation computes the Pearson correlation between per-minute
// sample counts observed in the window and the recipe's intensity curve at
// the corresponding minute-of-day. It needs at least two distinct minutes
// represented in the window to be meaningful; otherwise it reports 0
// (no correlation computed) rather than a spurious 1.0 or NaN.
func temporalCorrelation(countsByMinute map[int]float64, intensityCurve [1440]float64) float64 {
	if len(countsByMinute) < 2 {
		return 0
	}

	counts := make([]float64, 0, len(countsByMinute))
	intensities := make([]float64, 0, len(countsByMinute))
	for minute, count := range countsByMinute {
		counts = append(counts, count)
		intensities = append(intensities, intensityCurve[minute%1440])
	}

	countVariance := stat.Variance(counts, nil)
	intensityVariance := stat.Variance(intensities, nil)
	if countVariance == 0 || intensityVariance == 0 {
		return 0
	}
	return stat.Correlation(counts, intensities, nil)
}
