// Package sampler implements the distribution samplers a Family Synthesizer
// draws from: weighted categorical choices (independent or co-occurring),
// quantile-interpolated or closed-form numeric values, and regex-subset
// string patterns.
package sampler

import (
	"sort"

	"pgregory.net/rand"
)

// WeightedItem is one labeled outcome of a categorical distribution.
type WeightedItem struct {
	Value  string
	Weight float64
}

// Categorical draws string values according to a fixed weighted
// distribution using cumulative-weight binary search.
type Categorical struct {
	items       []WeightedItem
	cumulative  []float64
	totalWeight float64
}

// NewCategorical builds a Categorical sampler from items. An empty item list
// produces a sampler whose Sample always returns "".
func NewCategorical(items []WeightedItem) *Categorical {
	c := &Categorical{
		items:      append([]WeightedItem(nil), items...),
		cumulative: make([]float64, len(items)),
	}
	running := 0.0
	for i, item := range c.items {
		running += item.Weight
		c.cumulative[i] = running
	}
	c.totalWeight = running
	return c
}

// Sample returns one value drawn proportionally to its configured weight. If
// every weight is zero or negative, it falls back to a uniform choice among
// the configured items so a malformed recipe still produces output.
func (c *Categorical) Sample(rng *rand.Rand) string {
	if len(c.items) == 0 {
		return ""
	}
	if c.totalWeight <= 0 {
		return c.items[rng.Intn(len(c.items))].Value
	}
	target := rng.Float64() * c.totalWeight
	idx := sort.Search(len(c.cumulative), func(i int) bool {
		return c.cumulative[i] >= target
	})
	if idx >= len(c.items) {
		idx = len(c.items) - 1
	}
	return c.items[idx].Value
}

// TagCombination is one correlated set of tag values with an associated
// weight, used to sample tags that must co-occur rather than being drawn
// independently per key.
type TagCombination struct {
	Tags   map[string]string
	Weight float64
}

// Cooccurrence draws a full tag-value combination as a unit, preserving the
// correlation a recipe declares between tag keys.
type Cooccurrence struct {
	combos      []TagCombination
	cumulative  []float64
	totalWeight float64
}

// NewCooccurrence builds a Cooccurrence sampler from combos.
func NewCooccurrence(combos []TagCombination) *Cooccurrence {
	cs := &Cooccurrence{
		combos:     append([]TagCombination(nil), combos...),
		cumulative: make([]float64, len(combos)),
	}
	running := 0.0
	for i, combo := range cs.combos {
		running += combo.Weight
		cs.cumulative[i] = running
	}
	cs.totalWeight = running
	return cs
}

// Sample returns a fresh copy of one weighted tag combination. An empty
// configuration yields an empty, non-nil map.
func (cs *Cooccurrence) Sample(rng *rand.Rand) map[string]string {
	result := make(map[string]string)
	if len(cs.combos) == 0 {
		return result
	}
	target := rng.Float64() * cs.totalWeight
	idx := sort.Search(len(cs.cumulative), func(i int) bool {
		return cs.cumulative[i] >= target
	})
	if idx >= len(cs.combos) {
		idx = len(cs.combos) - 1
	}
	for k, v := range cs.combos[idx].Tags {
		result[k] = v
	}
	return result
}
