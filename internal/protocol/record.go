// Package protocol implements the text wire format shared by every emitted
// line: metrics, delta counters, histograms and spans. Encoding never
// performs I/O and never fails on a well-formed Record.
package protocol

import "time"

// Kind selects which line shape a Record encodes to.
type Kind int

const (
	KindMetric Kind = iota
	KindDelta
	KindHistogram
	KindSpan
)

// deltaGlyph is the character the encoder always emits to prefix a delta
// counter's name. U+0394 (greek capital delta) is accepted on decode as an
// alternate spelling but never produced.
const deltaGlyph = '∆' // ∆ INCREMENT

const deltaGlyphAlt = 'Δ' // Δ GREEK CAPITAL LETTER DELTA

// Centroid is one (count, mean) pair inside a histogram line.
type Centroid struct {
	Count int
	Mean  float64
}

// Record is the in-memory representation of one wire line prior to encoding.
type Record struct {
	Kind      Kind
	Name      string
	Value     float64
	Timestamp time.Time
	Source    string
	Tags      map[string]string

	// Histogram fields.
	Granularity byte // 'M', 'H', or 'D'
	TotalCount  int
	Centroids   []Centroid

	// Span fields.
	StartMs    int64
	DurationMs int64
}
