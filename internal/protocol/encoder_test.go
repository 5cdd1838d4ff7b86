package protocol

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestEncodeMetric(t *testing.T) {
	rec := Record{
		Kind:      KindMetric,
		Name:      "cpu.usage",
		Value:     42.5,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Source:    "host-01",
	}
	got := Encode(rec)
	want := "cpu.usage 42.5 1700000000 source=host-01"
	if got != want {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeMetricWithTags(t *testing.T) {
	rec := Record{
		Kind:      KindMetric,
		Name:      "cpu.usage",
		Value:     1,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Source:    "host-01",
		Tags:      map[string]string{"env": "prod", "az": "us-east-1a"},
	}
	got := Encode(rec)
	want := "cpu.usage 1.0 1700000000 source=host-01 az=us-east-1a env=prod"
	if got != want {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeDeltaPrefixesGlyph(t *testing.T) {
	rec := Record{
		Kind:      KindDelta,
		Name:      "requests.count",
		Value:     12,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Source:    "host-01",
	}
	got := Encode(rec)
	if !strings.HasPrefix(got, string(deltaGlyph)) {
		t.Fatalf("Encode() = %q, expected delta glyph prefix", got)
	}
	if strings.ContainsRune(got, deltaGlyphAlt) {
		t.Fatalf("Encode() = %q, must never emit the alternate delta glyph", got)
	}
}

func TestEncodeHistogram(t *testing.T) {
	rec := Record{
		Kind:        KindHistogram,
		Name:        "response.latency",
		Timestamp:   time.Unix(1700000000, 0).UTC(),
		Source:      "host-01",
		Granularity: 'M',
		TotalCount:  60,
		Centroids: []Centroid{
			{Count: 20, Mean: 10.0},
			{Count: 20, Mean: 20.0},
			{Count: 20, Mean: 30.0},
		},
	}
	got := Encode(rec)
	want := "!M 1700000000 #60 20 10.0 20 20.0 20 30.0\nresponse.latency source=host-01"
	if got != want {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeSpan(t *testing.T) {
	rec := Record{
		Kind:       KindSpan,
		Name:       "handle_request",
		Source:     "host-01",
		StartMs:    1700000000000,
		DurationMs: 42,
		Tags:       map[string]string{"trace_id": "abc123"},
	}
	got := Encode(rec)
	want := "handle_request source=host-01 trace_id=abc123 1700000000000 42"
	if got != want {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}
}

func TestEncodeQuotesNonBareTokens(t *testing.T) {
	rec := Record{
		Kind:      KindMetric,
		Name:      "cpu usage",
		Value:     1,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Source:    "host-01",
		Tags:      map[string]string{"message": `she said "hi" \o/`},
	}
	got := Encode(rec)
	if !strings.Contains(got, `"cpu usage"`) {
		t.Fatalf("Encode() = %q, expected quoted name with embedded space", got)
	}
	// Exactly one backslash must precede each escaped quote: the original
	// implementation this was ported from double-escaped here.
	if !strings.Contains(got, `\"hi\"`) {
		t.Fatalf("Encode() = %q, expected single backslash before each escaped quote", got)
	}
	if strings.Contains(got, `\\"hi`) {
		t.Fatalf("Encode() = %q, quote escaping is doubled", got)
	}
}

func TestFormatValuePrecisionByMagnitude(t *testing.T) {
	cases := []struct {
		v    float64
		want string
	}{
		{0, "0.000000"},
		{0.0000001, "0.000000"},
		{0.5, "0.500"},
		{42.5, "42.5"},
		{1500.0, "1500"},
		{-3200.7, "-3201"},
	}
	for _, c := range cases {
		got := FormatValue(c.v)
		if got != c.want {
			t.Errorf("FormatValue(%v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestFormatValueNonFiniteCollapsesToZero(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if got := FormatValue(v); got != "0" {
			t.Errorf("FormatValue(%v) = %q, want %q", v, got, "0")
		}
	}
}

func TestDecodeRoundTripsMetric(t *testing.T) {
	rec := Record{
		Kind:      KindMetric,
		Name:      "cpu.usage",
		Value:     42.5,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Source:    "host-01",
		Tags:      map[string]string{"env": "prod"},
	}
	line := Encode(rec)
	got, err := Decode(line)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Name != rec.Name || got.Source != rec.Source || got.Kind != rec.Kind {
		t.Fatalf("Decode() = %+v, want %+v", got, rec)
	}
	if got.Tags["env"] != "prod" {
		t.Fatalf("Decode() tags = %+v, missing env=prod", got.Tags)
	}
	if !got.Timestamp.Equal(rec.Timestamp) {
		t.Fatalf("Decode() timestamp = %v, want %v", got.Timestamp, rec.Timestamp)
	}
}

func TestDecodeAcceptsAlternateDeltaGlyph(t *testing.T) {
	line := string(deltaGlyphAlt) + "requests.count 5.0 1700000000 source=host-01"
	got, err := Decode(line)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Kind != KindDelta {
		t.Fatalf("Decode() Kind = %v, want KindDelta", got.Kind)
	}
	if got.Name != "requests.count" {
		t.Fatalf("Decode() Name = %q, want %q", got.Name, "requests.count")
	}
}

func TestDecodeRejectsMissingSource(t *testing.T) {
	_, err := Decode("cpu.usage 1.0 1700000000")
	if err == nil {
		t.Fatal("Decode() expected error for missing source tag")
	}
}

func TestDecodeRejectsUnterminatedQuote(t *testing.T) {
	_, err := Decode(`cpu.usage 1.0 1700000000 source="host-01`)
	if err == nil {
		t.Fatal("Decode() expected error for unterminated quote")
	}
}

func TestDecodeHandlesQuotedTagValueWithSpaces(t *testing.T) {
	got, err := Decode(`cpu.usage 1.0 1700000000 source=host-01 note="two words"`)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Tags["note"] != "two words" {
		t.Fatalf("Decode() note tag = %q, want %q", got.Tags["note"], "two words")
	}
}
