package sampler

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"pgregory.net/rand"
)

// WeightedPattern is a string-generation template with an associated
// weight, used the same way WeightedItem shapes a Categorical.
type WeightedPattern struct {
	Pattern string
	Weight  float64
}

// StringPattern expands a small, fixed subset of regex-like tokens into
// generated strings: \d+, \d{k}, [a-z]+, [a-z]{k}, [A-Z]+, [A-Z]{k}, and
// [a-zA-Z0-9]+. Any other regex construct in a pattern is left untouched in
// the output, so an unsupported pattern degrades to a literal rather than
// failing.
type StringPattern struct {
	patterns    []WeightedPattern
	cumulative  []float64
	totalWeight float64
}

var (
	reDigitsPlus  = regexp.MustCompile(`\\d\+`)
	reDigitsCount = regexp.MustCompile(`\\d\{(\d+)\}`)
	reLowerPlus   = regexp.MustCompile(`\[a-z\]\+`)
	reLowerCount  = regexp.MustCompile(`\[a-z\]\{(\d+)\}`)
	reUpperPlus   = regexp.MustCompile(`\[A-Z\]\+`)
	reUpperCount  = regexp.MustCompile(`\[A-Z\]\{(\d+)\}`)
	reAlnumPlus   = regexp.MustCompile(`\[a-zA-Z0-9\]\+`)
)

const defaultPattern = `default-[a-z]{3}-\d{2}`

// NewStringPattern builds a StringPattern sampler. An empty pattern list
// falls back to a single default pattern so Generate always produces
// something.
func NewStringPattern(patterns []WeightedPattern) *StringPattern {
	if len(patterns) == 0 {
		patterns = []WeightedPattern{{Pattern: defaultPattern, Weight: 1.0}}
	}
	sp := &StringPattern{
		patterns:   append([]WeightedPattern(nil), patterns...),
		cumulative: make([]float64, len(patterns)),
	}
	running := 0.0
	for i, p := range sp.patterns {
		running += p.Weight
		sp.cumulative[i] = running
	}
	sp.totalWeight = running
	return sp
}

// Generate picks one weighted pattern and expands it into a concrete
// string.
func (sp *StringPattern) Generate(rng *rand.Rand) string {
	if len(sp.patterns) == 0 {
		return "default-string"
	}
	target := rng.Float64() * sp.totalWeight
	idx := sort.Search(len(sp.cumulative), func(i int) bool {
		return sp.cumulative[i] >= target
	})
	if idx >= len(sp.patterns) {
		idx = len(sp.patterns) - 1
	}
	return expandPattern(sp.patterns[idx].Pattern, rng)
}

func expandPattern(pattern string, rng *rand.Rand) string {
	result := pattern

	result = reDigitsPlus.ReplaceAllStringFunc(result, func(string) string {
		return generateDigits(rng, 1+rng.Intn(4))
	})
	result = replaceWithCount(result, reDigitsCount, rng, generateDigits)
	result = reLowerPlus.ReplaceAllStringFunc(result, func(string) string {
		return generateFromAlphabet(rng, 3+rng.Intn(5), lowerAlphabet)
	})
	result = replaceWithCountAlphabet(result, reLowerCount, rng, lowerAlphabet)
	result = reUpperPlus.ReplaceAllStringFunc(result, func(string) string {
		return generateFromAlphabet(rng, 3+rng.Intn(5), upperAlphabet)
	})
	result = replaceWithCountAlphabet(result, reUpperCount, rng, upperAlphabet)
	result = reAlnumPlus.ReplaceAllStringFunc(result, func(string) string {
		return generateFromAlphabet(rng, 5+rng.Intn(10), alnumAlphabet)
	})

	return result
}

func replaceWithCount(input string, re *regexp.Regexp, rng *rand.Rand, gen func(*rand.Rand, int) string) string {
	return re.ReplaceAllStringFunc(input, func(match string) string {
		sub := re.FindStringSubmatch(match)
		length, err := strconv.Atoi(sub[1])
		if err != nil {
			return match
		}
		return gen(rng, length)
	})
}

func replaceWithCountAlphabet(input string, re *regexp.Regexp, rng *rand.Rand, alphabet string) string {
	return re.ReplaceAllStringFunc(input, func(match string) string {
		sub := re.FindStringSubmatch(match)
		length, err := strconv.Atoi(sub[1])
		if err != nil {
			return match
		}
		return generateFromAlphabet(rng, length, alphabet)
	})
}

const (
	lowerAlphabet = "abcdefghijklmnopqrstuvwxyz"
	upperAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	alnumAlphabet = lowerAlphabet + upperAlphabet + "0123456789"
)

func generateDigits(rng *rand.Rand, length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		b.WriteString(strconv.Itoa(rng.Intn(10)))
	}
	return b.String()
}

func generateFromAlphabet(rng *rand.Rand, length int, alphabet string) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		b.WriteByte(alphabet[rng.Intn(len(alphabet))])
	}
	return b.String()
}
