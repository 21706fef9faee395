package tutor

import (
	"regexp"
	"strings"
)

const maxComprehensionDelta = 0.15

type signal struct {
	pattern *regexp.Regexp
	weight  float64
}

var positiveSignals = []signal{
	{regexp.MustCompile(`\bmakes (?:more |total |perfect )?sense\b`), 0.10},
	{regexp.MustCompile(`\b(?:now i (?:get it|understand)|i understand now|i get it now)\b`), 0.15},
	{regexp.MustCompile(`\b(?:thank you|thanks|thx)\b`), 0.05},
	{regexp.MustCompile(`\bgot it\b`), 0.10},
	{regexp.MustCompile(`\b(?:that|this) (?:helps|helped|was helpful)\b`), 0.08},
	{regexp.MustCompile(`\b(?:clear now|crystal clear|that's clear)\b`), 0.10},
	{regexp.MustCompile(`\b(?:oh i see|ah i see|aha)\b`), 0.08},
}

var negativeSignals = []signal{
	{regexp.MustCompile(`\bi (?:don't|do not|still don't) understand\b`), -0.12},
	{regexp.MustCompile(`\bconfus(?:ed|ing)\b`), -0.10},
	{regexp.MustCompile(`\b(?:i'm|i am) (?:lost|stuck)\b`), -0.12},
	{regexp.MustCompile(`\b(?:doesn't|does not|don't) make sense\b`), -0.10},
	{regexp.MustCompile(`\bwhat do you mean\b`), -0.05},
	{regexp.MustCompile(`\bi (?:don't|do not) get (?:it|this|that)\b`), -0.10},
	{regexp.MustCompile(`\b(?:too (?:hard|difficult)|over my head)\b`), -0.08},
}

// ComprehensionDelta sums the weight of every signal found in the message
// and clamps the total to ±0.15.
func ComprehensionDelta(message string) float64 {
	text := normalizeApostrophes(strings.ToLower(message))

	var sum float64
	for _, s := range positiveSignals {
		if s.pattern.MatchString(text) {
			sum += s.weight
		}
	}
	for _, s := range negativeSignals {
		if s.pattern.MatchString(text) {
			sum += s.weight
		}
	}
	return clamp(sum, -maxComprehensionDelta, maxComprehensionDelta)
}

// UpdateComprehension applies the message's delta to the running score,
// keeping it in [0,1].
func UpdateComprehension(previous float64, message string) float64 {
	return clamp01(previous + ComprehensionDelta(message))
}

func normalizeApostrophes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }
