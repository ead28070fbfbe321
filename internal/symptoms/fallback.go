package symptoms

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultIntensity is used when a phrase carries no intensity keyword.
const DefaultIntensity = 5

// DefaultDurationMinutes is used when the duration text is not recognised.
const DefaultDurationMinutes = 60

type intensityKeyword struct {
	word  string
	value int
}

// Checked in order; the first match wins.
var intensityKeywords = []intensityKeyword{
	{"excruciating", 10},
	{"unbearable", 10},
	{"worst", 10},
	{"severe", 8},
	{"intense", 8},
	{"bad", 7},
	{"moderate", 5},
	{"mild", 3},
	{"slight", 2},
	{"minor", 2},
}

var (
	wordPattern   = regexp.MustCompile(`[a-z']+`)
	numberPattern = regexp.MustCompile(`\d+`)
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// EstimateIntensity maps the first intensity keyword found in phrase to a
// score, or DefaultIntensity.
func EstimateIntensity(phrase string) int {
	words := map[string]bool{}
	for _, w := range wordPattern.FindAllString(strings.ToLower(phrase), -1) {
		words[w] = true
	}
	for _, k := range intensityKeywords {
		if words[k.word] {
			return k.value
		}
	}
	return DefaultIntensity
}

// symptomName drops intensity keywords so "mild headache" and "headache"
// aggregate together.
func symptomName(phrase string) string {
	fields := strings.Fields(phrase)
	kept := fields[:0:0]
	for _, f := range fields {
		bare := strings.Trim(strings.ToLower(f), ".,;:!?")
		drop := false
		for _, k := range intensityKeywords {
			if bare == k.word {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return strings.TrimSpace(phrase)
	}
	return strings.Join(kept, " ")
}

// parseCount returns the first number in s, as digits or a word up to ten.
func parseCount(s string) (int, bool) {
	if m := numberPattern.FindString(s); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n > 0 {
			return n, true
		}
	}
	for _, w := range wordPattern.FindAllString(s, -1) {
		if n, ok := numberWords[w]; ok {
			return n, true
		}
	}
	return 0, false
}

func scaled(s string, unit, few, several, otherwise int) int {
	switch {
	case few > 0 && strings.Contains(s, "few"):
		return few
	case several > 0 && strings.Contains(s, "several"):
		return several
	}
	if n, ok := parseCount(s); ok {
		return n * unit
	}
	return otherwise
}

// EstimateDuration converts free-text duration into minutes. When several
// units are mentioned the largest one wins.
func EstimateDuration(text string) int {
	s := strings.ToLower(strings.TrimSpace(text))
	switch {
	case s == "":
		return DefaultDurationMinutes
	case strings.Contains(s, "just started"):
		return 30
	case strings.Contains(s, "month"):
		return scaled(s, 43200, 0, 0, 43200)
	case strings.Contains(s, "week"):
		return scaled(s, 10080, 0, 0, 10080)
	case strings.Contains(s, "all day"), strings.Contains(s, "whole day"):
		return 720
	case strings.Contains(s, "day"):
		return scaled(s, 1440, 4320, 8640, 1440)
	case strings.Contains(s, "hour"):
		return scaled(s, 60, 180, 360, 120)
	case strings.Contains(s, "minute"):
		if n, ok := parseCount(s); ok {
			return n
		}
		return 30
	}
	return DefaultDurationMinutes
}

// FallbackAnalysis builds best-effort entries from raw symptom text when the
// model returned no structured analysis.
func FallbackAnalysis(symptomsText, durationText string) []Analysis {
	duration := EstimateDuration(durationText)
	out := []Analysis{}
	for _, phrase := range strings.Split(symptomsText, ",") {
		phrase = strings.TrimSpace(phrase)
		if phrase == "" {
			continue
		}
		out = append(out, Analysis{
			SymptomName:     symptomName(phrase),
			Intensity:       EstimateIntensity(phrase),
			DurationMinutes: duration,
			Notes:           "Estimated from reported symptoms",
		})
	}
	return out
}
