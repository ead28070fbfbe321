// Package triage implements the rule-based safety check that runs before any
// advice is generated.
package triage

import (
	"regexp"
	"strings"
)

// Risk is the triage classification.
type Risk string

const (
	RiskEmergency Risk = "emergency"
	RiskRoutine   Risk = "routine"
)

// NextStep tells the caller what the patient should do.
type NextStep string

const (
	NextStepCallEmergency NextStep = "call_emergency"
	NextStepSelfCare      NextStep = "self_care"
)

const (
	EmergencyDisclaimer = "Possible emergency. Call 911 (or local equivalent)."
	RoutineDisclaimer   = "This is not a diagnosis. If symptoms worsen, seek medical care."
)

// Result is computed fresh per request and never persisted.
type Result struct {
	Risk       Risk     `json:"risk"`
	NextStep   NextStep `json:"next_step"`
	RedFlags   []string `json:"red_flags"`
	Disclaimer string   `json:"disclaimer"`
}

// IsEmergency reports whether the result must stop the request.
func (r Result) IsEmergency() bool {
	return r.Risk == RiskEmergency
}

// Rule is one red-flag pattern. Patterns are matched against lower-cased text.
type Rule struct {
	ID      string
	Pattern *regexp.Regexp
}

// DefaultRules is the built-in red-flag table. It is not clinically authoritative.
var DefaultRules = []Rule{
	{ID: "chest_pain", Pattern: regexp.MustCompile(`\b(chest pain|pressure in (my |the )?chest|chest tightness)\b`)},
	{ID: "breathing_difficulty", Pattern: regexp.MustCompile(`\b(short(ness)? of breath|difficulty breathing|can'?t breathe|cannot breathe|trouble breathing)\b`)},
	{ID: "stroke_signs", Pattern: regexp.MustCompile(`\b(stroke|slurred speech|face droop(ing)?|facial droop(ing)?|arm weakness)\b`)},
	{ID: "uncontrolled_bleeding", Pattern: regexp.MustCompile(`\b(uncontrolled bleeding|bleeding (heavily|that won'?t stop)|faint|fainting|fainted|passed out)\b`)},
	{ID: "anaphylaxis", Pattern: regexp.MustCompile(`\b(anaphylaxis|anaphylactic|severe allergy|severe allergic reaction|throat (is )?(closing|swelling))\b`)},
	{ID: "self_harm", Pattern: regexp.MustCompile(`\b(suicidal|suicide|kill myself|end my life|hurt myself|self[- ]harm)\b`)},
}

// Classifier matches symptom text against an ordered rule table.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a classifier over rules, or DefaultRules when none are given.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify never fails. Every matching rule id is reported in table order.
func (c *Classifier) Classify(text string) Result {
	t := strings.ToLower(text)

	var flags []string
	for _, rule := range c.rules {
		if rule.Pattern.MatchString(t) {
			flags = append(flags, rule.ID)
		}
	}

	if len(flags) > 0 {
		return Result{
			Risk:       RiskEmergency,
			NextStep:   NextStepCallEmergency,
			RedFlags:   flags,
			Disclaimer: EmergencyDisclaimer,
		}
	}
	return Result{
		Risk:       RiskRoutine,
		NextStep:   NextStepSelfCare,
		RedFlags:   []string{},
		Disclaimer: RoutineDisclaimer,
	}
}

var defaultClassifier = NewClassifier()

// Classify runs the default rule table.
func Classify(text string) Result {
	return defaultClassifier.Classify(text)
}
