package triage

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEmergency(t *testing.T) {
	cases := []struct {
		text  string
		flags []string
	}{
		{"Severe CHEST PAIN and shortness of breath", []string{"chest_pain", "breathing_difficulty"}},
		{"I feel pressure in my chest", []string{"chest_pain"}},
		{"my dad has slurred speech and face droop", []string{"stroke_signs"}},
		{"cut on my hand, uncontrolled bleeding", []string{"uncontrolled_bleeding"}},
		{"I fainted twice this morning", []string{"uncontrolled_bleeding"}},
		{"possible anaphylaxis after peanuts", []string{"anaphylaxis"}},
		{"I want to end my life", []string{"self_harm"}},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got := Classify(tc.text)
			assert.Equal(t, RiskEmergency, got.Risk)
			assert.Equal(t, NextStepCallEmergency, got.NextStep)
			assert.Equal(t, tc.flags, got.RedFlags)
			assert.Equal(t, EmergencyDisclaimer, got.Disclaimer)
			assert.True(t, got.IsEmergency())
		})
	}
}

func TestClassifyRoutine(t *testing.T) {
	for _, text := range []string{
		"mild headache since this morning",
		"runny nose and sneezing for 2 days",
		"",
		"my chest feels fine but my knee hurts",
	} {
		got := Classify(text)
		assert.Equal(t, RiskRoutine, got.Risk, text)
		assert.Equal(t, NextStepSelfCare, got.NextStep, text)
		assert.Empty(t, got.RedFlags, text)
		assert.NotNil(t, got.RedFlags, text)
		assert.Equal(t, RoutineDisclaimer, got.Disclaimer, text)
	}
}

func TestClassifierCustomRules(t *testing.T) {
	c := NewClassifier(Rule{ID: "seizure", Pattern: regexp.MustCompile(`\bseizure\b`)})

	assert.Equal(t, RiskEmergency, c.Classify("Had a SEIZURE").Risk)
	// custom table replaces the defaults
	assert.Equal(t, RiskRoutine, c.Classify("chest pain").Risk)
}
