// Package symptoms turns advice output into symptom-intensity records and
// serves the analytics views built on them.
package symptoms

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds stored symptom names, in characters.
const MaxNameLength = 100

var (
	ErrMissingName         = errors.New("symptom name is required")
	ErrIntensityOutOfRange = errors.New("intensity must be between 1 and 10")
)

// Analysis is one symptom entry as produced by the model or the fallback
// estimator.
type Analysis struct {
	SymptomName     string `json:"symptom_name"`
	Intensity       int    `json:"intensity"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
}

// Normalize validates a and returns the form that is stored: trimmed and
// truncated name, duration of at least one minute.
func (a Analysis) Normalize() (Analysis, error) {
	a.SymptomName = strings.TrimSpace(a.SymptomName)
	if a.SymptomName == "" {
		return a, ErrMissingName
	}
	if a.Intensity < 1 || a.Intensity > 10 {
		return a, ErrIntensityOutOfRange
	}
	if utf8.RuneCountInString(a.SymptomName) > MaxNameLength {
		a.SymptomName = string([]rune(a.SymptomName)[:MaxNameLength])
	}
	if a.DurationMinutes < 1 {
		a.DurationMinutes = 1
	}
	a.Notes = strings.TrimSpace(a.Notes)
	return a, nil
}
