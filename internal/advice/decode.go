package advice

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"symptom-assistant-server/internal/llm"
	"symptom-assistant-server/internal/symptoms"
	"symptom-assistant-server/internal/triage"
)

// ErrMissingAdvice means the model output had no usable advice steps.
var ErrMissingAdvice = errors.New("model output has no advice steps")

type fields map[string]json.RawMessage

// first returns the first present, non-null value among keys.
func (f fields) first(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && !isNull(v) {
			return v, true
		}
	}
	return nil, false
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodeAdvice validates the model object field by field. A malformed optional
// field is treated as absent; only a missing or unusable advice list fails.
func decodeAdvice(obj json.RawMessage) (*StructuredAdvice, error) {
	var f fields
	if err := json.Unmarshal(obj, &f); err != nil {
		return nil, &llm.FormatError{Preview: llm.Preview(string(obj)), Err: err}
	}

	raw, ok := f.first("advice")
	if !ok {
		return nil, &llm.FormatError{Preview: llm.Preview(string(obj)), Err: ErrMissingAdvice}
	}
	steps, ok := decodeSteps(raw)
	if !ok || len(steps) == 0 {
		return nil, &llm.FormatError{Preview: llm.Preview(string(obj)), Err: ErrMissingAdvice}
	}

	out := &StructuredAdvice{
		Advice:              steps,
		WhenToSeekCare:      decodeStrings(f["when_to_seek_care"]),
		Disclaimer:          decodeString(f["disclaimer"]),
		PossibleDiagnosis:   decodeStrings(f["possible_diagnosis"]),
		DiagnosisReasoning:  decodeString(f["diagnosis_reasoning"]),
		SymptomAnalysis:     []symptoms.Analysis{},
		ReminderSuggestions: []ReminderSuggestion{},
		Sources:             []Citation{},
	}
	if out.Disclaimer == "" {
		out.Disclaimer = triage.RoutineDisclaimer
	}
	if raw, ok := f.first("symptom_analysis"); ok {
		out.SymptomAnalysis = decodeAnalysis(raw)
	}
	if raw, ok := f.first("reminder_suggestions", "reminders"); ok {
		out.ReminderSuggestions = decodeReminders(raw)
	}
	return out, nil
}

func decodeSteps(raw json.RawMessage) ([]Step, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	steps := make([]Step, 0, len(items))
	for _, item := range items {
		if s := decodeString(item); s != "" {
			steps = append(steps, Step{Step: s})
			continue
		}
		var f fields
		if err := json.Unmarshal(item, &f); err != nil {
			continue
		}
		step := Step{
			Step:    decodeString(pick(f, "step", "title")),
			Details: decodeString(pick(f, "details", "description")),
		}
		if step.Step == "" && step.Details == "" {
			continue
		}
		steps = append(steps, step)
	}
	return steps, true
}

func pick(f fields, keys ...string) json.RawMessage {
	v, _ := f.first(keys...)
	return v
}

func decodeString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// decodeStrings accepts a list of strings or a single string.
func decodeStrings(raw json.RawMessage) []string {
	out := []string{}
	if isNull(raw) {
		return out
	}
	if s := decodeString(raw); s != "" {
		return append(out, s)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, item := range items {
		if s := decodeString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// decodeInt accepts a number or a numeric string.
func decodeInt(raw json.RawMessage) (int, bool) {
	if isNull(raw) {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(math.Round(n)), true
	}
	s := decodeString(raw)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(math.Round(n)), true
}

// decodeAnalysis accepts a list of entries or an object wrapping them under
// "symptoms". Entries are passed through as given; the tracker validates them.
func decodeAnalysis(raw json.RawMessage) []symptoms.Analysis {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapper fields
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return []symptoms.Analysis{}
		}
		inner, ok := wrapper.first("symptoms", "entries")
		if !ok || json.Unmarshal(inner, &items) != nil {
			return []symptoms.Analysis{}
		}
	}

	out := make([]symptoms.Analysis, 0, len(items))
	for _, item := range items {
		var f fields
		if err := json.Unmarshal(item, &f); err != nil {
			continue
		}
		a := symptoms.Analysis{
			SymptomName: decodeString(pick(f, "symptom_name", "symptom", "name")),
			Notes:       decodeString(f["notes"]),
		}
		a.Intensity, _ = decodeInt(pick(f, "intensity", "severity"))
		a.DurationMinutes, _ = decodeInt(pick(f, "duration_minutes", "duration"))
		out = append(out, a)
	}
	return out
}

func decodeReminders(raw json.RawMessage) []ReminderSuggestion {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []ReminderSuggestion{}
	}
	out := make([]ReminderSuggestion, 0, len(items))
	for _, item := range items {
		var f fields
		if err := json.Unmarshal(item, &f); err != nil {
			continue
		}
		r := ReminderSuggestion{
			Title:              decodeString(pick(f, "title", "reminder_title")),
			Description:        decodeString(pick(f, "description", "reminder_description")),
			SuggestedTime:      decodeString(f["suggested_time"]),
			SuggestedFrequency: decodeString(f["suggested_frequency"]),
			Priority:           normalizePriority(decodeString(f["priority"])),
		}
		if r.Title == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

func normalizePriority(p string) string {
	switch strings.ToLower(p) {
	case "low", "high":
		return strings.ToLower(p)
	default:
		return "medium"
	}
}

func normalizeReferralPriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "expedited", "urgent":
		return strings.ToLower(strings.TrimSpace(p))
	default:
		return "routine"
	}
}
