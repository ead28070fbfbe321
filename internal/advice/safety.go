package advice

import (
	"fmt"
	"regexp"
)

// dosingPattern matches an administration verb followed by a dose unit. The
// unit may sit directly against its number, as in "500mg".
var dosingPattern = regexp.MustCompile(`(?is)\b(take|start|increase|decrease)\b.*(?:\d|\b)(mg|mcg|ml|tablets?|capsules?|pills?)\b`)

// ContainsDosing reports whether text reads as a dosing instruction.
func ContainsDosing(text string) bool {
	return dosingPattern.MatchString(text)
}

// CheckPatientSafety scans every patient-facing field separately. The first
// hit rejects the whole response.
func CheckPatientSafety(a *StructuredAdvice) error {
	check := func(field, text string) error {
		if ContainsDosing(text) {
			return &PolicyViolationError{Field: field}
		}
		return nil
	}

	for i, s := range a.Advice {
		if err := check(fmt.Sprintf("advice[%d]", i), s.Step+" "+s.Details); err != nil {
			return err
		}
	}
	for i, s := range a.WhenToSeekCare {
		if err := check(fmt.Sprintf("when_to_seek_care[%d]", i), s); err != nil {
			return err
		}
	}
	for i, s := range a.PossibleDiagnosis {
		if err := check(fmt.Sprintf("possible_diagnosis[%d]", i), s); err != nil {
			return err
		}
	}
	if err := check("diagnosis_reasoning", a.DiagnosisReasoning); err != nil {
		return err
	}
	for i, sa := range a.SymptomAnalysis {
		if err := check(fmt.Sprintf("symptom_analysis[%d].notes", i), sa.Notes); err != nil {
			return err
		}
	}
	for i, r := range a.ReminderSuggestions {
		if err := check(fmt.Sprintf("reminder_suggestions[%d]", i), r.Title+" "+r.Description); err != nil {
			return err
		}
	}
	return check("disclaimer", a.Disclaimer)
}
