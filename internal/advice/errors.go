package advice

import (
	"fmt"

	"symptom-assistant-server/internal/triage"
)

const (
	emergencyMessage = "Possible emergency. Call emergency services now."
	policyMessage    = "Medication instructions to patients are not allowed."
)

// EmergencyError is returned when triage stops a request before any model call.
type EmergencyError struct {
	Triage triage.Result
}

func (e *EmergencyError) Error() string {
	return emergencyMessage
}

// PolicyViolationError is returned when patient-facing output contains dosing
// instructions. The whole response is discarded.
type PolicyViolationError struct {
	Field string
}

func (e *PolicyViolationError) Error() string {
	return policyMessage
}

// ValidationError is a malformed request, detected before any external call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
