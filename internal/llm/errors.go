package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// PreviewLimit bounds how much raw model output may appear in errors and logs.
const PreviewLimit = 300

var (
	// ErrEmptyResponse is returned when the provider answered with no text.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrUnparseable is returned when no repair strategy produced a JSON object.
	ErrUnparseable = errors.New("model did not return valid JSON")
)

const (
	quotaMessage       = "I've reached my daily limit for medical analysis. Please try again tomorrow or contact support to increase the limit."
	unavailableMessage = "I'm having trouble connecting to the medical analysis service. Please try again later."
)

// ProviderError is a failed provider call: network error, timeout or non-2xx status.
type ProviderError struct {
	StatusCode  int
	RateLimited bool
	Err         error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("completion provider status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError classifies a status code and cause.
func NewProviderError(statusCode int, err error) *ProviderError {
	rateLimited := statusCode == http.StatusTooManyRequests
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		rateLimited = true
	}
	return &ProviderError{StatusCode: statusCode, RateLimited: rateLimited, Err: err}
}

// FormatError means the provider answered but nothing could be coerced into a
// JSON object, even after the conversion call. Only a bounded preview of the
// raw text is kept.
type FormatError struct {
	Preview string
	Err     error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Preview)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// UnavailableError means the provider could not be reached within the attempt budget.
type UnavailableError struct {
	Attempts    int
	RateLimited bool
	Err         error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("completion provider unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// UserMessage is safe to show to a patient.
func (e *UnavailableError) UserMessage() string {
	if e.RateLimited {
		return quotaMessage
	}
	return unavailableMessage
}

// Preview truncates raw model output to PreviewLimit runes.
func Preview(raw string) string {
	raw = strings.TrimSpace(raw)
	if utf8.RuneCountInString(raw) <= PreviewLimit {
		return raw
	}
	runes := []rune(raw)
	return string(runes[:PreviewLimit]) + "..."
}
