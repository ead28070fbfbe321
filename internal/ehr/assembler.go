package ehr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"symptom-assistant-server/internal/cache"
	"symptom-assistant-server/internal/observability"
)

// Source tells where a record category came from.
type Source string

const (
	SourceNone    Source = ""
	SourcePatient Source = "patient"
	SourceEHR     Source = "ehr"
)

// RecordContext is the merged medication and condition context for one request.
type RecordContext struct {
	PatientID         string   `json:"patient_id,omitempty"`
	Available         bool     `json:"available"`
	Medications       []string `json:"medications"`
	MedicationsSource Source   `json:"medications_source"`
	Conditions        []string `json:"conditions"`
	ConditionsSource  Source   `json:"conditions_source"`
	Age               *int     `json:"age,omitempty"`
	Gender            string   `json:"gender,omitempty"`
}

// EHRMedications returns the medications only when they came from the record.
func (r RecordContext) EHRMedications() []string {
	if r.MedicationsSource == SourceEHR {
		return r.Medications
	}
	return nil
}

// EHRConditions returns the conditions only when they came from the record.
func (r RecordContext) EHRConditions() []string {
	if r.ConditionsSource == SourceEHR {
		return r.Conditions
	}
	return nil
}

// Assembler builds RecordContext. It never fails: lookup problems degrade to
// the patient-reported lists.
type Assembler struct {
	source  ProfileSource
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewAssembler(source ProfileSource, metrics *observability.Metrics, logger zerolog.Logger) *Assembler {
	return &Assembler{source: source, metrics: metrics, logger: logger}
}

// Assemble merges the record for patientID with the patient-reported lists.
// A non-empty reported list replaces the record's list for that category.
func (a *Assembler) Assemble(ctx context.Context, patientID string, reportedMeds, reportedConditions []string) RecordContext {
	rc := RecordContext{PatientID: patientID, Medications: []string{}, Conditions: []string{}}
	if len(reportedMeds) > 0 {
		rc.Medications = append(rc.Medications, reportedMeds...)
		rc.MedicationsSource = SourcePatient
	}
	if len(reportedConditions) > 0 {
		rc.Conditions = append(rc.Conditions, reportedConditions...)
		rc.ConditionsSource = SourcePatient
	}

	if patientID == "" || a == nil || a.source == nil {
		return rc
	}

	profile, err := a.source.GetProfile(ctx, patientID)
	if err != nil {
		reason := "lookup_failed"
		if errors.Is(err, ErrPatientNotFound) {
			reason = "not_found"
		}
		a.metrics.ContextFallback("record", reason)
		a.logger.Warn().Err(err).Str("patient_id", patientID).Msg("EHR lookup failed, proceeding without record context")
		return rc
	}

	rc.Available = true
	rc.Age = profile.Age
	rc.Gender = profile.Gender
	if rc.MedicationsSource == SourceNone {
		rc.Medications = profile.MedicationNames()
		rc.MedicationsSource = SourceEHR
	}
	if rc.ConditionsSource == SourceNone {
		rc.Conditions = profile.ConditionNames()
		rc.ConditionsSource = SourceEHR
	}
	return rc
}

// CachedSource memoises profiles in a Cache.
type CachedSource struct {
	next   ProfileSource
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedSource(next ProfileSource, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	return &CachedSource{next: next, cache: c, ttl: ttl, logger: logger}
}

func (s *CachedSource) GetProfile(ctx context.Context, patientID string) (*Profile, error) {
	key := fmt.Sprintf("ehr:profile:%s", patientID)

	var cached Profile
	err := cache.GetJSON(ctx, s.cache, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn().Err(err).Str("key", key).Msg("profile cache read failed")
	}

	profile, err := s.next.GetProfile(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, key, profile, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("profile cache write failed")
	}
	return profile, nil
}
