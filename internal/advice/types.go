// Package advice produces structured self-care advice for patients and
// referral and medication-class drafts for clinicians.
package advice

import (
	"strings"

	"symptom-assistant-server/internal/knowledge"
	"symptom-assistant-server/internal/symptoms"
)

// Request is the symptom report shared by every advice endpoint.
type Request struct {
	Age        int      `json:"age" binding:"gte=0,lte=130"`
	Sex        string   `json:"sex"`
	Symptoms   string   `json:"symptoms" binding:"required"`
	Duration   string   `json:"duration"`
	Meds       []string `json:"meds"`
	Conditions []string `json:"conditions"`
	PatientID  string   `json:"patient_id"`
	Latitude   *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude  *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
}

// Validate repeats the binding checks for requests that did not come
// through the HTTP layer, such as those built from a chat transcript.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Symptoms) == "" {
		return &ValidationError{Field: "symptoms", Message: "is required"}
	}
	if r.Age < 0 || r.Age > 130 {
		return &ValidationError{Field: "age", Message: "must be between 0 and 130"}
	}
	return nil
}

type Step struct {
	Step    string `json:"step"`
	Details string `json:"details"`
}

type ReminderSuggestion struct {
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	SuggestedTime      string `json:"suggested_time,omitempty"`
	SuggestedFrequency string `json:"suggested_frequency,omitempty"`
	Priority           string `json:"priority"`
}

// Citation credits a knowledge excerpt used to ground the advice.
type Citation struct {
	PubMedID string  `json:"pubmed_id"`
	Title    string  `json:"title"`
	Journal  string  `json:"journal"`
	Year     string  `json:"year"`
	Score    float64 `json:"relevance_score"`
}

// StructuredAdvice is the patient-facing advice response. Optional fields are
// empty, never nil, when the model omits them.
type StructuredAdvice struct {
	Advice              []Step               `json:"advice"`
	WhenToSeekCare      []string             `json:"when_to_seek_care"`
	Disclaimer          string               `json:"disclaimer"`
	PossibleDiagnosis   []string             `json:"possible_diagnosis"`
	DiagnosisReasoning  string               `json:"diagnosis_reasoning"`
	SymptomAnalysis     []symptoms.Analysis  `json:"symptom_analysis"`
	ReminderSuggestions []ReminderSuggestion `json:"reminder_suggestions"`
	Sources             []Citation           `json:"sources"`
	RecordContextUsed   bool                 `json:"ehr_context_used"`
	KnowledgeSufficient *bool                `json:"knowledge_sufficient,omitempty"`
}

func citationsFrom(excerpts []knowledge.Excerpt) []Citation {
	out := make([]Citation, 0, len(excerpts))
	for _, e := range excerpts {
		out = append(out, Citation{
			PubMedID: e.PubMedID,
			Title:    e.Title,
			Journal:  e.Journal,
			Year:     e.Year,
			Score:    e.Score,
		})
	}
	return out
}

type Specialty struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Referral is a clinician-facing specialist referral draft.
type Referral struct {
	SuggestedSpecialties []Specialty `json:"suggested_specialties"`
	PreReferralWorkup    []string    `json:"pre_referral_workup"`
	Priority             string      `json:"priority"`
}

type RxCandidate struct {
	DrugClass         string   `json:"drug_class"`
	Example           string   `json:"example"`
	UseCase           string   `json:"use_case"`
	Contraindications []string `json:"contraindications"`
	Monitoring        []string `json:"monitoring"`
}

// RxDraft is a clinician-only medication-class draft. It never carries doses.
type RxDraft struct {
	Candidates []RxCandidate `json:"candidates"`
	Notes      string        `json:"notes"`
}
