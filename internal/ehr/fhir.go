// Package ehr reads patient records from a FHIR R4 server and turns them into
// the record context used by advice generation.
package ehr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"symptom-assistant-server/internal/config"
)

// ErrPatientNotFound is returned when the FHIR server has no such patient.
var ErrPatientNotFound = errors.New("patient not found in EHR system")

// MedicationInfo is one active medication request.
type MedicationInfo struct {
	Name           string `json:"name"`
	Status         string `json:"status"`
	PrescribedDate string `json:"prescribed_date,omitempty"`
	Prescriber     string `json:"prescriber"`
}

// ConditionInfo is one recorded condition.
type ConditionInfo struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	RecordedDate string `json:"recorded_date,omitempty"`
}

type ContactInfo struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Profile is the patient summary exposed by the patient profile endpoints.
type Profile struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	BirthDate         string           `json:"birth_date,omitempty"`
	Age               *int             `json:"age"`
	Gender            string           `json:"gender"`
	Contact           ContactInfo      `json:"contact"`
	ActiveMedications []MedicationInfo `json:"active_medications"`
	MedicalConditions []ConditionInfo  `json:"medical_conditions"`
	LastUpdated       string           `json:"last_updated"`
}

// MedicationNames lists medication names in record order.
func (p *Profile) MedicationNames() []string {
	names := make([]string, 0, len(p.ActiveMedications))
	for _, m := range p.ActiveMedications {
		names = append(names, m.Name)
	}
	return names
}

// ConditionNames lists condition names in record order.
func (p *Profile) ConditionNames() []string {
	names := make([]string, 0, len(p.MedicalConditions))
	for _, c := range p.MedicalConditions {
		names = append(names, c.Name)
	}
	return names
}

// PatientSummary is a discovery listing entry.
type PatientSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Gender    string `json:"gender"`
	BirthDate string `json:"birth_date,omitempty"`
}

// ProfileSource loads patient profiles.
type ProfileSource interface {
	GetProfile(ctx context.Context, patientID string) (*Profile, error)
}

// Client is a read-only FHIR R4 client.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

func NewClient(cfg config.FHIRConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		now:     time.Now,
	}
}

type codeableConcept struct {
	Text   string `json:"text"`
	Coding []struct {
		Code    string `json:"code"`
		Display string `json:"display"`
	} `json:"coding"`
}

func (c codeableConcept) label() string {
	if c.Text != "" {
		return c.Text
	}
	for _, coding := range c.Coding {
		if coding.Display != "" {
			return coding.Display
		}
	}
	for _, coding := range c.Coding {
		if coding.Code != "" {
			return coding.Code
		}
	}
	return ""
}

type reference struct {
	Reference string `json:"reference"`
	Display   string `json:"display"`
}

type patientResource struct {
	ID        string `json:"id"`
	Gender    string `json:"gender"`
	BirthDate string `json:"birthDate"`
	Name      []struct {
		Text   string   `json:"text"`
		Family string   `json:"family"`
		Given  []string `json:"given"`
	} `json:"name"`
	Telecom []struct {
		System string `json:"system"`
		Value  string `json:"value"`
	} `json:"telecom"`
	Meta struct {
		LastUpdated string `json:"lastUpdated"`
	} `json:"meta"`
}

func (p patientResource) displayName() string {
	if len(p.Name) == 0 {
		return "Unknown"
	}
	n := p.Name[0]
	if n.Text != "" {
		return n.Text
	}
	full := strings.TrimSpace(strings.Join(append(append([]string{}, n.Given...), n.Family), " "))
	if full == "" {
		return "Unknown"
	}
	return full
}

type medicationRequestResource struct {
	Status                    string          `json:"status"`
	AuthoredOn                string          `json:"authoredOn"`
	MedicationCodeableConcept codeableConcept `json:"medicationCodeableConcept"`
	MedicationReference       reference       `json:"medicationReference"`
	Requester                 reference       `json:"requester"`
}

type conditionResource struct {
	Code           codeableConcept `json:"code"`
	ClinicalStatus codeableConcept `json:"clinicalStatus"`
	RecordedDate   string          `json:"recordedDate"`
	OnsetDateTime  string          `json:"onsetDateTime"`
}

type bundle[T any] struct {
	Entry []struct {
		Resource T `json:"resource"`
	} `json:"entry"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	u := c.baseURL + "/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build FHIR request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("FHIR %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return ErrPatientNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("FHIR %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode FHIR %s: %w", path, err)
	}
	return nil
}

// GetProfile fetches the patient with their active medications and conditions.
func (c *Client) GetProfile(ctx context.Context, patientID string) (*Profile, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, ErrPatientNotFound
	}

	var patient patientResource
	if err := c.get(ctx, "Patient/"+url.PathEscape(patientID), nil, &patient); err != nil {
		return nil, err
	}

	var meds bundle[medicationRequestResource]
	if err := c.get(ctx, "MedicationRequest", url.Values{"patient": {patientID}, "status": {"active"}}, &meds); err != nil {
		return nil, err
	}

	var conds bundle[conditionResource]
	if err := c.get(ctx, "Condition", url.Values{"patient": {patientID}}, &conds); err != nil {
		return nil, err
	}

	profile := &Profile{
		ID:                patient.ID,
		Name:              patient.displayName(),
		BirthDate:         patient.BirthDate,
		Age:               ageFrom(patient.BirthDate, c.now()),
		Gender:            patient.Gender,
		ActiveMedications: []MedicationInfo{},
		MedicalConditions: []ConditionInfo{},
		LastUpdated:       patient.Meta.LastUpdated,
	}
	if profile.Gender == "" {
		profile.Gender = "unknown"
	}
	for _, t := range patient.Telecom {
		switch t.System {
		case "email":
			profile.Contact.Email = t.Value
		case "phone":
			profile.Contact.Phone = t.Value
		}
	}

	for _, e := range meds.Entry {
		m := e.Resource
		name := m.MedicationCodeableConcept.label()
		if name == "" {
			name = m.MedicationReference.Display
		}
		if name == "" {
			continue
		}
		profile.ActiveMedications = append(profile.ActiveMedications, MedicationInfo{
			Name:           name,
			Status:         m.Status,
			PrescribedDate: m.AuthoredOn,
			Prescriber:     orDefault(m.Requester.Display, "Unknown"),
		})
	}

	for _, e := range conds.Entry {
		cr := e.Resource
		name := cr.Code.label()
		if name == "" {
			continue
		}
		recorded := cr.RecordedDate
		if recorded == "" {
			recorded = cr.OnsetDateTime
		}
		profile.MedicalConditions = append(profile.MedicalConditions, ConditionInfo{
			Name:         name,
			Status:       orDefault(cr.ClinicalStatus.label(), "unknown"),
			RecordedDate: recorded,
		})
	}

	return profile, nil
}

// DiscoverPatients lists up to count patients, for locating test records.
func (c *Client) DiscoverPatients(ctx context.Context, count int) ([]PatientSummary, error) {
	if count <= 0 {
		count = 10
	}
	var patients bundle[patientResource]
	if err := c.get(ctx, "Patient", url.Values{"_count": {fmt.Sprint(count)}}, &patients); err != nil {
		return nil, err
	}
	out := make([]PatientSummary, 0, len(patients.Entry))
	for _, e := range patients.Entry {
		out = append(out, PatientSummary{
			ID:        e.Resource.ID,
			Name:      e.Resource.displayName(),
			Gender:    e.Resource.Gender,
			BirthDate: e.Resource.BirthDate,
		})
	}
	return out, nil
}

func ageFrom(birthDate string, now time.Time) *int {
	if len(birthDate) < 10 {
		return nil
	}
	born, err := time.Parse("2006-01-02", birthDate[:10])
	if err != nil {
		return nil
	}
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	if age < 0 {
		return nil
	}
	return &age
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
