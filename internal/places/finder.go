package places

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"symptom-assistant-server/internal/advice"
	"symptom-assistant-server/internal/llm"
	"symptom-assistant-server/internal/observability"
	"symptom-assistant-server/internal/triage"
)

const (
	DefaultSpecialty = "primary_care"
	DefaultUrgency   = "routine"
	defaultReasoning = "General evaluation by a primary care provider."
)

const needsInstruction = `You are a medical triage specialist. Decide which type of healthcare provider the patient should see.
Return JSON ONLY with exactly these fields: needed_specialty (string), urgency ("emergency", "urgent" or "routine"), reasoning (brief explanation).
Common specialties: dentist, ophthalmologist, cardiologist, dermatologist, orthopedist, neurologist, gastroenterologist, psychiatrist, primary_care.
Examples:
{"needed_specialty":"dentist","urgency":"urgent","reasoning":"Severe tooth pain with swelling suggests a dental abscess"}
{"needed_specialty":"primary_care","urgency":"routine","reasoning":"General cold symptoms can be managed by primary care"}`

// Need is the recommended provider type.
type Need struct {
	Specialty string `json:"needed_specialty"`
	Urgency   string `json:"urgency"`
	Reasoning string `json:"reasoning"`
}

// Request locates the patient by coordinates or, failing that, zipcode.
type Request struct {
	Symptoms  string   `json:"symptoms" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
	Zipcode   string   `json:"zipcode"`
}

// Recommendation pairs the needed specialty with nearby providers.
type Recommendation struct {
	Need
	Location  *Location  `json:"location,omitempty"`
	Providers []Provider `json:"providers"`
}

type Finder struct {
	pipeline   *llm.Pipeline
	directory  Directory
	classifier *triage.Classifier
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewFinder(pipeline *llm.Pipeline, directory Directory, metrics *observability.Metrics, logger zerolog.Logger) *Finder {
	return &Finder{
		pipeline:   pipeline,
		directory:  directory,
		classifier: triage.NewClassifier(),
		metrics:    metrics,
		logger:     logger,
	}
}

// Analyze never fails; an unusable model answer yields the primary-care
// default.
func (f *Finder) Analyze(ctx context.Context, symptoms string) Need {
	var need Need
	build := llm.Static(
		llm.Message{Role: llm.RoleSystem, Content: needsInstruction},
		llm.Message{Role: llm.RoleUser, Content: "Symptoms: " + symptoms},
	)
	if err := f.pipeline.Decode(ctx, "healthcare_needs", build, &need); err != nil {
		f.metrics.ContextFallback("places", "needs_failed")
		f.logger.Warn().Err(err).Msg("healthcare needs analysis failed, using primary care")
		return Need{Specialty: DefaultSpecialty, Urgency: DefaultUrgency, Reasoning: defaultReasoning}
	}

	need.Specialty = strings.ToLower(strings.TrimSpace(need.Specialty))
	if need.Specialty == "" {
		need.Specialty = DefaultSpecialty
	}
	switch u := strings.ToLower(strings.TrimSpace(need.Urgency)); u {
	case "emergency", "urgent", "routine":
		need.Urgency = u
	default:
		need.Urgency = DefaultUrgency
	}
	if strings.TrimSpace(need.Reasoning) == "" {
		need.Reasoning = defaultReasoning
	}
	return need
}

// Find triages, picks a specialty and searches nearby. Directory failures are
// absorbed into an empty provider list.
func (f *Finder) Find(ctx context.Context, req Request) (*Recommendation, error) {
	if strings.TrimSpace(req.Symptoms) == "" {
		return nil, &advice.ValidationError{Field: "symptoms", Message: "is required"}
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return nil, &advice.ValidationError{Field: "latitude", Message: "latitude and longitude must be given together"}
	}
	if req.Latitude == nil && strings.TrimSpace(req.Zipcode) == "" {
		return nil, &advice.ValidationError{Field: "zipcode", Message: "coordinates or zipcode are required"}
	}

	res := f.classifier.Classify(req.Symptoms)
	f.metrics.TriageResult(string(res.Risk))
	if res.IsEmergency() {
		return nil, &advice.EmergencyError{Triage: res}
	}

	var at Location
	if req.Latitude != nil {
		at = Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	} else {
		loc, err := f.directory.Geocode(ctx, req.Zipcode)
		switch {
		case errors.Is(err, ErrLocationNotFound):
			return nil, &advice.ValidationError{Field: "zipcode", Message: "could not be located"}
		case err != nil:
			f.logger.Warn().Err(err).Str("zipcode", req.Zipcode).Msg("geocoding failed")
			return &Recommendation{Need: f.Analyze(ctx, req.Symptoms), Providers: []Provider{}}, nil
		}
		at = loc
	}

	need := f.Analyze(ctx, req.Symptoms)
	providers, err := f.directory.Nearby(ctx, at, strings.ReplaceAll(need.Specialty, "_", " "))
	if err != nil {
		f.logger.Warn().Err(err).Str("specialty", need.Specialty).Msg("provider search failed")
		providers = []Provider{}
	}
	return &Recommendation{Need: need, Location: &at, Providers: providers}, nil
}
