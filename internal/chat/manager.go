package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"symptom-assistant-server/internal/advice"
	"symptom-assistant-server/internal/llm"
	"symptom-assistant-server/internal/models"
	"symptom-assistant-server/internal/observability"
	"symptom-assistant-server/internal/triage"
)

const (
	// DefaultOfferThreshold is the confidence an assessment must exceed
	// before analysis is offered.
	DefaultOfferThreshold = 0.8
	// DefaultAge is assumed when a transcript never states one.
	DefaultAge = 30

	historyLimit  = 50
	analyzeLimit  = 100
	titleLength   = 60
	sessionsLimit = 10
)

const (
	OfferMessage = "Based on what you've told me, I can analyze your symptoms and provide medical guidance. " +
		"This includes possible causes, self-care advice, and when to see a doctor. " +
		"Would you like me to do that analysis for you?"
	AnalysisPrompt   = "Would you like me to analyze your symptoms and provide medical guidance?"
	EmergencyMessage = "Your symptoms may need emergency care. Call 911 (or your local emergency number) now, or go to the nearest emergency department."

	analyzingMessage  = "I'm now analyzing your symptoms with your medical history. Please wait a moment..."
	analysisFailed    = "I apologize, but I'm having trouble analyzing your symptoms right now. Please try again later."
	fallbackReply     = "I'm here to help with your health concerns. Could you tell me more about what you're experiencing?"
	seeRecommendation = "See recommendations"
)

// Advisor produces structured advice.
type Advisor interface {
	Advise(ctx context.Context, req advice.Request, opts advice.Options) (*advice.StructuredAdvice, error)
}

// Assessment is the analyzer's view of the conversation so far.
type Assessment struct {
	HasSufficientInfo   bool     `json:"has_sufficient_info"`
	MissingInfo         []string `json:"missing_info"`
	ExtractedSymptoms   string   `json:"extracted_symptoms"`
	ExtractedDuration   string   `json:"extracted_duration"`
	ShouldOfferAnalysis bool     `json:"should_offer_analysis"`
	Confidence          float64  `json:"confidence_score"`
}

type rawAssessment struct {
	HasSufficientInfo   flag   `json:"has_sufficient_info"`
	MissingInfo         list   `json:"missing_info"`
	ExtractedSymptoms   text   `json:"extracted_symptoms"`
	ExtractedDuration   text   `json:"extracted_duration"`
	ShouldOfferAnalysis flag   `json:"should_offer_analysis"`
	Confidence          number `json:"confidence_score"`
}

type rawReply struct {
	Response      text   `json:"response"`
	UpdateContext object `json:"update_context"`
}

type rawExtraction struct {
	Symptoms    text   `json:"symptoms"`
	Duration    text   `json:"duration"`
	Medications list   `json:"medications"`
	Conditions  list   `json:"conditions"`
	Age         number `json:"age"`
	Sex         text   `json:"sex"`
}

// TurnResult is the assistant's answer to one user message.
type TurnResult struct {
	SessionID        string             `json:"session_id"`
	Message          models.ChatMessage `json:"message"`
	RequiresAnalysis bool               `json:"requires_analysis"`
	AnalysisPrompt   *string            `json:"analysis_prompt"`
	Triage           *triage.Result     `json:"triage,omitempty"`
}

type Deps struct {
	Store          Store
	Pipeline       *llm.Pipeline
	Advisor        Advisor
	Classifier     *triage.Classifier
	OfferThreshold float64
	Metrics        *observability.Metrics
	Logger         zerolog.Logger
}

type Manager struct {
	store      Store
	pipeline   *llm.Pipeline
	advisor    Advisor
	classifier *triage.Classifier
	threshold  float64
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewManager(d Deps) *Manager {
	if d.Classifier == nil {
		d.Classifier = triage.NewClassifier()
	}
	if d.OfferThreshold <= 0 {
		d.OfferThreshold = DefaultOfferThreshold
	}
	return &Manager{
		store:      d.Store,
		pipeline:   d.Pipeline,
		advisor:    d.Advisor,
		classifier: d.Classifier,
		threshold:  d.OfferThreshold,
		metrics:    d.Metrics,
		logger:     d.Logger,
	}
}

// Turn appends the user's message, then either flags an emergency, offers
// analysis, or continues the conversation. An empty sessionID starts a new
// session.
func (m *Manager) Turn(ctx context.Context, ownerID, sessionID, message string) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &advice.ValidationError{Field: "message", Message: "is required"}
	}

	session, err := m.openSession(ctx, ownerID, sessionID, message)
	if err != nil {
		return nil, err
	}
	history, err := m.store.Messages(ctx, session.ID, historyLimit)
	if err != nil {
		return nil, err
	}
	if err := m.store.AddMessage(ctx, &models.ChatMessage{
		SessionID: session.ID, Role: models.ChatRoleUser, Content: message, MessageType: models.MessageTypeText,
	}); err != nil {
		return nil, err
	}

	res := m.classifier.Classify(message)
	m.metrics.TriageResult(string(res.Risk))
	if res.IsEmergency() {
		m.logger.Info().Str("session_id", session.ID).Strs("red_flags", res.RedFlags).Msg("emergency detected in chat")
		reply, err := m.reply(ctx, session.ID, EmergencyMessage, models.MessageTypeEmergency,
			models.JSONMap{"red_flags": res.RedFlags, "next_step": string(res.NextStep)})
		if err != nil {
			return nil, err
		}
		return &TurnResult{SessionID: session.ID, Message: *reply, Triage: &res}, nil
	}

	assessment := m.assess(ctx, history, message)
	if m.shouldOffer(assessment) {
		updates := map[string]interface{}{"symptoms": assessment.ExtractedSymptoms}
		if assessment.ExtractedDuration != "" {
			updates["duration"] = assessment.ExtractedDuration
		}
		if err := m.store.MergeContext(ctx, session.ID, updates); err != nil {
			m.logger.Warn().Err(err).Str("session_id", session.ID).Msg("failed to update chat context")
		}
		reply, err := m.reply(ctx, session.ID, OfferMessage, models.MessageTypeAnalysisOffer, nil)
		if err != nil {
			return nil, err
		}
		prompt := AnalysisPrompt
		return &TurnResult{SessionID: session.ID, Message: *reply, RequiresAnalysis: true, AnalysisPrompt: &prompt}, nil
	}

	content, updates, err := m.respond(ctx, history, session.Context, message)
	if err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := m.store.MergeContext(ctx, session.ID, updates); err != nil {
			m.logger.Warn().Err(err).Str("session_id", session.ID).Msg("failed to update chat context")
		}
	}
	reply, err := m.reply(ctx, session.ID, content, models.MessageTypeText, nil)
	if err != nil {
		return nil, err
	}
	return &TurnResult{SessionID: session.ID, Message: *reply}, nil
}

func (m *Manager) openSession(ctx context.Context, ownerID, sessionID, firstMessage string) (*models.ChatSession, error) {
	if sessionID != "" {
		return m.store.GetSession(ctx, sessionID, ownerID)
	}
	title := firstMessage
	if utf8.RuneCountInString(title) > titleLength {
		title = string([]rune(title)[:titleLength]) + "..."
	}
	return m.store.CreateSession(ctx, ownerID, title)
}

func (m *Manager) shouldOffer(a Assessment) bool {
	return a.ShouldOfferAnalysis && a.HasSufficientInfo && a.Confidence > m.threshold
}

// assess never fails; an unusable analyzer answer counts as "keep talking".
func (m *Manager) assess(ctx context.Context, history []models.ChatMessage, message string) Assessment {
	var raw rawAssessment
	if err := m.pipeline.Decode(ctx, "chat_analyze", buildAnalyzerPrompt(history, message), &raw); err != nil {
		m.metrics.ContextFallback("chat", "analyzer_failed")
		m.logger.Warn().Err(err).Msg("conversation analysis failed, continuing conversation")
		return Assessment{MissingInfo: []string{}}
	}
	missing := []string(raw.MissingInfo)
	if missing == nil {
		missing = []string{}
	}
	return Assessment{
		HasSufficientInfo:   bool(raw.HasSufficientInfo),
		MissingInfo:         missing,
		ExtractedSymptoms:   string(raw.ExtractedSymptoms),
		ExtractedDuration:   string(raw.ExtractedDuration),
		ShouldOfferAnalysis: bool(raw.ShouldOfferAnalysis),
		Confidence:          float64(raw.Confidence),
	}
}

// respond returns the conversational reply. Only an unavailable provider is
// an error; unusable output falls back to a generic prompt for more detail.
func (m *Manager) respond(ctx context.Context, history []models.ChatMessage, sessionContext models.JSONMap, message string) (string, map[string]interface{}, error) {
	var raw rawReply
	err := m.pipeline.Decode(ctx, "chat_reply", buildResponderPrompt(history, sessionContext, message), &raw)
	var unavailable *llm.UnavailableError
	if errors.As(err, &unavailable) {
		return "", nil, err
	}
	if err != nil || raw.Response == "" {
		m.logger.Warn().Err(err).Msg("unusable chat reply, using fallback")
		return fallbackReply, nil, nil
	}
	if advice.ContainsDosing(string(raw.Response)) {
		m.metrics.PipelineResult("policy_violation")
		m.logger.Warn().Msg("dosing language in chat reply, using fallback")
		return fallbackReply, nil, nil
	}
	return string(raw.Response), raw.UpdateContext, nil
}

func (m *Manager) reply(ctx context.Context, sessionID, content, messageType string, metadata models.JSONMap) (*models.ChatMessage, error) {
	msg := &models.ChatMessage{
		SessionID:   sessionID,
		Role:        models.ChatRoleAssistant,
		Content:     content,
		MessageType: messageType,
		Metadata:    metadata,
	}
	if err := m.store.AddMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Extract summarises a transcript into an advice request. It falls back to
// the session's context and the user's own words when the model cannot help.
func (m *Manager) Extract(ctx context.Context, session *models.ChatSession, history []models.ChatMessage) advice.Request {
	req := advice.Request{Age: DefaultAge, Meds: []string{}, Conditions: []string{}}

	var raw rawExtraction
	if err := m.pipeline.Decode(ctx, "chat_extract", buildExtractorPrompt(history), &raw); err != nil {
		m.metrics.ContextFallback("chat", "extraction_failed")
		m.logger.Warn().Err(err).Str("session_id", session.ID).Msg("transcript extraction failed, using session context")
	} else {
		req.Symptoms = string(raw.Symptoms)
		req.Duration = string(raw.Duration)
		req.Sex = string(raw.Sex)
		if raw.Medications != nil {
			req.Meds = raw.Medications
		}
		if raw.Conditions != nil {
			req.Conditions = raw.Conditions
		}
		if age := int(raw.Age); age > 0 && age <= 130 {
			req.Age = age
		}
	}

	if req.Symptoms == "" {
		req.Symptoms = contextString(session.Context, "symptoms", "symptom")
	}
	if req.Duration == "" {
		req.Duration = contextString(session.Context, "duration")
	}
	if req.Symptoms == "" {
		var said []string
		for _, msg := range history {
			if msg.Role == models.ChatRoleUser {
				said = append(said, msg.Content)
			}
		}
		req.Symptoms = strings.Join(said, ". ")
	}
	return req
}

func contextString(c models.JSONMap, keys ...string) string {
	for _, k := range keys {
		switch v := c[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	return ""
}

// Analyze runs structured advice over the whole session. The outcome, success
// or failure, is appended to the transcript.
func (m *Manager) Analyze(ctx context.Context, ownerID, sessionID, patientID string) (*advice.StructuredAdvice, error) {
	session, err := m.store.GetSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	history, err := m.store.Messages(ctx, session.ID, analyzeLimit)
	if err != nil {
		return nil, err
	}

	req := m.Extract(ctx, session, history)
	req.PatientID = patientID
	m.logger.Debug().Str("session_id", session.ID).Int("age", req.Age).Str("duration", req.Duration).Msg("analyzing chat session")

	if _, err := m.reply(ctx, session.ID, analyzingMessage, models.MessageTypeAnalysisRequest, nil); err != nil {
		return nil, err
	}

	out, err := m.advisor.Advise(ctx, req, advice.Options{UserID: ownerID, UseRecord: true})
	if err != nil {
		content, kind := analysisFailed, models.MessageTypeError
		var emergency *advice.EmergencyError
		if errors.As(err, &emergency) {
			content, kind = EmergencyMessage, models.MessageTypeEmergency
		}
		if _, rerr := m.reply(ctx, session.ID, content, kind, nil); rerr != nil {
			m.logger.Error().Err(rerr).Str("session_id", session.ID).Msg("failed to record analysis failure")
		}
		return nil, err
	}

	summary := seeRecommendation
	if len(out.PossibleDiagnosis) > 0 {
		summary = strings.Join(out.PossibleDiagnosis, ", ")
	}
	if _, err := m.reply(ctx, session.ID, "Analysis complete: "+summary, models.MessageTypeMedicalAdvice,
		models.JSONMap{"analysis_data": out}); err != nil {
		m.logger.Error().Err(err).Str("session_id", session.ID).Msg("failed to record analysis result")
	}
	return out, nil
}

// Sessions lists the owner's most recently active sessions.
func (m *Manager) Sessions(ctx context.Context, ownerID string) ([]models.ChatSession, error) {
	return m.store.ListSessions(ctx, ownerID, sessionsLimit)
}

// Session returns one session with its transcript.
func (m *Manager) Session(ctx context.Context, ownerID, sessionID string) (*models.ChatSession, error) {
	session, err := m.store.GetSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if session.Messages, err = m.store.Messages(ctx, session.ID, historyLimit); err != nil {
		return nil, err
	}
	return session, nil
}
