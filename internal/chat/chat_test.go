package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptom-assistant-server/internal/advice"
	"symptom-assistant-server/internal/llm"
	"symptom-assistant-server/internal/models"
)

// routedCompleter answers by request purpose and records every request.
type routedCompleter struct {
	mu       sync.Mutex
	replies  map[string][]string
	failures map[string]error
	requests []llm.Request
}

func newRouted() *routedCompleter {
	return &routedCompleter{replies: map[string][]string{}, failures: map[string]error{}}
}

func (r *routedCompleter) on(purpose string, replies ...string) *routedCompleter {
	r.replies[purpose] = append(r.replies[purpose], replies...)
	return r
}

func (r *routedCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if err, ok := r.failures[req.Purpose]; ok {
		return "", err
	}
	queue := r.replies[req.Purpose]
	if len(queue) == 0 {
		return "", fmt.Errorf("unexpected %s request", req.Purpose)
	}
	r.replies[req.Purpose] = queue[1:]
	return queue[0], nil
}

func (r *routedCompleter) count(purpose string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, req := range r.requests {
		if req.Purpose == purpose {
			n++
		}
	}
	return n
}

func (r *routedCompleter) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

type fakeAdvisor struct {
	out  *advice.StructuredAdvice
	err  error
	req  advice.Request
	opts advice.Options
}

func (f *fakeAdvisor) Advise(_ context.Context, req advice.Request, opts advice.Options) (*advice.StructuredAdvice, error) {
	f.req, f.opts = req, opts
	return f.out, f.err
}

func newManager(c llm.Completer, store Store, advisor Advisor) *Manager {
	return NewManager(Deps{
		Store:    store,
		Pipeline: llm.NewPipeline(c),
		Advisor:  advisor,
		Logger:   zerolog.Nop(),
	})
}

func TestTurnEmergencySkipsProvider(t *testing.T) {
	fake := newRouted()
	store := NewMemoryStore()
	m := newManager(fake, store, nil)

	res, err := m.Turn(context.Background(), "u1", "", "I have crushing chest pain and can't breathe")
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeEmergency, res.Message.MessageType)
	assert.Equal(t, EmergencyMessage, res.Message.Content)
	require.NotNil(t, res.Triage)
	assert.True(t, res.Triage.IsEmergency())
	assert.False(t, res.RequiresAnalysis)
	assert.Equal(t, 0, fake.total())

	msgs, err := store.Messages(context.Background(), res.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.ChatRoleUser, msgs[0].Role)
	assert.Equal(t, models.ChatRoleAssistant, msgs[1].Role)
}

func TestTurnOffersAnalysisWhenGatePasses(t *testing.T) {
	fake := newRouted().on("chat_analyze",
		`{"has_sufficient_info":true,"missing_info":[],"extracted_symptoms":"headache, nausea","extracted_duration":"2 days","should_offer_analysis":true,"confidence_score":0.92}`)
	store := NewMemoryStore()
	m := newManager(fake, store, nil)

	res, err := m.Turn(context.Background(), "u1", "", "Headache and nausea for 2 days, can you tell me what it is?")
	require.NoError(t, err)
	assert.True(t, res.RequiresAnalysis)
	require.NotNil(t, res.AnalysisPrompt)
	assert.Equal(t, AnalysisPrompt, *res.AnalysisPrompt)
	assert.Equal(t, OfferMessage, res.Message.Content)
	assert.Equal(t, models.MessageTypeAnalysisOffer, res.Message.MessageType)
	assert.Equal(t, 0, fake.count("chat_reply"))

	session, err := store.GetSession(context.Background(), res.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "headache, nausea", session.Context["symptoms"])
	assert.Equal(t, "2 days", session.Context["duration"])
}

func TestTurnGateRequiresAllThreeSignals(t *testing.T) {
	cases := map[string]string{
		"confidence at threshold": `{"has_sufficient_info":true,"should_offer_analysis":true,"confidence_score":0.8}`,
		"insufficient info":       `{"has_sufficient_info":false,"should_offer_analysis":true,"confidence_score":0.95}`,
		"no offer requested":      `{"has_sufficient_info":true,"should_offer_analysis":false,"confidence_score":0.95}`,
	}
	for name, assessment := range cases {
		t.Run(name, func(t *testing.T) {
			fake := newRouted().
				on("chat_analyze", assessment).
				on("chat_reply", `{"response":"How long has it been going on?","update_context":{"symptoms":"headache"}}`)
			store := NewMemoryStore()
			m := newManager(fake, store, nil)

			res, err := m.Turn(context.Background(), "u1", "", "I have a headache")
			require.NoError(t, err)
			assert.False(t, res.RequiresAnalysis)
			assert.Nil(t, res.AnalysisPrompt)
			assert.Equal(t, "How long has it been going on?", res.Message.Content)
			assert.Equal(t, 1, fake.count("chat_reply"))

			session, err := store.GetSession(context.Background(), res.SessionID, "u1")
			require.NoError(t, err)
			assert.Equal(t, "headache", session.Context["symptoms"])
		})
	}
}

func TestTurnContinuesWhenAnalyzerFails(t *testing.T) {
	fake := newRouted().on("chat_reply", `{"response":"I'm sorry to hear that. When did it start?","update_context":"none"}`)
	fake.failures["chat_analyze"] = llm.NewProviderError(500, errors.New("boom"))
	m := newManager(fake, NewMemoryStore(), nil)

	res, err := m.Turn(context.Background(), "u1", "", "my knee hurts")
	require.NoError(t, err)
	assert.Equal(t, "I'm sorry to hear that. When did it start?", res.Message.Content)
	assert.False(t, res.RequiresAnalysis)
}

func TestTurnReplacesDosingReply(t *testing.T) {
	fake := newRouted().
		on("chat_analyze", `{"has_sufficient_info":false}`).
		on("chat_reply", `{"response":"You should take 400 mg of ibuprofen."}`)
	m := newManager(fake, NewMemoryStore(), nil)

	res, err := m.Turn(context.Background(), "u1", "", "my back hurts")
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, res.Message.Content)
}

func TestTurnSurfacesUnavailableProvider(t *testing.T) {
	fake := newRouted()
	fake.failures["chat_analyze"] = llm.NewProviderError(503, errors.New("down"))
	fake.failures["chat_reply"] = llm.NewProviderError(503, errors.New("down"))
	m := newManager(fake, NewMemoryStore(), nil)

	_, err := m.Turn(context.Background(), "u1", "", "my back hurts")
	var unavailable *llm.UnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestTurnRejectsForeignSession(t *testing.T) {
	store := NewMemoryStore()
	session, err := store.CreateSession(context.Background(), "owner", "mine")
	require.NoError(t, err)
	m := newManager(newRouted(), store, nil)

	_, err = m.Turn(context.Background(), "intruder", session.ID, "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = m.Turn(context.Background(), "owner", "", "   ")
	var verr *advice.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAnalyzeAppendsAdviceToTranscript(t *testing.T) {
	fake := newRouted().on("chat_extract",
		`{"symptoms":["sore throat","fever"],"duration":"3 days","medications":"ibuprofen","conditions":[],"age":"42","sex":"female"}`)
	store := NewMemoryStore()
	session, err := store.CreateSession(context.Background(), "u1", "sore throat")
	require.NoError(t, err)
	require.NoError(t, store.AddMessage(context.Background(), &models.ChatMessage{SessionID: session.ID, Role: models.ChatRoleUser, Content: "sore throat and fever for 3 days"}))

	advisor := &fakeAdvisor{out: &advice.StructuredAdvice{
		Advice:            []advice.Step{{Step: "Rest"}},
		PossibleDiagnosis: []string{"Viral pharyngitis", "Strep throat"},
	}}
	m := newManager(fake, store, advisor)

	out, err := m.Analyze(context.Background(), "u1", session.ID, "fhir-7")
	require.NoError(t, err)
	assert.Equal(t, advisor.out, out)

	assert.Equal(t, advice.Request{
		Age: 42, Sex: "female", Symptoms: "sore throat, fever", Duration: "3 days",
		Meds: []string{"ibuprofen"}, Conditions: []string{}, PatientID: "fhir-7",
	}, advisor.req)
	assert.Equal(t, advice.Options{UserID: "u1", UseRecord: true}, advisor.opts)

	msgs, err := store.Messages(context.Background(), session.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, models.MessageTypeAnalysisRequest, msgs[1].MessageType)
	assert.Equal(t, models.MessageTypeMedicalAdvice, msgs[2].MessageType)
	assert.Equal(t, "Analysis complete: Viral pharyngitis, Strep throat", msgs[2].Content)
	assert.Contains(t, msgs[2].Metadata, "analysis_data")
}

func TestAnalyzeFallsBackToSessionContext(t *testing.T) {
	fake := newRouted()
	fake.failures["chat_extract"] = llm.NewProviderError(502, errors.New("bad gateway"))
	store := NewMemoryStore()
	session, err := store.CreateSession(context.Background(), "u1", "cough")
	require.NoError(t, err)
	require.NoError(t, store.MergeContext(context.Background(), session.ID, map[string]interface{}{"symptom": "dry cough", "duration": "a week"}))

	advisor := &fakeAdvisor{out: &advice.StructuredAdvice{Advice: []advice.Step{{Step: "Rest"}}}}
	m := newManager(fake, store, advisor)

	_, err = m.Analyze(context.Background(), "u1", session.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "dry cough", advisor.req.Symptoms)
	assert.Equal(t, "a week", advisor.req.Duration)
	assert.Equal(t, DefaultAge, advisor.req.Age)

	msgs, err := store.Messages(context.Background(), session.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "Analysis complete: "+seeRecommendation, msgs[len(msgs)-1].Content)
}

func TestAnalyzeRecordsFailure(t *testing.T) {
	fake := newRouted().on("chat_extract", `{"symptoms":"rash"}`)
	store := NewMemoryStore()
	session, err := store.CreateSession(context.Background(), "u1", "rash")
	require.NoError(t, err)

	advisor := &fakeAdvisor{err: &llm.UnavailableError{Attempts: 3}}
	m := newManager(fake, store, advisor)

	_, err = m.Analyze(context.Background(), "u1", session.ID, "")
	require.Error(t, err)

	msgs, err := store.Messages(context.Background(), session.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.MessageTypeError, msgs[1].MessageType)
	assert.Equal(t, analysisFailed, msgs[1].Content)

	_, err = m.Analyze(context.Background(), "someone-else", session.ID, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAnalyzerPromptUsesRecentWindow(t *testing.T) {
	var history []models.ChatMessage
	for i := 0; i < 12; i++ {
		history = append(history, models.ChatMessage{Role: models.ChatRoleUser, Content: fmt.Sprintf("msg-%02d", i)})
	}
	msgs := buildAnalyzerPrompt(history, "latest")()
	body := msgs[1].Content
	assert.NotContains(t, body, "msg-03")
	assert.Contains(t, body, "msg-04")
	assert.True(t, strings.HasSuffix(body, "user: latest"))

	reply := buildResponderPrompt(history, models.JSONMap{"symptoms": "cough"}, "latest")()[1].Content
	assert.NotContains(t, reply, "msg-05")
	assert.Contains(t, reply, "msg-06")
	assert.Contains(t, reply, `Current known context: {"symptoms":"cough"}`)
}

func TestSessionsAreScopedToOwner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	mine, err := store.CreateSession(ctx, "u1", "first")
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "u2", "other")
	require.NoError(t, err)
	require.NoError(t, store.AddMessage(ctx, &models.ChatMessage{SessionID: mine.ID, Role: models.ChatRoleUser, Content: "hi"}))

	m := newManager(newRouted(), store, nil)
	sessions, err := m.Sessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, mine.ID, sessions[0].ID)

	full, err := m.Session(ctx, "u1", mine.ID)
	require.NoError(t, err)
	require.Len(t, full.Messages, 1)

	_, err = m.Session(ctx, "u2", mine.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
