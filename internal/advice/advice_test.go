package advice

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptom-assistant-server/internal/ehr"
	"symptom-assistant-server/internal/knowledge"
	"symptom-assistant-server/internal/llm"
	"symptom-assistant-server/internal/symptoms"
	"symptom-assistant-server/internal/triage"
)

// countingCompleter replays canned replies and counts invocations.
type countingCompleter struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []llm.Request
}

func (c *countingCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}

func (c *countingCompleter) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *countingCompleter) prompt(i int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	for _, m := range c.requests[i].Messages {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

type recordedCall struct {
	userID   string
	analysis []symptoms.Analysis
	text     string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeRecorder) ExtractAndStore(_ context.Context, userID string, analysis []symptoms.Analysis, text, _ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{userID: userID, analysis: analysis, text: text})
	return len(analysis)
}

type profileStub struct {
	profile *ehr.Profile
	err     error
}

func (p profileStub) GetProfile(context.Context, string) (*ehr.Profile, error) {
	return p.profile, p.err
}

const headacheAdvice = `{"advice":[{"step":"Rest","details":"Lie down in a quiet, dark room."},{"step":"Hydrate","details":"Drink water regularly."}],` +
	`"when_to_seek_care":["Sudden severe headache","Headache with fever and stiff neck"],` +
	`"disclaimer":"This is not a diagnosis.",` +
	`"symptom_analysis":[{"symptom_name":"headache","intensity":3,"duration_minutes":240,"notes":"since this morning"}]}`

func newTestService(c llm.Completer, d Deps) *Service {
	d.Pipeline = llm.NewPipeline(c)
	d.Logger = zerolog.Nop()
	return NewService(d)
}

func TestAdviseEmergencySkipsProvider(t *testing.T) {
	fake := &countingCompleter{replies: []string{headacheAdvice}}
	svc := newTestService(fake, Deps{})

	_, err := svc.Advise(context.Background(), Request{Age: 34, Symptoms: "severe chest pain and shortness of breath"}, Options{})

	var emergency *EmergencyError
	require.ErrorAs(t, err, &emergency)
	assert.Equal(t, triage.RiskEmergency, emergency.Triage.Risk)
	assert.NotEmpty(t, emergency.Triage.RedFlags)
	assert.Equal(t, 0, fake.calls())
}

func TestAdviseReturnsProviderAdviceVerbatim(t *testing.T) {
	fake := &countingCompleter{replies: []string{headacheAdvice}}
	svc := newTestService(fake, Deps{})

	out, err := svc.Advise(context.Background(), Request{Age: 28, Symptoms: "mild headache since this morning"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, []Step{
		{Step: "Rest", Details: "Lie down in a quiet, dark room."},
		{Step: "Hydrate", Details: "Drink water regularly."},
	}, out.Advice)
	assert.Equal(t, "This is not a diagnosis.", out.Disclaimer)
	assert.Len(t, out.WhenToSeekCare, 2)
	assert.Equal(t, []string{}, out.PossibleDiagnosis)
	assert.Equal(t, []Citation{}, out.Sources)
	assert.False(t, out.RecordContextUsed)
	assert.Nil(t, out.KnowledgeSufficient)
	assert.Equal(t, 1, fake.calls())
}

func TestAdviseFencedJSONNeedsOneCall(t *testing.T) {
	fake := &countingCompleter{replies: []string{"Here you go:\n```json\n" + headacheAdvice + "\n```"}}
	svc := newTestService(fake, Deps{})

	out, err := svc.Advise(context.Background(), Request{Age: 28, Symptoms: "headache"}, Options{})
	require.NoError(t, err)
	assert.Len(t, out.Advice, 2)
	assert.Equal(t, 1, fake.calls())
}

func TestAdviseRejectsDosingInstructions(t *testing.T) {
	dosing := `{"advice":[{"step":"Pain relief","details":"Take 500 mg of paracetamol every 6 hours."}],"when_to_seek_care":[],"disclaimer":"Not a diagnosis."}`
	fake := &countingCompleter{replies: []string{dosing}}
	rec := &fakeRecorder{}
	svc := newTestService(fake, Deps{Recorder: rec})

	out, err := svc.Advise(context.Background(), Request{Age: 40, Symptoms: "back pain"}, Options{UserID: "u1"})
	require.Nil(t, out)

	var violation *PolicyViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "advice[0]", violation.Field)
	assert.Equal(t, policyMessage, err.Error())

	svc.Wait()
	assert.Empty(t, rec.calls)
}

func TestAdviseDefaultsMissingDisclaimer(t *testing.T) {
	fake := &countingCompleter{replies: []string{`{"advice":["Rest","Drink fluids"]}`}}
	svc := newTestService(fake, Deps{})

	out, err := svc.Advise(context.Background(), Request{Age: 30, Symptoms: "sore throat"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, triage.RoutineDisclaimer, out.Disclaimer)
	assert.Equal(t, []Step{{Step: "Rest"}, {Step: "Drink fluids"}}, out.Advice)
	assert.Equal(t, []string{}, out.WhenToSeekCare)
}

func TestAdviseMissingAdviceIsFormatError(t *testing.T) {
	fake := &countingCompleter{replies: []string{`{"disclaimer":"Not a diagnosis."}`}}
	svc := newTestService(fake, Deps{})

	_, err := svc.Advise(context.Background(), Request{Age: 30, Symptoms: "sore throat"}, Options{})
	var ferr *llm.FormatError
	require.ErrorAs(t, err, &ferr)
	assert.ErrorIs(t, err, ErrMissingAdvice)
}

func TestAdviseProviderDownIsUnavailable(t *testing.T) {
	fake := &countingCompleter{err: llm.NewProviderError(503, errors.New("upstream down"))}
	svc := newTestService(fake, Deps{})

	_, err := svc.Advise(context.Background(), Request{Age: 30, Symptoms: "sore throat"}, Options{})
	var uerr *llm.UnavailableError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 3, fake.calls())
}

func TestAdviseValidatesBeforeAnyCall(t *testing.T) {
	fake := &countingCompleter{replies: []string{headacheAdvice}}
	svc := newTestService(fake, Deps{})

	_, err := svc.Advise(context.Background(), Request{Age: -1, Symptoms: "cough"}, Options{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "age", verr.Field)

	_, err = svc.Advise(context.Background(), Request{Age: 20, Symptoms: "  "}, Options{})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "symptoms", verr.Field)
	assert.Equal(t, 0, fake.calls())
}

func TestAdviseTracksSymptomsForUser(t *testing.T) {
	fake := &countingCompleter{replies: []string{headacheAdvice, headacheAdvice}}
	rec := &fakeRecorder{}
	svc := newTestService(fake, Deps{Recorder: rec})

	_, err := svc.Advise(context.Background(), Request{Age: 28, Symptoms: "mild headache"}, Options{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.Advise(context.Background(), Request{Age: 28, Symptoms: "mild headache"}, Options{})
	require.NoError(t, err)
	svc.Wait()

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "u1", rec.calls[0].userID)
	assert.Equal(t, "mild headache", rec.calls[0].text)
	require.Len(t, rec.calls[0].analysis, 1)
	assert.Equal(t, symptoms.Analysis{SymptomName: "headache", Intensity: 3, DurationMinutes: 240, Notes: "since this morning"}, rec.calls[0].analysis[0])
}

func TestAdviseSeparatesRecordFromReportedData(t *testing.T) {
	age := 61
	records := ehr.NewAssembler(profileStub{profile: &ehr.Profile{
		Age:               &age,
		Gender:            "female",
		ActiveMedications: []ehr.MedicationInfo{{Name: "Warfarin"}},
		MedicalConditions: []ehr.ConditionInfo{{Name: "Atrial fibrillation"}},
	}}, nil, zerolog.Nop())
	fake := &countingCompleter{replies: []string{headacheAdvice}}
	svc := newTestService(fake, Deps{Records: records})

	req := Request{Age: 60, Symptoms: "dizziness", Conditions: []string{"migraine"}, PatientID: "p1"}
	out, err := svc.Advise(context.Background(), req, Options{UseRecord: true})
	require.NoError(t, err)
	assert.True(t, out.RecordContextUsed)

	prompt := fake.prompt(0)
	reported := prompt[strings.Index(prompt, "### PATIENT-REPORTED"):strings.Index(prompt, "### EHR")]
	history := prompt[strings.Index(prompt, "### EHR"):strings.Index(prompt, "### OUTPUT")]

	assert.Contains(t, reported, "Conditions: migraine")
	assert.NotContains(t, reported, "Warfarin")
	assert.Contains(t, history, "Current Medications (EHR): Warfarin")
	assert.Contains(t, history, "Existing Conditions (EHR): None reported")
	assert.Contains(t, history, "EHR Age: 61")
}

func TestAdviseWithoutRecordAvailable(t *testing.T) {
	records := ehr.NewAssembler(profileStub{err: errors.New("timeout")}, nil, zerolog.Nop())
	fake := &countingCompleter{replies: []string{headacheAdvice}}
	svc := newTestService(fake, Deps{Records: records})

	out, err := svc.Advise(context.Background(), Request{Age: 60, Symptoms: "dizziness", PatientID: "p1"}, Options{UseRecord: true})
	require.NoError(t, err)
	assert.False(t, out.RecordContextUsed)
	assert.Contains(t, fake.prompt(0), "No EHR data available")
}

func TestAdviseGroundsOnKnowledge(t *testing.T) {
	index := knowledge.NewMemoryIndex(
		knowledge.Article{PubMedID: "111", Title: "Tension headache management", Content: "Headache relief through rest and hydration.", Journal: "Cephalalgia", Year: "2023"},
		knowledge.Article{PubMedID: "222", Title: "Headache in adults", Content: "Primary headache evaluation.", Journal: "BMJ", Year: "2022"},
	)
	kn := knowledge.NewAssembler(index, nil, nil, knowledge.AssemblerConfig{TopK: 3, MinHits: 2}, nil, zerolog.Nop())
	fake := &countingCompleter{replies: []string{headacheAdvice}}
	svc := newTestService(fake, Deps{Knowledge: kn})

	out, err := svc.Advise(context.Background(), Request{Age: 30, Symptoms: "headache"}, Options{})
	require.NoError(t, err)
	require.NotNil(t, out.KnowledgeSufficient)
	assert.True(t, *out.KnowledgeSufficient)
	assert.Len(t, out.Sources, 2)
	assert.Contains(t, fake.prompt(0), "sole factual basis")
	assert.Contains(t, fake.prompt(0), "PMID 111")
}

func TestAdviseInstructsRefusalOnInsufficientKnowledge(t *testing.T) {
	kn := knowledge.NewAssembler(knowledge.NewMemoryIndex(), nil, nil, knowledge.AssemblerConfig{}, nil, zerolog.Nop())
	fake := &countingCompleter{replies: []string{headacheAdvice}}
	svc := newTestService(fake, Deps{Knowledge: kn})

	out, err := svc.Advise(context.Background(), Request{Age: 30, Symptoms: "itchy elbow"}, Options{})
	require.NoError(t, err)
	require.NotNil(t, out.KnowledgeSufficient)
	assert.False(t, *out.KnowledgeSufficient)
	assert.Contains(t, fake.prompt(0), insufficientKnowledgeReply)
}

func TestReferralNormalizesOutput(t *testing.T) {
	fake := &countingCompleter{replies: []string{`{"suggested_specialties":[{"name":"Pulmonology","reason":"Chronic cough"}],"priority":"URGENT"}`}}
	svc := newTestService(fake, Deps{})

	ref, err := svc.Referral(context.Background(), Request{Age: 55, Symptoms: "chronic cough for 3 months"})
	require.NoError(t, err)
	assert.Equal(t, "urgent", ref.Priority)
	assert.Equal(t, []string{}, ref.PreReferralWorkup)
	assert.Equal(t, "Pulmonology", ref.SuggestedSpecialties[0].Name)
}

func TestReferralEmergencySkipsProvider(t *testing.T) {
	fake := &countingCompleter{}
	svc := newTestService(fake, Deps{})

	_, err := svc.Referral(context.Background(), Request{Age: 55, Symptoms: "face drooping and slurred speech"})
	var emergency *EmergencyError
	require.ErrorAs(t, err, &emergency)
	assert.Equal(t, 0, fake.calls())
}

func TestRxDraftFillsEmptyLists(t *testing.T) {
	fake := &countingCompleter{replies: []string{`{"candidates":[{"drug_class":"Antihistamine","example":"cetirizine","use_case":"Allergic rhinitis"}],"notes":"Draft for clinician review."}`}}
	svc := newTestService(fake, Deps{})

	draft, err := svc.RxDraft(context.Background(), Request{Age: 25, Symptoms: "sneezing and itchy eyes"})
	require.NoError(t, err)
	require.Len(t, draft.Candidates, 1)
	assert.Equal(t, []string{}, draft.Candidates[0].Contraindications)
	assert.Equal(t, []string{}, draft.Candidates[0].Monitoring)
}

func TestDecodeAdviceIsLenient(t *testing.T) {
	out, err := decodeAdvice(json.RawMessage(`{
		"advice": [{"title":"Rest","description":"Sleep early"}, 42, {}],
		"when_to_seek_care": "If it gets worse",
		"possible_diagnosis": null,
		"symptom_analysis": {"symptoms":[{"name":"cough","severity":"6","duration":"120"}]},
		"reminders": [{"title":"Drink water","priority":"URGENT"},{"description":"no title"}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, []Step{{Step: "Rest", Details: "Sleep early"}}, out.Advice)
	assert.Equal(t, []string{"If it gets worse"}, out.WhenToSeekCare)
	assert.Equal(t, []string{}, out.PossibleDiagnosis)
	assert.Equal(t, []symptoms.Analysis{{SymptomName: "cough", Intensity: 6, DurationMinutes: 120}}, out.SymptomAnalysis)
	assert.Equal(t, []ReminderSuggestion{{Title: "Drink water", Priority: "medium"}}, out.ReminderSuggestions)
}

func TestDecodeAdviceRejectsNonListAdvice(t *testing.T) {
	_, err := decodeAdvice(json.RawMessage(`{"advice":"rest"}`))
	assert.ErrorIs(t, err, ErrMissingAdvice)
}

func TestDecodeAdviceRejectsEmptyAdvice(t *testing.T) {
	for _, raw := range []string{`{"advice":[]}`, `{"advice":[{"step":"","details":""}]}`} {
		_, err := decodeAdvice(json.RawMessage(raw))
		var format *llm.FormatError
		require.ErrorAs(t, err, &format, raw)
		assert.ErrorIs(t, err, ErrMissingAdvice, raw)
	}
}

func TestContainsDosing(t *testing.T) {
	cases := map[string]bool{
		"Take 500 mg of ibuprofen":                true,
		"take two tablets after meals":            true,
		"Increase the dose to 10 ml":              true,
		"Start with 1 capsule":                    true,
		"Rest and drink fluids":                   false,
		"Take a warm bath":                        false,
		"Avoid screens for 2 hours":               false,
		"Ask your pharmacist about the 5 mg form": false,
		"Take 500mg of ibuprofen":                 true,
		"Take ibuprofen 400mg every 6 hours":      true,
		"start 10ml twice daily":                  true,
		"take 2x200mg":                            true,
		"Take notes in your html journal":         false,
	}
	for text, want := range cases {
		assert.Equal(t, want, ContainsDosing(text), text)
	}
}

func TestCheckPatientSafetyScansEachField(t *testing.T) {
	a := &StructuredAdvice{
		Advice:         []Step{{Step: "Rest", Details: "Take it easy"}},
		WhenToSeekCare: []string{"If pain persists, increase to 2 pills"},
	}
	err := CheckPatientSafety(a)
	var violation *PolicyViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "when_to_seek_care[0]", violation.Field)

	// Verb and unit in different fields do not combine.
	a = &StructuredAdvice{
		Advice:         []Step{{Step: "Rest", Details: "Take it easy"}},
		WhenToSeekCare: []string{"Temperature above 39 C or 5 ml of blood in vomit"},
	}
	assert.NoError(t, CheckPatientSafety(a))

	a = &StructuredAdvice{
		Advice:          []Step{{Step: "Rest", Details: "Lie down"}},
		SymptomAnalysis: []symptoms.Analysis{{SymptomName: "headache", Intensity: 4, Notes: "take 400 mg ibuprofen"}},
	}
	require.ErrorAs(t, CheckPatientSafety(a), &violation)
	assert.Equal(t, "symptom_analysis[0].notes", violation.Field)
}
