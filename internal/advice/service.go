package advice

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"symptom-assistant-server/internal/ehr"
	"symptom-assistant-server/internal/knowledge"
	"symptom-assistant-server/internal/llm"
	"symptom-assistant-server/internal/observability"
	"symptom-assistant-server/internal/symptoms"
	"symptom-assistant-server/internal/triage"
)

// SymptomRecorder persists symptom analysis for a user.
type SymptomRecorder interface {
	ExtractAndStore(ctx context.Context, userID string, analysis []symptoms.Analysis, symptomsText, durationText string) int
}

// Deps wires the service. Records, Knowledge and Recorder are optional.
type Deps struct {
	Pipeline   *llm.Pipeline
	Classifier *triage.Classifier
	Records    *ehr.Assembler
	Knowledge  *knowledge.Assembler
	Recorder   SymptomRecorder
	Metrics    *observability.Metrics
	Logger     zerolog.Logger
}

// Options tune a single Advise call.
type Options struct {
	// UserID enables symptom tracking for an authenticated caller.
	UserID string
	// UseRecord merges the patient's EHR record into the prompt.
	UseRecord bool
}

type Service struct {
	pipeline   *llm.Pipeline
	classifier *triage.Classifier
	records    *ehr.Assembler
	knowledge  *knowledge.Assembler
	recorder   SymptomRecorder
	metrics    *observability.Metrics
	logger     zerolog.Logger

	tracking sync.WaitGroup
}

func NewService(d Deps) *Service {
	if d.Classifier == nil {
		d.Classifier = triage.NewClassifier()
	}
	return &Service{
		pipeline:   d.Pipeline,
		classifier: d.Classifier,
		records:    d.Records,
		knowledge:  d.Knowledge,
		recorder:   d.Recorder,
		metrics:    d.Metrics,
		logger:     d.Logger,
	}
}

// Triage classifies text and records the result.
func (s *Service) Triage(text string) triage.Result {
	res := s.classifier.Classify(text)
	s.metrics.TriageResult(string(res.Risk))
	return res
}

// Advise returns filtered structured advice or one of *EmergencyError,
// *PolicyViolationError, *ValidationError, *llm.FormatError, *llm.UnavailableError.
func (s *Service) Advise(ctx context.Context, req Request, opts Options) (*StructuredAdvice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if res := s.Triage(req.Symptoms); res.IsEmergency() {
		s.logger.Info().Strs("red_flags", res.RedFlags).Msg("emergency triage, advice withheld")
		return nil, &EmergencyError{Triage: res}
	}

	in := promptInput{req: req}
	g, gctx := errgroup.WithContext(ctx)
	if opts.UseRecord {
		g.Go(func() error {
			var rc ehr.RecordContext
			if s.records != nil {
				rc = s.records.Assemble(gctx, req.PatientID, req.Meds, req.Conditions)
			}
			in.record = &rc
			return nil
		})
	}
	if s.knowledge != nil {
		g.Go(func() error {
			kc := s.knowledge.Retrieve(gctx, req.Symptoms)
			in.knowledge = &kc
			return nil
		})
	}
	_ = g.Wait()

	obj, err := s.pipeline.Obtain(ctx, "advice", buildAdvicePrompt(in))
	if err != nil {
		return nil, err
	}
	out, err := decodeAdvice(obj)
	if err != nil {
		s.metrics.PipelineResult("format_error")
		return nil, err
	}

	if err := CheckPatientSafety(out); err != nil {
		s.metrics.PipelineResult("policy_violation")
		s.logger.Warn().Err(err).Str("field", err.(*PolicyViolationError).Field).Msg("dosing language in patient advice, response rejected")
		return nil, err
	}

	out.RecordContextUsed = in.record != nil && in.record.Available
	if in.knowledge != nil {
		out.Sources = citationsFrom(in.knowledge.Excerpts)
		sufficient := !in.knowledge.Insufficient
		out.KnowledgeSufficient = &sufficient
	}

	if opts.UserID != "" && s.recorder != nil {
		s.track(ctx, opts.UserID, out.SymptomAnalysis, req.Symptoms, req.Duration)
	}
	return out, nil
}

func (s *Service) track(ctx context.Context, userID string, analysis []symptoms.Analysis, text, duration string) {
	entries := make([]symptoms.Analysis, len(analysis))
	copy(entries, analysis)
	bg := context.WithoutCancel(ctx)

	s.tracking.Add(1)
	go func() {
		defer s.tracking.Done()
		stored := s.recorder.ExtractAndStore(bg, userID, entries, text, duration)
		s.logger.Debug().Str("user_id", userID).Int("stored", stored).Msg("symptoms tracked")
	}()
}

// Wait blocks until background symptom tracking has finished.
func (s *Service) Wait() {
	s.tracking.Wait()
}

// Referral drafts a specialist referral for a clinician.
func (s *Service) Referral(ctx context.Context, req Request) (*Referral, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if res := s.Triage(req.Symptoms); res.IsEmergency() {
		return nil, &EmergencyError{Triage: res}
	}

	var out Referral
	if err := s.pipeline.Decode(ctx, "referral", buildReferralPrompt(req), &out); err != nil {
		return nil, err
	}
	if out.SuggestedSpecialties == nil {
		out.SuggestedSpecialties = []Specialty{}
	}
	if out.PreReferralWorkup == nil {
		out.PreReferralWorkup = []string{}
	}
	out.Priority = normalizeReferralPriority(out.Priority)
	return &out, nil
}

// RxDraft drafts medication classes for a clinician.
func (s *Service) RxDraft(ctx context.Context, req Request) (*RxDraft, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if res := s.Triage(req.Symptoms); res.IsEmergency() {
		return nil, &EmergencyError{Triage: res}
	}

	var out RxDraft
	if err := s.pipeline.Decode(ctx, "rx_draft", buildRxDraftPrompt(req), &out); err != nil {
		return nil, err
	}
	if out.Candidates == nil {
		out.Candidates = []RxCandidate{}
	}
	for i := range out.Candidates {
		if out.Candidates[i].Contraindications == nil {
			out.Candidates[i].Contraindications = []string{}
		}
		if out.Candidates[i].Monitoring == nil {
			out.Candidates[i].Monitoring = []string{}
		}
	}
	return &out, nil
}
