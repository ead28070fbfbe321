package symptoms

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"symptom-assistant-server/internal/observability"
)

// Record sources, as reported in metrics.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Tracker stores symptom analysis, falling back to keyword estimates when the
// model gave none.
type Tracker struct {
	store   Store
	metrics *observability.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewTracker(store Store, metrics *observability.Metrics, logger zerolog.Logger) *Tracker {
	return &Tracker{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// ExtractAndStore persists each valid entry and returns how many were stored.
// Invalid entries and failed writes are skipped; one never aborts the batch.
func (t *Tracker) ExtractAndStore(ctx context.Context, userID string, analysis []Analysis, symptomsText, durationText string) int {
	source := SourceModel
	entries := analysis
	if len(entries) == 0 {
		source = SourceFallback
		entries = FallbackAnalysis(symptomsText, durationText)
	}

	stored := 0
	at := t.now()
	for _, entry := range entries {
		a, err := entry.Normalize()
		if err != nil {
			t.metrics.SymptomRecord(source, "invalid")
			t.logger.Debug().Err(err).Str("symptom", entry.SymptomName).Msg("skipping symptom entry")
			continue
		}
		if err := t.store.Record(ctx, userID, a, at); err != nil {
			t.metrics.SymptomRecord(source, "error")
			t.logger.Error().Err(err).Str("user_id", userID).Str("symptom", a.SymptomName).Msg("failed to store symptom")
			continue
		}
		t.metrics.SymptomRecord(source, "stored")
		stored++
	}
	return stored
}
