package symptoms

import (
	"context"
	"sort"
	"sync"
	"time"

	"symptom-assistant-server/internal/models"
)

// DailyIntensity aggregates one symptom's records for one calendar day.
type DailyIntensity struct {
	SymptomName  string  `json:"symptom_name"`
	Date         string  `json:"date"`
	AvgIntensity float64 `json:"daily_avg_intensity"`
	Occurrences  int64   `json:"daily_occurrences"`
	AvgDuration  float64 `json:"avg_duration"`
}

// FrequencyTotal sums monthly occurrence counts for one symptom.
type FrequencyTotal struct {
	SymptomName      string    `json:"symptom_name"`
	TotalOccurrences int64     `json:"total_occurrences"`
	LastOccurrence   time.Time `json:"last_occurrence"`
}

// Summary is the per-user overview.
type Summary struct {
	TotalRecorded           int64   `json:"total_symptoms_recorded"`
	MostFrequentSymptom     *string `json:"most_frequent_symptom"`
	MostFrequentCount       int64   `json:"most_frequent_count"`
	HighestIntensitySymptom *string `json:"highest_intensity_symptom"`
	HighestIntensityValue   int     `json:"highest_intensity_value"`
}

// Store persists symptom records. Record must write the intensity row and
// bump the monthly frequency counter atomically.
type Store interface {
	Record(ctx context.Context, userID string, a Analysis, at time.Time) error
	IntensityHistory(ctx context.Context, userID string, since time.Time) ([]DailyIntensity, error)
	Frequency(ctx context.Context, userID string, since time.Time) ([]FrequencyTotal, error)
	Recent(ctx context.Context, userID string, limit int) ([]models.SymptomIntensity, error)
	Summary(ctx context.Context, userID string) (Summary, error)
}

type frequencyKey struct {
	userID  string
	symptom string
	month   time.Time
}

// MemoryStore keeps records in process.
type MemoryStore struct {
	mu          sync.Mutex
	intensities []models.SymptomIntensity
	frequencies map[frequencyKey]*models.SymptomFrequency
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{frequencies: map[frequencyKey]*models.SymptomFrequency{}}
}

func (m *MemoryStore) Record(_ context.Context, userID string, a Analysis, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := models.SymptomIntensity{
		UserID:          userID,
		SymptomName:     a.SymptomName,
		Intensity:       a.Intensity,
		DurationMinutes: a.DurationMinutes,
		Notes:           a.Notes,
		ReportedAt:      at,
	}
	rec.CreatedAt = at
	rec.UpdatedAt = at
	m.intensities = append(m.intensities, rec)

	key := frequencyKey{userID: userID, symptom: a.SymptomName, month: models.MonthStart(at)}
	if f, ok := m.frequencies[key]; ok {
		f.OccurrenceCount++
		f.LastOccurrence = at
		return nil
	}
	m.frequencies[key] = &models.SymptomFrequency{
		UserID:          userID,
		SymptomName:     a.SymptomName,
		MonthYear:       key.month,
		OccurrenceCount: 1,
		LastOccurrence:  at,
	}
	return nil
}

// Count returns the monthly occurrence count for one key.
func (m *MemoryStore) Count(userID, symptom string, at time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.frequencies[frequencyKey{userID: userID, symptom: symptom, month: models.MonthStart(at)}]; ok {
		return f.OccurrenceCount
	}
	return 0
}

func (m *MemoryStore) IntensityHistory(_ context.Context, userID string, since time.Time) ([]DailyIntensity, error) {
	type dayKey struct{ symptom, date string }
	type acc struct{ intensity, duration, n int64 }

	m.mu.Lock()
	sums := map[dayKey]*acc{}
	for _, r := range m.intensities {
		if r.UserID != userID || r.ReportedAt.Before(since) {
			continue
		}
		k := dayKey{r.SymptomName, r.ReportedAt.Format(dateLayout)}
		a, ok := sums[k]
		if !ok {
			a = &acc{}
			sums[k] = a
		}
		a.intensity += int64(r.Intensity)
		a.duration += int64(r.DurationMinutes)
		a.n++
	}
	m.mu.Unlock()

	out := make([]DailyIntensity, 0, len(sums))
	for k, a := range sums {
		out = append(out, DailyIntensity{
			SymptomName:  k.symptom,
			Date:         k.date,
			AvgIntensity: float64(a.intensity) / float64(a.n),
			Occurrences:  a.n,
			AvgDuration:  float64(a.duration) / float64(a.n),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].SymptomName < out[j].SymptomName
	})
	return out, nil
}

func (m *MemoryStore) Frequency(_ context.Context, userID string, since time.Time) ([]FrequencyTotal, error) {
	m.mu.Lock()
	totals := map[string]*FrequencyTotal{}
	for k, f := range m.frequencies {
		if k.userID != userID || k.month.Before(models.MonthStart(since)) {
			continue
		}
		t, ok := totals[k.symptom]
		if !ok {
			t = &FrequencyTotal{SymptomName: k.symptom}
			totals[k.symptom] = t
		}
		t.TotalOccurrences += int64(f.OccurrenceCount)
		if f.LastOccurrence.After(t.LastOccurrence) {
			t.LastOccurrence = f.LastOccurrence
		}
	}
	m.mu.Unlock()

	out := make([]FrequencyTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sortFrequency(out)
	return out, nil
}

func (m *MemoryStore) Recent(_ context.Context, userID string, limit int) ([]models.SymptomIntensity, error) {
	m.mu.Lock()
	out := []models.SymptomIntensity{}
	for _, r := range m.intensities {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].ReportedAt.After(out[j].ReportedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Summary(ctx context.Context, userID string) (Summary, error) {
	var s Summary
	freq, _ := m.Frequency(ctx, userID, time.Time{})
	if len(freq) > 0 {
		name := freq[0].SymptomName
		s.MostFrequentSymptom = &name
		s.MostFrequentCount = freq[0].TotalOccurrences
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.intensities {
		if r.UserID != userID {
			continue
		}
		s.TotalRecorded++
		if r.Intensity > s.HighestIntensityValue {
			name := r.SymptomName
			s.HighestIntensitySymptom = &name
			s.HighestIntensityValue = r.Intensity
		}
	}
	return s, nil
}

func sortFrequency(out []FrequencyTotal) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalOccurrences != out[j].TotalOccurrences {
			return out[i].TotalOccurrences > out[j].TotalOccurrences
		}
		return out[i].SymptomName < out[j].SymptomName
	})
}
