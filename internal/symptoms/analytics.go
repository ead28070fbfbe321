package symptoms

import (
	"context"
	"time"

	"symptom-assistant-server/internal/models"
)

var chartColors = []string{
	"#3B82F6", "#EF4444", "#10B981", "#F59E0B",
	"#8B5CF6", "#EC4899", "#06B6D4", "#84CC16",
}

// ChartPoint is one day on a symptom's intensity line.
type ChartPoint struct {
	Date        string  `json:"date"`
	Intensity   float64 `json:"intensity"`
	Occurrences int64   `json:"occurrences"`
}

type ChartSeries struct {
	Name  string       `json:"name"`
	Data  []ChartPoint `json:"data"`
	Color string       `json:"color"`
}

// IntensityChart has one series per symptom, each covering every date.
type IntensityChart struct {
	Dates    []string               `json:"dates"`
	Symptoms map[string]ChartSeries `json:"symptoms"`
}

type FrequencySlice struct {
	Symptom   string `json:"symptom"`
	Frequency int64  `json:"frequency"`
}

// Trends bundles every analytics view for one period.
type Trends struct {
	IntensityHistory []DailyIntensity          `json:"intensity_history"`
	FrequencyData    []FrequencyTotal          `json:"frequency_data"`
	RecentSymptoms   []models.SymptomIntensity `json:"recent_symptoms"`
	Summary          Summary                   `json:"summary"`
	PeriodDays       int                       `json:"period_days"`
}

// Analytics serves read-only views over one user's records.
type Analytics struct {
	store Store
	now   func() time.Time
}

func NewAnalytics(store Store) *Analytics {
	return &Analytics{store: store, now: time.Now}
}

func (a *Analytics) today() time.Time {
	n := a.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())
}

// Intensity returns the chart for the last days days, today included.
func (a *Analytics) Intensity(ctx context.Context, userID string, days int) (IntensityChart, error) {
	if days < 1 {
		days = 1
	}
	start := a.today().AddDate(0, 0, -(days - 1))
	history, err := a.store.IntensityHistory(ctx, userID, start)
	if err != nil {
		return IntensityChart{}, err
	}
	return BuildIntensityChart(history, start, days), nil
}

// BuildIntensityChart fills missing days with zero points. Series colours
// follow the order symptoms first appear in history.
func BuildIntensityChart(history []DailyIntensity, start time.Time, days int) IntensityChart {
	chart := IntensityChart{Dates: make([]string, 0, days), Symptoms: map[string]ChartSeries{}}
	for i := 0; i < days; i++ {
		chart.Dates = append(chart.Dates, start.AddDate(0, 0, i).Format(dateLayout))
	}

	order := []string{}
	byDay := map[string]map[string]DailyIntensity{}
	for _, h := range history {
		if _, ok := byDay[h.SymptomName]; !ok {
			byDay[h.SymptomName] = map[string]DailyIntensity{}
			order = append(order, h.SymptomName)
		}
		byDay[h.SymptomName][h.Date] = h
	}

	for i, name := range order {
		points := make([]ChartPoint, 0, days)
		for _, d := range chart.Dates {
			p := ChartPoint{Date: d}
			if h, ok := byDay[name][d]; ok {
				p.Intensity = h.AvgIntensity
				p.Occurrences = h.Occurrences
			}
			points = append(points, p)
		}
		chart.Symptoms[name] = ChartSeries{Name: name, Data: points, Color: chartColors[i%len(chartColors)]}
	}
	return chart
}

// Frequency returns occurrence totals for the last months months, most
// frequent first.
func (a *Analytics) Frequency(ctx context.Context, userID string, months int) ([]FrequencySlice, error) {
	if months < 0 {
		months = 0
	}
	totals, err := a.store.Frequency(ctx, userID, a.today().AddDate(0, -months, 0))
	if err != nil {
		return nil, err
	}
	sortFrequency(totals)
	out := make([]FrequencySlice, 0, len(totals))
	for _, t := range totals {
		out = append(out, FrequencySlice{Symptom: t.SymptomName, Frequency: t.TotalOccurrences})
	}
	return out, nil
}

func (a *Analytics) Summary(ctx context.Context, userID string) (Summary, error) {
	return a.store.Summary(ctx, userID)
}

func (a *Analytics) Recent(ctx context.Context, userID string, limit int) ([]models.SymptomIntensity, error) {
	if limit <= 0 {
		limit = 10
	}
	return a.store.Recent(ctx, userID, limit)
}

func (a *Analytics) Trends(ctx context.Context, userID string, periodDays int) (Trends, error) {
	if periodDays < 1 {
		periodDays = 30
	}
	start := a.today().AddDate(0, 0, -(periodDays - 1))
	var (
		t   = Trends{PeriodDays: periodDays}
		err error
	)
	if t.IntensityHistory, err = a.store.IntensityHistory(ctx, userID, start); err != nil {
		return Trends{}, err
	}
	if t.FrequencyData, err = a.store.Frequency(ctx, userID, a.today().AddDate(0, -(periodDays/30), 0)); err != nil {
		return Trends{}, err
	}
	if t.RecentSymptoms, err = a.store.Recent(ctx, userID, 20); err != nil {
		return Trends{}, err
	}
	if t.Summary, err = a.store.Summary(ctx, userID); err != nil {
		return Trends{}, err
	}
	return t, nil
}
