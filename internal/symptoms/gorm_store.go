package symptoms

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"symptom-assistant-server/internal/models"
)

const dateLayout = "2006-01-02"

// GormStore persists records in MySQL.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Record inserts the intensity row and upserts the monthly counter in one
// transaction. The counter is incremented in SQL so concurrent reports for the
// same key are never lost.
func (s *GormStore) Record(ctx context.Context, userID string, a Analysis, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := models.SymptomIntensity{
			UserID:          userID,
			SymptomName:     a.SymptomName,
			Intensity:       a.Intensity,
			DurationMinutes: a.DurationMinutes,
			Notes:           a.Notes,
			ReportedAt:      at,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert symptom intensity: %w", err)
		}

		freq := models.SymptomFrequency{
			UserID:          userID,
			SymptomName:     a.SymptomName,
			MonthYear:       models.MonthStart(at),
			OccurrenceCount: 1,
			LastOccurrence:  at,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "symptom_name"}, {Name: "month_year"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"occurrence_count": gorm.Expr("occurrence_count + 1"),
				"last_occurrence":  at,
			}),
		}).Create(&freq).Error
		if err != nil {
			return fmt.Errorf("upsert symptom frequency: %w", err)
		}
		return nil
	})
}

func (s *GormStore) IntensityHistory(ctx context.Context, userID string, since time.Time) ([]DailyIntensity, error) {
	var rows []struct {
		SymptomName  string
		Day          time.Time
		AvgIntensity float64
		Occurrences  int64
		AvgDuration  float64
	}
	err := s.db.WithContext(ctx).Model(&models.SymptomIntensity{}).
		Select("symptom_name, DATE(reported_at) AS day, AVG(intensity) AS avg_intensity, COUNT(*) AS occurrences, AVG(duration_minutes) AS avg_duration").
		Where("user_id = ? AND reported_at >= ?", userID, since).
		Group("symptom_name, DATE(reported_at)").
		Order("day DESC, symptom_name").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query intensity history: %w", err)
	}

	out := make([]DailyIntensity, 0, len(rows))
	for _, r := range rows {
		out = append(out, DailyIntensity{
			SymptomName:  r.SymptomName,
			Date:         r.Day.Format(dateLayout),
			AvgIntensity: r.AvgIntensity,
			Occurrences:  r.Occurrences,
			AvgDuration:  r.AvgDuration,
		})
	}
	return out, nil
}

func (s *GormStore) Frequency(ctx context.Context, userID string, since time.Time) ([]FrequencyTotal, error) {
	var out []FrequencyTotal
	err := s.db.WithContext(ctx).Model(&models.SymptomFrequency{}).
		Select("symptom_name, SUM(occurrence_count) AS total_occurrences, MAX(last_occurrence) AS last_occurrence").
		Where("user_id = ? AND month_year >= ?", userID, models.MonthStart(since)).
		Group("symptom_name").
		Order("total_occurrences DESC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query symptom frequency: %w", err)
	}
	if out == nil {
		out = []FrequencyTotal{}
	}
	return out, nil
}

func (s *GormStore) Recent(ctx context.Context, userID string, limit int) ([]models.SymptomIntensity, error) {
	var out []models.SymptomIntensity
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("reported_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query recent symptoms: %w", err)
	}
	return out, nil
}

func (s *GormStore) Summary(ctx context.Context, userID string) (Summary, error) {
	var sum Summary
	db := s.db.WithContext(ctx)

	if err := db.Model(&models.SymptomIntensity{}).Where("user_id = ?", userID).Count(&sum.TotalRecorded).Error; err != nil {
		return sum, fmt.Errorf("count symptoms: %w", err)
	}

	var frequent struct {
		SymptomName string
		Total       int64
	}
	err := db.Model(&models.SymptomFrequency{}).
		Select("symptom_name, SUM(occurrence_count) AS total").
		Where("user_id = ?", userID).
		Group("symptom_name").
		Order("total DESC").
		Limit(1).
		Scan(&frequent).Error
	if err != nil {
		return sum, fmt.Errorf("query most frequent symptom: %w", err)
	}
	if frequent.SymptomName != "" {
		sum.MostFrequentSymptom = &frequent.SymptomName
		sum.MostFrequentCount = frequent.Total
	}

	var intense struct {
		SymptomName  string
		MaxIntensity int
	}
	err = db.Model(&models.SymptomIntensity{}).
		Select("symptom_name, MAX(intensity) AS max_intensity").
		Where("user_id = ?", userID).
		Group("symptom_name").
		Order("max_intensity DESC").
		Limit(1).
		Scan(&intense).Error
	if err != nil {
		return sum, fmt.Errorf("query highest intensity symptom: %w", err)
	}
	if intense.SymptomName != "" {
		sum.HighestIntensitySymptom = &intense.SymptomName
		sum.HighestIntensityValue = intense.MaxIntensity
	}
	return sum, nil
}
