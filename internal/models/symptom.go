package models

import (
	"time"
)

// SymptomIntensity is one reported symptom. Rows are append-only.
type SymptomIntensity struct {
	BaseModel
	UserID          string    `gorm:"size:36;index:idx_intensity_user_time,priority:1;not null" json:"user_id"`
	SymptomName     string    `gorm:"size:100;not null" json:"symptom_name"`
	Intensity       int       `gorm:"not null" json:"intensity"`
	DurationMinutes int       `gorm:"not null;default:1" json:"duration_minutes"`
	Notes           string    `gorm:"type:text" json:"notes"`
	ReportedAt      time.Time `gorm:"index:idx_intensity_user_time,priority:2;not null" json:"reported_at"`
}

// SymptomFrequency counts occurrences per user, symptom and calendar month.
// MonthYear is always the first day of the month.
type SymptomFrequency struct {
	BaseModel
	UserID          string    `gorm:"size:36;uniqueIndex:idx_frequency_key,priority:1;not null" json:"user_id"`
	SymptomName     string    `gorm:"size:100;uniqueIndex:idx_frequency_key,priority:2;not null" json:"symptom_name"`
	MonthYear       time.Time `gorm:"type:date;uniqueIndex:idx_frequency_key,priority:3;not null" json:"month_year"`
	OccurrenceCount int       `gorm:"not null;default:1" json:"occurrence_count"`
	LastOccurrence  time.Time `json:"last_occurrence"`
}

// MonthStart returns the first day of t's month at midnight UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
