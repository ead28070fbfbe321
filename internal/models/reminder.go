package models

import (
	"strings"
	"time"
)

// ReminderSource records who created a reminder.
type ReminderSource string

const (
	ReminderSourceManual ReminderSource = "manual"
	ReminderSourceAI     ReminderSource = "ai_suggestion"
)

// Reminder is a scheduled self-care reminder. One-off reminders fire on
// ScheduledDate; recurring ones follow RecurrencePattern.
type Reminder struct {
	BaseModel
	UserID              string         `gorm:"size:36;index;not null" json:"user_id"`
	Title               string         `gorm:"size:255;not null" json:"title"`
	Description         string         `gorm:"type:text" json:"description"`
	ReminderType        string         `gorm:"size:50;default:'custom'" json:"reminder_type"`
	ScheduledTime       string         `gorm:"size:5;not null" json:"scheduled_time"`
	ScheduledDate       *time.Time     `gorm:"type:date" json:"scheduled_date,omitempty"`
	DaysOfWeek          string         `gorm:"size:64" json:"days_of_week"`
	IsRecurring         bool           `gorm:"default:false" json:"is_recurring"`
	RecurrencePattern   string         `gorm:"size:20;default:'daily'" json:"recurrence_pattern"`
	IsActive            bool           `gorm:"default:true" json:"is_active"`
	IsCompleted         bool           `gorm:"default:false" json:"is_completed"`
	Source              ReminderSource `gorm:"size:50;default:'manual'" json:"source"`
	AISuggestionContext string         `gorm:"type:text" json:"ai_suggestion_context,omitempty"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

// IsDueOn reports whether an active reminder fires on day.
func (r *Reminder) IsDueOn(day time.Time) bool {
	if !r.IsActive {
		return false
	}
	if !r.IsRecurring {
		if r.ScheduledDate == nil {
			return false
		}
		y1, m1, d1 := r.ScheduledDate.Date()
		y2, m2, d2 := day.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}
	switch r.RecurrencePattern {
	case "daily", "":
		return true
	case "weekly":
		today := day.Weekday().String()[:3]
		for _, d := range strings.Split(r.DaysOfWeek, ",") {
			if strings.EqualFold(strings.TrimSpace(d), today) {
				return true
			}
		}
	}
	return false
}
