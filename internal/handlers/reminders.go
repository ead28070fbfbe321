package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"symptom-assistant-server/internal/models"
	"symptom-assistant-server/internal/utils"
)

const dateLayout = "2006-01-02"

var weekdays = map[string]bool{"mon": true, "tue": true, "wed": true, "thu": true, "fri": true, "sat": true, "sun": true}

// ReminderHandler handles self-care reminder requests.
type ReminderHandler struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewReminderHandler creates a new ReminderHandler.
func NewReminderHandler(db *gorm.DB) *ReminderHandler {
	return &ReminderHandler{DB: db, Now: time.Now}
}

// ReminderRequest is the body for creating or replacing a reminder.
type ReminderRequest struct {
	Title               string `json:"title" binding:"required,max=255"`
	Description         string `json:"description"`
	ReminderType        string `json:"reminder_type" binding:"omitempty,oneof=medication hydration exercise appointment symptom_check custom"`
	ScheduledTime       string `json:"scheduled_time" binding:"required"`
	ScheduledDate       string `json:"scheduled_date"`
	DaysOfWeek          string `json:"days_of_week"`
	IsRecurring         bool   `json:"is_recurring"`
	RecurrencePattern   string `json:"recurrence_pattern" binding:"omitempty,oneof=daily weekly"`
	Source              string `json:"source" binding:"omitempty,oneof=manual ai_suggestion"`
	AISuggestionContext string `json:"ai_suggestion_context"`
}

// apply validates the schedule and copies the request onto r.
func (req ReminderRequest) apply(r *models.Reminder) error {
	if _, err := time.Parse("15:04", req.ScheduledTime); err != nil {
		return errors.New("scheduled_time must be HH:MM")
	}

	r.ScheduledDate = nil
	if req.ScheduledDate != "" {
		d, err := time.Parse(dateLayout, req.ScheduledDate)
		if err != nil {
			return errors.New("scheduled_date must be YYYY-MM-DD")
		}
		r.ScheduledDate = &d
	}
	if !req.IsRecurring && r.ScheduledDate == nil {
		return errors.New("scheduled_date is required for one-off reminders")
	}

	pattern := req.RecurrencePattern
	if pattern == "" {
		pattern = "daily"
	}
	var days []string
	for _, d := range strings.Split(req.DaysOfWeek, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if !weekdays[strings.ToLower(d)] {
			return errors.New("days_of_week must list days as Mon,Tue,...")
		}
		days = append(days, strings.ToUpper(d[:1])+strings.ToLower(d[1:]))
	}
	if req.IsRecurring && pattern == "weekly" && len(days) == 0 {
		return errors.New("days_of_week is required for weekly reminders")
	}

	r.Title = strings.TrimSpace(req.Title)
	r.Description = req.Description
	r.ReminderType = req.ReminderType
	if r.ReminderType == "" {
		r.ReminderType = "custom"
	}
	r.ScheduledTime = req.ScheduledTime
	r.DaysOfWeek = strings.Join(days, ",")
	r.IsRecurring = req.IsRecurring
	r.RecurrencePattern = pattern
	r.Source = models.ReminderSource(req.Source)
	if r.Source == "" {
		r.Source = models.ReminderSourceManual
	}
	r.AISuggestionContext = req.AISuggestionContext
	return nil
}

// CreateReminder handles creating a reminder for the caller.
func (h *ReminderHandler) CreateReminder(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req ReminderRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	reminder := models.Reminder{UserID: userID, IsActive: true}
	if err := req.apply(&reminder); err != nil {
		utils.BadRequest(c, "Validation failed: "+err.Error())
		return
	}

	if err := h.DB.Create(&reminder).Error; err != nil {
		utils.InternalServerError(c, "Failed to create reminder: "+err.Error())
		return
	}
	utils.Created(c, "Reminder created successfully", reminder)
}

// GetReminders lists the caller's reminders. ?active_only=true hides paused ones.
func (h *ReminderHandler) GetReminders(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	query := h.DB.Where("user_id = ?", userID)
	if c.Query("active_only") == "true" {
		query = query.Where("is_active = ?", true)
	}
	var reminders []models.Reminder
	if err := query.Order("scheduled_time asc").Find(&reminders).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch reminders: "+err.Error())
		return
	}
	utils.Success(c, "Reminders fetched successfully", reminders)
}

// GetTodayReminders lists active reminders that fire today, in time order.
func (h *ReminderHandler) GetTodayReminders(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var reminders []models.Reminder
	if err := h.DB.Where("user_id = ? AND is_active = ?", userID, true).
		Order("scheduled_time asc").Find(&reminders).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch reminders: "+err.Error())
		return
	}

	today := h.Now()
	due := make([]models.Reminder, 0, len(reminders))
	for i := range reminders {
		if reminders[i].IsDueOn(today) {
			due = append(due, reminders[i])
		}
	}
	utils.Success(c, "Today's reminders fetched successfully", due)
}

// GetReminder returns one of the caller's reminders.
func (h *ReminderHandler) GetReminder(c *gin.Context) {
	reminder, ok := h.load(c)
	if !ok {
		return
	}
	utils.Success(c, "Reminder fetched successfully", reminder)
}

// UpdateReminder replaces a reminder's schedule and text.
func (h *ReminderHandler) UpdateReminder(c *gin.Context) {
	var req ReminderRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	reminder, ok := h.load(c)
	if !ok {
		return
	}
	if err := req.apply(reminder); err != nil {
		utils.BadRequest(c, "Validation failed: "+err.Error())
		return
	}

	if err := h.DB.Save(reminder).Error; err != nil {
		utils.InternalServerError(c, "Failed to update reminder: "+err.Error())
		return
	}
	utils.Success(c, "Reminder updated successfully", reminder)
}

// DeleteReminder removes one of the caller's reminders.
func (h *ReminderHandler) DeleteReminder(c *gin.Context) {
	reminder, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.DB.Delete(reminder).Error; err != nil {
		utils.InternalServerError(c, "Failed to delete reminder: "+err.Error())
		return
	}
	utils.Success(c, "Reminder deleted successfully", nil)
}

// ToggleReminder pauses or resumes a reminder.
func (h *ReminderHandler) ToggleReminder(c *gin.Context) {
	reminder, ok := h.load(c)
	if !ok {
		return
	}
	active := !reminder.IsActive
	if err := h.DB.Model(reminder).Update("is_active", active).Error; err != nil {
		utils.InternalServerError(c, "Failed to toggle reminder: "+err.Error())
		return
	}
	reminder.IsActive = active
	utils.Success(c, "Reminder toggled successfully", reminder)
}

// CompleteReminder marks a reminder done. One-off reminders are also
// deactivated.
func (h *ReminderHandler) CompleteReminder(c *gin.Context) {
	reminder, ok := h.load(c)
	if !ok {
		return
	}
	now := h.Now()
	updates := map[string]interface{}{"is_completed": true, "completed_at": now}
	if !reminder.IsRecurring {
		updates["is_active"] = false
	}
	if err := h.DB.Model(reminder).Updates(updates).Error; err != nil {
		utils.InternalServerError(c, "Failed to complete reminder: "+err.Error())
		return
	}
	reminder.IsCompleted = true
	reminder.CompletedAt = &now
	if !reminder.IsRecurring {
		reminder.IsActive = false
	}
	utils.Success(c, "Reminder marked as completed", reminder)
}

// load fetches the :id reminder owned by the caller, writing 404 otherwise.
func (h *ReminderHandler) load(c *gin.Context) (*models.Reminder, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return nil, false
	}
	var reminder models.Reminder
	if err := h.DB.First(&reminder, "id = ? AND user_id = ?", c.Param("id"), userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Reminder not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return nil, false
	}
	return &reminder, true
}
