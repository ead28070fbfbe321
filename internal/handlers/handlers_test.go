package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptom-assistant-server/internal/advice"
	"symptom-assistant-server/internal/chat"
	"symptom-assistant-server/internal/llm"
	"symptom-assistant-server/internal/models"
	"symptom-assistant-server/internal/triage"
	"symptom-assistant-server/internal/utils"
)

func TestWriteServiceErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	emergency := triage.Classify("chest pain")

	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"emergency", &advice.EmergencyError{Triage: emergency}, http.StatusBadRequest, "Possible emergency"},
		{"policy", &advice.PolicyViolationError{Field: "advice[0]"}, http.StatusBadRequest, "not allowed"},
		{"validation", &advice.ValidationError{Field: "symptoms", Message: "is required"}, http.StatusBadRequest, "symptoms: is required"},
		{"format", &llm.FormatError{Preview: "raw model text", Err: llm.ErrUnparseable}, http.StatusBadGateway, "unreadable response"},
		{"unavailable", &llm.UnavailableError{Attempts: 3, Err: errors.New("timeout")}, http.StatusServiceUnavailable, "trouble connecting"},
		{"quota", &llm.UnavailableError{Attempts: 3, RateLimited: true, Err: errors.New("429")}, http.StatusTooManyRequests, "daily limit"},
		{"wrapped", fmt.Errorf("advise: %w", &advice.ValidationError{Field: "age", Message: "must be between 0 and 130"}), http.StatusBadRequest, "age"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/advice", nil)

			writeServiceError(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
			var resp utils.ResponseData
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Contains(t, resp.Error, tc.message)
			assert.NotContains(t, resp.Error, "raw model text")
		})
	}
}

func TestChatSessionNotFoundIs404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/chat/sessions/x", nil)

	(&ChatHandler{}).writeError(c, chat.ErrSessionNotFound)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueryIntClamps(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]int{"": 30, "abc": 30, "-5": 30, "7": 7, "9999": 365}
	for raw, want := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/analytics/symptom-intensity?days="+raw, nil)
		assert.Equal(t, want, queryInt(c, "days", 30, 365), raw)
	}
}

func TestReminderRequestApply(t *testing.T) {
	req := ReminderRequest{
		Title:             "  Stretch ",
		ScheduledTime:     "07:30",
		DaysOfWeek:        "mon, WED,",
		IsRecurring:       true,
		RecurrencePattern: "weekly",
	}
	var r models.Reminder
	require.NoError(t, req.apply(&r))
	assert.Equal(t, "Stretch", r.Title)
	assert.Equal(t, "Mon,Wed", r.DaysOfWeek)
	assert.Equal(t, "custom", r.ReminderType)
	assert.Equal(t, models.ReminderSourceManual, r.Source)
	assert.Nil(t, r.ScheduledDate)

	oneOff := ReminderRequest{Title: "Follow-up", ScheduledTime: "14:00", ScheduledDate: "2026-03-04", Source: "ai_suggestion"}
	require.NoError(t, oneOff.apply(&r))
	require.NotNil(t, r.ScheduledDate)
	assert.Equal(t, "2026-03-04", r.ScheduledDate.Format(dateLayout))
	assert.Equal(t, "daily", r.RecurrencePattern)
	assert.Equal(t, models.ReminderSourceAI, r.Source)
	assert.Equal(t, "", r.DaysOfWeek)
}
