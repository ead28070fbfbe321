package handlers

import (
	"github.com/gin-gonic/gin"

	"symptom-assistant-server/internal/symptoms"
	"symptom-assistant-server/internal/utils"
)

// AnalyticsHandler serves symptom history for the authenticated user.
type AnalyticsHandler struct {
	Analytics *symptoms.Analytics
}

func NewAnalyticsHandler(analytics *symptoms.Analytics) *AnalyticsHandler {
	return &AnalyticsHandler{Analytics: analytics}
}

// Intensity returns per-day average intensity, ?days=30 by default.
func (h *AnalyticsHandler) Intensity(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	chart, err := h.Analytics.Intensity(c.Request.Context(), userID, queryInt(c, "days", 30, 365))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	utils.Success(c, "Symptom intensity fetched successfully", chart)
}

// Frequency returns occurrence totals per symptom, ?months=6 by default.
func (h *AnalyticsHandler) Frequency(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	data, err := h.Analytics.Frequency(c.Request.Context(), userID, queryInt(c, "months", 6, 24))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	utils.Success(c, "Symptom frequency fetched successfully", data)
}

func (h *AnalyticsHandler) Summary(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	summary, err := h.Analytics.Summary(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	utils.Success(c, "Symptom summary fetched successfully", summary)
}

func (h *AnalyticsHandler) Recent(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	recent, err := h.Analytics.Recent(c.Request.Context(), userID, queryInt(c, "limit", 10, 100))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	utils.Success(c, "Recent symptoms fetched successfully", recent)
}

// Trends bundles every view above for ?period_days=30.
func (h *AnalyticsHandler) Trends(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	trends, err := h.Analytics.Trends(c.Request.Context(), userID, queryInt(c, "period_days", 30, 365))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	utils.Success(c, "Symptom trends fetched successfully", trends)
}
