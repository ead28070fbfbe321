package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"symptom-assistant-server/internal/advice"
	"symptom-assistant-server/internal/llm"
	"symptom-assistant-server/internal/middleware"
	"symptom-assistant-server/internal/models"
	"symptom-assistant-server/internal/utils"
)

const formatErrorMessage = "The medical analysis service returned an unreadable response. Please try again."

// writeServiceError maps domain and upstream errors onto the response envelope.
func writeServiceError(c *gin.Context, err error) {
	var (
		emergency   *advice.EmergencyError
		policy      *advice.PolicyViolationError
		validation  *advice.ValidationError
		format      *llm.FormatError
		unavailable *llm.UnavailableError
	)
	switch {
	case errors.As(err, &emergency):
		utils.ErrorWithData(c, http.StatusBadRequest, emergency.Error(), emergency.Triage)
	case errors.As(err, &policy):
		utils.BadRequest(c, policy.Error())
	case errors.As(err, &validation):
		utils.BadRequest(c, "Validation failed: "+validation.Error())
	case errors.As(err, &format):
		log.Warn().Str("preview", format.Preview).Msg("unusable completion output")
		utils.BadGateway(c, formatErrorMessage)
	case errors.As(err, &unavailable):
		log.Warn().Err(unavailable.Err).Int("attempts", unavailable.Attempts).Msg("completion provider unavailable")
		if unavailable.RateLimited {
			utils.TooManyRequests(c, unavailable.UserMessage())
			return
		}
		utils.ServiceUnavailable(c, unavailable.UserMessage())
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		utils.InternalServerError(c, "Internal server error")
	}
}

// requireUserID writes a 401 and returns false when the request is anonymous.
func requireUserID(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
	}
	return userID, ok
}

// queryInt reads a positive integer query parameter, clamped to max.
func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

// linkedPatientID returns the FHIR patient linked to an account, or "" when
// there is none.
func linkedPatientID(c *gin.Context, db *gorm.DB, userID string) string {
	if db == nil || userID == "" {
		return ""
	}
	var user models.User
	if err := db.WithContext(c.Request.Context()).Select("id", "fhir_patient_id").First(&user, "id = ?", userID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to look up linked patient")
		}
		return ""
	}
	return user.FHIRPatientID
}

// patientForCaller resolves the EHR patient a request may use. Clinicians and
// admins may name any patient; everyone else is held to their linked record.
// It writes the 403 itself.
func patientForCaller(c *gin.Context, db *gorm.DB, userID, requested string) (string, bool) {
	role, _ := middleware.GetUserRoleFromContext(c)
	if requested != "" && (role == models.RoleClinician || role == models.RoleAdmin) {
		return requested, true
	}
	linked := linkedPatientID(c, db, userID)
	if requested != "" && requested != linked {
		utils.Forbidden(c, "You are not authorized to access this patient record")
		return "", false
	}
	return linked, true
}
