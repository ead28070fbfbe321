package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"symptom-assistant-server/internal/ehr"
	"symptom-assistant-server/internal/utils"
)

// PatientDirectory lists patients known to the EHR.
type PatientDirectory interface {
	DiscoverPatients(ctx context.Context, count int) ([]ehr.PatientSummary, error)
}

// PatientHandler exposes EHR patient records. Patients see only the record
// linked to their account; clinicians and admins see any.
type PatientHandler struct {
	Profiles  ehr.ProfileSource
	Directory PatientDirectory
	DB        *gorm.DB
}

func NewPatientHandler(profiles ehr.ProfileSource, directory PatientDirectory, db *gorm.DB) *PatientHandler {
	return &PatientHandler{Profiles: profiles, Directory: directory, DB: db}
}

// GetProfile returns demographics, active medications and conditions.
func (h *PatientHandler) GetProfile(c *gin.Context) {
	profile, ok := h.load(c)
	if !ok {
		return
	}
	utils.Success(c, "Patient profile fetched successfully", profile)
}

// GetMedications returns only the active medications.
func (h *PatientHandler) GetMedications(c *gin.Context) {
	profile, ok := h.load(c)
	if !ok {
		return
	}
	utils.Success(c, "Patient medications fetched successfully", gin.H{
		"patient_id":  profile.ID,
		"medications": profile.ActiveMedications,
	})
}

// Discover lists patients on the EHR server, ?count=10 by default.
func (h *PatientHandler) Discover(c *gin.Context) {
	patients, err := h.Directory.DiscoverPatients(c.Request.Context(), queryInt(c, "count", 10, 50))
	if err != nil {
		log.Warn().Err(err).Msg("patient discovery failed")
		utils.ServiceUnavailable(c, "EHR service unavailable")
		return
	}
	utils.Success(c, "Patients discovered successfully", patients)
}

func (h *PatientHandler) load(c *gin.Context) (*ehr.Profile, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return nil, false
	}
	patientID, ok := patientForCaller(c, h.DB, userID, c.Param("patientId"))
	if !ok {
		return nil, false
	}

	profile, err := h.Profiles.GetProfile(c.Request.Context(), patientID)
	if err != nil {
		if errors.Is(err, ehr.ErrPatientNotFound) {
			utils.NotFound(c, "Patient not found")
		} else {
			log.Warn().Err(err).Str("patient_id", patientID).Msg("patient profile lookup failed")
			utils.ServiceUnavailable(c, "EHR service unavailable")
		}
		return nil, false
	}
	return profile, true
}
