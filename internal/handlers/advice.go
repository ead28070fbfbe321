package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"symptom-assistant-server/internal/advice"
	"symptom-assistant-server/internal/middleware"
	"symptom-assistant-server/internal/utils"
)

// AdviceHandler serves triage, patient advice and clinician drafts.
type AdviceHandler struct {
	Service *advice.Service
	DB      *gorm.DB
}

func NewAdviceHandler(service *advice.Service, db *gorm.DB) *AdviceHandler {
	return &AdviceHandler{Service: service, DB: db}
}

// TriageRequest is the body of POST /triage.
type TriageRequest struct {
	Symptoms string `json:"symptoms" binding:"required"`
}

// Triage classifies symptoms without calling the model.
func (h *AdviceHandler) Triage(c *gin.Context) {
	var req TriageRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	utils.Success(c, "Triage completed", h.Service.Triage(req.Symptoms))
}

// Advice returns structured self-care advice from the reported symptoms only.
func (h *AdviceHandler) Advice(c *gin.Context) {
	var req advice.Request
	if !utils.BindAndValidate(c, &req) {
		return
	}
	userID, _ := middleware.GetUserIDFromContext(c)

	out, err := h.Service.Advise(c.Request.Context(), req, advice.Options{UserID: userID})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	utils.Success(c, "Advice generated", out)
}

// RecordAdvice is Advice with the patient's EHR record merged in. The patient
// comes from the body or, failing that, the caller's linked record. Patients
// may only name their own record.
func (h *AdviceHandler) RecordAdvice(c *gin.Context) {
	var req advice.Request
	if !utils.BindAndValidate(c, &req) {
		return
	}
	userID, _ := middleware.GetUserIDFromContext(c)
	patientID, ok := patientForCaller(c, h.DB, userID, req.PatientID)
	if !ok {
		return
	}
	req.PatientID = patientID

	out, err := h.Service.Advise(c.Request.Context(), req, advice.Options{UserID: userID, UseRecord: true})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	utils.Success(c, "Advice generated", out)
}

// Referral drafts a specialist referral. Clinicians only.
func (h *AdviceHandler) Referral(c *gin.Context) {
	var req advice.Request
	if !utils.BindAndValidate(c, &req) {
		return
	}
	out, err := h.Service.Referral(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	utils.Success(c, "Referral drafted", out)
}

// RxDraft drafts medication classes. Clinicians only.
func (h *AdviceHandler) RxDraft(c *gin.Context) {
	var req advice.Request
	if !utils.BindAndValidate(c, &req) {
		return
	}
	out, err := h.Service.RxDraft(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	utils.Success(c, "Prescription draft generated", out)
}
