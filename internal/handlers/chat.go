package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"symptom-assistant-server/internal/chat"
	"symptom-assistant-server/internal/utils"
)

// ChatHandler serves the conversational symptom assistant.
type ChatHandler struct {
	Manager *chat.Manager
	DB      *gorm.DB
}

func NewChatHandler(manager *chat.Manager, db *gorm.DB) *ChatHandler {
	return &ChatHandler{Manager: manager, DB: db}
}

// ChatRequest is one user turn. An empty SessionID starts a new session.
type ChatRequest struct {
	Message   string `json:"message" binding:"required,max=4000"`
	SessionID string `json:"session_id"`
}

// SendMessage handles one conversational turn.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req ChatRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	res, err := h.Manager.Turn(c.Request.Context(), userID, req.SessionID, req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.Success(c, "Message processed", res)
}

// AnalyzeRequest optionally names the FHIR patient to merge into the analysis.
type AnalyzeRequest struct {
	PatientID string `json:"patient_id"`
}

// Analyze turns the whole session into structured advice.
func (h *ChatHandler) Analyze(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req AnalyzeRequest
	if c.Request.ContentLength > 0 && !utils.BindAndValidate(c, &req) {
		return
	}
	patientID, ok := patientForCaller(c, h.DB, userID, req.PatientID)
	if !ok {
		return
	}

	out, err := h.Manager.Analyze(c.Request.Context(), userID, c.Param("id"), patientID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.Success(c, "Analysis completed", out)
}

// GetSessions lists the caller's recent sessions.
func (h *ChatHandler) GetSessions(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	sessions, err := h.Manager.Sessions(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.Success(c, "Sessions fetched successfully", sessions)
}

// GetSession returns one session with its messages.
func (h *ChatHandler) GetSession(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	session, err := h.Manager.Session(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.Success(c, "Session fetched successfully", session)
}

func (h *ChatHandler) writeError(c *gin.Context, err error) {
	if errors.Is(err, chat.ErrSessionNotFound) {
		utils.NotFound(c, "Chat session not found")
		return
	}
	writeServiceError(c, err)
}
