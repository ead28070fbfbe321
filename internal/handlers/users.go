package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"symptom-assistant-server/internal/models"
	"symptom-assistant-server/internal/utils"
)

// UserHandler handles account administration: listing accounts, changing
// roles and linking accounts to EHR patients.
type UserHandler struct {
	DB *gorm.DB
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{DB: db}
}

// GetUsers lists accounts, optionally filtered by ?role=.
func (h *UserHandler) GetUsers(c *gin.Context) {
	query := h.DB.Order("created_at desc")
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}
	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		utils.InternalServerError(c, "Failed to fetch users: "+err.Error())
		return
	}

	sanitized := make([]models.UserSanitized, len(users))
	for i := range users {
		sanitized[i] = users[i].Sanitize()
	}
	utils.Success(c, "Users fetched successfully", sanitized)
}

// GetUserByID handles fetching a single user by ID.
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, ok := h.load(c)
	if !ok {
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserRequest changes an account's role or EHR link. Nil leaves a
// field unchanged; an empty fhir_patient_id unlinks.
type UpdateUserRequest struct {
	Role          *string `json:"role" binding:"omitempty,oneof=patient clinician admin"`
	FHIRPatientID *string `json:"fhir_patient_id" binding:"omitempty,max=64"`
}

// UpdateUser handles updating a user by ID.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	user, ok := h.load(c)
	if !ok {
		return
	}

	if req.Role != nil {
		user.Role = models.Role(*req.Role)
	}
	if req.FHIRPatientID != nil {
		user.FHIRPatientID = *req.FHIRPatientID
	}

	if err := h.DB.Save(user).Error; err != nil {
		utils.InternalServerError(c, "Failed to update user: "+err.Error())
		return
	}
	utils.Success(c, "User updated successfully", user.Sanitize())
}

// DeleteUser removes an account and its refresh tokens.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	user, ok := h.load(c)
	if !ok {
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", user.ID).Error
	})
	if err != nil {
		utils.InternalServerError(c, "Failed to delete user: "+err.Error())
		return
	}
	utils.Success(c, "User deleted successfully", nil)
}

func (h *UserHandler) load(c *gin.Context) (*models.User, bool) {
	var user models.User
	if err := h.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return nil, false
	}
	return &user, true
}
