package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"symptom-assistant-server/internal/config"
	"symptom-assistant-server/internal/models"
	"symptom-assistant-server/internal/utils"
)

const refreshCookie = "refresh_token"

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	DB  *gorm.DB
	Cfg *config.Config
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{DB: db, Cfg: cfg}
}

// RegisterRequest represents the request body for user registration.
type RegisterRequest struct {
	Username      string `json:"username" binding:"required,min=3,max=50"`
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required,min=8"`
	Age           int    `json:"age" binding:"gte=0,lte=130"`
	Sex           string `json:"sex" binding:"omitempty,oneof=male female other"`
	Role          string `json:"role" binding:"omitempty,oneof=patient clinician"`
	FHIRPatientID string `json:"fhir_patient_id" binding:"max=64"`
}

// Register handles user registration.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var existing models.User
	err := h.DB.Where("username = ? OR email = ?", req.Username, req.Email).First(&existing).Error
	if err == nil {
		utils.BadRequest(c, "Username or email already registered")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.InternalServerError(c, "Database error: "+err.Error())
		return
	}

	role := models.RolePatient
	if req.Role != "" {
		role = models.Role(req.Role)
	}
	user := models.User{
		Username:      req.Username,
		Email:         req.Email,
		Age:           req.Age,
		Sex:           req.Sex,
		Role:          role,
		FHIRPatientID: req.FHIRPatientID,
	}
	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password: "+err.Error())
		return
	}

	if err := h.DB.Create(&user).Error; err != nil {
		utils.InternalServerError(c, "Failed to create user: "+err.Error())
		return
	}

	utils.Created(c, "User registered successfully", user.Sanitize())
}

// LoginRequest accepts either the username or the email in Username.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string                `json:"access_token"`
	RefreshToken string                `json:"refresh_token"`
	TokenType    string                `json:"token_type"`
	User         *models.UserSanitized `json:"user,omitempty"`
}

// Login handles user login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.Where("username = ? OR email = ?", req.Username, req.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Invalid username or password")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	if !user.CheckPassword(req.Password) {
		utils.Unauthorized(c, "Invalid username or password")
		return
	}

	access, refresh, ok := h.issueTokens(c, &user)
	if !ok {
		return
	}

	sanitized := user.Sanitize()
	utils.Success(c, "Login successful", TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		User:         &sanitized,
	})
}

// issueTokens signs a token pair, persists the refresh token and sets the
// refresh cookie. It writes the error response itself.
func (h *AuthHandler) issueTokens(c *gin.Context, user *models.User) (string, string, bool) {
	access, refresh, err := utils.GenerateTokens(user, h.Cfg)
	if err != nil {
		utils.InternalServerError(c, "Failed to generate tokens: "+err.Error())
		return "", "", false
	}

	stored := models.RefreshToken{
		UserID:    user.ID,
		Token:     refresh,
		ExpiresAt: time.Now().Add(utils.RefreshTTL(h.Cfg)),
	}
	if err := h.DB.Create(&stored).Error; err != nil {
		utils.InternalServerError(c, "Failed to store refresh token: "+err.Error())
		return "", "", false
	}

	h.setRefreshCookie(c, refresh, int(utils.RefreshTTL(h.Cfg).Seconds()))
	return access, refresh, true
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetCookie(refreshCookie, value, maxAge, "/", "", h.Cfg.Environment != "development", true)
}

// RefreshTokenRequest is the body fallback when the cookie is absent.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshToken rotates the refresh token and issues a new access token.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token, err := c.Cookie(refreshCookie)
	if err != nil || token == "" {
		var req RefreshTokenRequest
		if !utils.BindAndValidate(c, &req) {
			return
		}
		token = req.RefreshToken
	}

	claims, err := utils.ValidateToken(token, h.Cfg.JWTRefreshSecret)
	if err != nil {
		utils.Unauthorized(c, "Invalid refresh token")
		return
	}

	var stored models.RefreshToken
	if err := h.DB.Where("token = ? AND user_id = ? AND is_revoked = ? AND expires_at > ?", token, claims.UserID, false, time.Now()).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
		} else {
			utils.InternalServerError(c, "Database error checking refresh token: "+err.Error())
		}
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		utils.Unauthorized(c, "User no longer exists")
		return
	}

	if err := h.DB.Model(&stored).Update("is_revoked", true).Error; err != nil {
		utils.InternalServerError(c, "Failed to revoke refresh token: "+err.Error())
		return
	}

	access, refresh, ok := h.issueTokens(c, &user)
	if !ok {
		return
	}
	utils.Success(c, "Access token refreshed successfully", TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	})
}

// Logout revokes the caller's refresh token and clears the cookie. A token
// that is already gone still counts as logged out.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, err := c.Cookie(refreshCookie)
	if err != nil || token == "" {
		var req RefreshTokenRequest
		if !utils.BindAndValidate(c, &req) {
			return
		}
		token = req.RefreshToken
	}

	res := h.DB.Model(&models.RefreshToken{}).
		Where("token = ? AND is_revoked = ?", token, false).
		Updates(map[string]interface{}{"is_revoked": true, "expires_at": time.Now()})
	if res.Error != nil {
		utils.InternalServerError(c, "Failed to revoke refresh token: "+res.Error.Error())
		return
	}

	h.setRefreshCookie(c, "", -1)
	utils.Success(c, "Logout successful", nil)
}

// GetProfile handles fetching the currently authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User profile not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}

// UpdateProfileRequest carries the editable profile fields. Nil leaves a
// field unchanged.
type UpdateProfileRequest struct {
	Age           *int    `json:"age" binding:"omitempty,gte=0,lte=130"`
	Sex           *string `json:"sex" binding:"omitempty,oneof=male female other"`
	FHIRPatientID *string `json:"fhir_patient_id" binding:"omitempty,max=64"`
}

// UpdateProfile handles updating the currently authenticated user's profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		utils.NotFound(c, "User not found")
		return
	}

	if req.Age != nil {
		user.Age = *req.Age
	}
	if req.Sex != nil {
		user.Sex = *req.Sex
	}
	if req.FHIRPatientID != nil {
		user.FHIRPatientID = *req.FHIRPatientID
	}

	if err := h.DB.Save(&user).Error; err != nil {
		utils.InternalServerError(c, "Failed to update profile: "+err.Error())
		return
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}
