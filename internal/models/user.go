package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role enum
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleClinician Role = "clinician"
	RolePatient   Role = "patient"
)

// User is an account holder. FHIRPatientID links the account to its record
// on the FHIR server.
type User struct {
	BaseModel
	Username      string `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email         string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password      string `gorm:"size:255;not null" json:"-"` // Never send password in JSON
	Age           int    `json:"age"`
	Sex           string `gorm:"size:20" json:"sex"`
	Role          Role   `gorm:"size:20;default:'patient'" json:"role"`
	FHIRPatientID string `gorm:"column:fhir_patient_id;size:64" json:"fhir_patient_id,omitempty"`

	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID" json:"-"`
}

// UserSanitized represents the user data that is safe to send in API responses.
type UserSanitized struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Age           int       `json:"age"`
	Sex           string    `json:"sex"`
	Role          Role      `json:"role"`
	FHIRPatientID string    `json:"fhir_patient_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SetPassword hashes a password and sets it on the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the user's hashed password
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// Sanitize creates a UserSanitized struct from a User model, excluding sensitive data.
func (u *User) Sanitize() UserSanitized {
	return UserSanitized{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Age:           u.Age,
		Sex:           u.Sex,
		Role:          u.Role,
		FHIRPatientID: u.FHIRPatientID,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
