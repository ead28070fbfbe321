package models

import (
	"time"
)

// RefreshToken is a persisted refresh token. Tokens are rotated on use and
// revoked on logout.
type RefreshToken struct {
	BaseModel
	UserID    string    `gorm:"size:36;index" json:"user_id"`
	Token     string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	IsRevoked bool      `gorm:"default:false" json:"is_revoked"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
