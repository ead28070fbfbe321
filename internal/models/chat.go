package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Chat message roles and types.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"

	MessageTypeText            = "text"
	MessageTypeEmergency       = "emergency"
	MessageTypeAnalysisOffer   = "analysis_offer"
	MessageTypeAnalysisRequest = "analysis_request"
	MessageTypeMedicalAdvice   = "medical_advice"
	MessageTypeError           = "error"
)

// JSONMap is a JSON object column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return string(b), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
	out := JSONMap{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("decode json column: %w", err)
		}
	}
	*m = out
	return nil
}

// ChatSession is a conversation owned by one user. Context accumulates facts
// extracted during the conversation.
type ChatSession struct {
	BaseModel
	UserID   string        `gorm:"size:36;index;not null" json:"user_id"`
	Title    string        `gorm:"size:255" json:"title"`
	Context  JSONMap       `gorm:"type:json" json:"context"`
	Messages []ChatMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

// ChatMessage is one transcript entry. Messages are append-only.
type ChatMessage struct {
	BaseModel
	SessionID   string  `gorm:"size:36;index;not null" json:"session_id"`
	Role        string  `gorm:"size:20;not null" json:"role"`
	Content     string  `gorm:"type:text;not null" json:"content"`
	MessageType string  `gorm:"size:30;default:'text'" json:"message_type"`
	Metadata    JSONMap `gorm:"type:json" json:"metadata,omitempty"`
}
