package models

import "time"

// Usage records the token counts of one completed ask.
type Usage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AdminID       *uint64 `gorm:"index"` // Owning admin ID when the room is configured.
	GroupConfigID *uint64 `gorm:"index"` // Group configuration ID when the room is configured.

	RoomID      string `gorm:"type:varchar(255);not null;index"` // Matrix room id.
	PhoneNumber string `gorm:"type:varchar(32)"`                 // Requesting member phone.
	RequestID   string `gorm:"type:varchar(64)"`                 // Completion request id.

	Provider string `gorm:"type:varchar(32);not null;index"` // Upstream provider id.
	Model    string `gorm:"type:text;not null"`              // Model reported by the provider.
	Source   string `gorm:"type:varchar(32);not null"`       // Credential source.
	Vision   bool   `gorm:"not null;default:false"`          // Whether media was attached.

	PromptTokens     int64 `gorm:"not null;default:0"` // Prompt tokens.
	CompletionTokens int64 `gorm:"not null;default:0"` // Completion tokens.
	TotalTokens      int64 `gorm:"not null;default:0"` // Total tokens.
	LatencyMs        int64 `gorm:"not null;default:0"` // Round trip latency in milliseconds.

	RequestedAt time.Time `gorm:"not null;index"`          // Request start time.
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
