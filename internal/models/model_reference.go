package models

import (
	"time"

	"gorm.io/datatypes"
)

// ModelReference caches a model listed by a provider.
type ModelReference struct {
	Provider string `gorm:"type:varchar(32);not null;primaryKey;index"` // Provider id.
	ModelID  string `gorm:"type:varchar(255);not null;primaryKey"`      // Provider model id.

	Name          string `gorm:"type:text;not null"` // Display name.
	ContextLength int    `gorm:"not null;default:0"` // Context window when reported.
	Description   string `gorm:"type:text"`          // Description when reported.

	PromptPrice     string `gorm:"type:varchar(64)"` // Prompt token price as reported.
	CompletionPrice string `gorm:"type:varchar(64)"` // Completion token price as reported.

	Extra      datatypes.JSON `gorm:"type:jsonb"`              // Raw provider entry.
	LastSeenAt time.Time      `gorm:"not null;index"`          // Last sync timestamp.
	CreatedAt  time.Time      `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt  time.Time      `gorm:"not null;autoUpdateTime"` // Update timestamp.
}

// TableName overrides the default table name.
func (ModelReference) TableName() string {
	return "provider_models"
}
