package models

import "time"

// GlobalConfigID is the primary key of the single global configuration row.
const GlobalConfigID = "global"

// GlobalConfig holds the server-wide fallback keys.
type GlobalConfig struct {
	ID string `gorm:"type:varchar(32);primaryKey"` // Always GlobalConfigID.

	FallbackAPIKey       string `gorm:"column:fallback_api_key;type:text"`        // Text fallback key (encrypted or legacy plaintext).
	FallbackVisionAPIKey string `gorm:"column:fallback_vision_api_key;type:text"` // Vision fallback key (encrypted or legacy plaintext).

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
