package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting stores a runtime setting as a JSON value.
type Setting struct {
	Key       string         `gorm:"type:varchar(128);primaryKey"` // Setting key.
	Value     datatypes.JSON `gorm:"type:jsonb"`                   // JSON encoded value.
	UpdatedAt time.Time      `gorm:"not null"`                     // Last update timestamp.
}
