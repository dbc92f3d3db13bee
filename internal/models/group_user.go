package models

import "time"

// GroupUser is a member allowed to use the bot in a group.
type GroupUser struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	GroupConfigID uint64 `gorm:"not null;uniqueIndex:idx_group_users_group_phone,priority:1"`                  // Group configuration ID.
	PhoneNumber   string `gorm:"type:varchar(32);not null;uniqueIndex:idx_group_users_group_phone,priority:2"` // Member phone number.
	Name          string `gorm:"type:text"`                                                                    // Display name.

	IsEnabled      bool   `gorm:"not null;default:true"`             // Whether the member may use the bot.
	APIKeyOverride string `gorm:"column:api_key_override;type:text"` // Encrypted personal key.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
