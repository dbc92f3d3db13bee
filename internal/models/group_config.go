package models

import "time"

// GroupConfig binds a bridged chat room to an admin and its credential overrides.
type GroupConfig struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AdminID uint64 `gorm:"not null;index"`     // Owning admin ID.
	Admin   *Admin `gorm:"foreignKey:AdminID"` // Owning admin.

	MatrixRoomID string `gorm:"type:varchar(255);not null;uniqueIndex"` // Matrix room id of the portal.
	Name         string `gorm:"type:text"`                              // Room display name.
	RelayNumber  string `gorm:"type:varchar(32);index"`                 // Relay login that bridges the room.

	IsActive bool `gorm:"not null;default:true"`  // Whether the bot answers in this room.
	AllowAll bool `gorm:"not null;default:false"` // Whether every member may use the bot.

	TextProvider   string `gorm:"type:varchar(32)"`                // Text provider override.
	TextModel      string `gorm:"type:text;default:'auto'"`        // Text model override ("auto" means unset).
	TextAPIKey     string `gorm:"column:text_api_key;type:text"`   // Encrypted text key.
	VisionProvider string `gorm:"type:varchar(32)"`                // Vision provider override.
	VisionModel    string `gorm:"type:text"`                       // Vision model override.
	VisionAPIKey   string `gorm:"column:vision_api_key;type:text"` // Encrypted vision key.
	SystemPrompt   string `gorm:"type:text"`                       // Group system prompt appended to the base prompt.

	Users []GroupUser `gorm:"foreignKey:GroupConfigID"` // Allowed members.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
