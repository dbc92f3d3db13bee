package models

import "time"

// Admin owns group configurations and the default credentials shared by them.
type Admin struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	PhoneNumber string `gorm:"type:varchar(32);not null;uniqueIndex"` // Relay phone number (digits only).
	Name        string `gorm:"type:text"`                             // Display name.

	DefaultProvider       string `gorm:"type:varchar(32)"` // Default text provider id.
	DefaultModel          string `gorm:"type:text"`        // Default text model.
	DefaultAPIKey         string `gorm:"type:text"`        // Encrypted default text key.
	DefaultVisionProvider string `gorm:"type:varchar(32)"` // Default vision provider id.
	DefaultVisionModel    string `gorm:"type:text"`        // Default vision model.
	DefaultVisionAPIKey   string `gorm:"type:text"`        // Encrypted default vision key.

	AnthropicOAuthRefresh string     `gorm:"column:anthropic_oauth_refresh;type:text"` // Encrypted Anthropic refresh token.
	AnthropicOAuthExpires *time.Time `gorm:"column:anthropic_oauth_expires"`           // Anthropic refresh token hard expiry.
	AnthropicOAuthModel   string     `gorm:"column:anthropic_oauth_model;type:text"`   // Preferred Anthropic OAuth model.

	OpenAIOAuthRefresh string     `gorm:"column:openai_oauth_refresh;type:text"`      // Encrypted OpenAI refresh token.
	OpenAIOAuthExpires *time.Time `gorm:"column:openai_oauth_expires"`                // OpenAI refresh token hard expiry.
	OpenAIOAuthModel   string     `gorm:"column:openai_oauth_model;type:text"`        // Preferred OpenAI OAuth model.
	OpenAIAccountID    string     `gorm:"column:openai_account_id;type:varchar(128)"` // ChatGPT account id from the id token.

	Groups []GroupConfig `gorm:"foreignKey:AdminID"` // Owned group configurations.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
