package credential

import (
	"time"

	"github.com/eamarucci/bot-answer/internal/providers"
)

// AutoModel is the sentinel text model meaning "not set".
const AutoModel = "auto"

// Source tags which hierarchy level produced a credential. It is carried for
// logging and usage accounting only.
type Source string

const (
	SourceUser           Source = "user"
	SourceGroup          Source = "group"
	SourceAdminDefault   Source = "admin_default"
	SourceAdminOAuth     Source = "admin_oauth"
	SourceServerFallback Source = "server_fallback"
	SourceEnvFallback    Source = "env_fallback"
)

// PermissionContext is the access-control verdict for one request.
type PermissionContext struct {
	Allowed      bool
	DenialReason string
	Group        *GroupConfig
	User         *UserOverride
	Admin        *AdminConfig
}

// GroupConfig holds the per-room credential settings. Empty strings are unset.
type GroupConfig struct {
	ID             uint64
	AdminID        uint64
	TextProvider   string
	TextModel      string
	TextAPIKey     string // encrypted
	VisionProvider string
	VisionModel    string
	VisionAPIKey   string // encrypted
	SystemPrompt   string
	AllowAll       bool
}

// AdminConfig holds the per-admin defaults and OAuth grants.
type AdminConfig struct {
	ID                    uint64
	DefaultProvider       string
	DefaultModel          string
	DefaultAPIKey         string // encrypted
	DefaultVisionProvider string
	DefaultVisionModel    string
	DefaultVisionAPIKey   string // encrypted
	OAuth                 map[providers.ID]OAuthGrant
}

// OAuthGrant is one stored subscription grant of an admin.
type OAuthGrant struct {
	EncryptedRefresh string
	ExpiresAt        *time.Time
	Model            string
}

// Usable reports whether the grant has a refresh token that has not hit its hard expiry.
func (g OAuthGrant) Usable(now time.Time) bool {
	if g.EncryptedRefresh == "" {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// UserOverride is a per-(user, group) key. Provider and model are inherited.
type UserOverride struct {
	ID           uint64
	EncryptedKey string
}

// Credential is the resolved way to pay for one completion. The only
// implementations are APICredential and OAuthCredential.
type Credential interface {
	Origin() Source
	Target() providers.ID
	PreferredModel() string
	sealed()
}

// APICredential carries a decrypted static key.
type APICredential struct {
	Key      string
	Provider providers.ID
	Model    string
	Source   Source
}

// OAuthCredential points at an admin grant; the bearer token is fetched at call time.
type OAuthCredential struct {
	PrincipalID   uint64
	OAuthProvider providers.ID
	Provider      providers.ID
	Model         string
	Source        Source
}

func (c APICredential) Origin() Source         { return c.Source }
func (c APICredential) Target() providers.ID   { return c.Provider }
func (c APICredential) PreferredModel() string { return c.Model }
func (APICredential) sealed()                  {}

func (c OAuthCredential) Origin() Source         { return c.Source }
func (c OAuthCredential) Target() providers.ID   { return c.Provider }
func (c OAuthCredential) PreferredModel() string { return c.Model }
func (OAuthCredential) sealed()                  {}
