// Package store is the gorm repository behind the admin console, the access
// checker and the OAuth token manager.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eamarucci/bot-answer/internal/credential"
	"github.com/eamarucci/bot-answer/internal/db"
	"github.com/eamarucci/bot-answer/internal/models"
	"github.com/eamarucci/bot-answer/internal/oauth"
	"github.com/eamarucci/bot-answer/internal/providers"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("store: not found")

var errUnsupportedProvider = errors.New("store: provider has no oauth columns")

// grantColumns names the admin columns that hold one provider's OAuth grant.
type grantColumns struct {
	refresh string
	expires string
	model   string
}

var oauthColumns = map[providers.ID]grantColumns{
	providers.Anthropic: {refresh: "anthropic_oauth_refresh", expires: "anthropic_oauth_expires", model: "anthropic_oauth_model"},
	providers.OpenAI:    {refresh: "openai_oauth_refresh", expires: "openai_oauth_expires", model: "openai_oauth_model"},
}

// Store persists admins, groups, members and the global fallback record.
type Store struct {
	db *gorm.DB

	mu sync.Mutex
}

// New constructs a Store.
func New(conn *gorm.DB) *Store {
	return &Store{db: conn}
}

// DB exposes the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store: not initialized")
	}
	return nil
}

// LoadGrant reads the stored OAuth grant of an admin. A missing admin loads as an empty grant.
func (s *Store) LoadGrant(ctx context.Context, adminID uint64, provider providers.ID) (oauth.StoredGrant, error) {
	if err := s.ready(); err != nil {
		return oauth.StoredGrant{}, err
	}
	if _, ok := oauthColumns[provider]; !ok {
		return oauth.StoredGrant{}, errUnsupportedProvider
	}
	var admin models.Admin
	errFind := s.db.WithContext(ctx).Where("id = ?", adminID).Take(&admin).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return oauth.StoredGrant{}, nil
	}
	if errFind != nil {
		return oauth.StoredGrant{}, fmt.Errorf("store: load grant: %w", errFind)
	}
	switch provider {
	case providers.Anthropic:
		return oauth.StoredGrant{EncryptedRefresh: admin.AnthropicOAuthRefresh, ExpiresAt: admin.AnthropicOAuthExpires}, nil
	default:
		return oauth.StoredGrant{EncryptedRefresh: admin.OpenAIOAuthRefresh, ExpiresAt: admin.OpenAIOAuthExpires}, nil
	}
}

// SaveGrant stores a rotated refresh token. An empty accountID keeps the stored one.
func (s *Store) SaveGrant(ctx context.Context, adminID uint64, provider providers.ID, grant oauth.StoredGrant, accountID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	cols, ok := oauthColumns[provider]
	if !ok {
		return errUnsupportedProvider
	}
	updates := map[string]any{
		cols.refresh: grant.EncryptedRefresh,
		cols.expires: grant.ExpiresAt,
		"updated_at": time.Now().UTC(),
	}
	if provider == providers.OpenAI && strings.TrimSpace(accountID) != "" {
		updates["openai_account_id"] = strings.TrimSpace(accountID)
	}
	return s.updateAdmin(ctx, adminID, updates)
}

// ClearGrant removes a provider grant from an admin.
func (s *Store) ClearGrant(ctx context.Context, adminID uint64, provider providers.ID) error {
	if err := s.ready(); err != nil {
		return err
	}
	cols, ok := oauthColumns[provider]
	if !ok {
		return errUnsupportedProvider
	}
	updates := map[string]any{
		cols.refresh: "",
		cols.expires: nil,
		"updated_at": time.Now().UTC(),
	}
	if provider == providers.OpenAI {
		updates["openai_account_id"] = ""
	}
	return s.updateAdmin(ctx, adminID, updates)
}

// SetOAuthModel records the model an admin prefers for a provider grant.
func (s *Store) SetOAuthModel(ctx context.Context, adminID uint64, provider providers.ID, model string) error {
	if err := s.ready(); err != nil {
		return err
	}
	cols, ok := oauthColumns[provider]
	if !ok {
		return errUnsupportedProvider
	}
	return s.updateAdmin(ctx, adminID, map[string]any{
		cols.model:   strings.TrimSpace(model),
		"updated_at": time.Now().UTC(),
	})
}

func (s *Store) updateAdmin(ctx context.Context, adminID uint64, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.db.WithContext(ctx).Model(&models.Admin{}).Where("id = ?", adminID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("store: update admin: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FallbackKeys reads the global fallback record.
func (s *Store) FallbackKeys(ctx context.Context) (credential.FallbackKeys, error) {
	if err := s.ready(); err != nil {
		return credential.FallbackKeys{}, err
	}
	var row models.GlobalConfig
	errFind := s.db.WithContext(ctx).Where("id = ?", models.GlobalConfigID).Take(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return credential.FallbackKeys{}, nil
	}
	if errFind != nil {
		return credential.FallbackKeys{}, fmt.Errorf("store: load global config: %w", errFind)
	}
	return credential.FallbackKeys{Text: row.FallbackAPIKey, Vision: row.FallbackVisionAPIKey}, nil
}

// SaveFallbackKeys upserts the global fallback record with already encrypted keys.
func (s *Store) SaveFallbackKeys(ctx context.Context, keys credential.FallbackKeys) error {
	if err := s.ready(); err != nil {
		return err
	}
	row := models.GlobalConfig{
		ID:                   models.GlobalConfigID,
		FallbackAPIKey:       keys.Text,
		FallbackVisionAPIKey: keys.Vision,
		UpdatedAt:            time.Now().UTC(),
	}
	if errSave := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fallback_api_key", "fallback_vision_api_key", "updated_at"}),
	}).Create(&row).Error; errSave != nil {
		return fmt.Errorf("store: save global config: %w", errSave)
	}
	return nil
}

// Admin loads an admin by id.
func (s *Store) Admin(ctx context.Context, adminID uint64) (*models.Admin, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var admin models.Admin
	if errFind := s.db.WithContext(ctx).Where("id = ?", adminID).Take(&admin).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load admin: %w", errFind)
	}
	return &admin, nil
}

// AdminByPhone loads an admin by relay phone number.
func (s *Store) AdminByPhone(ctx context.Context, phone string) (*models.Admin, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, ErrNotFound
	}
	var admin models.Admin
	if errFind := s.db.WithContext(ctx).Where("phone_number = ?", phone).Take(&admin).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load admin by phone: %w", errFind)
	}
	return &admin, nil
}

// EnsureAdmin returns the admin for a relay phone, creating it when missing.
func (s *Store) EnsureAdmin(ctx context.Context, phone, name string) (*models.Admin, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, fmt.Errorf("store: ensure admin: empty phone")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	admin := models.Admin{PhoneNumber: phone, Name: strings.TrimSpace(name)}
	if errCreate := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone_number"}},
		DoNothing: true,
	}).Create(&admin).Error; errCreate != nil {
		return nil, fmt.Errorf("store: ensure admin: %w", errCreate)
	}
	var stored models.Admin
	if errFind := s.db.WithContext(ctx).Where("phone_number = ?", phone).Take(&stored).Error; errFind != nil {
		return nil, fmt.Errorf("store: reload admin: %w", errFind)
	}
	return &stored, nil
}

// AdminDefaults carries the admin default-key form. Nil keys are left untouched,
// empty keys are cleared. Keys must already be encrypted.
type AdminDefaults struct {
	Provider       string
	Model          string
	APIKey         *string
	VisionProvider string
	VisionModel    string
	VisionAPIKey   *string
}

// UpdateAdminDefaults stores the default provider settings of an admin.
func (s *Store) UpdateAdminDefaults(ctx context.Context, adminID uint64, in AdminDefaults) error {
	if err := s.ready(); err != nil {
		return err
	}
	updates := map[string]any{
		"default_provider":        strings.TrimSpace(in.Provider),
		"default_model":           strings.TrimSpace(in.Model),
		"default_vision_provider": strings.TrimSpace(in.VisionProvider),
		"default_vision_model":    strings.TrimSpace(in.VisionModel),
		"updated_at":              time.Now().UTC(),
	}
	if in.APIKey != nil {
		updates["default_api_key"] = *in.APIKey
	}
	if in.VisionAPIKey != nil {
		updates["default_vision_api_key"] = *in.VisionAPIKey
	}
	return s.updateAdmin(ctx, adminID, updates)
}

// GroupByRoom loads the configuration of a room with its admin.
func (s *Store) GroupByRoom(ctx context.Context, roomID string) (*models.GroupConfig, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var group models.GroupConfig
	if errFind := s.db.WithContext(ctx).Preload("Admin").Where("matrix_room_id = ?", strings.TrimSpace(roomID)).Take(&group).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load group by room: %w", errFind)
	}
	return &group, nil
}

// Group loads a group owned by an admin.
func (s *Store) Group(ctx context.Context, adminID, groupID uint64) (*models.GroupConfig, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var group models.GroupConfig
	if errFind := s.db.WithContext(ctx).Where("id = ? AND admin_id = ?", groupID, adminID).Take(&group).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load group: %w", errFind)
	}
	return &group, nil
}

// ListGroups lists the groups of an admin, optionally filtered by name.
func (s *Store) ListGroups(ctx context.Context, adminID uint64, search string) ([]models.GroupConfig, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Model(&models.GroupConfig{}).Where("admin_id = ?", adminID)
	if search = strings.TrimSpace(search); search != "" {
		cond, arg := db.ContainsFold(s.db, "name", search)
		q = q.Where(cond, arg)
	}
	var groups []models.GroupConfig
	if errFind := q.Order("name ASC, id ASC").Find(&groups).Error; errFind != nil {
		return nil, fmt.Errorf("store: list groups: %w", errFind)
	}
	return groups, nil
}

// ProvisionGroup creates the configuration of a bridged room when it does not exist.
// It reports whether a row was created.
func (s *Store) ProvisionGroup(ctx context.Context, adminID uint64, roomID, name, relay string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return false, fmt.Errorf("store: provision group: empty room id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	group := models.GroupConfig{
		AdminID:      adminID,
		MatrixRoomID: roomID,
		Name:         strings.TrimSpace(name),
		RelayNumber:  NormalizePhone(relay),
		IsActive:     true,
		TextModel:    credential.AutoModel,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "matrix_room_id"}},
		DoNothing: true,
	}).Create(&group)
	if res.Error != nil {
		return false, fmt.Errorf("store: provision group: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GroupPatch carries a partial group update. Nil fields are left untouched;
// key fields must already be encrypted and an empty key clears it.
type GroupPatch struct {
	IsActive       *bool
	AllowAll       *bool
	TextProvider   *string
	TextModel      *string
	TextAPIKey     *string
	VisionProvider *string
	VisionModel    *string
	VisionAPIKey   *string
	SystemPrompt   *string
}

// UpdateGroup applies a patch to a group owned by an admin.
func (s *Store) UpdateGroup(ctx context.Context, adminID, groupID uint64, patch GroupPatch) (*models.GroupConfig, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.IsActive != nil {
		updates["is_active"] = *patch.IsActive
	}
	if patch.AllowAll != nil {
		updates["allow_all"] = *patch.AllowAll
	}
	setString(updates, "text_provider", patch.TextProvider)
	setString(updates, "text_model", patch.TextModel)
	setString(updates, "text_api_key", patch.TextAPIKey)
	setString(updates, "vision_provider", patch.VisionProvider)
	setString(updates, "vision_model", patch.VisionModel)
	setString(updates, "vision_api_key", patch.VisionAPIKey)
	setString(updates, "system_prompt", patch.SystemPrompt)

	s.mu.Lock()
	res := s.db.WithContext(ctx).Model(&models.GroupConfig{}).
		Where("id = ? AND admin_id = ?", groupID, adminID).
		Updates(updates)
	s.mu.Unlock()
	if res.Error != nil {
		return nil, fmt.Errorf("store: update group: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Group(ctx, adminID, groupID)
}

func setString(updates map[string]any, column string, value *string) {
	if value != nil {
		updates[column] = strings.TrimSpace(*value)
	}
}

// Member loads a group member by phone.
func (s *Store) Member(ctx context.Context, groupID uint64, phone string) (*models.GroupUser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var user models.GroupUser
	if errFind := s.db.WithContext(ctx).
		Where("group_config_id = ? AND phone_number = ?", groupID, NormalizePhone(phone)).
		Take(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: load member: %w", errFind)
	}
	return &user, nil
}

// ListMembers lists the members of a group.
func (s *Store) ListMembers(ctx context.Context, groupID uint64) ([]models.GroupUser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var users []models.GroupUser
	if errFind := s.db.WithContext(ctx).Where("group_config_id = ?", groupID).Order("id ASC").Find(&users).Error; errFind != nil {
		return nil, fmt.Errorf("store: list members: %w", errFind)
	}
	return users, nil
}

// AddMember inserts a group member. An already present phone is returned unchanged.
func (s *Store) AddMember(ctx context.Context, groupID uint64, phone, name string) (*models.GroupUser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, fmt.Errorf("store: add member: empty phone")
	}
	s.mu.Lock()
	user := models.GroupUser{GroupConfigID: groupID, PhoneNumber: phone, Name: strings.TrimSpace(name), IsEnabled: true}
	errCreate := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_config_id"}, {Name: "phone_number"}},
		DoNothing: true,
	}).Create(&user).Error
	s.mu.Unlock()
	if errCreate != nil {
		return nil, fmt.Errorf("store: add member: %w", errCreate)
	}
	return s.Member(ctx, groupID, phone)
}

// MemberPatch carries a partial member update; APIKeyOverride must already be encrypted.
type MemberPatch struct {
	Name           *string
	IsEnabled      *bool
	APIKeyOverride *string
}

// UpdateMember applies a patch to a member of a group.
func (s *Store) UpdateMember(ctx context.Context, groupID, userID uint64, patch MemberPatch) (*models.GroupUser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	updates := map[string]any{"updated_at": time.Now().UTC()}
	setString(updates, "name", patch.Name)
	setString(updates, "api_key_override", patch.APIKeyOverride)
	if patch.IsEnabled != nil {
		updates["is_enabled"] = *patch.IsEnabled
	}
	s.mu.Lock()
	res := s.db.WithContext(ctx).Model(&models.GroupUser{}).
		Where("id = ? AND group_config_id = ?", userID, groupID).
		Updates(updates)
	s.mu.Unlock()
	if res.Error != nil {
		return nil, fmt.Errorf("store: update member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	var user models.GroupUser
	if errFind := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error; errFind != nil {
		return nil, fmt.Errorf("store: reload member: %w", errFind)
	}
	return &user, nil
}

// DeleteMember removes a member from a group.
func (s *Store) DeleteMember(ctx context.Context, groupID, userID uint64) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.db.WithContext(ctx).Where("id = ? AND group_config_id = ?", userID, groupID).Delete(&models.GroupUser{})
	if res.Error != nil {
		return fmt.Errorf("store: delete member: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// NormalizePhone strips everything but digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
