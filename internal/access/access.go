// Package access decides whether a room member may use the bot and gathers the
// configuration records the credential resolver walks.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/eamarucci/bot-answer/internal/credential"
	"github.com/eamarucci/bot-answer/internal/models"
	"github.com/eamarucci/bot-answer/internal/providers"
	"github.com/eamarucci/bot-answer/internal/store"
	log "github.com/sirupsen/logrus"
)

// Denial messages shown to chat members.
const (
	ReasonGroupDisabled = "Bot desativado neste grupo pelo admin."
	ReasonNotListed     = "Voce nao esta habilitado para usar o bot neste grupo. Peca ao admin para te adicionar."
	ReasonUserDisabled  = "Seu acesso ao bot neste grupo foi desativado."
	ReasonDefault       = "Voce nao tem permissao para usar o bot neste grupo."
)

// Records is the subset of the store the checker reads.
type Records interface {
	GroupByRoom(ctx context.Context, roomID string) (*models.GroupConfig, error)
	Member(ctx context.Context, groupID uint64, phone string) (*models.GroupUser, error)
	AdminByPhone(ctx context.Context, phone string) (*models.Admin, error)
	ProvisionGroup(ctx context.Context, adminID uint64, roomID, name, relay string) (bool, error)
}

// Portal describes the bridge side of a room.
type Portal struct {
	RoomID      string
	Name        string
	RelayNumber string
}

// Provisioner creates group configurations for bridged rooms owned by a known admin.
type Provisioner interface {
	PortalByRoom(ctx context.Context, roomID string) (Portal, bool, error)
}

// Checker implements room access control.
type Checker struct {
	records Records
	portals Provisioner
}

// NewChecker builds a Checker. A nil portals disables auto-provisioning of rooms
// bridged by a registered admin.
func NewChecker(records Records, portals Provisioner) *Checker {
	return &Checker{records: records, portals: portals}
}

// CheckPermission resolves the permission context of a member identified by phone.
func (c *Checker) CheckPermission(ctx context.Context, roomID, phone string) (credential.PermissionContext, error) {
	group, err := c.group(ctx, roomID)
	if err != nil {
		return credential.PermissionContext{}, err
	}
	if group == nil {
		return credential.PermissionContext{Allowed: true}, nil
	}
	if !group.IsActive {
		return denied(ReasonGroupDisabled), nil
	}
	pc := permitted(group)
	if group.AllowAll {
		return pc, nil
	}

	member, errMember := c.records.Member(ctx, group.ID, phone)
	if errors.Is(errMember, store.ErrNotFound) {
		return denied(ReasonNotListed), nil
	}
	if errMember != nil {
		return credential.PermissionContext{}, fmt.Errorf("access: load member: %w", errMember)
	}
	if !member.IsEnabled {
		return denied(ReasonUserDisabled), nil
	}
	pc.User = &credential.UserOverride{ID: member.ID, EncryptedKey: member.APIKeyOverride}
	return pc, nil
}

// GroupConfigByRoom resolves the permission context when the sender has no phone
// identity. Only the group activation flag is enforced.
func (c *Checker) GroupConfigByRoom(ctx context.Context, roomID string) (credential.PermissionContext, error) {
	group, err := c.group(ctx, roomID)
	if err != nil {
		return credential.PermissionContext{}, err
	}
	if group == nil {
		return credential.PermissionContext{Allowed: true}, nil
	}
	if !group.IsActive {
		return denied(ReasonGroupDisabled), nil
	}
	return permitted(group), nil
}

func (c *Checker) group(ctx context.Context, roomID string) (*models.GroupConfig, error) {
	group, err := c.records.GroupByRoom(ctx, roomID)
	if err == nil {
		return group, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("access: load group: %w", err)
	}
	if !c.provision(ctx, roomID) {
		return nil, nil
	}
	group, err = c.records.GroupByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("access: reload provisioned group: %w", err)
	}
	return group, nil
}

// provision creates the room configuration when the room's relay belongs to an admin.
func (c *Checker) provision(ctx context.Context, roomID string) bool {
	if c.portals == nil {
		return false
	}
	portal, ok, err := c.portals.PortalByRoom(ctx, roomID)
	if err != nil {
		log.WithError(err).WithField("room_id", roomID).Warn("access: portal lookup failed")
		return false
	}
	if !ok || portal.RelayNumber == "" {
		return false
	}
	admin, err := c.records.AdminByPhone(ctx, portal.RelayNumber)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).WithField("room_id", roomID).Warn("access: admin lookup failed")
		}
		return false
	}
	created, err := c.records.ProvisionGroup(ctx, admin.ID, roomID, portal.Name, portal.RelayNumber)
	if err != nil {
		log.WithError(err).WithField("room_id", roomID).Warn("access: provision group failed")
		return false
	}
	if created {
		log.WithFields(log.Fields{"room_id": roomID, "admin_id": admin.ID}).Info("access: group provisioned")
	}
	return true
}

func denied(reason string) credential.PermissionContext {
	return credential.PermissionContext{Allowed: false, DenialReason: reason}
}

func permitted(group *models.GroupConfig) credential.PermissionContext {
	pc := credential.PermissionContext{
		Allowed: true,
		Group: &credential.GroupConfig{
			ID:             group.ID,
			AdminID:        group.AdminID,
			TextProvider:   group.TextProvider,
			TextModel:      group.TextModel,
			TextAPIKey:     group.TextAPIKey,
			VisionProvider: group.VisionProvider,
			VisionModel:    group.VisionModel,
			VisionAPIKey:   group.VisionAPIKey,
			SystemPrompt:   group.SystemPrompt,
			AllowAll:       group.AllowAll,
		},
	}
	if group.Admin != nil {
		pc.Admin = AdminConfig(group.Admin)
	}
	return pc
}

// AdminConfig converts a stored admin into the resolver's view of it.
func AdminConfig(admin *models.Admin) *credential.AdminConfig {
	cfg := &credential.AdminConfig{
		ID:                    admin.ID,
		DefaultProvider:       admin.DefaultProvider,
		DefaultModel:          admin.DefaultModel,
		DefaultAPIKey:         admin.DefaultAPIKey,
		DefaultVisionProvider: admin.DefaultVisionProvider,
		DefaultVisionModel:    admin.DefaultVisionModel,
		DefaultVisionAPIKey:   admin.DefaultVisionAPIKey,
		OAuth:                 map[providers.ID]credential.OAuthGrant{},
	}
	if admin.AnthropicOAuthRefresh != "" {
		cfg.OAuth[providers.Anthropic] = credential.OAuthGrant{
			EncryptedRefresh: admin.AnthropicOAuthRefresh,
			ExpiresAt:        admin.AnthropicOAuthExpires,
			Model:            admin.AnthropicOAuthModel,
		}
	}
	if admin.OpenAIOAuthRefresh != "" {
		cfg.OAuth[providers.OpenAI] = credential.OAuthGrant{
			EncryptedRefresh: admin.OpenAIOAuthRefresh,
			ExpiresAt:        admin.OpenAIOAuthExpires,
			Model:            admin.OpenAIOAuthModel,
		}
	}
	return cfg
}
