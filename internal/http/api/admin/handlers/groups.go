package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/eamarucci/bot-answer/internal/access"
	"github.com/eamarucci/bot-answer/internal/credential"
	"github.com/eamarucci/bot-answer/internal/models"
	"github.com/eamarucci/bot-answer/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// PortalLister lists the bridged rooms of a relay login.
type PortalLister interface {
	PortalsByRelay(ctx context.Context, relay string) ([]access.Portal, error)
}

// GroupHandler manages the group configurations of an admin.
type GroupHandler struct {
	store   *store.Store
	box     Sealer
	portals PortalLister
}

// NewGroupHandler constructs a GroupHandler. portals may be nil, which
// disables syncing rooms from the bridge on list.
func NewGroupHandler(s *store.Store, box Sealer, portals PortalLister) *GroupHandler {
	return &GroupHandler{store: s, box: box, portals: portals}
}

// updateGroupRequest is the payload of PUT /groups/:groupID. Nil fields are kept.
type updateGroupRequest struct {
	IsActive       *bool   `json:"is_active"`
	AllowAll       *bool   `json:"allow_all"`
	TextProvider   *string `json:"text_provider"`
	TextModel      *string `json:"text_model"`
	TextAPIKey     *string `json:"text_api_key"`
	VisionProvider *string `json:"vision_provider"`
	VisionModel    *string `json:"vision_model"`
	VisionAPIKey   *string `json:"vision_api_key"`
	SystemPrompt   *string `json:"system_prompt"`
}

// List syncs the rooms bridged by the admin's relay number and returns its groups.
func (h *GroupHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	adminID := adminIDFrom(c)
	if h.portals != nil {
		h.syncPortals(ctx, adminID)
	}

	rows, errList := h.store.ListGroups(ctx, adminID, c.Query("search"))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list groups failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatGroup(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"groups": out})
}

func (h *GroupHandler) syncPortals(ctx context.Context, adminID uint64) {
	entry := log.WithField("admin_id", adminID)
	admin, errAdmin := h.store.Admin(ctx, adminID)
	if errAdmin != nil {
		entry.WithError(errAdmin).Warn("groups: load admin for sync failed")
		return
	}
	portals, errPortals := h.portals.PortalsByRelay(ctx, admin.PhoneNumber)
	if errPortals != nil {
		entry.WithError(errPortals).Warn("groups: list bridge portals failed")
		return
	}
	for _, p := range portals {
		if _, errProvision := h.store.ProvisionGroup(ctx, adminID, p.RoomID, p.Name, p.RelayNumber); errProvision != nil {
			entry.WithError(errProvision).WithField("room_id", p.RoomID).Warn("groups: provision failed")
		}
	}
}

// Get returns one group.
func (h *GroupHandler) Get(c *gin.Context) {
	groupID, ok := parseIDParam(c, "groupID")
	if !ok {
		return
	}
	group, errGroup := h.store.Group(c.Request.Context(), adminIDFrom(c), groupID)
	if errGroup != nil {
		writeStoreError(c, errGroup, "load group")
		return
	}
	c.JSON(http.StatusOK, formatGroup(group))
}

// Update patches a group, encrypting any new keys.
func (h *GroupHandler) Update(c *gin.Context) {
	groupID, ok := parseIDParam(c, "groupID")
	if !ok {
		return
	}
	var body updateGroupRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	patch := store.GroupPatch{
		IsActive:     body.IsActive,
		AllowAll:     body.AllowAll,
		TextModel:    body.TextModel,
		VisionModel:  body.VisionModel,
		SystemPrompt: body.SystemPrompt,
	}
	if patch.TextModel != nil && strings.TrimSpace(*patch.TextModel) == "" {
		auto := credential.AutoModel
		patch.TextModel = &auto
	}
	if body.TextProvider != nil {
		normalized, okProvider := normalizeProvider(*body.TextProvider)
		if !okProvider {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
			return
		}
		patch.TextProvider = &normalized
	}
	if body.VisionProvider != nil {
		normalized, okProvider := normalizeProvider(*body.VisionProvider)
		if !okProvider {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
			return
		}
		patch.VisionProvider = &normalized
	}
	var errSeal error
	if patch.TextAPIKey, errSeal = sealOptional(h.box, body.TextAPIKey); errSeal != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errSeal.Error()})
		return
	}
	if patch.VisionAPIKey, errSeal = sealOptional(h.box, body.VisionAPIKey); errSeal != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errSeal.Error()})
		return
	}

	group, errUpdate := h.store.UpdateGroup(c.Request.Context(), adminIDFrom(c), groupID, patch)
	if errUpdate != nil {
		writeStoreError(c, errUpdate, "update group")
		return
	}
	c.JSON(http.StatusOK, formatGroup(group))
}

func formatGroup(g *models.GroupConfig) gin.H {
	return gin.H{
		"id":                 g.ID,
		"matrix_room_id":     g.MatrixRoomID,
		"name":               g.Name,
		"relay_number":       g.RelayNumber,
		"is_active":          g.IsActive,
		"allow_all":          g.AllowAll,
		"text_provider":      g.TextProvider,
		"text_model":         g.TextModel,
		"has_text_api_key":   g.TextAPIKey != "",
		"vision_provider":    g.VisionProvider,
		"vision_model":       g.VisionModel,
		"has_vision_api_key": g.VisionAPIKey != "",
		"system_prompt":      g.SystemPrompt,
		"created_at":         g.CreatedAt,
		"updated_at":         g.UpdatedAt,
	}
}
