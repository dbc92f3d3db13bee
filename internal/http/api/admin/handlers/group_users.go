package handlers

import (
	"net/http"
	"strings"

	"github.com/eamarucci/bot-answer/internal/models"
	"github.com/eamarucci/bot-answer/internal/store"
	"github.com/gin-gonic/gin"
)

// GroupUserHandler manages the members allowed in a group.
type GroupUserHandler struct {
	store *store.Store
	box   Sealer
}

// NewGroupUserHandler constructs a GroupUserHandler.
func NewGroupUserHandler(s *store.Store, box Sealer) *GroupUserHandler {
	return &GroupUserHandler{store: s, box: box}
}

// createGroupUserRequest is the payload of POST /groups/:groupID/users.
type createGroupUserRequest struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
}

// updateGroupUserRequest is the payload of PUT /groups/:groupID/users/:userID.
type updateGroupUserRequest struct {
	Name      *string `json:"name"`
	IsEnabled *bool   `json:"is_enabled"`
	APIKey    *string `json:"api_key"`
}

// ownedGroup checks the group belongs to the admin in the path.
func (h *GroupUserHandler) ownedGroup(c *gin.Context) (uint64, bool) {
	groupID, ok := parseIDParam(c, "groupID")
	if !ok {
		return 0, false
	}
	if _, errGroup := h.store.Group(c.Request.Context(), adminIDFrom(c), groupID); errGroup != nil {
		writeStoreError(c, errGroup, "load group")
		return 0, false
	}
	return groupID, true
}

// List returns the members of a group.
func (h *GroupUserHandler) List(c *gin.Context) {
	groupID, ok := h.ownedGroup(c)
	if !ok {
		return
	}
	rows, errList := h.store.ListMembers(c.Request.Context(), groupID)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatGroupUser(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// Create adds a member. Adding an existing phone returns the existing member.
func (h *GroupUserHandler) Create(c *gin.Context) {
	groupID, ok := h.ownedGroup(c)
	if !ok {
		return
	}
	var body createGroupUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if store.NormalizePhone(body.PhoneNumber) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing phone_number"})
		return
	}
	user, errAdd := h.store.AddMember(c.Request.Context(), groupID, body.PhoneNumber, strings.TrimSpace(body.Name))
	if errAdd != nil {
		writeStoreError(c, errAdd, "create user")
		return
	}
	c.JSON(http.StatusCreated, formatGroupUser(user))
}

// Update patches a member, encrypting a new personal key.
func (h *GroupUserHandler) Update(c *gin.Context) {
	groupID, ok := h.ownedGroup(c)
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "userID")
	if !ok {
		return
	}
	var body updateGroupUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	key, errSeal := sealOptional(h.box, body.APIKey)
	if errSeal != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errSeal.Error()})
		return
	}
	user, errUpdate := h.store.UpdateMember(c.Request.Context(), groupID, userID, store.MemberPatch{
		Name:           body.Name,
		IsEnabled:      body.IsEnabled,
		APIKeyOverride: key,
	})
	if errUpdate != nil {
		writeStoreError(c, errUpdate, "update user")
		return
	}
	c.JSON(http.StatusOK, formatGroupUser(user))
}

// Delete removes a member.
func (h *GroupUserHandler) Delete(c *gin.Context) {
	groupID, ok := h.ownedGroup(c)
	if !ok {
		return
	}
	userID, ok := parseIDParam(c, "userID")
	if !ok {
		return
	}
	if errDelete := h.store.DeleteMember(c.Request.Context(), groupID, userID); errDelete != nil {
		writeStoreError(c, errDelete, "delete user")
		return
	}
	c.Status(http.StatusNoContent)
}

func formatGroupUser(u *models.GroupUser) gin.H {
	return gin.H{
		"id":           u.ID,
		"phone_number": u.PhoneNumber,
		"name":         u.Name,
		"is_enabled":   u.IsEnabled,
		"has_api_key":  u.APIKeyOverride != "",
		"created_at":   u.CreatedAt,
		"updated_at":   u.UpdatedAt,
	}
}
