package handlers

import (
	"net/http"

	"github.com/eamarucci/bot-answer/internal/store"
	"github.com/gin-gonic/gin"
)

// AdminHandler registers admins by relay phone number.
type AdminHandler struct {
	store *store.Store
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(s *store.Store) *AdminHandler {
	return &AdminHandler{store: s}
}

type createAdminRequest struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
}

// Create registers an admin, returning the existing one for a known phone.
func (h *AdminHandler) Create(c *gin.Context) {
	var body createAdminRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if store.NormalizePhone(body.PhoneNumber) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing phone_number"})
		return
	}
	admin, errEnsure := h.store.EnsureAdmin(c.Request.Context(), body.PhoneNumber, body.Name)
	if errEnsure != nil {
		writeStoreError(c, errEnsure, "create admin")
		return
	}
	c.JSON(http.StatusCreated, formatDefaults(admin))
}
