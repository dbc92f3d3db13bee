package handlers

import (
	"net/http"
	"strings"

	"github.com/eamarucci/bot-answer/internal/models"
	"github.com/eamarucci/bot-answer/internal/providers"
	"github.com/eamarucci/bot-answer/internal/store"
	"github.com/gin-gonic/gin"
)

// DefaultsHandler manages the default provider settings of an admin.
type DefaultsHandler struct {
	store *store.Store
	box   Sealer
}

// NewDefaultsHandler constructs a DefaultsHandler.
func NewDefaultsHandler(s *store.Store, box Sealer) *DefaultsHandler {
	return &DefaultsHandler{store: s, box: box}
}

// updateDefaultsRequest is the payload of PUT /defaults. Omitted keys are kept.
type updateDefaultsRequest struct {
	Provider       string  `json:"provider"`
	Model          string  `json:"model"`
	APIKey         *string `json:"api_key"`
	VisionProvider string  `json:"vision_provider"`
	VisionModel    string  `json:"vision_model"`
	VisionAPIKey   *string `json:"vision_api_key"`
}

// Get returns the admin defaults without secrets.
func (h *DefaultsHandler) Get(c *gin.Context) {
	admin, errAdmin := h.store.Admin(c.Request.Context(), adminIDFrom(c))
	if errAdmin != nil {
		writeStoreError(c, errAdmin, "load admin")
		return
	}
	c.JSON(http.StatusOK, formatDefaults(admin))
}

// Update replaces the admin defaults, encrypting any new keys.
func (h *DefaultsHandler) Update(c *gin.Context) {
	var body updateDefaultsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	provider, okProvider := normalizeProvider(body.Provider)
	visionProvider, okVision := normalizeProvider(body.VisionProvider)
	if !okProvider || !okVision {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return
	}
	apiKey, errSeal := sealOptional(h.box, body.APIKey)
	if errSeal != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errSeal.Error()})
		return
	}
	visionKey, errSeal := sealOptional(h.box, body.VisionAPIKey)
	if errSeal != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errSeal.Error()})
		return
	}

	adminID := adminIDFrom(c)
	errUpdate := h.store.UpdateAdminDefaults(c.Request.Context(), adminID, store.AdminDefaults{
		Provider:       provider,
		Model:          body.Model,
		APIKey:         apiKey,
		VisionProvider: visionProvider,
		VisionModel:    body.VisionModel,
		VisionAPIKey:   visionKey,
	})
	if errUpdate != nil {
		writeStoreError(c, errUpdate, "update defaults")
		return
	}
	admin, errAdmin := h.store.Admin(c.Request.Context(), adminID)
	if errAdmin != nil {
		writeStoreError(c, errAdmin, "load admin")
		return
	}
	c.JSON(http.StatusOK, formatDefaults(admin))
}

// normalizeProvider accepts an empty value or a known provider alias.
func normalizeProvider(value string) (string, bool) {
	if strings.TrimSpace(value) == "" {
		return "", true
	}
	id := providers.Normalize(value)
	if _, ok := providers.Default().Lookup(id); !ok {
		return "", false
	}
	return string(id), true
}

func formatDefaults(a *models.Admin) gin.H {
	return gin.H{
		"id":                 a.ID,
		"phone_number":       a.PhoneNumber,
		"name":               a.Name,
		"provider":           a.DefaultProvider,
		"model":              a.DefaultModel,
		"has_api_key":        a.DefaultAPIKey != "",
		"vision_provider":    a.DefaultVisionProvider,
		"vision_model":       a.DefaultVisionModel,
		"has_vision_api_key": a.DefaultVisionAPIKey != "",
		"updated_at":         a.UpdatedAt,
	}
}
