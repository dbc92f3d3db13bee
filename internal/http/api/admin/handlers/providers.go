package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/eamarucci/bot-answer/internal/modelcatalog"
	"github.com/eamarucci/bot-answer/internal/models"
	"github.com/eamarucci/bot-answer/internal/providers"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ModelLister lists and caches provider model catalogs.
type ModelLister interface {
	List(ctx context.Context, provider providers.ID, key string) ([]models.ModelReference, error)
	Cached(ctx context.Context, provider providers.ID) ([]models.ModelReference, bool, error)
}

// ProviderHandler exposes the provider table and model listings.
type ProviderHandler struct {
	catalog ModelLister
	table   *providers.Table
}

// NewProviderHandler constructs a ProviderHandler.
func NewProviderHandler(catalog ModelLister, table *providers.Table) *ProviderHandler {
	if table == nil {
		table = providers.Default()
	}
	return &ProviderHandler{catalog: catalog, table: table}
}

type listModelsRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

// List returns the configured providers.
func (h *ProviderHandler) List(c *gin.Context) {
	ids := h.table.IDs()
	out := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		desc, _ := h.table.Lookup(id)
		out = append(out, gin.H{"id": id, "name": desc.Name, "oauth": providers.OAuthCapable(id)})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// Models lists the chat models a key can use. A successful answer doubles as
// key validation; the key is never stored.
func (h *ProviderHandler) Models(c *gin.Context) {
	var body listModelsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id := providers.Normalize(body.Provider)
	refs, errList := h.catalog.List(c.Request.Context(), id, body.APIKey)
	switch {
	case errors.Is(errList, modelcatalog.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return
	case errors.Is(errList, modelcatalog.ErrInvalidKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid api key", "valid": false})
		return
	case errList != nil:
		log.WithError(errList).WithField("provider", id).Warn("providers: list models failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "list models failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "models": formatModels(refs)})
}

// CachedModels returns the last cached listing of a provider.
func (h *ProviderHandler) CachedModels(c *gin.Context) {
	id := providers.Normalize(c.Param("provider"))
	if _, ok := h.table.Lookup(id); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return
	}
	refs, fresh, errCached := h.catalog.Cached(c.Request.Context(), id)
	if errCached != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load cached models failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fresh": fresh, "models": formatModels(refs)})
}

func formatModels(refs []models.ModelReference) []gin.H {
	out := make([]gin.H, 0, len(refs))
	for _, ref := range refs {
		item := gin.H{"id": ref.ModelID, "name": ref.Name}
		if ref.ContextLength > 0 {
			item["context_length"] = ref.ContextLength
		}
		if ref.PromptPrice != "" || ref.CompletionPrice != "" {
			item["pricing"] = gin.H{"prompt": ref.PromptPrice, "completion": ref.CompletionPrice}
		}
		out = append(out, item)
	}
	return out
}
