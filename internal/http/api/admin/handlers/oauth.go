package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/eamarucci/bot-answer/internal/credential"
	"github.com/eamarucci/bot-answer/internal/models"
	"github.com/eamarucci/bot-answer/internal/oauth"
	"github.com/eamarucci/bot-answer/internal/providers"
	"github.com/eamarucci/bot-answer/internal/store"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GrantManager stores exchanged grants and drops cached tokens.
type GrantManager interface {
	Connect(ctx context.Context, principalID uint64, provider providers.ID, set oauth.TokenSet) error
	Disconnect(ctx context.Context, principalID uint64, provider providers.ID) error
	Invalidate(principalID uint64, provs ...providers.ID)
}

// OAuthHandler runs the subscription grant flow of an admin.
type OAuthHandler struct {
	store    *store.Store
	manager  GrantManager
	clients  map[providers.ID]oauth.Client
	stateKey []byte
	now      func() time.Time
}

// NewOAuthHandler constructs an OAuthHandler. stateKey signs the PKCE state cookie.
func NewOAuthHandler(s *store.Store, manager GrantManager, clients map[providers.ID]oauth.Client, stateKey []byte) *OAuthHandler {
	return &OAuthHandler{store: s, manager: manager, clients: clients, stateKey: stateKey, now: time.Now}
}

type oauthCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type oauthPatchRequest struct {
	Model *string `json:"model"`
}

func (h *OAuthHandler) provider(c *gin.Context) (providers.ID, oauth.Client, bool) {
	id := providers.Normalize(c.Param("provider"))
	client, ok := h.clients[id]
	if !ok || !providers.OAuthCapable(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider does not support oauth"})
		return "", nil, false
	}
	return id, client, true
}

// Authorize starts a PKCE flow and returns the consent URL.
func (h *OAuthHandler) Authorize(c *gin.Context) {
	id, client, ok := h.provider(c)
	if !ok {
		return
	}
	verifier := oauth.NewVerifier()
	state, errSign := signOAuthState(h.stateKey, adminIDFrom(c), string(id), verifier, h.now())
	if errSign != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "start oauth failed"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, int(oauthStateLifetime/time.Second), "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, gin.H{"url": client.AuthorizeURL(verifier), "state": state})
}

// Callback exchanges the pasted code and stores the grant.
func (h *OAuthHandler) Callback(c *gin.Context) {
	id, client, ok := h.provider(c)
	if !ok {
		return
	}
	var body oauthCallbackRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	raw, errCookie := c.Cookie(oauthStateCookie)
	if errCookie != nil || raw == "" {
		raw = strings.TrimSpace(body.State)
	}
	adminID := adminIDFrom(c)
	claims, errState := parseOAuthState(h.stateKey, raw, h.now())
	if errState != nil || claims.AdminID != adminID || claims.Provider != string(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidState.Error()})
		return
	}

	entry := log.WithFields(log.Fields{"admin_id": adminID, "provider": id})
	set, errExchange := client.Exchange(c.Request.Context(), code, claims.Verifier)
	if errExchange != nil {
		entry.WithError(errExchange).Warn("oauth: code exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "code exchange failed"})
		return
	}
	h.manager.Invalidate(adminID, id)
	if errConnect := h.manager.Connect(c.Request.Context(), adminID, id, set); errConnect != nil {
		entry.WithError(errConnect).Error("oauth: store grant failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store grant failed"})
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/", "", c.Request.TLS != nil, true)
	entry.Info("oauth: grant connected")
	h.respondStatus(c, id)
}

// Get reports whether a grant is connected.
func (h *OAuthHandler) Get(c *gin.Context) {
	id, _, ok := h.provider(c)
	if !ok {
		return
	}
	h.respondStatus(c, id)
}

// Patch changes the model used with a grant.
func (h *OAuthHandler) Patch(c *gin.Context) {
	id, _, ok := h.provider(c)
	if !ok {
		return
	}
	var body oauthPatchRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || body.Model == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errSet := h.store.SetOAuthModel(c.Request.Context(), adminIDFrom(c), id, *body.Model); errSet != nil {
		writeStoreError(c, errSet, "update oauth model")
		return
	}
	h.respondStatus(c, id)
}

// Delete disconnects a grant.
func (h *OAuthHandler) Delete(c *gin.Context) {
	id, _, ok := h.provider(c)
	if !ok {
		return
	}
	if errDisconnect := h.manager.Disconnect(c.Request.Context(), adminIDFrom(c), id); errDisconnect != nil {
		writeStoreError(c, errDisconnect, "disconnect oauth")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *OAuthHandler) respondStatus(c *gin.Context, id providers.ID) {
	admin, errAdmin := h.store.Admin(c.Request.Context(), adminIDFrom(c))
	if errAdmin != nil {
		writeStoreError(c, errAdmin, "load admin")
		return
	}
	c.JSON(http.StatusOK, formatGrant(admin, id, h.now()))
}

func formatGrant(a *models.Admin, id providers.ID, now time.Time) gin.H {
	var refresh, model string
	var expires *time.Time
	switch id {
	case providers.Anthropic:
		refresh, expires, model = a.AnthropicOAuthRefresh, a.AnthropicOAuthExpires, a.AnthropicOAuthModel
	case providers.OpenAI:
		refresh, expires, model = a.OpenAIOAuthRefresh, a.OpenAIOAuthExpires, a.OpenAIOAuthModel
	}
	grant := credential.OAuthGrant{EncryptedRefresh: refresh, ExpiresAt: expires}
	if model == "" {
		model = credential.DefaultOAuthModels[id]
	}
	out := gin.H{
		"provider":   id,
		"connected":  refresh != "",
		"usable":     grant.Usable(now),
		"model":      model,
		"expires_at": expires,
	}
	if id == providers.OpenAI {
		out["account_id"] = a.OpenAIAccountID
	}
	return out
}
