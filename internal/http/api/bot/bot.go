// Package bot exposes the endpoints the chat-command process calls: ask,
// per-room settings and the model alias list.
package bot

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/eamarucci/bot-answer/internal/ask"
	"github.com/eamarucci/bot-answer/internal/llm"
	"github.com/eamarucci/bot-answer/internal/modelalias"
	"github.com/eamarucci/bot-answer/internal/roomsettings"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Asker answers one ask command.
type Asker interface {
	Ask(ctx context.Context, req ask.Request) (ask.Result, error)
}

// Rooms reads and writes per-room overrides.
type Rooms interface {
	Get(roomID string) roomsettings.Settings
	EffectiveModel(roomID string) string
	CustomPrompt(roomID string) string
	SetModel(roomID, model string) error
	SetSystemPrompt(roomID, prompt string) error
	Reset(roomID string) error
}

// RegisterRoutes mounts the bot API under /v0/bot. An empty token leaves the
// routes open.
func RegisterRoutes(r *gin.Engine, asker Asker, rooms Rooms, token string) {
	if r == nil || asker == nil {
		return
	}
	h := &handler{asker: asker, rooms: rooms}
	group := r.Group("/v0/bot")
	group.Use(tokenMiddleware(token))
	group.POST("/ask", h.Ask)
	group.GET("/models", h.Aliases)
	if rooms != nil {
		group.GET("/rooms/:roomID/settings", h.GetRoom)
		group.PUT("/rooms/:roomID/settings", h.UpdateRoom)
		group.DELETE("/rooms/:roomID/settings", h.ResetRoom)
	}
}

func tokenMiddleware(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

type handler struct {
	asker Asker
	rooms Rooms
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mediaPayload struct {
	Kind    string `json:"kind"`
	DataURI string `json:"data_uri"`
	Size    int64  `json:"size"`
}

type askRequest struct {
	RoomID  string           `json:"room_id"`
	Sender  string           `json:"sender"`
	Message string           `json:"message"`
	History []historyMessage `json:"history"`
	Media   *mediaPayload    `json:"media"`
}

// Ask runs one ask command. Failures meant for the chat come back as 422 with
// the message to post.
func (h *handler) Ask(c *gin.Context) {
	var body askRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.RoomID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing room_id"})
		return
	}

	req := ask.Request{RoomID: body.RoomID, Sender: body.Sender, Message: strings.TrimSpace(body.Message)}
	for _, m := range body.History {
		switch m.Role {
		case llm.RoleUser, llm.RoleAssistant:
			req.History = append(req.History, llm.TextMessage(m.Role, m.Content))
		}
	}
	if body.Media != nil {
		kind := ask.MediaKind(strings.ToLower(strings.TrimSpace(body.Media.Kind)))
		if (kind != ask.MediaImage && kind != ask.MediaVideo) || !strings.HasPrefix(body.Media.DataURI, "data:") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid media"})
			return
		}
		req.Media = &ask.Media{Kind: kind, DataURI: body.Media.DataURI, Size: body.Media.Size}
	}
	if req.Message == "" && req.Media == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing message"})
		return
	}

	res, errAsk := h.asker.Ask(c.Request.Context(), req)
	if errAsk != nil {
		var askErr *ask.Error
		if errors.As(errAsk, &askErr) {
			if askErr.Err != nil {
				log.WithError(askErr.Err).WithField("room_id", req.RoomID).Warn("bot: ask failed")
			}
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": askErr.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": ask.MsgGeneric})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": res.Response, "model": res.Model})
}

// Aliases lists the model aliases usable in chat commands.
func (h *handler) Aliases(c *gin.Context) {
	aliases := modelalias.List()
	out := make([]gin.H, 0, len(aliases))
	for _, a := range aliases {
		out = append(out, gin.H{"alias": a.Alias, "model": a.ModelID, "description": a.Description})
	}
	c.JSON(http.StatusOK, gin.H{"aliases": out})
}

type roomSettingsRequest struct {
	Model        *string `json:"model"`
	SystemPrompt *string `json:"system_prompt"`
}

// GetRoom returns the effective settings of a room.
func (h *handler) GetRoom(c *gin.Context) {
	roomID := c.Param("roomID")
	stored := h.rooms.Get(roomID)
	model := h.rooms.EffectiveModel(roomID)
	c.JSON(http.StatusOK, gin.H{
		"room_id":       roomID,
		"model":         model,
		"model_display": modelalias.DisplayName(modelalias.ResolveOr(model)),
		"custom_model":  stored.Model != "",
		"system_prompt": h.rooms.CustomPrompt(roomID),
		"custom_prompt": stored.SystemPrompt != "",
	})
}

// UpdateRoom stores a model and/or prompt override. The model accepts aliases.
func (h *handler) UpdateRoom(c *gin.Context) {
	roomID := c.Param("roomID")
	var body roomSettingsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Model != nil {
		model := strings.TrimSpace(*body.Model)
		if model != "" {
			model = modelalias.ResolveOr(model)
		}
		if errSet := h.rooms.SetModel(roomID, model); errSet != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update room failed"})
			return
		}
	}
	if body.SystemPrompt != nil {
		if errSet := h.rooms.SetSystemPrompt(roomID, strings.TrimSpace(*body.SystemPrompt)); errSet != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update room failed"})
			return
		}
	}
	h.GetRoom(c)
}

// ResetRoom clears every override of a room.
func (h *handler) ResetRoom(c *gin.Context) {
	if errReset := h.rooms.Reset(c.Param("roomID")); errReset != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset room failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
