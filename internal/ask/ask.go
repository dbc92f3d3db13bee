// Package ask is the entry point the chat-command layer calls for one question:
// identity, access, model choice, credential resolution and completion.
package ask

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eamarucci/bot-answer/internal/credential"
	"github.com/eamarucci/bot-answer/internal/llm"
	"github.com/eamarucci/bot-answer/internal/modelalias"
	"github.com/eamarucci/bot-answer/internal/ratelimit"
	"github.com/eamarucci/bot-answer/internal/usage"
	log "github.com/sirupsen/logrus"
)

// MaxVideoSize is the largest video accepted for vision requests.
const MaxVideoSize = 20 * 1024 * 1024

// User-facing messages.
const (
	MsgNoCredentials = "Nenhuma chave API configurada. Admin: acesse bot-answer.marucci.cloud para configurar."
	MsgDenied        = "Voce nao tem permissao para usar o bot neste grupo."
	MsgGeneric       = "Erro ao processar a requisicao."
	msgRateLimited   = "Muitas perguntas em pouco tempo. Tente novamente em %d segundos."
	msgVideoTooLarge = "Video muito grande (%.1fMB). Limite: 20MB."
	promptImage      = "Descreva esta imagem."
	promptVideo      = "Descreva este video."
)

// MediaKind tells images from videos.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Media is an attachment already fetched and encoded as a data URI.
type Media struct {
	Kind    MediaKind
	DataURI string
	Size    int64
}

// Request is one ask command.
type Request struct {
	RoomID  string
	Sender  string
	Message string
	// History holds prior conversation turns; ignored when Media is set.
	History []llm.Message
	Media   *Media
}

// Result is a successful answer.
type Result struct {
	Response string
	Model    string
}

// Error is a failure with a message meant for the chat.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ask: %s: %v", e.Message, e.Err)
	}
	return "ask: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// PermissionChecker is the access-control collaborator.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, roomID, phone string) (credential.PermissionContext, error)
	GroupConfigByRoom(ctx context.Context, roomID string) (credential.PermissionContext, error)
}

// IdentityResolver maps chat senders to phone numbers.
type IdentityResolver interface {
	PhoneFromSender(ctx context.Context, sender string) (string, bool)
}

// RoomSettings exposes per-room overrides.
type RoomSettings interface {
	Model(roomID string) string
	EffectiveSystemPrompt(roomID string) string
}

// CredentialResolver picks the credential for a request.
type CredentialResolver interface {
	Resolve(ctx context.Context, pc credential.PermissionContext, isVision bool, requestedModel string) (credential.Credential, error)
}

// Completer runs a completion with a resolved credential.
type Completer interface {
	CreateChatCompletion(ctx context.Context, messages []llm.Message, model string, cred credential.Credential) (llm.Result, error)
}

// Limiter throttles members.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Result, error)
}

// UsageRecorder stores token accounting.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record)
}

// Config holds the static inputs of the service.
type Config struct {
	DefaultModel string
	VisionModel  string
	BasePrompt   string
}

// Deps wires the collaborators. Identity, Limiter and Usage may be nil.
type Deps struct {
	Access    PermissionChecker
	Identity  IdentityResolver
	Rooms     RoomSettings
	Resolver  CredentialResolver
	Completer Completer
	Limiter   Limiter
	Usage     UsageRecorder
	Now       func() time.Time
}

// Service answers ask commands.
type Service struct {
	cfg  Config
	deps Deps
}

// NewService constructs a Service.
func NewService(cfg Config, deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{cfg: cfg, deps: deps}
}

// Ask answers one question. Failures are *Error carrying the chat message.
func (s *Service) Ask(ctx context.Context, req Request) (Result, error) {
	started := s.deps.Now()
	entry := log.WithField("room_id", req.RoomID)

	phone := ""
	if s.deps.Identity != nil && req.Sender != "" {
		if resolved, ok := s.deps.Identity.PhoneFromSender(ctx, req.Sender); ok {
			phone = resolved
		}
	}

	var pc credential.PermissionContext
	var err error
	if phone != "" {
		pc, err = s.deps.Access.CheckPermission(ctx, req.RoomID, phone)
	} else {
		pc, err = s.deps.Access.GroupConfigByRoom(ctx, req.RoomID)
	}
	if err != nil {
		entry.WithError(err).Error("ask: permission check failed")
		return Result{}, &Error{Message: MsgGeneric, Err: err}
	}
	if !pc.Allowed {
		reason := pc.DenialReason
		if reason == "" {
			reason = MsgDenied
		}
		return Result{}, &Error{Message: reason}
	}

	isVision := req.Media != nil
	if isVision && req.Media.Kind == MediaVideo && req.Media.Size > MaxVideoSize {
		return Result{}, &Error{Message: fmt.Sprintf(msgVideoTooLarge, float64(req.Media.Size)/1024/1024)}
	}

	if s.deps.Limiter != nil {
		member := phone
		if member == "" {
			member = req.Sender
		}
		res, errLimit := s.deps.Limiter.Allow(ctx, ratelimit.KeyForMember(req.RoomID, member))
		if errLimit != nil {
			entry.WithError(errLimit).Warn("ask: rate limit check failed")
		} else if !res.Allowed {
			wait := res.RetryAfter(s.deps.Now())
			return Result{}, &Error{Message: fmt.Sprintf(msgRateLimited, int(wait/time.Second))}
		}
	}

	requested := s.requestedModel(req.RoomID, pc, isVision)
	cred, err := s.deps.Resolver.Resolve(ctx, pc, isVision, requested)
	if errors.Is(err, credential.ErrNoCredentials) {
		return Result{}, &Error{Message: MsgNoCredentials, Err: err}
	}
	if err != nil {
		entry.WithError(err).Error("ask: credential resolution failed")
		return Result{}, &Error{Message: MsgGeneric, Err: err}
	}
	model := s.effectiveModel(requested, cred, isVision)

	messages := s.buildMessages(req, pc)
	entry.WithFields(log.Fields{
		"model":    model,
		"provider": cred.Target(),
		"source":   cred.Origin(),
		"vision":   isVision,
		"messages": len(messages),
	}).Info("ask: processing")

	result, err := s.deps.Completer.CreateChatCompletion(ctx, messages, model, cred)
	if err != nil {
		var llmErr *llm.Error
		if errors.As(err, &llmErr) && llmErr.UserMessage() != "" {
			return Result{}, &Error{Message: llmErr.UserMessage(), Err: err}
		}
		return Result{}, &Error{Message: MsgGeneric, Err: err}
	}

	s.record(ctx, req, pc, phone, cred, result, isVision, started)

	shown := result.Model
	if shown == "" {
		shown = model
	}
	return Result{Response: result.Content, Model: modelalias.DisplayName(shown)}, nil
}

// requestedModel picks the model the caller asks for: the configured vision
// model for media, else the room override, else the group's text model, else auto.
func (s *Service) requestedModel(roomID string, pc credential.PermissionContext, isVision bool) string {
	if isVision {
		return s.cfg.VisionModel
	}
	if s.deps.Rooms != nil {
		if m := strings.TrimSpace(s.deps.Rooms.Model(roomID)); m != "" && !strings.EqualFold(m, credential.AutoModel) {
			return modelalias.ResolveOr(m)
		}
	}
	if pc.Group != nil {
		if m := strings.TrimSpace(pc.Group.TextModel); m != "" && m != credential.AutoModel {
			return modelalias.ResolveOr(m)
		}
	}
	return credential.AutoModel
}

// effectiveModel decides what goes on the wire. OAuth credentials always carry
// the model their grant serves; API keys honor an explicit text choice first.
func (s *Service) effectiveModel(requested string, cred credential.Credential, isVision bool) string {
	switch c := cred.(type) {
	case credential.OAuthCredential:
		return c.Model
	case credential.APICredential:
		if isVision {
			if c.Model != "" {
				return c.Model
			}
			return s.cfg.VisionModel
		}
		if requested != "" && requested != credential.AutoModel {
			return requested
		}
		if c.Model != "" {
			return c.Model
		}
		return s.cfg.DefaultModel
	default:
		return requested
	}
}

func (s *Service) systemPrompt(roomID string, pc credential.PermissionContext) string {
	if pc.Group != nil && strings.TrimSpace(pc.Group.SystemPrompt) != "" {
		return s.cfg.BasePrompt + "\n\n" + pc.Group.SystemPrompt
	}
	if s.deps.Rooms != nil {
		return s.deps.Rooms.EffectiveSystemPrompt(roomID)
	}
	return s.cfg.BasePrompt
}

func (s *Service) buildMessages(req Request, pc credential.PermissionContext) []llm.Message {
	messages := []llm.Message{llm.TextMessage(llm.RoleSystem, s.systemPrompt(req.RoomID, pc))}
	if req.Media == nil {
		messages = append(messages, req.History...)
		return append(messages, llm.TextMessage(llm.RoleUser, req.Message))
	}

	text := req.Message
	media := llm.ContentPart{Type: llm.PartImageURL, ImageURL: &llm.MediaURL{URL: req.Media.DataURI}}
	if req.Media.Kind == MediaVideo {
		media = llm.ContentPart{Type: llm.PartVideoURL, VideoURL: &llm.MediaURL{URL: req.Media.DataURI}}
		if text == "" {
			text = promptVideo
		}
	} else if text == "" {
		text = promptImage
	}
	return append(messages, llm.Message{
		Role:  llm.RoleUser,
		Parts: []llm.ContentPart{media, {Type: llm.PartText, Text: text}},
	})
}

func (s *Service) record(ctx context.Context, req Request, pc credential.PermissionContext, phone string, cred credential.Credential, result llm.Result, isVision bool, started time.Time) {
	if s.deps.Usage == nil {
		return
	}
	rec := usage.Record{
		RoomID:      req.RoomID,
		PhoneNumber: phone,
		RequestID:   result.RequestID,
		Provider:    string(cred.Target()),
		Model:       result.Model,
		Source:      string(cred.Origin()),
		Vision:      isVision,
		RequestedAt: started,
		Latency:     s.deps.Now().Sub(started),
	}
	if pc.Group != nil {
		rec.GroupConfigID = pc.Group.ID
		rec.AdminID = pc.Group.AdminID
	}
	if pc.Admin != nil {
		rec.AdminID = pc.Admin.ID
	}
	if result.Usage != nil {
		rec.PromptTokens = int64(result.Usage.PromptTokens)
		rec.CompletionTokens = int64(result.Usage.CompletionTokens)
		rec.TotalTokens = int64(result.Usage.TotalTokens)
	}
	s.deps.Usage.Record(ctx, rec)
}
