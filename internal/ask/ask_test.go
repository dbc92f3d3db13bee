package ask

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/eamarucci/bot-answer/internal/credential"
	"github.com/eamarucci/bot-answer/internal/llm"
	"github.com/eamarucci/bot-answer/internal/providers"
	"github.com/eamarucci/bot-answer/internal/ratelimit"
	"github.com/eamarucci/bot-answer/internal/usage"
)

type fakeAccess struct {
	pc        credential.PermissionContext
	err       error
	lastPhone string
	byRoom    bool
}

func (f *fakeAccess) CheckPermission(_ context.Context, _ string, phone string) (credential.PermissionContext, error) {
	f.lastPhone = phone
	return f.pc, f.err
}

func (f *fakeAccess) GroupConfigByRoom(context.Context, string) (credential.PermissionContext, error) {
	f.byRoom = true
	return f.pc, f.err
}

type fakeIdentity map[string]string

func (f fakeIdentity) PhoneFromSender(_ context.Context, sender string) (string, bool) {
	phone, ok := f[sender]
	return phone, ok
}

type fakeRooms struct {
	model  string
	prompt string
}

func (f fakeRooms) Model(string) string                 { return f.model }
func (f fakeRooms) EffectiveSystemPrompt(string) string { return f.prompt }

type fakeResolver struct {
	cred      credential.Credential
	err       error
	requested string
	vision    bool
}

func (f *fakeResolver) Resolve(_ context.Context, _ credential.PermissionContext, isVision bool, requested string) (credential.Credential, error) {
	f.requested = requested
	f.vision = isVision
	return f.cred, f.err
}

type fakeCompleter struct {
	result   llm.Result
	err      error
	model    string
	messages []llm.Message
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, messages []llm.Message, model string, _ credential.Credential) (llm.Result, error) {
	f.messages = messages
	f.model = model
	return f.result, f.err
}

type fakeLimiter struct {
	res ratelimit.Result
	key string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (ratelimit.Result, error) {
	f.key = key
	return f.res, nil
}

type fakeUsage struct{ records []usage.Record }

func (f *fakeUsage) Record(_ context.Context, rec usage.Record) { f.records = append(f.records, rec) }

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(access *fakeAccess, resolver *fakeResolver, completer *fakeCompleter) (*Service, *fakeUsage) {
	rec := &fakeUsage{}
	svc := NewService(Config{
		DefaultModel: "meta-llama/llama-3.3-70b-instruct",
		VisionModel:  "google/gemini-2.0-flash-001",
		BasePrompt:   "base",
	}, Deps{
		Access:    access,
		Identity:  fakeIdentity{"@whatsapp_5511988887777:example.org": "5511988887777"},
		Rooms:     fakeRooms{prompt: "room prompt"},
		Resolver:  resolver,
		Completer: completer,
		Usage:     rec,
		Now:       func() time.Time { return fixedNow },
	})
	return svc, rec
}

func allowedGroup() credential.PermissionContext {
	return credential.PermissionContext{
		Allowed: true,
		Group:   &credential.GroupConfig{ID: 7, AdminID: 3, TextModel: credential.AutoModel},
		Admin:   &credential.AdminConfig{ID: 3},
	}
}

func askMessage(t *testing.T, err error) string {
	t.Helper()
	var askErr *Error
	if !errors.As(err, &askErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	return askErr.Message
}

func TestAskTextUsesCredentialModelAndRecordsUsage(t *testing.T) {
	access := &fakeAccess{pc: allowedGroup()}
	resolver := &fakeResolver{cred: credential.APICredential{Key: "k", Provider: providers.Groq, Model: "llama-3.3-70b-versatile", Source: credential.SourceAdminDefault}}
	completer := &fakeCompleter{result: llm.Result{Content: "oi", Model: "llama-3.3-70b-versatile", RequestID: "req-1", Usage: &llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}}
	svc, rec := newTestService(access, resolver, completer)

	res, err := svc.Ask(context.Background(), Request{RoomID: "!r", Sender: "@whatsapp_5511988887777:example.org", Message: "hello"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if res.Response != "oi" || res.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("unexpected result %+v", res)
	}
	if access.lastPhone != "5511988887777" {
		t.Fatalf("expected phone lookup, got %q", access.lastPhone)
	}
	if resolver.requested != credential.AutoModel || resolver.vision {
		t.Fatalf("unexpected resolve args %q vision=%v", resolver.requested, resolver.vision)
	}
	if completer.model != "llama-3.3-70b-versatile" {
		t.Fatalf("expected credential model, got %q", completer.model)
	}
	if len(completer.messages) != 2 || completer.messages[0].Content != "room prompt" {
		t.Fatalf("unexpected messages %+v", completer.messages)
	}
	if len(rec.records) != 1 {
		t.Fatalf("expected one usage record, got %d", len(rec.records))
	}
	got := rec.records[0]
	if got.AdminID != 3 || got.GroupConfigID != 7 || got.RequestID != "req-1" || got.TotalTokens != 15 || got.Source != "admin_default" {
		t.Fatalf("unexpected usage record %+v", got)
	}
}

func TestAskGroupPromptAndExplicitModel(t *testing.T) {
	pc := allowedGroup()
	pc.Group.SystemPrompt = "seja breve"
	pc.Group.TextModel = "anthropic/claude-3.5-sonnet"
	access := &fakeAccess{pc: pc}
	resolver := &fakeResolver{cred: credential.APICredential{Key: "k", Provider: providers.OpenRouter, Source: credential.SourceGroup}}
	completer := &fakeCompleter{result: llm.Result{Content: "ok"}}
	svc, _ := newTestService(access, resolver, completer)

	res, err := svc.Ask(context.Background(), Request{RoomID: "!r", Message: "hi"})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !access.byRoom {
		t.Fatalf("expected group-only lookup for unknown sender")
	}
	if completer.model != "anthropic/claude-3.5-sonnet" || res.Model != "claude-3.5-sonnet" {
		t.Fatalf("unexpected model %q / %q", completer.model, res.Model)
	}
	if completer.messages[0].Content != "base\n\nseja breve" {
		t.Fatalf("unexpected system prompt %q", completer.messages[0].Content)
	}
}

func TestAskOAuthUsesGrantModel(t *testing.T) {
	access := &fakeAccess{pc: allowedGroup()}
	resolver := &fakeResolver{cred: credential.OAuthCredential{PrincipalID: 3, OAuthProvider: providers.Anthropic, Provider: providers.Anthropic, Model: "claude-sonnet-4-20250514", Source: credential.SourceAdminOAuth}}
	completer := &fakeCompleter{result: llm.Result{Content: "ok"}}
	svc, _ := newTestService(access, resolver, completer)
	svc.deps.Rooms = fakeRooms{model: "gpt-4o-mini"}

	if _, err := svc.Ask(context.Background(), Request{RoomID: "!r", Message: "hi"}); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resolver.requested != "gpt-4o-mini" {
		t.Fatalf("room override should be requested, got %q", resolver.requested)
	}
	if completer.model != "claude-sonnet-4-20250514" {
		t.Fatalf("expected grant model, got %q", completer.model)
	}
}

func TestAskVisionBuildsMultimodalMessage(t *testing.T) {
	access := &fakeAccess{pc: allowedGroup()}
	resolver := &fakeResolver{cred: credential.APICredential{Key: "k", Provider: providers.OpenRouter, Source: credential.SourceServerFallback}}
	completer := &fakeCompleter{result: llm.Result{Content: "um gato"}}
	svc, _ := newTestService(access, resolver, completer)

	media := &Media{Kind: MediaImage, DataURI: "data:image/png;base64,AAAA", Size: 3}
	if _, err := svc.Ask(context.Background(), Request{RoomID: "!r", Media: media, History: []llm.Message{llm.TextMessage(llm.RoleUser, "old")}}); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !resolver.vision || completer.model != "google/gemini-2.0-flash-001" {
		t.Fatalf("expected vision model, got %q vision=%v", completer.model, resolver.vision)
	}
	if len(completer.messages) != 2 {
		t.Fatalf("history must be dropped for media, got %d messages", len(completer.messages))
	}
	parts := completer.messages[1].Parts
	if len(parts) != 2 || parts[0].ImageURL == nil || parts[1].Text != promptImage {
		t.Fatalf("unexpected parts %+v", parts)
	}
}

func TestAskRejectsLargeVideo(t *testing.T) {
	svc, _ := newTestService(&fakeAccess{pc: allowedGroup()}, &fakeResolver{}, &fakeCompleter{})
	_, err := svc.Ask(context.Background(), Request{RoomID: "!r", Media: &Media{Kind: MediaVideo, Size: 25 * 1024 * 1024}})
	if msg := askMessage(t, err); msg != "Video muito grande (25.0MB). Limite: 20MB." {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAskDenied(t *testing.T) {
	access := &fakeAccess{pc: credential.PermissionContext{Allowed: false, DenialReason: "Bot desativado neste grupo pelo admin."}}
	svc, _ := newTestService(access, &fakeResolver{}, &fakeCompleter{})
	_, err := svc.Ask(context.Background(), Request{RoomID: "!r", Message: "hi"})
	if msg := askMessage(t, err); msg != "Bot desativado neste grupo pelo admin." {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAskNoCredentials(t *testing.T) {
	svc, rec := newTestService(&fakeAccess{pc: allowedGroup()}, &fakeResolver{err: credential.ErrNoCredentials}, &fakeCompleter{})
	_, err := svc.Ask(context.Background(), Request{RoomID: "!r", Message: "hi"})
	if msg := askMessage(t, err); msg != MsgNoCredentials {
		t.Fatalf("unexpected message %q", msg)
	}
	if !errors.Is(err, credential.ErrNoCredentials) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if len(rec.records) != 0 {
		t.Fatalf("no usage should be recorded")
	}
}

func TestAskSurfacesProviderMessage(t *testing.T) {
	completer := &fakeCompleter{err: &llm.Error{Kind: llm.KindRateLimited, UserFriendly: "Limite do provedor atingido."}}
	resolver := &fakeResolver{cred: credential.APICredential{Key: "k", Provider: providers.Groq}}
	svc, _ := newTestService(&fakeAccess{pc: allowedGroup()}, resolver, completer)
	_, err := svc.Ask(context.Background(), Request{RoomID: "!r", Message: "hi"})
	if msg := askMessage(t, err); msg != "Limite do provedor atingido." {
		t.Fatalf("unexpected message %q", msg)
	}

	completer.err = errors.New("boom")
	_, err = svc.Ask(context.Background(), Request{RoomID: "!r", Message: "hi"})
	if msg := askMessage(t, err); msg != MsgGeneric {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestAskRateLimited(t *testing.T) {
	limiter := &fakeLimiter{res: ratelimit.Result{Allowed: false, Reset: fixedNow.Add(42 * time.Second)}}
	svc, _ := newTestService(&fakeAccess{pc: allowedGroup()}, &fakeResolver{}, &fakeCompleter{})
	svc.deps.Limiter = limiter

	_, err := svc.Ask(context.Background(), Request{RoomID: "!r", Sender: "@whatsapp_5511988887777:example.org", Message: "hi"})
	msg := askMessage(t, err)
	if !strings.Contains(msg, "42 segundos") {
		t.Fatalf("unexpected message %q", msg)
	}
	if limiter.key != ratelimit.KeyForMember("!r", "5511988887777") {
		t.Fatalf("unexpected limiter key %q", limiter.key)
	}
}
