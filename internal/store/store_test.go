package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eamarucci/bot-answer/internal/credential"
	"github.com/eamarucci/bot-answer/internal/db"
	"github.com/eamarucci/bot-answer/internal/oauth"
	"github.com/eamarucci/bot-answer/internal/providers"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T, name string) *Store {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return New(conn)
}

func TestGrantRoundTrip(t *testing.T) {
	s := newTestStore(t, "store_grants")
	ctx := context.Background()

	admin, errAdmin := s.EnsureAdmin(ctx, "+55 (12) 99673-2387", "Eduardo")
	if errAdmin != nil {
		t.Fatalf("ensure admin: %v", errAdmin)
	}
	if admin.PhoneNumber != "5512996732387" {
		t.Fatalf("phone not normalized: %q", admin.PhoneNumber)
	}

	empty, errLoad := s.LoadGrant(ctx, admin.ID, providers.Anthropic)
	if errLoad != nil || empty.EncryptedRefresh != "" || empty.ExpiresAt != nil {
		t.Fatalf("expected empty grant, got %+v (%v)", empty, errLoad)
	}

	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	if errSave := s.SaveGrant(ctx, admin.ID, providers.OpenAI, oauth.StoredGrant{EncryptedRefresh: "sealed", ExpiresAt: &expires}, "acct-1"); errSave != nil {
		t.Fatalf("save grant: %v", errSave)
	}
	grant, errLoad := s.LoadGrant(ctx, admin.ID, providers.OpenAI)
	if errLoad != nil {
		t.Fatalf("load grant: %v", errLoad)
	}
	if grant.EncryptedRefresh != "sealed" || grant.ExpiresAt == nil || !grant.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected grant %+v", grant)
	}

	// A refresh without an id token keeps the account id.
	if errSave := s.SaveGrant(ctx, admin.ID, providers.OpenAI, oauth.StoredGrant{EncryptedRefresh: "rotated"}, ""); errSave != nil {
		t.Fatalf("save rotated grant: %v", errSave)
	}
	reloaded, _ := s.Admin(ctx, admin.ID)
	if reloaded.OpenAIAccountID != "acct-1" || reloaded.OpenAIOAuthRefresh != "rotated" || reloaded.OpenAIOAuthExpires != nil {
		t.Fatalf("unexpected admin after rotation %+v", reloaded)
	}

	if errClear := s.ClearGrant(ctx, admin.ID, providers.OpenAI); errClear != nil {
		t.Fatalf("clear grant: %v", errClear)
	}
	cleared, _ := s.LoadGrant(ctx, admin.ID, providers.OpenAI)
	if cleared.EncryptedRefresh != "" {
		t.Fatalf("expected cleared grant, got %+v", cleared)
	}

	if _, errLoad := s.LoadGrant(ctx, admin.ID, providers.Groq); !errors.Is(errLoad, errUnsupportedProvider) {
		t.Fatalf("expected unsupported provider, got %v", errLoad)
	}
	if errSave := s.SaveGrant(ctx, 9999, providers.Anthropic, oauth.StoredGrant{EncryptedRefresh: "x"}, ""); !errors.Is(errSave, ErrNotFound) {
		t.Fatalf("expected not found for unknown admin, got %v", errSave)
	}
}

func TestFallbackKeys(t *testing.T) {
	s := newTestStore(t, "store_fallback")
	ctx := context.Background()

	keys, errKeys := s.FallbackKeys(ctx)
	if errKeys != nil || keys.Text != "" || keys.Vision != "" {
		t.Fatalf("expected empty fallback, got %+v (%v)", keys, errKeys)
	}
	if errSave := s.SaveFallbackKeys(ctx, credential.FallbackKeys{Text: "t", Vision: "v"}); errSave != nil {
		t.Fatalf("save fallback: %v", errSave)
	}
	keys, _ = s.FallbackKeys(ctx)
	if keys.Text != "t" || keys.Vision != "v" {
		t.Fatalf("unexpected fallback %+v", keys)
	}
}

func TestProvisionAndMembers(t *testing.T) {
	s := newTestStore(t, "store_groups")
	ctx := context.Background()

	admin, _ := s.EnsureAdmin(ctx, "5511900000000", "")
	created, errProvision := s.ProvisionGroup(ctx, admin.ID, "!room:matrix.example", "Familia", "5511900000000")
	if errProvision != nil || !created {
		t.Fatalf("provision: created=%v err=%v", created, errProvision)
	}
	created, errProvision = s.ProvisionGroup(ctx, admin.ID, "!room:matrix.example", "Familia", "5511900000000")
	if errProvision != nil || created {
		t.Fatalf("second provision should be a no-op: created=%v err=%v", created, errProvision)
	}

	group, errGroup := s.GroupByRoom(ctx, "!room:matrix.example")
	if errGroup != nil {
		t.Fatalf("group by room: %v", errGroup)
	}
	if !group.IsActive || group.AllowAll || group.TextModel != credential.AutoModel || group.Admin == nil {
		t.Fatalf("unexpected provisioned group %+v", group)
	}

	groups, _ := s.ListGroups(ctx, admin.ID, "famil")
	if len(groups) != 1 {
		t.Fatalf("expected search to find the group, got %d", len(groups))
	}

	allow := true
	model := "anthropic/claude-3.5-sonnet"
	updated, errUpdate := s.UpdateGroup(ctx, admin.ID, group.ID, GroupPatch{AllowAll: &allow, TextModel: &model})
	if errUpdate != nil || !updated.AllowAll || updated.TextModel != model {
		t.Fatalf("update group: %+v (%v)", updated, errUpdate)
	}
	if _, errUpdate := s.UpdateGroup(ctx, admin.ID+1, group.ID, GroupPatch{AllowAll: &allow}); !errors.Is(errUpdate, ErrNotFound) {
		t.Fatalf("expected not found for foreign admin, got %v", errUpdate)
	}

	member, errAdd := s.AddMember(ctx, group.ID, "+55 11 98888-7777", "Ana")
	if errAdd != nil || member.PhoneNumber != "5511988887777" || !member.IsEnabled {
		t.Fatalf("add member: %+v (%v)", member, errAdd)
	}
	again, errAdd := s.AddMember(ctx, group.ID, "5511988887777", "Other")
	if errAdd != nil || again.ID != member.ID || again.Name != "Ana" {
		t.Fatalf("duplicate add should return existing: %+v (%v)", again, errAdd)
	}

	disabled := false
	key := "sealed-key"
	patched, errPatch := s.UpdateMember(ctx, group.ID, member.ID, MemberPatch{IsEnabled: &disabled, APIKeyOverride: &key})
	if errPatch != nil || patched.IsEnabled || patched.APIKeyOverride != key {
		t.Fatalf("update member: %+v (%v)", patched, errPatch)
	}

	if errDelete := s.DeleteMember(ctx, group.ID, member.ID); errDelete != nil {
		t.Fatalf("delete member: %v", errDelete)
	}
	if _, errFind := s.Member(ctx, group.ID, "5511988887777"); !errors.Is(errFind, ErrNotFound) {
		t.Fatalf("expected deleted member to be gone, got %v", errFind)
	}
}

func TestUpdateAdminDefaultsKeepsKeysWhenNil(t *testing.T) {
	s := newTestStore(t, "store_defaults")
	ctx := context.Background()
	admin, _ := s.EnsureAdmin(ctx, "5511911111111", "")

	key := "sealed"
	if errUpdate := s.UpdateAdminDefaults(ctx, admin.ID, AdminDefaults{Provider: "openrouter", APIKey: &key}); errUpdate != nil {
		t.Fatalf("update defaults: %v", errUpdate)
	}
	if errUpdate := s.UpdateAdminDefaults(ctx, admin.ID, AdminDefaults{Provider: "groq", Model: "llama-3.3-70b-versatile"}); errUpdate != nil {
		t.Fatalf("update defaults without key: %v", errUpdate)
	}
	reloaded, _ := s.Admin(ctx, admin.ID)
	if reloaded.DefaultAPIKey != key || reloaded.DefaultProvider != "groq" || reloaded.DefaultModel != "llama-3.3-70b-versatile" {
		t.Fatalf("unexpected defaults %+v", reloaded)
	}
}
