package access

import (
	"context"
	"errors"
	"testing"

	"github.com/eamarucci/bot-answer/internal/db"
	"github.com/eamarucci/bot-answer/internal/providers"
	"github.com/eamarucci/bot-answer/internal/store"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type fakePortals struct {
	portals map[string]Portal
	err     error
	calls   int
}

func (f *fakePortals) PortalByRoom(_ context.Context, roomID string) (Portal, bool, error) {
	f.calls++
	if f.err != nil {
		return Portal{}, false, f.err
	}
	p, ok := f.portals[roomID]
	return p, ok, nil
}

func newStore(t *testing.T, name string) *store.Store {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return store.New(conn)
}

func TestCheckPermissionUnconfiguredRoomIsAllowed(t *testing.T) {
	st := newStore(t, "access_unconfigured")
	checker := NewChecker(st, nil)

	pc, err := checker.CheckPermission(context.Background(), "!unknown:example", "5511999999999")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !pc.Allowed || pc.Group != nil || pc.Admin != nil || pc.User != nil {
		t.Fatalf("expected bare allowance, got %+v", pc)
	}
}

func TestCheckPermissionMembership(t *testing.T) {
	st := newStore(t, "access_membership")
	ctx := context.Background()
	admin, _ := st.EnsureAdmin(ctx, "5511900000000", "")
	if _, err := st.ProvisionGroup(ctx, admin.ID, "!room:example", "Room", ""); err != nil {
		t.Fatalf("provision: %v", err)
	}
	group, _ := st.GroupByRoom(ctx, "!room:example")
	checker := NewChecker(st, nil)

	pc, _ := checker.CheckPermission(ctx, "!room:example", "5511988887777")
	if pc.Allowed || pc.DenialReason != ReasonNotListed {
		t.Fatalf("expected not listed denial, got %+v", pc)
	}

	member, _ := st.AddMember(ctx, group.ID, "5511988887777", "")
	key := "sealed-user"
	if _, err := st.UpdateMember(ctx, group.ID, member.ID, store.MemberPatch{APIKeyOverride: &key}); err != nil {
		t.Fatalf("update member: %v", err)
	}
	pc, _ = checker.CheckPermission(ctx, "!room:example", "+55 11 98888-7777")
	if !pc.Allowed || pc.User == nil || pc.User.EncryptedKey != key || pc.Group == nil || pc.Admin == nil {
		t.Fatalf("expected full context, got %+v", pc)
	}
	if pc.Admin.ID != admin.ID || pc.Group.AdminID != admin.ID {
		t.Fatalf("unexpected admin linkage %+v", pc)
	}

	disabled := false
	if _, err := st.UpdateMember(ctx, group.ID, member.ID, store.MemberPatch{IsEnabled: &disabled}); err != nil {
		t.Fatalf("disable member: %v", err)
	}
	pc, _ = checker.CheckPermission(ctx, "!room:example", "5511988887777")
	if pc.Allowed || pc.DenialReason != ReasonUserDisabled {
		t.Fatalf("expected disabled denial, got %+v", pc)
	}

	allow := true
	if _, err := st.UpdateGroup(ctx, admin.ID, group.ID, store.GroupPatch{AllowAll: &allow}); err != nil {
		t.Fatalf("allow all: %v", err)
	}
	pc, _ = checker.CheckPermission(ctx, "!room:example", "5511000000000")
	if !pc.Allowed || pc.User != nil {
		t.Fatalf("allow-all should admit anyone without a user override, got %+v", pc)
	}

	inactive := false
	if _, err := st.UpdateGroup(ctx, admin.ID, group.ID, store.GroupPatch{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	pc, _ = checker.CheckPermission(ctx, "!room:example", "5511988887777")
	if pc.Allowed || pc.DenialReason != ReasonGroupDisabled {
		t.Fatalf("expected group disabled, got %+v", pc)
	}
	pc, _ = checker.GroupConfigByRoom(ctx, "!room:example")
	if pc.Allowed || pc.DenialReason != ReasonGroupDisabled {
		t.Fatalf("expected group disabled by room lookup, got %+v", pc)
	}
}

func TestGroupConfigByRoomSkipsMembership(t *testing.T) {
	st := newStore(t, "access_by_room")
	ctx := context.Background()
	admin, _ := st.EnsureAdmin(ctx, "5511900000001", "")
	_, _ = st.ProvisionGroup(ctx, admin.ID, "!native:example", "Native", "")

	pc, err := NewChecker(st, nil).GroupConfigByRoom(ctx, "!native:example")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !pc.Allowed || pc.Group == nil || pc.User != nil {
		t.Fatalf("expected group context without user, got %+v", pc)
	}
}

func TestAutoProvisionFromRelay(t *testing.T) {
	st := newStore(t, "access_provision")
	ctx := context.Background()
	admin, _ := st.EnsureAdmin(ctx, "5511977776666", "")
	portals := &fakePortals{portals: map[string]Portal{
		"!bridged:example": {RoomID: "!bridged:example", Name: "Trabalho", RelayNumber: "5511977776666"},
		"!foreign:example": {RoomID: "!foreign:example", Name: "Outro", RelayNumber: "5511000000000"},
	}}
	checker := NewChecker(st, portals)

	pc, err := checker.GroupConfigByRoom(ctx, "!bridged:example")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !pc.Allowed || pc.Group == nil || pc.Group.AdminID != admin.ID {
		t.Fatalf("expected provisioned group, got %+v", pc)
	}
	group, errGroup := st.GroupByRoom(ctx, "!bridged:example")
	if errGroup != nil || group.Name != "Trabalho" || group.RelayNumber != "5511977776666" {
		t.Fatalf("unexpected provisioned row %+v (%v)", group, errGroup)
	}

	pc, _ = checker.GroupConfigByRoom(ctx, "!foreign:example")
	if !pc.Allowed || pc.Group != nil {
		t.Fatalf("relay without admin should stay unconfigured, got %+v", pc)
	}
	if _, errFind := st.GroupByRoom(ctx, "!foreign:example"); !errors.Is(errFind, store.ErrNotFound) {
		t.Fatalf("expected no row for foreign relay, got %v", errFind)
	}

	portals.err = errors.New("bridge down")
	pc, err = checker.GroupConfigByRoom(ctx, "!other:example")
	if err != nil || !pc.Allowed || pc.Group != nil {
		t.Fatalf("portal errors should fall back to unconfigured, got %+v (%v)", pc, err)
	}
}

func TestAdminConfigCarriesGrants(t *testing.T) {
	st := newStore(t, "access_grants")
	ctx := context.Background()
	admin, _ := st.EnsureAdmin(ctx, "5511955554444", "")
	if err := st.SetOAuthModel(ctx, admin.ID, providers.Anthropic, "claude-opus-4-20250514"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	reloaded, _ := st.Admin(ctx, admin.ID)
	reloaded.AnthropicOAuthRefresh = "sealed"

	cfg := AdminConfig(reloaded)
	grant, ok := cfg.OAuth[providers.Anthropic]
	if !ok || grant.Model != "claude-opus-4-20250514" || grant.EncryptedRefresh != "sealed" {
		t.Fatalf("unexpected anthropic grant %+v", cfg.OAuth)
	}
	if _, ok := cfg.OAuth[providers.OpenAI]; ok {
		t.Fatalf("openai grant should be absent without a refresh token")
	}
}
