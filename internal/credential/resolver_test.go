package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/eamarucci/bot-answer/internal/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBadCiphertext = errors.New("bad ciphertext")

// prefixCodec "decrypts" values of the form enc:<plain>.
type prefixCodec struct{}

func (prefixCodec) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "enc:") {
		return "", errBadCiphertext
	}
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

type staticFallback struct {
	keys FallbackKeys
	err  error
}

func (s staticFallback) FallbackKeys(context.Context) (FallbackKeys, error) {
	return s.keys, s.err
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestResolver(fallback FallbackSource, envKey string) *Resolver {
	return NewResolver(prefixCodec{}, fallback, Options{
		EnvFallbackKey: envKey,
		Now:            func() time.Time { return testNow },
	})
}

type layerState int

const (
	layerAbsent layerState = iota
	layerPresent
	layerCorrupt
)

func secret(state layerState, plain string) string {
	switch state {
	case layerPresent:
		return "enc:" + plain
	case layerCorrupt:
		return "garbage-" + plain
	default:
		return ""
	}
}

func TestResolve_HierarchyOrder(t *testing.T) {
	states := []layerState{layerAbsent, layerPresent, layerCorrupt}
	for _, user := range states {
		for _, group := range states {
			for _, admin := range states {
				for _, oauthOn := range []bool{false, true} {
					for _, serverOn := range []bool{false, true} {
						name := fmt.Sprintf("user=%d/group=%d/admin=%d/oauth=%t/server=%t", user, group, admin, oauthOn, serverOn)
						t.Run(name, func(t *testing.T) {
							pc := PermissionContext{
								Allowed: true,
								User:    &UserOverride{ID: 1, EncryptedKey: secret(user, "user-key")},
								Group:   &GroupConfig{ID: 2, AdminID: 3, TextProvider: "groq", TextModel: AutoModel, TextAPIKey: secret(group, "group-key")},
								Admin:   &AdminConfig{ID: 3, DefaultAPIKey: secret(admin, "admin-key")},
							}
							if oauthOn {
								pc.Admin.OAuth = map[providers.ID]OAuthGrant{
									providers.Anthropic: {EncryptedRefresh: "enc:refresh"},
								}
							}
							var fallback FallbackSource = staticFallback{}
							if serverOn {
								fallback = staticFallback{keys: FallbackKeys{Text: "enc:server-key"}}
							}

							cred, err := newTestResolver(fallback, "").Resolve(context.Background(), pc, false, AutoModel)

							switch {
							case user == layerPresent:
								assertAPI(t, cred, err, "user-key", SourceUser)
							case group == layerPresent:
								assertAPI(t, cred, err, "group-key", SourceGroup)
							case admin == layerPresent:
								assertAPI(t, cred, err, "admin-key", SourceAdminDefault)
							case oauthOn:
								require.NoError(t, err)
								oc, ok := cred.(OAuthCredential)
								require.True(t, ok, "expected oauth credential, got %T", cred)
								assert.Equal(t, SourceAdminOAuth, oc.Source)
							case serverOn:
								assertAPI(t, cred, err, "server-key", SourceServerFallback)
							default:
								assert.ErrorIs(t, err, ErrNoCredentials)
							}
						})
					}
				}
			}
		}
	}
}

func assertAPI(t *testing.T, cred Credential, err error, key string, source Source) {
	t.Helper()

	require.NoError(t, err)
	ac, ok := cred.(APICredential)
	require.True(t, ok, "expected api credential, got %T", cred)
	assert.Equal(t, key, ac.Key)
	assert.Equal(t, source, ac.Source)
}

func TestResolve_GroupKeyScenario(t *testing.T) {
	pc := PermissionContext{
		Allowed: true,
		Group:   &GroupConfig{ID: 1, TextAPIKey: "enc:sk-test", TextProvider: "openrouter", TextModel: AutoModel},
	}

	cred, err := newTestResolver(nil, "").Resolve(context.Background(), pc, false, "")
	require.NoError(t, err)

	assert.Equal(t, APICredential{Key: "sk-test", Provider: providers.OpenRouter, Source: SourceGroup}, cred)
}

func TestResolve_VisionFallsBackToGroupTextKey(t *testing.T) {
	group := &GroupConfig{ID: 1, TextAPIKey: "enc:text-key", TextProvider: "groq", TextModel: "llama-3.3-70b"}
	pc := PermissionContext{Allowed: true, Group: group}

	cred, err := newTestResolver(nil, "").Resolve(context.Background(), pc, true, "")
	require.NoError(t, err)
	assert.Equal(t, APICredential{Key: "text-key", Provider: providers.Groq, Model: "llama-3.3-70b", Source: SourceGroup}, cred)

	group.TextModel = AutoModel
	cred, err = newTestResolver(nil, "").Resolve(context.Background(), pc, true, "")
	require.NoError(t, err)
	assert.Equal(t, "", cred.PreferredModel())
	assert.Equal(t, providers.Groq, cred.Target())
}

func TestResolve_VisionUsesDedicatedGroupKey(t *testing.T) {
	pc := PermissionContext{Allowed: true, Group: &GroupConfig{
		TextAPIKey:     "enc:text-key",
		TextProvider:   "groq",
		VisionAPIKey:   "enc:vision-key",
		VisionProvider: "openai",
		VisionModel:    "gpt-4o",
	}}

	cred, err := newTestResolver(nil, "").Resolve(context.Background(), pc, true, "")
	require.NoError(t, err)
	assert.Equal(t, APICredential{Key: "vision-key", Provider: providers.OpenAI, Model: "gpt-4o", Source: SourceGroup}, cred)
}

func TestResolve_VisionTextKeyIgnoresForeignVisionProvider(t *testing.T) {
	pc := PermissionContext{Allowed: true, Group: &GroupConfig{
		TextAPIKey:     "enc:text-key",
		TextProvider:   "groq",
		TextModel:      "llama-3.3-70b",
		VisionProvider: "openai",
		VisionModel:    "gpt-4o",
	}}

	cred, err := newTestResolver(nil, "").Resolve(context.Background(), pc, true, "")
	require.NoError(t, err)
	assert.Equal(t, providers.Groq, cred.Target())
	assert.Equal(t, "llama-3.3-70b", cred.PreferredModel())
}

func TestResolve_UserInheritsProviderChain(t *testing.T) {
	pc := PermissionContext{
		Allowed: true,
		User:    &UserOverride{EncryptedKey: "enc:user-key"},
		Group:   &GroupConfig{TextModel: AutoModel},
		Admin: &AdminConfig{
			DefaultProvider:       "anthropic",
			DefaultModel:          "claude-3-5-haiku",
			DefaultVisionProvider: "openai",
			DefaultVisionModel:    "gpt-4o",
		},
	}

	text, err := newTestResolver(nil, "").Resolve(context.Background(), pc, false, "")
	require.NoError(t, err)
	assert.Equal(t, APICredential{Key: "user-key", Provider: providers.Anthropic, Model: "claude-3-5-haiku", Source: SourceUser}, text)

	vision, err := newTestResolver(nil, "").Resolve(context.Background(), pc, true, "")
	require.NoError(t, err)
	assert.Equal(t, APICredential{Key: "user-key", Provider: providers.OpenAI, Model: "gpt-4o", Source: SourceUser}, vision)
}

func TestResolve_UserWithoutAnyProviderDefaultsToOpenRouter(t *testing.T) {
	pc := PermissionContext{Allowed: true, User: &UserOverride{EncryptedKey: "enc:k"}}

	cred, err := newTestResolver(nil, "").Resolve(context.Background(), pc, false, "")
	require.NoError(t, err)
	assert.Equal(t, providers.OpenRouter, cred.Target())
}

func bothOAuth(expires *time.Time) PermissionContext {
	return PermissionContext{Allowed: true, Admin: &AdminConfig{ID: 7, OAuth: map[providers.ID]OAuthGrant{
		providers.Anthropic: {EncryptedRefresh: "enc:a", ExpiresAt: expires},
		providers.OpenAI:    {EncryptedRefresh: "enc:o", Model: "gpt-4.1"},
	}}}
}

func TestResolve_OAuthRouting(t *testing.T) {
	r := newTestResolver(nil, "")

	cases := []struct {
		model string
		want  providers.ID
	}{
		{"claude-3-opus", providers.Anthropic},
		{"gpt-4o", providers.OpenAI},
		{"o3-mini", providers.OpenAI},
		{"auto", providers.Anthropic},
		{"nvidia/nemotron-nano-12b-v2-vl:free", providers.Anthropic},
	}
	for _, tc := range cases {
		for i := 0; i < 3; i++ {
			cred, err := r.Resolve(context.Background(), bothOAuth(nil), false, tc.model)
			require.NoError(t, err)
			oc, ok := cred.(OAuthCredential)
			require.True(t, ok)
			assert.Equal(t, tc.want, oc.OAuthProvider, "model %q", tc.model)
			assert.Equal(t, uint64(7), oc.PrincipalID)
		}
	}
}

func TestResolve_OAuthModelPreference(t *testing.T) {
	r := newTestResolver(nil, "")

	cred, err := r.Resolve(context.Background(), bothOAuth(nil), false, "claude-3-opus")
	require.NoError(t, err)
	assert.Equal(t, DefaultOAuthModels[providers.Anthropic], cred.PreferredModel())

	cred, err = r.Resolve(context.Background(), bothOAuth(nil), false, "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", cred.PreferredModel())
}

func TestResolve_OAuthAutoWithOnlyAnthropic(t *testing.T) {
	pc := PermissionContext{Allowed: true, Admin: &AdminConfig{ID: 9, OAuth: map[providers.ID]OAuthGrant{
		providers.Anthropic: {EncryptedRefresh: "enc:a"},
	}}}

	cred, err := newTestResolver(nil, "").Resolve(context.Background(), pc, false, "auto")
	require.NoError(t, err)
	assert.Equal(t, OAuthCredential{
		PrincipalID:   9,
		OAuthProvider: providers.Anthropic,
		Provider:      providers.Anthropic,
		Model:         DefaultOAuthModels[providers.Anthropic],
		Source:        SourceAdminOAuth,
	}, cred)
}

func TestResolve_OAuthSkipsExpiredGrant(t *testing.T) {
	past := testNow.Add(-time.Hour)
	r := newTestResolver(nil, "env-key")

	cred, err := r.Resolve(context.Background(), bothOAuth(&past), false, "claude-3-opus")
	require.NoError(t, err)
	assert.Equal(t, SourceEnvFallback, cred.Origin())

	cred, err = r.Resolve(context.Background(), bothOAuth(&past), false, "auto")
	require.NoError(t, err)
	assert.Equal(t, providers.OpenAI, cred.(OAuthCredential).OAuthProvider)
}

func TestResolve_OAuthExplicitForeignModelSkipsOAuth(t *testing.T) {
	r := newTestResolver(nil, "env-key")

	cred, err := r.Resolve(context.Background(), bothOAuth(nil), false, "meta-llama/llama-3.3-70b")
	require.NoError(t, err)
	assert.Equal(t, SourceEnvFallback, cred.Origin())
}

func TestResolve_ServerFallbackLegacyPlaintext(t *testing.T) {
	r := newTestResolver(staticFallback{keys: FallbackKeys{Text: "sk-or-legacy"}}, "")

	cred, err := r.Resolve(context.Background(), PermissionContext{Allowed: true}, false, "")
	require.NoError(t, err)
	assert.Equal(t, APICredential{Key: "sk-or-legacy", Provider: providers.OpenRouter, Source: SourceServerFallback}, cred)
}

func TestResolve_ServerFallbackVisionKey(t *testing.T) {
	r := newTestResolver(staticFallback{keys: FallbackKeys{Text: "enc:text", Vision: "enc:vision"}}, "")

	cred, err := r.Resolve(context.Background(), PermissionContext{Allowed: true}, true, "")
	require.NoError(t, err)
	assert.Equal(t, "vision", cred.(APICredential).Key)
}

func TestResolve_FallbackStoreErrorFallsThroughToEnv(t *testing.T) {
	r := newTestResolver(staticFallback{err: errors.New("db down")}, "env-key")

	cred, err := r.Resolve(context.Background(), PermissionContext{Allowed: true}, false, "")
	require.NoError(t, err)
	assert.Equal(t, APICredential{Key: "env-key", Provider: providers.OpenRouter, Source: SourceEnvFallback}, cred)
}

func TestResolve_NothingConfigured(t *testing.T) {
	_, err := newTestResolver(nil, "").Resolve(context.Background(), PermissionContext{Allowed: true}, false, "")
	assert.ErrorIs(t, err, ErrNoCredentials)
}
