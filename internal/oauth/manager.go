// Package oauth keeps subscription OAuth grants usable: it serves cached access
// tokens, refreshes them against the provider token endpoint, rotates the stored
// refresh token and clears grants that the provider no longer honors.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/eamarucci/bot-answer/internal/providers"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotConfigured       = errors.New("oauth: not configured")
	ErrRefreshTokenExpired = errors.New("oauth: refresh token expired")
	ErrRefreshFailed       = errors.New("oauth: refresh failed")
	ErrDecryptFailed       = errors.New("oauth: decrypt failed")
)

// StoredGrant is the persisted half of a grant.
type StoredGrant struct {
	EncryptedRefresh string
	ExpiresAt        *time.Time
}

// Store persists refresh tokens. A missing principal loads as an empty grant.
type Store interface {
	LoadGrant(ctx context.Context, principalID uint64, provider providers.ID) (StoredGrant, error)
	SaveGrant(ctx context.Context, principalID uint64, provider providers.ID, grant StoredGrant, accountID string) error
	ClearGrant(ctx context.Context, principalID uint64, provider providers.ID) error
}

// Codec seals refresh tokens at rest.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Manager hands out access tokens for (principal, provider) pairs.
type Manager struct {
	cache      *TokenCache
	store      Store
	codec      Codec
	refreshers map[providers.ID]Refresher
	group      singleflight.Group
	now        func() time.Time
}

// NewManager wires a manager. now may be nil.
func NewManager(cache *TokenCache, store Store, codec Codec, refreshers map[providers.ID]Refresher, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	if cache == nil {
		cache = NewTokenCache(now)
	}
	return &Manager{cache: cache, store: store, codec: codec, refreshers: refreshers, now: now}
}

// Cache exposes the in-memory token cache.
func (m *Manager) Cache() *TokenCache { return m.cache }

// AccessToken returns a bearer token, refreshing it when the cached one is
// missing or inside the safety margin.
func (m *Manager) AccessToken(ctx context.Context, principalID uint64, provider providers.ID) (string, error) {
	if tok, ok := m.cache.Get(principalID, provider); ok {
		log.WithFields(log.Fields{"admin_id": principalID, "provider": provider}).Debug("oauth: token served from cache")
		return tok.AccessToken, nil
	}
	key := strconv.FormatUint(principalID, 10) + ":" + string(provider)
	v, err, _ := m.group.Do(key, func() (any, error) {
		if tok, ok := m.cache.Get(principalID, provider); ok {
			return tok.AccessToken, nil
		}
		return m.refresh(ctx, principalID, provider)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context, principalID uint64, provider providers.ID) (string, error) {
	fields := log.Fields{"admin_id": principalID, "provider": provider}
	refresher, ok := m.refreshers[provider]
	if !ok {
		return "", fmt.Errorf("%w: unsupported provider %s", ErrNotConfigured, provider)
	}
	grant, err := m.store.LoadGrant(ctx, principalID, provider)
	if err != nil {
		return "", fmt.Errorf("oauth: load grant: %w", err)
	}
	if grant.EncryptedRefresh == "" {
		return "", ErrNotConfigured
	}
	if grant.ExpiresAt != nil && grant.ExpiresAt.Before(m.now()) {
		m.clear(ctx, principalID, provider)
		return "", ErrRefreshTokenExpired
	}
	refreshToken, err := m.codec.Decrypt(grant.EncryptedRefresh)
	if err != nil {
		log.WithError(err).WithFields(fields).Error("oauth: decrypt refresh token")
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	set, err := refresher.Refresh(ctx, refreshToken)
	if err != nil {
		log.WithError(err).WithFields(fields).Warn("oauth: refresh rejected, clearing grant")
		m.clear(ctx, principalID, provider)
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	m.cache.Put(principalID, provider, CachedToken{AccessToken: set.AccessToken, ExpiresAt: m.now().Add(tokenLifetime(set))})
	if set.RefreshToken == "" {
		set.RefreshToken = refreshToken
	}
	if err := m.persist(ctx, principalID, provider, set); err != nil {
		log.WithError(err).WithFields(fields).Error("oauth: persist rotated refresh token")
	}
	log.WithFields(fields).Info("oauth: token refreshed")
	return set.AccessToken, nil
}

// Connect stores a freshly exchanged grant and primes the cache with its access token.
func (m *Manager) Connect(ctx context.Context, principalID uint64, provider providers.ID, set TokenSet) error {
	if set.RefreshToken == "" {
		return fmt.Errorf("oauth: connect: provider returned no refresh token")
	}
	if err := m.persist(ctx, principalID, provider, set); err != nil {
		return err
	}
	m.cache.Put(principalID, provider, CachedToken{AccessToken: set.AccessToken, ExpiresAt: m.now().Add(tokenLifetime(set))})
	return nil
}

// Disconnect removes a stored grant and its cached token.
func (m *Manager) Disconnect(ctx context.Context, principalID uint64, provider providers.ID) error {
	m.cache.Invalidate(principalID, provider)
	if err := m.store.ClearGrant(ctx, principalID, provider); err != nil {
		return fmt.Errorf("oauth: disconnect: %w", err)
	}
	return nil
}

// Invalidate drops cached tokens for one, several or all providers of a principal.
func (m *Manager) Invalidate(principalID uint64, provs ...providers.ID) {
	m.cache.Invalidate(principalID, provs...)
}

func (m *Manager) persist(ctx context.Context, principalID uint64, provider providers.ID, set TokenSet) error {
	encrypted, err := m.codec.Encrypt(set.RefreshToken)
	if err != nil {
		return fmt.Errorf("oauth: encrypt refresh token: %w", err)
	}
	var expiresAt *time.Time
	if set.RefreshExpiresIn > 0 {
		t := m.now().Add(set.RefreshExpiresIn)
		expiresAt = &t
	}
	grant := StoredGrant{EncryptedRefresh: encrypted, ExpiresAt: expiresAt}
	if err := m.store.SaveGrant(ctx, principalID, provider, grant, set.AccountID); err != nil {
		return fmt.Errorf("oauth: save grant: %w", err)
	}
	return nil
}

func (m *Manager) clear(ctx context.Context, principalID uint64, provider providers.ID) {
	m.cache.Invalidate(principalID, provider)
	if err := m.store.ClearGrant(ctx, principalID, provider); err != nil {
		log.WithError(err).WithFields(log.Fields{"admin_id": principalID, "provider": provider}).Error("oauth: clear grant")
		return
	}
	log.WithFields(log.Fields{"admin_id": principalID, "provider": provider}).Info("oauth: grant cleared")
}

// defaultTokenLifetime applies when a provider omits expires_in.
const defaultTokenLifetime = time.Hour

func tokenLifetime(set TokenSet) time.Duration {
	if set.ExpiresIn <= 0 {
		return defaultTokenLifetime
	}
	return set.ExpiresIn
}
