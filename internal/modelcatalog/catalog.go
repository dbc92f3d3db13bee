// Package modelcatalog lists the chat models a provider offers for a key and
// caches the listings in the database.
package modelcatalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eamarucci/bot-answer/internal/models"
	"github.com/eamarucci/bot-answer/internal/providers"
	internalsettings "github.com/eamarucci/bot-answer/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultRequestTimeout = 15 * time.Second

var (
	// ErrInvalidKey means the provider rejected the key.
	ErrInvalidKey = errors.New("modelcatalog: invalid api key")
	// ErrUnknownProvider means the provider id is not in the table.
	ErrUnknownProvider = errors.New("modelcatalog: unknown provider")
)

// Catalog fetches provider model listings.
type Catalog struct {
	db     *gorm.DB
	table  *providers.Table
	client *http.Client
	now    func() time.Time
}

// New constructs a Catalog. db may be nil, which disables caching.
func New(db *gorm.DB, table *providers.Table, client *http.Client) *Catalog {
	if table == nil {
		table = providers.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Catalog{db: db, table: table, client: client, now: time.Now}
}

// List fetches the models of a provider with the given key. A successful
// listing doubles as key validation and refreshes the cache.
func (c *Catalog) List(ctx context.Context, provider providers.ID, key string) ([]models.ModelReference, error) {
	desc, ok := c.table.Lookup(provider)
	if !ok {
		return nil, ErrUnknownProvider
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrInvalidKey
	}

	requestCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, desc.ModelsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("modelcatalog: build request: %w", err)
	}
	for name, value := range desc.ExtraHeaders {
		req.Header.Set(name, value)
	}
	req.Header.Set(desc.ApplyAuth(key))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("modelcatalog: request failed: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("modelcatalog: close response body failed")
		}
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidKey
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("modelcatalog: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("modelcatalog: read response: %w", err)
	}
	refs, err := ParseModels(desc.ID, body)
	if err != nil {
		return nil, err
	}

	if c.db != nil {
		stored := append([]models.ModelReference(nil), refs...)
		if errStore := StoreModels(ctx, c.db, string(desc.ID), stored, c.now()); errStore != nil {
			log.WithError(errStore).WithField("provider", desc.ID).Warn("modelcatalog: cache update failed")
		}
	}
	return refs, nil
}

// Cached returns the cached listing of a provider when it is still fresh.
func (c *Catalog) Cached(ctx context.Context, provider providers.ID) ([]models.ModelReference, bool, error) {
	if c.db == nil {
		return nil, false, nil
	}
	refs, seen, err := CachedModels(ctx, c.db, string(providers.Normalize(string(provider))))
	if err != nil {
		return nil, false, err
	}
	if len(refs) == 0 {
		return nil, false, nil
	}
	ttl := time.Duration(internalsettings.IntValue(internalsettings.ModelCatalogTTLSecondsKey, internalsettings.DefaultModelCatalogTTLSeconds)) * time.Second
	return refs, c.now().Sub(seen) < ttl, nil
}
