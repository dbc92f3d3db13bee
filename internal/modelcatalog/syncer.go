package modelcatalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eamarucci/bot-answer/internal/providers"
	log "github.com/sirupsen/logrus"
)

const defaultSyncInterval = 6 * time.Hour

// KeyFunc returns the key used for background syncs, or "" to skip a round.
type KeyFunc func(ctx context.Context) (string, error)

// Source is a provider the server can list with a key of its own.
type Source struct {
	Provider providers.ID
	Key      KeyFunc
}

// Syncer refreshes stale cached listings so the console can show models
// before an admin has entered any key.
type Syncer struct {
	catalog  *Catalog
	sources  []Source
	interval time.Duration
}

// NewSyncer returns nil when there is nothing to sync.
func NewSyncer(catalog *Catalog, interval time.Duration, sources ...Source) *Syncer {
	usable := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src.Key != nil {
			usable = append(usable, src)
		}
	}
	if catalog == nil || len(usable) == 0 {
		return nil
	}
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &Syncer{catalog: catalog, sources: usable, interval: interval}
}

// Start syncs once, then every interval until ctx ends.
func (s *Syncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	log.WithFields(log.Fields{"sources": len(s.sources), "interval": s.interval}).Info("modelcatalog: syncer started")
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			if err := s.SyncOnce(ctx); err != nil {
				log.WithError(err).Warn("modelcatalog: sync failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// SyncOnce lists every source whose cache is missing or stale. Failures of
// one source do not stop the others.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("modelcatalog: nil syncer")
	}
	var errs []error
	for _, src := range s.sources {
		if err := s.syncSource(ctx, src); err != nil {
			errs = append(errs, fmt.Errorf("modelcatalog: sync %s: %w", src.Provider, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Syncer) syncSource(ctx context.Context, src Source) error {
	if _, fresh, err := s.catalog.Cached(ctx, src.Provider); err == nil && fresh {
		return nil
	}
	key, err := src.Key(ctx)
	if err != nil || key == "" {
		return err
	}
	refs, err := s.catalog.List(ctx, src.Provider, key)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return errors.New("empty listing")
	}
	return nil
}
