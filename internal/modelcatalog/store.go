package modelcatalog

import (
	"context"
	"fmt"
	"time"

	"github.com/eamarucci/bot-answer/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoreModels upserts the catalog of one provider and prunes its stale rows.
// An empty listing leaves the cached catalog untouched.
func StoreModels(ctx context.Context, db *gorm.DB, provider string, refs []models.ModelReference, syncTime time.Time) error {
	if db == nil {
		return fmt.Errorf("store models: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if syncTime.IsZero() {
		syncTime = time.Now().UTC()
	}
	syncTime = syncTime.UTC()
	if len(refs) == 0 {
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range refs {
			refs[i].Provider = provider
			refs[i].LastSeenAt = syncTime
			refs[i].UpdatedAt = syncTime
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider"}, {Name: "model_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name",
				"context_length",
				"description",
				"prompt_price",
				"completion_price",
				"extra",
				"last_seen_at",
				"updated_at",
			}),
		}).Create(&refs).Error; err != nil {
			return fmt.Errorf("store models: upsert: %w", err)
		}

		if err := tx.Where("provider = ? AND last_seen_at < ?", provider, syncTime).Delete(&models.ModelReference{}).Error; err != nil {
			return fmt.Errorf("store models: prune: %w", err)
		}
		return nil
	})
}

// CachedModels returns the cached catalog of a provider and the time it was last synced.
func CachedModels(ctx context.Context, db *gorm.DB, provider string) ([]models.ModelReference, time.Time, error) {
	if db == nil {
		return nil, time.Time{}, fmt.Errorf("cached models: nil db")
	}
	var refs []models.ModelReference
	if err := db.WithContext(ctx).Where("provider = ?", provider).Order("LOWER(name) ASC, name ASC").Find(&refs).Error; err != nil {
		return nil, time.Time{}, fmt.Errorf("cached models: %w", err)
	}
	var seen time.Time
	for _, ref := range refs {
		if ref.LastSeenAt.After(seen) {
			seen = ref.LastSeenAt
		}
	}
	return refs, seen, nil
}
