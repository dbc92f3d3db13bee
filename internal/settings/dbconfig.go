package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eamarucci/bot-answer/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	snapshotMu sync.RWMutex
	snapshot   = map[string]json.RawMessage{}
)

// DBConfigValue returns the raw JSON value of a setting from the latest snapshot.
func DBConfigValue(key string) (json.RawMessage, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false
	}
	snapshotMu.RLock()
	defer snapshotMu.RUnlock()
	raw, ok := snapshot[key]
	if !ok || len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

// StoreDBConfig replaces the in-memory snapshot.
func StoreDBConfig(values map[string]json.RawMessage) {
	next := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		next[strings.TrimSpace(k)] = append(json.RawMessage(nil), v...)
	}
	snapshotMu.Lock()
	snapshot = next
	snapshotMu.Unlock()
}

// Reload reads every setting row into the snapshot.
func Reload(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("settings: nil db")
	}
	var rows []models.Setting
	if errFind := db.WithContext(ctx).Find(&rows).Error; errFind != nil {
		return fmt.Errorf("settings: load: %w", errFind)
	}
	values := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		values[row.Key] = json.RawMessage(row.Value)
	}
	StoreDBConfig(values)
	return nil
}

// Put upserts a setting and refreshes the snapshot entry.
func Put(ctx context.Context, db *gorm.DB, key string, value any) error {
	key = strings.TrimSpace(key)
	if db == nil || key == "" {
		return fmt.Errorf("settings: invalid put")
	}
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("settings: marshal %s: %w", key, errMarshal)
	}
	row := models.Setting{Key: key, Value: payload, UpdatedAt: time.Now().UTC()}
	if errSave := db.WithContext(ctx).Save(&row).Error; errSave != nil {
		return fmt.Errorf("settings: save %s: %w", key, errSave)
	}
	snapshotMu.Lock()
	snapshot[key] = json.RawMessage(payload)
	snapshotMu.Unlock()
	return nil
}

// StartRefresher reloads the snapshot every interval until ctx is done.
func StartRefresher(ctx context.Context, db *gorm.DB, interval time.Duration) {
	if db == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if errReload := Reload(ctx, db); errReload != nil {
					log.WithError(errReload).Warn("settings: reload failed")
				}
			}
		}
	}()
}

// Delete removes a setting so readers fall back to its default. It reports
// whether a row existed.
func Delete(ctx context.Context, db *gorm.DB, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if db == nil || key == "" {
		return false, fmt.Errorf("settings: invalid delete")
	}
	res := db.WithContext(ctx).Where("key = ?", key).Delete(&models.Setting{})
	if res.Error != nil {
		return false, fmt.Errorf("settings: delete %s: %w", key, res.Error)
	}
	snapshotMu.Lock()
	delete(snapshot, key)
	snapshotMu.Unlock()
	return res.RowsAffected > 0, nil
}
