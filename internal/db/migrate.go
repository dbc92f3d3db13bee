package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eamarucci/bot-answer/internal/models"
	internalsettings "github.com/eamarucci/bot-answer/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var migratedModels = []any{
	&models.Admin{},
	&models.GroupConfig{},
	&models.GroupUser{},
	&models.GlobalConfig{},
	&models.Setting{},
	&models.Usage{},
	&models.ModelReference{},
}

// settingDefaults are written on first start and whenever a row holds null.
var settingDefaults = []struct {
	key   string
	value any
}{
	{internalsettings.RateLimitKey, internalsettings.DefaultRateLimit},
	{internalsettings.RateLimitWindowSecondsKey, internalsettings.DefaultRateLimitWindowSeconds},
	{internalsettings.RateLimitRedisEnabledKey, internalsettings.DefaultRateLimitRedisEnabled},
	{internalsettings.ModelCatalogTTLSecondsKey, internalsettings.DefaultModelCatalogTTLSeconds},
}

// activeGroupsIndex speeds up the per-admin group listing. SQLite stores
// booleans as integers, hence the dialect-specific predicate.
func activeGroupsIndex(dialect string) string {
	predicate := "is_active"
	if dialect == DialectSQLite {
		predicate = "is_active = 1"
	}
	return "CREATE INDEX IF NOT EXISTS idx_group_configs_admin_active ON group_configs (admin_id) WHERE " + predicate
}

// Migrate creates or updates the schema and seeds the singleton rows.
// It is safe to run on every start.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	dialect := DialectName(conn)
	switch dialect {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", dialect)
	}

	if errAutoMigrate := conn.AutoMigrate(migratedModels...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errIndex := conn.Exec(activeGroupsIndex(dialect)).Error; errIndex != nil {
		return fmt.Errorf("db: create active groups index: %w", errIndex)
	}
	if dialect != DialectSQLite {
		// AutoMigrate does not alter defaults of existing columns.
		if errDefault := conn.Exec(`ALTER TABLE group_configs ALTER COLUMN text_model SET DEFAULT 'auto'`).Error; errDefault != nil {
			return fmt.Errorf("db: set text_model default: %w", errDefault)
		}
	}

	errSeed := conn.Where(models.GlobalConfig{ID: models.GlobalConfigID}).FirstOrCreate(&models.GlobalConfig{}).Error
	if errSeed != nil {
		return fmt.Errorf("db: seed global config: %w", errSeed)
	}
	for _, def := range settingDefaults {
		if errSetting := seedSetting(conn, def.key, def.value); errSetting != nil {
			return errSetting
		}
	}
	return nil
}

// seedSetting writes value under key unless an operator already set one.
func seedSetting(conn *gorm.DB, key string, value any) error {
	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal %s setting: %w", key, errMarshal)
	}
	now := time.Now().UTC()

	var existing models.Setting
	errFind := conn.Where("key = ?", key).First(&existing).Error
	switch {
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		row := models.Setting{Key: key, Value: datatypes.JSON(payload), UpdatedAt: now}
		if errCreate := conn.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("db: create %s setting: %w", key, errCreate)
		}
		return nil
	case errFind != nil:
		return fmt.Errorf("db: query %s setting: %w", key, errFind)
	}

	if raw := strings.TrimSpace(string(existing.Value)); raw != "" && raw != "null" {
		return nil
	}
	errUpdate := conn.Model(&existing).Updates(map[string]any{"value": datatypes.JSON(payload), "updated_at": now}).Error
	if errUpdate != nil {
		return fmt.Errorf("db: update %s setting: %w", key, errUpdate)
	}
	return nil
}
