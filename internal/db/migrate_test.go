package db

import (
	"testing"

	"github.com/eamarucci/bot-answer/internal/models"
	internalsettings "github.com/eamarucci/bot-answer/internal/settings"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestMigrateSQLiteSeedsDefaults(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open("file:migrate_seed?mode=memory&cache=shared"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	for i := 0; i < 2; i++ {
		if errMigrate := Migrate(conn); errMigrate != nil {
			t.Fatalf("migrate run %d: %v", i+1, errMigrate)
		}
	}

	var global models.GlobalConfig
	if errFind := conn.First(&global, "id = ?", models.GlobalConfigID).Error; errFind != nil {
		t.Fatalf("find global config: %v", errFind)
	}

	var count int64
	if errCount := conn.Model(&models.Setting{}).Where("key = ?", internalsettings.RateLimitWindowSecondsKey).Count(&count).Error; errCount != nil {
		t.Fatalf("count settings: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected one window setting, got %d", count)
	}
	var setting models.Setting
	if errFind := conn.First(&setting, "key = ?", internalsettings.RateLimitRedisEnabledKey).Error; errFind != nil {
		t.Fatalf("find redis toggle: %v", errFind)
	}
	if string(setting.Value) != "false" {
		t.Fatalf("unexpected redis toggle %q", setting.Value)
	}
}

func TestMigrateKeepsExistingSetting(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open("file:migrate_keep?mode=memory&cache=shared"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("automigrate: %v", errMigrate)
	}
	if errCreate := conn.Create(&models.Setting{Key: internalsettings.RateLimitKey, Value: []byte("7")}).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	var setting models.Setting
	if errFind := conn.First(&setting, "key = ?", internalsettings.RateLimitKey).Error; errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if string(setting.Value) != "7" {
		t.Fatalf("expected existing value to survive, got %q", setting.Value)
	}
}

func TestDialectForDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/bot":  DialectPostgres,
		"postgresql://localhost/bot":         DialectPostgres,
		"host=localhost user=bot dbname=bot": DialectPostgres,
		"sqlite:data/bot.db":                 DialectSQLite,
		"file::memory:?cache=shared":         DialectSQLite,
		"data/bot.db":                        DialectSQLite,
		"mysql://root@localhost/bot":         "",
	}
	for dsn, want := range cases {
		if got := DialectForDSN(dsn); got != want {
			t.Fatalf("DialectForDSN(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestContainsFoldSQLite(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open("file:like_expr?mode=memory&cache=shared"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	cond, arg := ContainsFold(conn, "name", "Family")
	if cond != "LOWER(name) LIKE ?" || arg != "%family%" {
		t.Fatalf("unexpected condition %q %q", cond, arg)
	}
}

func TestMigrateRefillsNullSetting(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open("file:migrate_null?mode=memory&cache=shared"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("automigrate: %v", errMigrate)
	}
	if errCreate := conn.Create(&models.Setting{Key: internalsettings.RateLimitWindowSecondsKey, Value: []byte("null")}).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	var setting models.Setting
	if errFind := conn.First(&setting, "key = ?", internalsettings.RateLimitWindowSecondsKey).Error; errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if string(setting.Value) != "60" {
		t.Fatalf("expected null setting to be refilled, got %q", setting.Value)
	}
}
