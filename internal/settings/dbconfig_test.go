package settings

import (
	"context"
	"testing"

	"github.com/eamarucci/bot-answer/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestReloadAndPut(t *testing.T) {
	conn, errOpen := gorm.Open(sqlite.Open("file:settings_reload?mode=memory&cache=shared"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errCreate := conn.Create(&models.Setting{Key: RateLimitKey, Value: datatypes.JSON("3")}).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}

	ctx := context.Background()
	if errReload := Reload(ctx, conn); errReload != nil {
		t.Fatalf("reload: %v", errReload)
	}
	raw, ok := DBConfigValue(RateLimitKey)
	if !ok || string(raw) != "3" {
		t.Fatalf("expected 3, got %q (ok=%v)", raw, ok)
	}

	if errPut := Put(ctx, conn, RateLimitRedisEnabledKey, true); errPut != nil {
		t.Fatalf("put: %v", errPut)
	}
	raw, ok = DBConfigValue(RateLimitRedisEnabledKey)
	if !ok || string(raw) != "true" {
		t.Fatalf("expected true, got %q (ok=%v)", raw, ok)
	}

	var stored models.Setting
	if errFind := conn.Where("key = ?", RateLimitRedisEnabledKey).First(&stored).Error; errFind != nil {
		t.Fatalf("find stored: %v", errFind)
	}
	if string(stored.Value) != "true" {
		t.Fatalf("unexpected stored value %q", stored.Value)
	}

	if _, ok := DBConfigValue("MISSING"); ok {
		t.Fatalf("expected missing key to be absent")
	}
}
