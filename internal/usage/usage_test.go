package usage

import (
	"context"
	"testing"
	"time"

	"github.com/eamarucci/bot-answer/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestRecordAndTotals(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:usage_record?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.Usage{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	recorder := NewRecorder(db)
	start := time.Now().UTC().Add(-time.Minute)

	recorder.Record(context.Background(), Record{
		AdminID: 7, GroupConfigID: 3, RoomID: "!room", Provider: "openrouter", Model: "openrouter/free",
		Source: "admin_default", PromptTokens: 10, CompletionTokens: 5, Latency: 1500 * time.Millisecond,
	})
	recorder.Record(context.Background(), Record{
		RoomID: "!unconfigured", Provider: "openrouter", Model: "openrouter/free", Source: "env_fallback", TotalTokens: 99,
	})

	var rows []models.Usage
	if errFind := db.Order("id ASC").Find(&rows).Error; errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].TotalTokens != 15 || rows[0].LatencyMs != 1500 || rows[0].AdminID == nil || *rows[0].AdminID != 7 {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	if rows[1].AdminID != nil || rows[1].GroupConfigID != nil || rows[1].TotalTokens != 99 {
		t.Fatalf("unexpected second row %+v", rows[1])
	}

	requests, tokens, errTotals := recorder.Totals(context.Background(), 7, start)
	if errTotals != nil {
		t.Fatalf("totals: %v", errTotals)
	}
	if requests != 1 || tokens != 15 {
		t.Fatalf("unexpected totals requests=%d tokens=%d", requests, tokens)
	}
}
