// Package usage persists per-completion token accounting.
package usage

import (
	"context"
	"strings"
	"time"

	"github.com/eamarucci/bot-answer/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const writeTimeout = 5 * time.Second

// Record describes one completed ask.
type Record struct {
	AdminID       uint64
	GroupConfigID uint64
	RoomID        string
	PhoneNumber   string
	RequestID     string

	Provider string
	Model    string
	Source   string
	Vision   bool

	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64

	RequestedAt time.Time
	Latency     time.Duration
}

// Recorder writes usage rows.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder constructs a Recorder backed by GORM.
func NewRecorder(db *gorm.DB) *Recorder { return &Recorder{db: db} }

// Record persists a usage row. Failures are logged, never returned, so a
// database hiccup cannot fail an answered ask.
func (r *Recorder) Record(_ context.Context, rec Record) {
	if r == nil || r.db == nil {
		return
	}

	dbCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	total := rec.TotalTokens
	if total == 0 {
		total = rec.PromptTokens + rec.CompletionTokens
	}
	row := models.Usage{
		AdminID:          optionalID(rec.AdminID),
		GroupConfigID:    optionalID(rec.GroupConfigID),
		RoomID:           strings.TrimSpace(rec.RoomID),
		PhoneNumber:      strings.TrimSpace(rec.PhoneNumber),
		RequestID:        strings.TrimSpace(rec.RequestID),
		Provider:         strings.TrimSpace(rec.Provider),
		Model:            strings.TrimSpace(rec.Model),
		Source:           strings.TrimSpace(rec.Source),
		Vision:           rec.Vision,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		TotalTokens:      total,
		LatencyMs:        rec.Latency.Milliseconds(),
		RequestedAt:      normalizeTime(rec.RequestedAt),
		CreatedAt:        time.Now().UTC(),
	}
	if errCreate := r.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).WithField("room_id", row.RoomID).Warn("usage: failed to persist usage")
	}
}

// Totals sums the tokens an admin's groups consumed since a point in time.
func (r *Recorder) Totals(ctx context.Context, adminID uint64, since time.Time) (int64, int64, error) {
	var row struct {
		Requests int64
		Tokens   int64
	}
	errScan := r.db.WithContext(ctx).Model(&models.Usage{}).
		Select("COUNT(*) AS requests, COALESCE(SUM(total_tokens), 0) AS tokens").
		Where("admin_id = ? AND requested_at >= ?", adminID, since.UTC()).
		Scan(&row).Error
	if errScan != nil {
		return 0, 0, errScan
	}
	return row.Requests, row.Tokens, nil
}

func optionalID(id uint64) *uint64 {
	if id == 0 {
		return nil
	}
	return &id
}

// normalizeTime returns a UTC time, defaulting to now.
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
