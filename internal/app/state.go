package app

import (
	"context"
	"fmt"

	"github.com/eamarucci/bot-answer/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CountAdmins returns how many admin accounts exist. A missing table counts as zero.
func CountAdmins(conn *gorm.DB) (int64, error) {
	if conn == nil {
		return 0, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.Admin{}) {
		return 0, nil
	}
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return 0, errCount
	}
	return count, nil
}

func logAdminState(ctx context.Context, conn *gorm.DB) {
	count, err := CountAdmins(conn.WithContext(ctx))
	if err != nil {
		log.WithError(err).Warn("count admins")
		return
	}
	if count == 0 {
		log.Warn("no admins registered yet; create one with POST /v0/admins")
		return
	}
	log.Infof("%d admin(s) registered", count)
}
