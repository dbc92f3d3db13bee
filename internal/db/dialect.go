package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect names as reported by the gorm dialectors.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DialectName returns the dialect of conn, or "" when unknown.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// ContainsFold returns a case-insensitive substring condition on column and its
// bind argument. SQLite lacks ILIKE, so both sides are lowered there.
func ContainsFold(conn *gorm.DB, column, needle string) (string, string) {
	pattern := "%" + needle + "%"
	if DialectName(conn) == DialectSQLite {
		return fmt.Sprintf("LOWER(%s) LIKE ?", column), strings.ToLower(pattern)
	}
	return fmt.Sprintf("%s ILIKE ?", column), pattern
}
