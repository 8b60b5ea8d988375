package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/decidr/decidr-backend/internal/domain"
)

func timeNowPlusHour() time.Time { return time.Now().UTC().Add(time.Hour) }

// newTestDB opens a throwaway SQLite database with the full schema migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, name, name+"@example.com", true)
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}

func seedGroup(t *testing.T, db *gorm.DB, creatorID, name string) *domain.Group {
	t.Helper()
	g, err := CreateGroup(context.Background(), db, creatorID, name, nil, false)
	if err != nil {
		t.Fatalf("seed group %s: %v", name, err)
	}
	return g
}
