// Package testutil opens a throwaway Postgres connection for repo
// integration tests. Tests skip unless TEST_POSTGRES_DSN is set.
package testutil

import (
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/pkg/logger"
	"github.com/courseforge/courseforge-backend/internal/types"
)

// OpenTestDB connects to the database named by TEST_POSTGRES_DSN, migrates
// the schema, and skips the test when the variable is unset.
func OpenTestDB(t *testing.T) (*gorm.DB, *logger.Logger) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&types.Course{},
		&types.SourceResource{},
		&types.CourseSession{},
		&types.Assessment{},
		&types.GenerationJob{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return db, log
}
