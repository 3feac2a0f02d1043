package database

import (
	"context"
	"testing"

	"github.com/isdelr/rewear-be/internal/config"
	"github.com/isdelr/rewear-be/internal/logger"
)

// NewTestDB opens a fresh in-memory SQLite database with all migrations applied.
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	ctx := context.Background()
	db, err := Open(ctx, config.DriverSQLite, ":memory:", logger.Nop())
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		t.Fatalf("migrating test database: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
