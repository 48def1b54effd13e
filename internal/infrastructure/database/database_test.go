package database

import (
	"context"
	"embed"
	"path/filepath"
	"testing"
)

//go:embed testdata/*.sql
var testMigrationsFS embed.FS

// openTestDB opens a database in a temp directory with test migrations wired.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	MigrationsFS = testMigrationsFS
	MigrationsDir = "testdata"

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := Open(context.Background(), Config{Path: path, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestMigrateAppliesAndIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// The test migration creates state_history; inserting must work.
	if _, err := db.ExecContext(ctx,
		`INSERT INTO state_history (device_id, state, source) VALUES (?, ?, ?)`,
		"strip-01", `{"on":true}`, "poll"); err != nil {
		t.Fatalf("insert after migration failed: %v", err)
	}

	// Re-running must be a no-op, not an error.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("counting migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("schema_migrations rows = %d, want 1", count)
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	db.Close()
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close should fail")
	}
}
