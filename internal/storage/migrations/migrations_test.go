package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

var exampleMigrations = []Migration{
	{
		Version:     1,
		Description: "Add example table",
		Up: `
			CREATE TABLE IF NOT EXISTS example (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL
			)
		`,
		Down: `DROP TABLE IF EXISTS example`,
	},
	{
		Version:     2,
		Description: "Add example index",
		Up:          `CREATE INDEX IF NOT EXISTS idx_example_name ON example(name)`,
		Down:        `DROP INDEX IF EXISTS idx_example_name`,
	},
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "migrations.db")+"?_foreign_keys=ON")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteMigrations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// Registered out of order on purpose
	manager := NewManager(exampleMigrations[1], exampleMigrations[0])
	if manager.Latest() != 2 {
		t.Fatalf("Latest() = %d, want 2", manager.Latest())
	}

	applied, err := manager.ApplySQLite(ctx, db)
	if err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	if applied != 2 {
		t.Errorf("applied = %d, want 2", applied)
	}

	version, err := SQLiteVersion(ctx, db)
	if err != nil {
		t.Fatalf("failed to read version: %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}

	if _, err := db.Exec("INSERT INTO example (id, name) VALUES (1, 'test')"); err != nil {
		t.Fatalf("example table not created: %v", err)
	}

	// Applying again is a no-op
	applied, err = manager.ApplySQLite(ctx, db)
	if err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if applied != 0 {
		t.Errorf("second apply applied %d migrations, want 0", applied)
	}

	// Roll back twice to an empty schema
	if err := manager.RollbackSQLite(ctx, db); err != nil {
		t.Fatalf("failed to rollback migration 2: %v", err)
	}
	if err := manager.RollbackSQLite(ctx, db); err != nil {
		t.Fatalf("failed to rollback migration 1: %v", err)
	}

	version, err = SQLiteVersion(ctx, db)
	if err != nil {
		t.Fatalf("failed to read version: %v", err)
	}
	if version != 0 {
		t.Errorf("version after rollback = %d, want 0", version)
	}

	if _, err := db.Exec("INSERT INTO example (id, name) VALUES (2, 'test')"); err == nil {
		t.Error("example table should have been dropped")
	}

	if err := manager.RollbackSQLite(ctx, db); err == nil {
		t.Error("expected error rolling back an empty schema")
	}
}

func TestSQLiteMigrationFailureIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	manager := NewManager(exampleMigrations[0], Migration{
		Version:     2,
		Description: "broken",
		Up:          `CREATE TABLE broken (`,
	})

	applied, err := manager.ApplySQLite(ctx, db)
	if err == nil {
		t.Fatal("expected broken migration to fail")
	}
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}

	version, err := SQLiteVersion(ctx, db)
	if err != nil {
		t.Fatalf("failed to read version: %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1 (broken migration must not be recorded)", version)
	}
}
