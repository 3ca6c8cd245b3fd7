package db

import (
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestRunMigrationsFSAppliesOnce(t *testing.T) {
	database, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "beeper.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte(`CREATE TABLE a (id INTEGER PRIMARY KEY);`)},
		"0002_b.sql": {Data: []byte(`INSERT INTO a (id) VALUES (1);`)},
		"README.md":  {Data: []byte(`not a migration`)},
	}

	for i := 0; i < 2; i++ {
		if err := RunMigrationsFS(database, fsys); err != nil {
			t.Fatalf("run migrations #%d: %v", i+1, err)
		}
	}

	var rows int
	if err := database.QueryRow(`SELECT COUNT(1) FROM a`).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected second migration applied once, got %d rows", rows)
	}

	var applied int
	if err := database.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", applied)
	}
}

func TestRunMigrationsFSRollsBackFailure(t *testing.T) {
	database, err := OpenSQLite(filepath.Join(t.TempDir(), "beeper.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	fsys := fstest.MapFS{
		"0001_bad.sql": {Data: []byte(`CREATE TABLE broken (`)},
	}
	if err := RunMigrationsFS(database, fsys); err == nil {
		t.Fatal("expected error for broken migration")
	}

	var applied int
	if err := database.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 0 {
		t.Fatalf("failed migration must not be recorded, got %d", applied)
	}
}
