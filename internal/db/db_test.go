package db_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/db"
)

func TestInitDBAndMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mankai.db")

	database, err := db.InitDB(path)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	// Foreign keys must be enforced for the cascade rules to mean anything.
	var fk int
	if err := database.QueryRow("PRAGMA foreign_keys;").Scan(&fk); err != nil {
		t.Fatalf("failed to read foreign_keys pragma: %v", err)
	}
	if fk != 1 {
		t.Fatal("expected foreign key enforcement to be enabled")
	}

	// Spot check that the core tables exist.
	for _, table := range []string{"plugins", "manga", "chapter_groups", "chapters", "images", "reading_records", "saved_entries", "plugin_storage"} {
		var name string
		err := database.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %q to exist: %v", table, err)
		}
	}

	// Running migrations twice must be a no-op.
	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("second RunMigrations failed: %v", err)
	}
}

// Foreign key enforcement is a per-connection setting in SQLite. The pool
// hands statements to arbitrary connections, so every connection it opens
// must come up with the pragma already set, not just the first one.
func TestForeignKeysEnforcedOnEveryConnection(t *testing.T) {
	paths := map[string]string{
		"file":   filepath.Join(t.TempDir(), "mankai.db"),
		"memory": ":memory:",
	}
	for name, path := range paths {
		t.Run(name, func(t *testing.T) {
			database, err := db.InitDB(path)
			if err != nil {
				t.Fatalf("InitDB failed: %v", err)
			}
			defer database.Close()
			if err := db.RunMigrations(database); err != nil {
				t.Fatalf("RunMigrations failed: %v", err)
			}

			ctx := context.Background()

			// Pin one connection so the next statements are forced onto a
			// second, freshly opened one.
			first, err := database.Conn(ctx)
			if err != nil {
				t.Fatalf("failed to pin first connection: %v", err)
			}
			defer first.Close()

			second, err := database.Conn(ctx)
			if err != nil {
				t.Fatalf("failed to open second connection: %v", err)
			}
			defer second.Close()

			var fk int
			if err := second.QueryRowContext(ctx, "PRAGMA foreign_keys;").Scan(&fk); err != nil {
				t.Fatalf("failed to read foreign_keys pragma: %v", err)
			}
			if fk != 1 {
				t.Fatal("second pooled connection has foreign key enforcement off")
			}

			// The cascade must hold no matter which connection runs the delete.
			if _, err := second.ExecContext(ctx, "INSERT INTO plugins (id, kind) VALUES ('p1', 'http')"); err != nil {
				t.Fatalf("failed to insert plugin: %v", err)
			}
			if _, err := second.ExecContext(ctx, "INSERT INTO manga (id, plugin_id, status) VALUES ('m1', 'p1', 0)"); err != nil {
				t.Fatalf("failed to insert manga: %v", err)
			}
			if _, err := second.ExecContext(ctx, "DELETE FROM plugins WHERE id = 'p1'"); err != nil {
				t.Fatalf("failed to delete plugin: %v", err)
			}

			var orphans int
			if err := second.QueryRowContext(ctx, "SELECT COUNT(*) FROM manga WHERE plugin_id = 'p1'").Scan(&orphans); err != nil {
				t.Fatalf("failed to count manga rows: %v", err)
			}
			if orphans != 0 {
				t.Errorf("%d orphaned manga rows survive plugin deletion", orphans)
			}
		})
	}
}
