package db

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"

	"github.com/nohackjustnoobb/Mankai-sub001/migrations"

	// Import the sqlite3 driver. The blank import is used because we only
	// need the driver to be registered with database/sql.
	_ "github.com/mattn/go-sqlite3"
)

// memCount disambiguates shared-cache in-memory databases per open.
var memCount atomic.Int64

// InitDB opens a connection to the SQLite database at the specified path
// and ensures the connection is valid. Foreign key enforcement is switched
// on because cascading deletes are the only deletion mechanism in the cache
// schema; with the pragma off, orphaned rows would accumulate silently.
//
// The pragma has to travel in the DSN: PRAGMA foreign_keys applies only to
// the connection that executed it, and database/sql hands each statement to
// whichever pooled connection is free. The driver replays DSN parameters on
// every connection it opens.
func InitDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_fk=1", path)
	if path == ":memory:" {
		// A plain :memory: DSN gives every pooled connection its own empty
		// database; a named shared-cache database makes them all see the
		// same one, and the counter keeps separate opens separate.
		dsn = fmt.Sprintf("file:memdb%d?mode=memory&cache=shared&_fk=1", memCount.Add(1))
	}

	database, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return database, nil
}

// RunMigrations applies all pending schema migrations from the embedded
// migration files.
func RunMigrations(database *sql.DB) error {
	source, err := httpfs.New(http.FS(migrations.FS), ".")
	if err != nil {
		return fmt.Errorf("could not create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(database, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("could not create sqlite3 migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("httpfs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("an error occurred while applying migrations: %w", err)
	}

	log.Println("Migrations applied successfully.")
	return nil
}
