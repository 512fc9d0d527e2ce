// To handle all database interactions. This is our data access layer,
// keeping SQL queries separate from business logic.

package store

import (
	"database/sql"
	"strings"
	"sync"
)

// listSeparator joins the authors/genres string lists for storage.
const listSeparator = ","

// Store provides all functions to interact with the database.
type Store struct {
	db *sql.DB

	// One mutex per plugin id serializes its key-value operations so that
	// a script plugin always reads its own writes.
	kvMu    sync.Mutex
	kvLocks map[string]*sync.Mutex
}

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		kvLocks: make(map[string]*sync.Mutex),
	}
}

// DB exposes the underlying handle for callers that manage their own
// transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

func joinList(items []string) string {
	return strings.Join(items, listSeparator)
}

func splitList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	return strings.Split(raw, listSeparator)
}
