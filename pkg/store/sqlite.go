package store

import (
	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{driver: "sqlite", singleConn: true, description: "sqlite"}

// NewSQLite creates a SQLite-based store.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLite(path string) (*SQLStore, error) {
	return openSQL(sqliteDialect, path)
}
