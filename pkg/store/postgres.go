package store

import (
	_ "github.com/jackc/pgx/v5/stdlib"
)

var postgresDialect = dialect{driver: "pgx", numbered: true, description: "postgres"}

// NewPostgres creates a PostgreSQL-based store from a connection URL.
func NewPostgres(dsn string) (*SQLStore, error) {
	return openSQL(postgresDialect, dsn)
}
