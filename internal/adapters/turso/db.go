package turso

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"
)

// NewDB opens a libsql connection. databaseURL may be a local file URL
// (file:splitlab.db) or a remote Turso URL, in which case authToken is
// appended to the connection string.
func NewDB(databaseURL, authToken string) (*sql.DB, error) {
	connStr := databaseURL
	if authToken != "" {
		connStr = databaseURL + "?authToken=" + authToken
	}
	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, err
	}

	// Turso's Hrana protocol aggressively closes idle streams; keep the
	// pool small and connections fresh.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(0)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// isUniqueViolation reports whether err is the SQLite family's
// uniqueness-constraint failure. The libsql driver exposes it only
// through the error text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
