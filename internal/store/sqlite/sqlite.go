// Package sqlite opens the SQL store on an embedded SQLite file.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"

	"github.com/geosocial/proximity/internal/store/sqlstore"
)

// SQLITE_CONSTRAINT_PRIMARYKEY and SQLITE_CONSTRAINT_UNIQUE extended codes.
const (
	constraintPrimaryKey = 1555
	constraintUnique     = 2067
)

// Dialect is the SQLite flavour of sqlstore.
var Dialect = sqlstore.Dialect{
	Name: "sqlite",
	IsUniqueViolation: func(err error) bool {
		var e *sqlite.Error
		if errors.As(err, &e) {
			return e.Code() == constraintUnique || e.Code() == constraintPrimaryKey
		}
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

// Open opens (or creates) a SQLite database at the given path in WAL mode.
// The pool is capped at one connection so writers never contend for the lock.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs the store on an open database.
func NewWithDB(db *sql.DB) *sqlstore.Store { return sqlstore.New(db, Dialect) }
