// Package sqlstore implements store.Store over database/sql. The postgres and
// sqlite packages open the database and pick the dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/store"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of ?.
	Numbered bool
	// IsUniqueViolation recognizes the driver's duplicate key error.
	IsUniqueViolation func(error) bool
}

// Rebind rewrites ? placeholders for dialects with numbered parameters.
func (d Dialect) Rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// Store implements store.Store.
type Store struct {
	db  *sql.DB
	d   Dialect
	now func() time.Time
}

// New wraps an open database.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, d: d, now: time.Now}
}

// WithClock replaces the time source used for timestamps and expiry filtering.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Users() store.Users           { return &users{s: s} }
func (s *Store) Groups() store.Groups         { return &groups{s: s} }
func (s *Store) Activities() store.Activities { return &activities{s: s} }

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// HealthPing implements health.HealthPinger.
func (s *Store) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates the tables and indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s schema: %w", s.d.Name, err)
		}
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) nowMillis() int64 { return s.now().UnixMilli() }

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, s.d.Rebind(query), args...)
	if err != nil {
		return 0, s.mapErr(err)
	}
	return res.RowsAffected()
}

func (s *Store) mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return model.ErrNotFound
	case s.d.IsUniqueViolation != nil && s.d.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", model.ErrConflict, err)
	}
	return err
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func stringArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// boxArgs returns the BETWEEN bounds followed by the center used for ordering.
func boxArgs(minLat, maxLat, minLon, maxLon float64) []any {
	cLat := (minLat + maxLat) / 2
	cLon := (minLon + maxLon) / 2
	return []any{minLat, maxLat, minLon, maxLon, cLat, cLat, cLon, cLon}
}

const boxClause = `latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?`
const boxOrder = `(latitude - ?) * (latitude - ?) + (longitude - ?) * (longitude - ?)`

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id        TEXT PRIMARY KEY,
    nickname       TEXT NOT NULL,
    is_temporary   BOOLEAN NOT NULL DEFAULT FALSE,
    password_hash  TEXT,
    latitude       DOUBLE PRECISION,
    longitude      DOUBLE PRECISION,
    last_active_at BIGINT,
    created_at     BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS users_location_idx ON users (latitude, longitude);

CREATE TABLE IF NOT EXISTS chat_groups (
    group_id      TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    location_name TEXT NOT NULL,
    latitude      DOUBLE PRECISION NOT NULL,
    longitude     DOUBLE PRECISION NOT NULL,
    description   TEXT,
    password_hash TEXT,
    creator_id    TEXT NOT NULL,
    member_count  INTEGER NOT NULL DEFAULT 0,
    created_at    BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_groups_location_idx ON chat_groups (latitude, longitude);

CREATE TABLE IF NOT EXISTS group_members (
    group_id       TEXT NOT NULL,
    user_id        TEXT NOT NULL,
    role           TEXT NOT NULL,
    joined_at      BIGINT NOT NULL,
    last_active_at BIGINT NOT NULL,
    PRIMARY KEY (group_id, user_id)
);
CREATE INDEX IF NOT EXISTS group_members_user_idx ON group_members (user_id);

CREATE TABLE IF NOT EXISTS activities (
    activity_id   TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    group_id      TEXT,
    activity_type TEXT NOT NULL,
    details       TEXT,
    latitude      DOUBLE PRECISION NOT NULL,
    longitude     DOUBLE PRECISION NOT NULL,
    created_at    BIGINT NOT NULL,
    expires_at    BIGINT
);
CREATE INDEX IF NOT EXISTS activities_location_idx ON activities (latitude, longitude);
CREATE INDEX IF NOT EXISTS activities_user_idx ON activities (user_id, created_at)
`
