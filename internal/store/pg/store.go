// Package pg implements the credential store and tenant directory on
// PostgreSQL via the pgx stdlib driver.
package pg

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"aftervisit.org/internal/auth"
)

// Store bundles the user and tenant adapters over one connection pool.
type Store struct {
	db *sql.DB
}

var (
	_ auth.CredentialStore = (*Store)(nil)
	_ auth.TenantDirectory = (*Store)(nil)
)

// Open connects to PostgreSQL with pool defaults tuned for short
// request-scoped queries.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle (used by tests).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for readiness probes and migrations.
func (s *Store) DB() *sql.DB { return s.db }
