package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"relaymail/internal/domain"
)

// Store is the relational persistence for relay addresses, conversations and
// messages, plus the read side of the platform tables the relay consults.
// It speaks both SQLite (driver "sqlite") and Postgres (driver "pgx"); all
// uniqueness guarantees come from the partial unique indexes in migrations.go.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	now     func() time.Time
}

// Open connects with the given driver and applies pending migrations.
func Open(driver, dsn string, timeout time.Duration) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", driver, err)
	}

	// A single connection keeps SQLite writers serialized and makes
	// ":memory:" databases usable from every query.
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &Store{db: db, timeout: timeout, now: func() time.Time { return time.Now().UTC() }}

	ctx, cancel := context.WithTimeout(context.Background(), 4*timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s db: %w", driver, err)
	}
	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}

var errNoRows = sql.ErrNoRows
