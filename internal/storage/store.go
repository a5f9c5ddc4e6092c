package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	JournalMode     string // sqlite only
}

// Store bundles the repositories over one database handle.
type Store struct {
	db     *sql.DB
	driver string

	Sessions  *SessionRepository
	Turns     *TurnRepository
	Documents *DocumentRepository
	Contexts  *ContextRepository
}

// Open connects to driver ("sqlite" or "postgres") at dsn and creates the schema.
func Open(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	var sqlDriver string
	switch driver {
	case "sqlite":
		sqlDriver = "sqlite3"
		dsn = sqliteDSN(dsn)
	case "postgres":
		sqlDriver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	switch {
	case driver == "sqlite" && inMemory(dsn):
		db.SetMaxOpenConns(1)
	case opts.MaxOpenConns > 0:
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	s := New(db, driver)
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if driver == "sqlite" && opts.JournalMode != "" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode="+opts.JournalMode); err != nil {
			db.Close()
			return nil, fmt.Errorf("set journal mode: %w", err)
		}
	}

	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle. The schema is not created.
func New(db *sql.DB, driver string) *Store {
	return &Store{
		db:        db,
		driver:    driver,
		Sessions:  NewSessionRepository(db),
		Turns:     NewTurnRepository(db),
		Documents: NewDocumentRepository(db),
		Contexts:  NewContextRepository(db),
	}
}

// sqliteDSN accepts a file path, a sqlite:// URL (sqlite:///abs/path or
// sqlite://rel/path) or :memory:, and turns foreign keys on so cascading
// deletes work.
func sqliteDSN(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "sqlite:"):
		dsn = strings.TrimPrefix(dsn, "sqlite:")
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// inMemory reports whether a sqlite DSN names a private in-memory database.
// Every connection to one sees a different database.
func inMemory(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Driver returns the configured driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Ping checks connectivity, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn in a transaction, rolling back if it returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(tx DB) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ResetTranscript replaces a session's turns with the single seed turn.
func (s *Store) ResetTranscript(ctx context.Context, seed *TurnRecord) error {
	return s.WithTx(ctx, func(tx DB) error {
		turns := NewTurnRepository(tx)
		if err := turns.DeleteBySession(ctx, seed.SessionID); err != nil {
			return fmt.Errorf("delete turns: %w", err)
		}
		seed.Seq = 0
		if err := turns.Append(ctx, seed); err != nil {
			return fmt.Errorf("append seed turn: %w", err)
		}
		return nil
	})
}
