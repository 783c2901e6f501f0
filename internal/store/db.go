package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// defaultBusyTimeoutMS bounds how long a writer waits on SQLITE_BUSY;
// override for environments with higher write contention.
const defaultBusyTimeoutMS = 5000

// Store is the durable transactional repository:
// projects, agents, tasks, file locks, conflicts, cost events, access
// requests, and checkpoints. Every multi-row mutation runs inside a single
// transaction; consumers see snapshot reads between transactions.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite-backed store at path and
// runs pending migrations. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", normalizeDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	// Single-writer SQLite: keep the pool small so busy_timeout, not pool
	// exhaustion, is what serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeoutMS),
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA mmap_size=67108864",
		"PRAGMA cache_size=-8000",
		"PRAGMA wal_autocheckpoint=1000",
	}
	for _, pragma := range pragmas {
		p := pragma
		if err := retry(context.Background(), func() error {
			_, err := db.ExecContext(context.Background(), p)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close runs PRAGMA optimize then closes the underlying connection.
func (s *Store) Close() error {
	_, _ = s.db.ExecContext(context.Background(), "PRAGMA optimize")
	return s.db.Close()
}

func normalizeDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?cache=shared"
	}
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?mode=rwc&_txlock=immediate"
}

// migrate runs every pending goose migration embedded in this package.
func migrate(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetVerbose(false)
	goose.SetLogger(goose.NopLogger())

	// goose's dialect name controls SQL generation, not the driver: we
	// register modernc.org/sqlite as "sqlite" but still tell goose "sqlite3".
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// withTx runs fn inside a transaction, rolling back on error and
// committing otherwise. Every invariant-bearing mutation in this package
// (claim, reassign, lock-acquire-with-GC, cost-record-with-budget-update)
// goes through this helper.
func (s *Store) withTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// retry wraps a SQLite operation with exponential backoff, retrying only
// transient busy/locked errors.
func retry(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 10 * time.Second
	b.RandomizationFactor = 0.1

	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := operation()
		if err == nil {
			return nil
		}
		if isRetryableError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}

func isRetryableError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "busy")
}

func newID() string {
	return uuid.New().String()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringVal(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
