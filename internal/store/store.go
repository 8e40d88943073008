// Package store implements the persistent relational store: an embedded
// SQLite file with foreign keys enforced, a single writer per process, and
// concurrent readers.
package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/jmoiron/sqlx"
)

// Store is the single entry point for persisted reads and writes. Writes are
// serialized behind writeMu; reads use the same *sqlx.DB since SQLite itself
// allows concurrent readers when not holding the write lock.
type Store struct {
	db      *sqlx.DB
	writeMu sync.Mutex
}

// Open opens (creating if absent) the SQLite file at path and applies
// migrations idempotently. Foreign keys are enabled on every connection via
// the DSN.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?%s", path, url.Values{
		"_foreign_keys": {"on"},
		"_journal_mode": {"WAL"},
		"_busy_timeout": {"5000"},
	}.Encode())

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single physical connection keeps the "single writer" discipline
	// honest even under WAL mode, where SQLite would otherwise allow
	// multiple writer connections to contend for the same lock.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory store, used by tests.
func OpenMemory() (*Store, error) {
	return Open("file::memory:?cache=shared")
}

func migrateUp(sqlDB *sql.DB) error {
	driver, err := sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("sqlite3 migration driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migration engine: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// withWrite serializes a mutating operation behind the single-writer lock.
func (s *Store) withWrite(fn func(*sqlx.DB) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn(s.db)
}
