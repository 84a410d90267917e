package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Sentinel errors returned by the sqlite implementation.
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrReconciled is returned when an operation requires an
	// unreconciled transaction.
	ErrReconciled = errors.New("transaction already reconciled")

	// ErrVersionConflict is returned when an optimistic version check
	// fails during a counterpart claim.
	ErrVersionConflict = errors.New("counterpart version conflict")

	// ErrDuplicateFingerprint is returned when a batch insert hits the
	// unique (account, fingerprint) index.
	ErrDuplicateFingerprint = errors.New("duplicate transaction fingerprint")
)

// Storage provides database access backed by SQLite
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	// Run all pending migrations
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// compile-time interface check
var _ Repository = (*Storage)(nil)
