package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the scheduler database connection.
type DB struct {
	*sql.DB
	path   string
	loc    *time.Location
	logger *zerolog.Logger
}

var (
	// ErrSlotTaken is returned by Claim when the slot is already at capacity.
	ErrSlotTaken = errors.New("slot is at capacity")
	// ErrAlreadyClaimed is returned by Claim when the user already holds an
	// occupant in the slot.
	ErrAlreadyClaimed = errors.New("slot already claimed by user")
	// ErrSlotNotFound is returned by Claim when the slot does not exist.
	ErrSlotNotFound = errors.New("slot not found")
	// ErrBookingNotFound is returned on lookups of a missing booking id.
	ErrBookingNotFound = errors.New("booking not found")
)

// NewDB opens the database, creating it and its tables if needed.
// All slot/booking timestamps are interpreted in loc.
func NewDB(path string, loc *time.Location, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode and a busy timeout so the sweep, the synchronizer and the
	// claim path can interleave on one file.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:     db,
		path:   path,
		loc:    loc,
		logger: logger,
	}

	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		// Slot rows exist iff the branch/date/time is open for business.
		// They are created by the weekly synchronizer and removed by the reaper.
		`CREATE TABLE IF NOT EXISTS slots (
			branch TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (branch, date, time)
		)`,

		// At most SlotCapacity occupants per slot; the cap is enforced by the
		// conditional insert in Claim, the unique index only stops one user
		// from claiming the same slot twice.
		`CREATE TABLE IF NOT EXISTS slot_occupants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			branch TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_occupants_slot_user
			ON slot_occupants(branch, date, time, user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_occupants_slot
			ON slot_occupants(branch, date, time)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			branch TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			notified_day_before BOOLEAN NOT NULL DEFAULT 0,
			notified_two_hours_before BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, date, time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_notified_24h ON bookings(notified_day_before)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_notified_2h ON bookings(notified_two_hours_before)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_date ON bookings(date, time)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Path returns the on-disk location of the database file.
func (db *DB) Path() string {
	return db.path
}

// Location returns the business timezone all slot times are interpreted in.
func (db *DB) Location() *time.Location {
	return db.loc
}

func (db *DB) Close() error {
	return db.DB.Close()
}
