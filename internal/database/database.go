package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// Queryer объединяет *sql.DB и *sql.Tx, чтобы проверки доступности
// могли выполняться как вне, так и внутри транзакции.
type Queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reference TEXT NOT NULL,
            user_id INTEGER NOT NULL,
            date TEXT NOT NULL,
            start_min INTEGER NOT NULL,
            end_min INTEGER NOT NULL,
            court_id INTEGER NOT NULL,
            coach_id INTEGER NOT NULL DEFAULT 0,
            pricing TEXT,
            status TEXT NOT NULL DEFAULT 'confirmed',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS booking_equipment (
            booking_id INTEGER NOT NULL,
            equipment_id INTEGER NOT NULL,
            quantity INTEGER NOT NULL,
            PRIMARY KEY (booking_id, equipment_id)
        )`,
		`CREATE TABLE IF NOT EXISTS waitlist (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            reference TEXT NOT NULL,
            user_id INTEGER NOT NULL,
            date TEXT NOT NULL,
            start_min INTEGER NOT NULL,
            end_min INTEGER NOT NULL,
            court_id INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'waiting',
            position INTEGER NOT NULL,
            notified_at DATETIME,
            expires_at DATETIME,
            created_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_court_date ON bookings(court_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_coach_date ON bookings(coach_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_equipment_item ON booking_equipment(equipment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_waitlist_key ON waitlist(court_id, date, start_min, end_min, status)`,
		`CREATE INDEX IF NOT EXISTS idx_waitlist_status ON waitlist(status)`,

		// Страховка оптимистичной стратегии: две подтвержденные брони
		// с идентичным окном на один корт невозможны на уровне схемы.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_court_slot
            ON bookings(court_id, date, start_min, end_min)
            WHERE status = 'confirmed'`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
