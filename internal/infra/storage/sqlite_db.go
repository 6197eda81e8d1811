package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // Pure Go SQLite driver, registered as "sqlite"
)

// Supported storage drivers.
const (
	DriverSQLite  = "sqlite"
	DriverSQLite3 = "sqlite3"
	DriverMemory  = "memory"
)

// ErrUnknownDriver is returned for a driver name Open does not know.
var ErrUnknownDriver = errors.New("unknown storage driver")

// InitSQLite opens the local SQLite database with the given database/sql
// driver and creates the schemas for the high score, the session history
// and the event log.
func InitSQLite(driver, dbPath string) (*sql.DB, error) {
	if driver != DriverSQLite && driver != DriverSQLite3 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := createSchemas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}

	return db, nil
}

// Open returns the repositories for driver. The memory driver ignores
// dbPath and keeps everything in process.
func Open(driver, dbPath string, maxOpenConns int) (*Repositories, error) {
	if driver == DriverMemory {
		return &Repositories{
			HighScores: NewMemoryHighScoreStore(0),
			Sessions:   NewMemorySessionStore(),
			Events:     NewMemoryEventStore(),
		}, nil
	}

	db, err := InitSQLite(driver, dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; ":memory:" also needs a single connection
	// so every query sees the same database.
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	return &Repositories{
		HighScores: NewSQLiteHighScoreRepository(db),
		Sessions:   NewSQLiteSessionRepository(db),
		Events:     NewSQLiteEventRepository(db),
		close:      db.Close,
	}, nil
}

func createSchemas(db *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS high_score (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			score INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			game_type TEXT NOT NULL,
			n_back INTEGER NOT NULL,
			shown INTEGER NOT NULL,
			total INTEGER NOT NULL,
			score INTEGER NOT NULL,
			high_score INTEGER NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS session_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			payload TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id);`,
	}

	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
