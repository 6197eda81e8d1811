// Package storage provides the persistence layer for the trainer server.
// This package implements the repository pattern to keep the session
// controller free of SQL.
package storage

import (
	"context"
	"encoding/json"
	"time"
)

// EventRecord mirrors events.GameEvent for persistence. The payload is
// kept as raw JSON so replays return what clients originally received.
type EventRecord struct {
	ID        string          `json:"id" db:"id"`
	SessionID string          `json:"session_id" db:"session_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	EventType string          `json:"type" db:"event_type"`
	ActorID   string          `json:"actor_id" db:"actor_id"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event EventRecord) error

	// GetBySession retrieves all events of one session (for replay).
	GetBySession(ctx context.Context, sessionID string) ([]EventRecord, error)
}

// SessionRecord is one finished or aborted session.
type SessionRecord struct {
	SessionID string    `json:"session_id" db:"session_id"`
	GameType  string    `json:"game_type" db:"game_type"`
	NBack     int       `json:"n_back" db:"n_back"`
	Shown     int       `json:"shown" db:"shown"`
	Total     int       `json:"total" db:"total"`
	Score     int       `json:"score" db:"score"`
	HighScore int       `json:"high_score" db:"high_score"`
	Completed bool      `json:"completed" db:"completed"`
	StartedAt time.Time `json:"started_at" db:"started_at"`
	EndedAt   time.Time `json:"ended_at" db:"ended_at"`
}

// SessionRepository defines the interface for session history.
type SessionRepository interface {
	// Record stores a session summary. Recording the same session twice
	// replaces the earlier row.
	Record(ctx context.Context, session SessionRecord) error

	// Recent returns up to limit sessions, newest first.
	Recent(ctx context.Context, limit int) ([]SessionRecord, error)
}

// HighScoreRepository stores the single best score. It satisfies
// nback.HighScoreStore.
type HighScoreRepository interface {
	HighScore(ctx context.Context) (int, error)
	SetHighScore(ctx context.Context, score int) error
	Reset(ctx context.Context) error
}

// Repositories bundles the stores opened for one backend.
type Repositories struct {
	HighScores HighScoreRepository
	Sessions   SessionRepository
	Events     EventRepository

	close func() error
}

// Close releases the backend.
func (r *Repositories) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}
