package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Times are stored as Unix nanoseconds so both drivers round-trip them
// identically.
func toUnix(t time.Time) int64 { return t.UnixNano() }

func fromUnix(ns int64) time.Time { return time.Unix(0, ns).UTC() }

// SQLiteHighScoreRepository implements HighScoreRepository for SQLite.
type SQLiteHighScoreRepository struct {
	db *sql.DB
}

func NewSQLiteHighScoreRepository(db *sql.DB) *SQLiteHighScoreRepository {
	return &SQLiteHighScoreRepository{db: db}
}

// HighScore returns the stored score, or 0 when none was ever written.
func (r *SQLiteHighScoreRepository) HighScore(ctx context.Context) (int, error) {
	var score int
	err := r.db.QueryRowContext(ctx, `SELECT score FROM high_score WHERE id = 1`).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read high score: %w", err)
	}
	return score, nil
}

func (r *SQLiteHighScoreRepository) SetHighScore(ctx context.Context, score int) error {
	query := `
		INSERT INTO high_score (id, score, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET score=excluded.score, updated_at=excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, score, toUnix(time.Now())); err != nil {
		return fmt.Errorf("failed to write high score: %w", err)
	}
	return nil
}

func (r *SQLiteHighScoreRepository) Reset(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM high_score`)
	return err
}

// ---------------------------------------------------------
// SQLiteSessionRepository
// ---------------------------------------------------------

type SQLiteSessionRepository struct {
	db *sql.DB
}

func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

func (r *SQLiteSessionRepository) Record(ctx context.Context, s SessionRecord) error {
	query := `
		INSERT INTO sessions (session_id, game_type, n_back, shown, total, score, high_score, completed, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			game_type=excluded.game_type,
			n_back=excluded.n_back,
			shown=excluded.shown,
			total=excluded.total,
			score=excluded.score,
			high_score=excluded.high_score,
			completed=excluded.completed,
			started_at=excluded.started_at,
			ended_at=excluded.ended_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.SessionID, s.GameType, s.NBack, s.Shown, s.Total, s.Score, s.HighScore,
		s.Completed, toUnix(s.StartedAt), toUnix(s.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

func (r *SQLiteSessionRepository) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := `SELECT session_id, game_type, n_back, shown, total, score, high_score, completed, started_at, ended_at FROM sessions ORDER BY ended_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var s SessionRecord
		var started, ended int64
		if err := rows.Scan(&s.SessionID, &s.GameType, &s.NBack, &s.Shown, &s.Total,
			&s.Score, &s.HighScore, &s.Completed, &started, &ended); err != nil {
			return nil, err
		}
		s.StartedAt, s.EndedAt = fromUnix(started), fromUnix(ended)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ---------------------------------------------------------
// SQLiteEventRepository
// ---------------------------------------------------------

type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event EventRecord) error {
	payload := string(event.Payload)
	if payload == "" {
		payload = "null"
	}
	query := `
		INSERT INTO session_events (id, session_id, timestamp, event_type, actor_id, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.SessionID, toUnix(event.Timestamp), event.EventType, event.ActorID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) GetBySession(ctx context.Context, sessionID string) ([]EventRecord, error) {
	query := `SELECT id, session_id, timestamp, event_type, actor_id, payload FROM session_events WHERE session_id = ? ORDER BY timestamp ASC, rowid ASC`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var ts int64
		var payload string
		if err := rows.Scan(&e.ID, &e.SessionID, &ts, &e.EventType, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.Timestamp = fromUnix(ts)
		e.Payload = []byte(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

var (
	_ HighScoreRepository = (*SQLiteHighScoreRepository)(nil)
	_ SessionRepository   = (*SQLiteSessionRepository)(nil)
	_ EventRepository     = (*SQLiteEventRepository)(nil)
)
