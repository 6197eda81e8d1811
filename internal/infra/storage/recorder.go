package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MRamiBalles/NBackTrainer/server/internal/events"
	"github.com/MRamiBalles/NBackTrainer/server/internal/nback"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/logger"
)

const writeTimeout = 5 * time.Second

// Persister adapts an EventRepository to events.EventPersister. Events that
// belong to no session are not stored.
type Persister struct {
	repo EventRepository
}

func NewPersister(repo EventRepository) *Persister {
	return &Persister{repo: repo}
}

// Append stores one event.
func (p *Persister) Append(e events.GameEvent) error {
	if e.SessionID == "" {
		return nil
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return p.repo.Append(ctx, EventRecord{
		ID:        e.ID,
		SessionID: e.SessionID,
		Timestamp: e.Timestamp,
		EventType: string(e.Type),
		ActorID:   e.ActorID,
		Payload:   payload,
	})
}

// SessionRecorder writes a SessionRecord for every SESSION_ENDED event.
// Writes happen on Run's goroutine so the publishing session never waits
// on the database.
type SessionRecorder struct {
	repo   SessionRepository
	logger *logger.Logger
	queue  chan SessionRecord
}

func NewSessionRecorder(repo SessionRepository, log *logger.Logger) *SessionRecorder {
	return &SessionRecorder{
		repo:   repo,
		logger: log,
		queue:  make(chan SessionRecord, 64),
	}
}

// Attach subscribes the recorder to el and returns the unsubscribe func.
func (r *SessionRecorder) Attach(el *events.EventLog) func() {
	return el.Subscribe(r.handle)
}

func (r *SessionRecorder) handle(e events.GameEvent) {
	if e.Type != events.EventTypeSessionEnded {
		return
	}
	summary, ok := e.Payload.(nback.Summary)
	if !ok {
		return
	}
	select {
	case r.queue <- RecordFromSummary(summary):
	default:
		r.logger.Warn("Session history queue full, dropping record",
			logger.String("session_id", summary.SessionID))
	}
}

// Run drains the queue until ctx is done, then flushes what is left.
func (r *SessionRecorder) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-r.queue:
			r.write(rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.queue:
					r.write(rec)
				default:
					return nil
				}
			}
		}
	}
}

func (r *SessionRecorder) write(rec SessionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.Record(ctx, rec); err != nil {
		r.logger.Error("Failed to record session",
			logger.String("session_id", rec.SessionID), logger.Err(err))
	}
}

// RecordFromSummary converts a SESSION_ENDED payload.
func RecordFromSummary(s nback.Summary) SessionRecord {
	return SessionRecord{
		SessionID: s.SessionID,
		GameType:  string(s.GameType),
		NBack:     s.NBack,
		Shown:     s.Shown,
		Total:     s.Total,
		Score:     s.Score,
		HighScore: s.HighScore,
		Completed: s.Completed,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}
}
