package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryHighScoreStore keeps the high score in process. Used by the dev
// profile and tests.
type MemoryHighScoreStore struct {
	mu    sync.Mutex
	score int
}

func NewMemoryHighScoreStore(initial int) *MemoryHighScoreStore {
	return &MemoryHighScoreStore{score: initial}
}

func (m *MemoryHighScoreStore) HighScore(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.score, nil
}

func (m *MemoryHighScoreStore) SetHighScore(_ context.Context, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.score = score
	return nil
}

func (m *MemoryHighScoreStore) Reset(context.Context) error {
	return m.SetHighScore(context.Background(), 0)
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]SessionRecord
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]SessionRecord)}
}

func (m *MemorySessionStore) Record(_ context.Context, s SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = s
	return nil
}

func (m *MemorySessionStore) Recent(_ context.Context, limit int) ([]SessionRecord, error) {
	m.mu.Lock()
	out := make([]SessionRecord, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type MemoryEventStore struct {
	mu     sync.Mutex
	events map[string][]EventRecord
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[string][]EventRecord)}
}

func (m *MemoryEventStore) Append(_ context.Context, e EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.SessionID] = append(m.events[e.SessionID], e)
	return nil
}

func (m *MemoryEventStore) GetBySession(_ context.Context, sessionID string) ([]EventRecord, error) {
	m.mu.Lock()
	out := append([]EventRecord(nil), m.events[sessionID]...)
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

var (
	_ HighScoreRepository = (*MemoryHighScoreStore)(nil)
	_ SessionRepository   = (*MemorySessionStore)(nil)
	_ EventRepository     = (*MemoryEventStore)(nil)
)
