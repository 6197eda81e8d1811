// Package events provides the session event log.
// Every observable change of a game session is appended here and pushed to
// subscribers (the websocket hub, the history recorder, tests).
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a game event.
type EventType string

const (
	EventTypeSessionStarted  EventType = "SESSION_STARTED"
	EventTypeStimulusShown   EventType = "STIMULUS_SHOWN"
	EventTypeMatchChecked    EventType = "MATCH_CHECKED"
	EventTypeFeedbackCleared EventType = "FEEDBACK_CLEARED"
	EventTypeScoreChanged    EventType = "SCORE_CHANGED"
	EventTypeHighScore       EventType = "HIGH_SCORE_CHANGED"
	EventTypeGameTypeChanged EventType = "GAME_TYPE_CHANGED"
	EventTypeSpeech          EventType = "SPEECH"
	EventTypeSessionEnded    EventType = "SESSION_ENDED"
)

// GameEvent represents an immutable record of something that happened in a
// session.
type GameEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	ActorID   string      `json:"actor_id"` // PLAYER or SYSTEM
	Payload   interface{} `json:"payload"`
}

// Handler receives events pushed by the log. Handlers run on the appending
// goroutine and must not block.
type Handler func(GameEvent)

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event GameEvent) error
}

// EventLog is the in-memory append-only log of game events.
type EventLog struct {
	mu        sync.RWMutex
	events    []GameEvent
	persister EventPersister
	onError   func(GameEvent, error)
	pending   sync.WaitGroup

	subMu   sync.RWMutex
	subs    map[int]Handler
	nextSub int
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return &EventLog{
		events:    make([]GameEvent, 0),
		persister: persister,
		subs:      make(map[int]Handler),
	}
}

// Append adds a new event to the log and pushes it to subscribers. Missing
// ID and Timestamp are filled in.
func (el *EventLog) Append(event GameEvent) GameEvent {
	if event.ID == "" {
		event.ID = GenerateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	el.mu.Lock()
	el.events = append(el.events, event)
	el.mu.Unlock()

	if el.persister != nil {
		// Write through to persistent storage off the hot path
		el.pending.Add(1)
		go func(e GameEvent) {
			defer el.pending.Done()
			if err := el.persister.Append(e); err != nil && el.onError != nil {
				el.onError(e, err)
			}
		}(event)
	}

	el.subMu.RLock()
	handlers := make([]Handler, 0, len(el.subs))
	for _, h := range el.subs {
		handlers = append(handlers, h)
	}
	el.subMu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return event
}

// OnPersistError sets the callback for failed writes. Call it before the
// first Append.
func (el *EventLog) OnPersistError(f func(GameEvent, error)) {
	el.onError = f
}

// Flush waits for pending writes to the persister.
func (el *EventLog) Flush() {
	el.pending.Wait()
}

// Subscribe registers a handler for every future event. The returned func
// removes it.
func (el *EventLog) Subscribe(h Handler) (unsubscribe func()) {
	el.subMu.Lock()
	id := el.nextSub
	el.nextSub++
	el.subs[id] = h
	el.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			el.subMu.Lock()
			delete(el.subs, id)
			el.subMu.Unlock()
		})
	}
}

// GetBySession returns all events of one session in append order.
func (el *EventLog) GetBySession(sessionID string) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.SessionID == sessionID {
			result = append(result, e)
		}
	}
	return result
}

// GetByType returns all events of one type in append order.
func (el *EventLog) GetByType(t EventType) []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []GameEvent
	for _, e := range el.events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the full history of events.
func (el *EventLog) Replay() []GameEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	out := make([]GameEvent, len(el.events))
	copy(out, el.events)
	return out
}

// Len returns the number of events appended so far.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
