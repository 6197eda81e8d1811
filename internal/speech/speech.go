// Package speech provides the speech collaborators of audio sessions.
// The server cannot talk to the player's speakers directly, so the default
// speaker publishes a SPEECH event that connected clients voice themselves.
package speech

import (
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/MRamiBalles/NBackTrainer/server/internal/events"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/logger"
)

// TextPayload is attached to SPEECH events.
type TextPayload struct {
	Text string `json:"text"`
}

// EventSpeaker turns every Speak call into a SPEECH event.
type EventSpeaker struct {
	eventLog *events.EventLog
}

// NewEventSpeaker creates a speaker that appends to eventLog.
func NewEventSpeaker(eventLog *events.EventLog) *EventSpeaker {
	return &EventSpeaker{eventLog: eventLog}
}

// Speak publishes text for clients to voice. The event carries no session
// and is not recorded in session history; use SpeakSession for that.
func (s *EventSpeaker) Speak(text string) {
	s.SpeakSession("", text)
}

// SpeakSession publishes text tagged with the session it was spoken in.
func (s *EventSpeaker) SpeakSession(sessionID, text string) {
	s.eventLog.Append(events.GameEvent{
		Type:      events.EventTypeSpeech,
		SessionID: sessionID,
		ActorID:   "SYSTEM",
		Payload:   TextPayload{Text: text},
	})
}

// CommandSpeaker runs a local text-to-speech binary, e.g. espeak or say.
// Only one utterance runs at a time; a new one interrupts the previous,
// like a flushing speech queue.
type CommandSpeaker struct {
	name    string
	args    []string
	timeout time.Duration
	logger  *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCommandSpeaker creates a speaker invoking name with args followed by
// the text.
func NewCommandSpeaker(name string, args []string, log *logger.Logger) *CommandSpeaker {
	return &CommandSpeaker{
		name:    name,
		args:    args,
		timeout: 3 * time.Second,
		logger:  log,
	}
}

// Speak starts the command and returns immediately.
func (s *CommandSpeaker) Speak(text string) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	s.cancel = cancel
	s.mu.Unlock()

	args := append(append([]string(nil), s.args...), text)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := exec.CommandContext(ctx, s.name, args...).Run(); err != nil && ctx.Err() == nil {
			s.logger.Warn("Speech command failed", logger.String("command", s.name), logger.Err(err))
		}
	}()
}

// Close interrupts the current utterance and waits for it to exit.
func (s *CommandSpeaker) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Multi fans one Speak call out to several speakers.
type Multi []interface{ Speak(string) }

// Speak calls every speaker in order.
func (m Multi) Speak(text string) {
	for _, s := range m {
		s.Speak(text)
	}
}

// SpeakSession calls every speaker in order, passing sessionID to those
// that take one.
func (m Multi) SpeakSession(sessionID, text string) {
	for _, s := range m {
		if ss, ok := s.(interface{ SpeakSession(string, string) }); ok {
			ss.SpeakSession(sessionID, text)
			continue
		}
		s.Speak(text)
	}
}
