package nback

import "context"

// HighScoreStore persists the all-time high score.
type HighScoreStore interface {
	HighScore(ctx context.Context) (int, error)
	SetHighScore(ctx context.Context, score int) error
}

// Speaker renders a stimulus as speech. Calls are fire-and-forget: failures
// are the speaker's own business.
type Speaker interface {
	Speak(text string)
}

// SessionSpeaker is implemented by speakers that tag speech with the session
// it belongs to. The session calls SpeakSession instead of Speak when the
// speaker supports it.
type SessionSpeaker interface {
	SpeakSession(sessionID, text string)
}

// SpeakerFunc adapts a function to Speaker.
type SpeakerFunc func(text string)

// Speak calls f.
func (f SpeakerFunc) Speak(text string) { f(text) }

type nopSpeaker struct{}

func (nopSpeaker) Speak(string) {}
