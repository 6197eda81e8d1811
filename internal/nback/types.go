package nback

import (
	"fmt"
	"strings"
	"time"
)

// GameType selects how stimuli are presented.
type GameType string

const (
	GameTypeAudio       GameType = "Audio"
	GameTypeVisual      GameType = "Visual"
	GameTypeAudioVisual GameType = "AudioVisual"
)

// ParseGameType accepts a game type name in any letter case.
func ParseGameType(s string) (GameType, error) {
	for _, t := range []GameType{GameTypeAudio, GameTypeVisual, GameTypeAudioVisual} {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown game type %q", s)
}

// Audible reports whether stimuli of this type are spoken.
func (t GameType) Audible() bool {
	return t == GameTypeAudio || t == GameTypeAudioVisual
}

// Visible reports whether stimuli of this type light a grid cell.
func (t GameType) Visible() bool {
	return t == GameTypeVisual || t == GameTypeAudioVisual
}

// Phase is the lifecycle state of a session.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseEnded   Phase = "ended"
)

// Feedback is the transient indicator shown after a match press.
type Feedback string

const (
	FeedbackNeutral Feedback = "neutral"
	FeedbackMatch   Feedback = "match"
	FeedbackMiss    Feedback = "miss"
)

// MatchResult is the outcome of CheckMatch.
type MatchResult string

const (
	MatchIgnored   MatchResult = "ignored"
	MatchConfirmed MatchResult = "match"
	MatchRejected  MatchResult = "miss"
)

// State is a snapshot of the presentation-facing session state.
type State struct {
	SessionID string   `json:"session_id,omitempty"`
	Phase     Phase    `json:"phase"`
	GameType  GameType `json:"game_type"`
	NBack     int      `json:"n_back"`
	Value     int      `json:"value"` // NoStimulus before the first tick
	Index     int      `json:"index"` // stimuli shown so far
	Total     int      `json:"total"`
	Feedback  Feedback `json:"feedback"`
}

// Letter returns the spoken form of the current stimulus.
func (s State) Letter() string {
	return LetterFor(s.Value)
}

// Cell returns the grid cell lit by the current stimulus.
func (s State) Cell() (GridPosition, bool) {
	return CellFor(s.Value)
}

// Scores pairs the running score with the all-time high score.
type Scores struct {
	Score     int `json:"score"`
	HighScore int `json:"high_score"`
}

// SessionStartedPayload is attached to SESSION_STARTED events.
type SessionStartedPayload struct {
	GameType   GameType `json:"game_type"`
	NBack      int      `json:"n_back"`
	Total      int      `json:"total"`
	IntervalMs int64    `json:"interval_ms"`
}

// StimulusPayload is attached to STIMULUS_SHOWN events.
type StimulusPayload struct {
	Index  int           `json:"index"`
	Value  int           `json:"value"`
	Letter string        `json:"letter"`
	Cell   *GridPosition `json:"cell,omitempty"`
	Spoken bool          `json:"spoken"`
}

// MatchPayload is attached to MATCH_CHECKED events.
type MatchPayload struct {
	Index    int         `json:"index"`
	Result   MatchResult `json:"result"`
	Feedback Feedback    `json:"feedback"`
	Score    int         `json:"score"`
}

// GameTypePayload is attached to GAME_TYPE_CHANGED events.
type GameTypePayload struct {
	GameType GameType `json:"game_type"`
}

// Summary describes a finished session. It is the SESSION_ENDED payload.
type Summary struct {
	SessionID string    `json:"session_id"`
	GameType  GameType  `json:"game_type"`
	NBack     int       `json:"n_back"`
	Shown     int       `json:"shown"`
	Total     int       `json:"total"`
	Score     int       `json:"score"`
	HighScore int       `json:"high_score"`
	Completed bool      `json:"completed"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}
