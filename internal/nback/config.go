package nback

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("invalid session config")
	// ErrInvalidSequence wraps generator parameter errors.
	ErrInvalidSequence = errors.New("invalid sequence parameters")
	// ErrNoStore is returned by Build when no HighScoreStore was given.
	ErrNoStore = errors.New("high score store is required")
	// ErrClosed is returned by StartGame after Close.
	ErrClosed = errors.New("session closed")
)

// Config holds the session parameters. The reference game hardcodes
// DefaultConfig; everything is settable for tests and tuning.
type Config struct {
	NBack         int
	EventCount    int
	Interval      time.Duration
	AlphabetSize  int
	MinMatches    int
	FeedbackDelay time.Duration
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		NBack:         2,
		EventCount:    10,
		Interval:      2000 * time.Millisecond,
		AlphabetSize:  9,
		MinMatches:    3, // N+1
		FeedbackDelay: 500 * time.Millisecond,
	}
}

// Validate checks that a sequence satisfying the config can exist.
func (c Config) Validate() error {
	switch {
	case c.NBack < 1:
		return fmt.Errorf("%w: n-back must be at least 1, got %d", ErrInvalidConfig, c.NBack)
	case c.EventCount < 1:
		return fmt.Errorf("%w: event count must be at least 1, got %d", ErrInvalidConfig, c.EventCount)
	case c.AlphabetSize < 1:
		return fmt.Errorf("%w: alphabet size must be at least 1, got %d", ErrInvalidConfig, c.AlphabetSize)
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidConfig, c.Interval)
	case c.FeedbackDelay < 0:
		return fmt.Errorf("%w: feedback delay must not be negative, got %s", ErrInvalidConfig, c.FeedbackDelay)
	}
	if err := checkSequenceParams(c.EventCount, c.AlphabetSize, c.MinMatches, c.NBack); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
