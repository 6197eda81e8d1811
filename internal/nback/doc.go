// Package nback contains the N-back session controller.
//
// A Session generates a stimulus sequence, presents it on a fixed interval,
// and scores match presses against the stimulus shown N steps earlier. Every
// observable change is appended to an events.EventLog; the all-time high
// score lives behind a HighScoreStore.
//
// The controller never mutates session state after a cancelled loop has been
// acknowledged, and at most one loop runs per Session.
package nback
