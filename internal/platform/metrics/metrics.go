// Package metrics provides observability for the game server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers gameplay and transport metrics.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Session metrics
	SessionsStarted   int64
	SessionsCompleted int64
	SessionsAborted   int64

	// Match metrics
	MatchesConfirmed int64
	MatchesRejected  int64
	MatchesIgnored   int64

	// High score persistence
	HighScoreWrites      int64
	HighScoreWriteErrors int64
	HighScoreWriteLatMax int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSMessagesDropped   int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = New()

// New creates an empty collector. Tests use their own instance.
func New() *Collector {
	return &Collector{StartTime: time.Now()}
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

func storeMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur || atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}

// RecordTick records one stimulus presentation.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))
	storeMax(&c.TickLatencyMax, int64(latency))

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordSessionStarted counts a new session.
func (c *Collector) RecordSessionStarted() {
	atomic.AddInt64(&c.SessionsStarted, 1)
}

// RecordSessionEnded counts a finished session. completed is false for a
// session that was ended early.
func (c *Collector) RecordSessionEnded(completed bool) {
	if completed {
		atomic.AddInt64(&c.SessionsCompleted, 1)
	} else {
		atomic.AddInt64(&c.SessionsAborted, 1)
	}
}

// RecordMatch counts a match press by outcome ("match", "miss", "ignored").
func (c *Collector) RecordMatch(outcome string) {
	switch outcome {
	case "match":
		atomic.AddInt64(&c.MatchesConfirmed, 1)
	case "miss":
		atomic.AddInt64(&c.MatchesRejected, 1)
	default:
		atomic.AddInt64(&c.MatchesIgnored, 1)
	}
}

// RecordHighScoreWrite records a write to the high score store.
func (c *Collector) RecordHighScoreWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.HighScoreWrites, 1)
	storeMax(&c.HighScoreWriteLatMax, int64(latency))
	if err != nil {
		atomic.AddInt64(&c.HighScoreWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSDropped records a broadcast that a slow consumer could not take.
func (c *Collector) RecordWSDropped() {
	atomic.AddInt64(&c.WSMessagesDropped, 1)
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	lastTick := c.LastTickTime
	c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	var tickAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}

	last := ""
	if !lastTick.IsZero() {
		last = lastTick.Format(time.RFC3339)
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      last,
		},

		"sessions": map[string]interface{}{
			"started":   atomic.LoadInt64(&c.SessionsStarted),
			"completed": atomic.LoadInt64(&c.SessionsCompleted),
			"aborted":   atomic.LoadInt64(&c.SessionsAborted),
		},

		"matches": map[string]interface{}{
			"confirmed": atomic.LoadInt64(&c.MatchesConfirmed),
			"rejected":  atomic.LoadInt64(&c.MatchesRejected),
			"ignored":   atomic.LoadInt64(&c.MatchesIgnored),
		},

		"high_score": map[string]interface{}{
			"writes":           atomic.LoadInt64(&c.HighScoreWrites),
			"errors":           atomic.LoadInt64(&c.HighScoreWriteErrors),
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.HighScoreWriteLatMax)) / 1e6,
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"messages_dropped":   atomic.LoadInt64(&c.WSMessagesDropped),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler serving the JSON snapshot.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		_ = json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		fmt.Fprintf(w, "# HELP nback_tick_count Total stimuli presented\n")
		fmt.Fprintf(w, "# TYPE nback_tick_count counter\n")
		fmt.Fprintf(w, "nback_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP nback_sessions_total Sessions by outcome\n")
		fmt.Fprintf(w, "# TYPE nback_sessions_total counter\n")
		fmt.Fprintf(w, "nback_sessions_total{outcome=\"started\"} %d\n", atomic.LoadInt64(&c.SessionsStarted))
		fmt.Fprintf(w, "nback_sessions_total{outcome=\"completed\"} %d\n", atomic.LoadInt64(&c.SessionsCompleted))
		fmt.Fprintf(w, "nback_sessions_total{outcome=\"aborted\"} %d\n\n", atomic.LoadInt64(&c.SessionsAborted))

		fmt.Fprintf(w, "# HELP nback_matches_total Match presses by outcome\n")
		fmt.Fprintf(w, "# TYPE nback_matches_total counter\n")
		fmt.Fprintf(w, "nback_matches_total{outcome=\"match\"} %d\n", atomic.LoadInt64(&c.MatchesConfirmed))
		fmt.Fprintf(w, "nback_matches_total{outcome=\"miss\"} %d\n", atomic.LoadInt64(&c.MatchesRejected))
		fmt.Fprintf(w, "nback_matches_total{outcome=\"ignored\"} %d\n\n", atomic.LoadInt64(&c.MatchesIgnored))

		fmt.Fprintf(w, "# HELP nback_high_score_write_errors Failed high score writes\n")
		fmt.Fprintf(w, "# TYPE nback_high_score_write_errors counter\n")
		fmt.Fprintf(w, "nback_high_score_write_errors %d\n\n", atomic.LoadInt64(&c.HighScoreWriteErrors))

		fmt.Fprintf(w, "# HELP nback_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE nback_ws_connections gauge\n")
		fmt.Fprintf(w, "nback_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP nback_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE nback_ws_messages_total counter\n")
		fmt.Fprintf(w, "nback_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "nback_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
		fmt.Fprintf(w, "nback_ws_messages_total{direction=\"dropped\"} %d\n", atomic.LoadInt64(&c.WSMessagesDropped))
	}
}
