package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New()

	c.RecordTick(2 * time.Millisecond)
	c.RecordTick(6 * time.Millisecond)
	c.RecordMatch("match")
	c.RecordMatch("miss")
	c.RecordMatch("ignored")
	c.RecordMatch("ignored")
	c.RecordSessionStarted()
	c.RecordSessionEnded(true)
	c.RecordSessionEnded(false)
	c.RecordHighScoreWrite(time.Millisecond, errors.New("disk full"))

	snap := c.Snapshot()

	tick := snap["tick"].(map[string]interface{})
	assert.Equal(t, int64(2), tick["count"])
	assert.InDelta(t, 4.0, tick["avg_latency_ms"], 0.001)
	assert.InDelta(t, 6.0, tick["max_latency_ms"], 0.001)

	matches := snap["matches"].(map[string]interface{})
	assert.Equal(t, int64(1), matches["confirmed"])
	assert.Equal(t, int64(1), matches["rejected"])
	assert.Equal(t, int64(2), matches["ignored"])

	sessions := snap["sessions"].(map[string]interface{})
	assert.Equal(t, int64(1), sessions["completed"])
	assert.Equal(t, int64(1), sessions["aborted"])

	hs := snap["high_score"].(map[string]interface{})
	assert.Equal(t, int64(1), hs["errors"])
}

func TestPrometheusHandler(t *testing.T) {
	c := New()
	c.RecordWSConnection(1)
	c.RecordWSMessage(true)

	rec := httptest.NewRecorder()
	c.PrometheusHandler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "nback_ws_connections 1"))
	assert.True(t, strings.Contains(body, `nback_ws_messages_total{direction="in"} 1`))
}
