package nback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// manualClock only moves when Advance is called.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*manualTimer
	changed chan struct{}
}

type manualTimer struct {
	clock *manualClock
	at    time.Time
	ch    chan time.Time
	fn    func()
	done  bool
}

func newManualClock() *manualClock {
	return &manualClock{
		now:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		changed: make(chan struct{}),
	}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) NewTimer(d time.Duration) Timer {
	return c.add(&manualTimer{clock: c, ch: make(chan time.Time, 1)}, d)
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	return c.add(&manualTimer{clock: c, fn: f}, d)
}

func (c *manualClock) add(t *manualTimer, d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t.at = c.now.Add(d)
	c.timers = append(c.timers, t)
	close(c.changed)
	c.changed = make(chan struct{})
	return t
}

func (t *manualTimer) C() <-chan time.Time { return t.ch }

func (t *manualTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			break
		}
	}
	return true
}

// Advance moves time forward and fires every due timer outside the lock.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due, pending []*manualTimer
	for _, t := range c.timers {
		if t.at.After(now) {
			pending = append(pending, t)
		} else {
			t.done = true
			due = append(due, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	for _, t := range due {
		if t.fn != nil {
			t.fn()
		} else {
			t.ch <- now
		}
	}
}

// pendingWaits counts channel timers, i.e. loops blocked in sleep.
func (c *manualClock) pendingWaits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.fn == nil {
			n++
		}
	}
	return n
}

// BlockUntil waits until n loops are sleeping on the clock.
func (c *manualClock) BlockUntil(tb testing.TB, n int) {
	tb.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		changed := c.changed
		c.mu.Unlock()
		if c.pendingWaits() >= n {
			return
		}
		select {
		case <-changed:
		case <-deadline:
			tb.Fatalf("timed out waiting for %d sleepers, have %d", n, c.pendingWaits())
		}
	}
}

func TestManualClockFiresDueTimers(t *testing.T) {
	c := newManualClock()
	fired := false
	c.AfterFunc(time.Second, func() { fired = true })
	timer := c.NewTimer(2 * time.Second)

	c.Advance(time.Second)
	assert.True(t, fired)
	assert.Equal(t, 1, c.pendingWaits())

	c.Advance(time.Second)
	select {
	case <-timer.C():
	default:
		t.Fatal("timer did not fire")
	}
	assert.False(t, timer.Stop())
}

func TestRealClockTimer(t *testing.T) {
	timer := RealClock().NewTimer(time.Millisecond)
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
}
