package nback

import (
	"context"
	"time"
)

// Task is a handle on a background loop. Stop cancels it and returns only
// once the loop has exited, so no state mutation follows an acknowledged stop.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartTask runs fn in a new goroutine with a context derived from parent.
func StartTask(parent context.Context, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		fn(ctx)
	}()
	return t
}

// Stop cancels the task and waits for it to exit. It must not be called from
// inside the task itself. Safe to call more than once.
func (t *Task) Stop() {
	t.cancel()
	<-t.done
}

// Done is closed when the task has exited.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// sleep waits for d on clock c, returning early with ctx's error on cancel.
func sleep(ctx context.Context, c Clock, d time.Duration) error {
	timer := c.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
