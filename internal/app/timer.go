package app

import (
	"sync"
	"time"
)

// deadlineTimers holds the cancelable auto-submit timer for each live
// timed attempt. One timer per attempt: scheduling again replaces the
// previous timer, and a fired or canceled timer removes itself.
type deadlineTimers struct {
	mu     sync.Mutex
	timers map[int64]*timerHandle
}

type timerHandle struct {
	timer *time.Timer
}

func newDeadlineTimers() *deadlineTimers {
	return &deadlineTimers{timers: make(map[int64]*timerHandle)}
}

// Schedule arms fn to run after d, firing immediately when d is not
// positive (a resumed attempt whose deadline already passed). The
// returned cancel is idempotent and safe to call after firing.
func (t *deadlineTimers) Schedule(attemptID int64, d time.Duration, fn func()) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[attemptID]; ok {
		old.timer.Stop()
	}
	// The handle exists before the timer is armed, so an immediate fire
	// never races the assignment.
	handle := &timerHandle{}
	handle.timer = time.AfterFunc(d, func() {
		t.forget(attemptID, handle)
		fn()
	})
	t.timers[attemptID] = handle
	return func() {
		handle.timer.Stop()
		t.forget(attemptID, handle)
	}
}

// Cancel stops and forgets the attempt's timer, if any.
func (t *deadlineTimers) Cancel(attemptID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if handle, ok := t.timers[attemptID]; ok {
		handle.timer.Stop()
		delete(t.timers, attemptID)
	}
}

// forget removes the entry only if it still points at the given handle,
// so a stale timer never evicts its replacement.
func (t *deadlineTimers) forget(attemptID int64, handle *timerHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.timers[attemptID]; ok && current == handle {
		delete(t.timers, attemptID)
	}
}
