// Package countdown provides a cancellable, single-shot delay used between
// raising an SOS and activating it.
package countdown

import (
	"sync"
	"time"
)

// Handle controls a started countdown.
type Handle struct {
	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	fired    bool
	stopped  bool
}

// Start schedules onExpire to run once after d. A zero or negative duration
// fires immediately on its own goroutine so the caller is never blocked.
func Start(d time.Duration, onExpire func()) *Handle {
	h := &Handle{deadline: time.Now().Add(max(d, 0))}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.timer = time.AfterFunc(max(d, 0), func() {
		h.mu.Lock()
		if h.stopped {
			h.mu.Unlock()
			return
		}
		h.fired = true
		h.mu.Unlock()

		onExpire()
	})

	return h
}

// Cancel prevents the callback from running. It returns true only if the
// countdown had not fired yet; cancelling after firing is a no-op.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fired || h.stopped {
		return false
	}

	h.stopped = true
	h.timer.Stop()
	return true
}

// Fired reports whether the callback has been started.
func (h *Handle) Fired() bool {
	if h == nil {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired
}

// Remaining returns the time left before expiry, rounded up to whole seconds
// for display. It is zero once fired or cancelled.
func (h *Handle) Remaining() time.Duration {
	if h == nil {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fired || h.stopped {
		return 0
	}

	left := time.Until(h.deadline)
	if left <= 0 {
		return 0
	}
	return ceilSeconds(left)
}

func ceilSeconds(d time.Duration) time.Duration {
	return (d + time.Second - 1).Truncate(time.Second)
}
