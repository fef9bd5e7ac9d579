package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrCoalescerStopped = errors.New("coalescer is stopped")

// Coalescer collapses bursts of location changes for one session into a
// single update round per interval. Each flush gets the next sequence
// number, which keys the update dispatches.
type Coalescer struct {
	mu sync.Mutex

	sessionID string
	interval  time.Duration

	pending int   // changes since the last flush
	seq     int64 // last sequence handed to onFlush

	flushTimer *time.Timer
	stopCh     chan struct{}

	onFlush func(seq int64, changes int)
}

// NewCoalescer creates a coalescer calling onFlush at most once per interval.
func NewCoalescer(sessionID string, interval time.Duration, onFlush func(seq int64, changes int)) *Coalescer {
	return &Coalescer{
		sessionID: sessionID,
		interval:  interval,
		stopCh:    make(chan struct{}),
		onFlush:   onFlush,
	}
}

// Add records a location change. The first change after a flush starts the
// flush timer; later ones ride along with it.
func (c *Coalescer) Add() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stopCh:
		return ErrCoalescerStopped
	default:
	}

	c.pending++
	if c.pending == 1 {
		c.startFlushTimer()
	}

	return nil
}

// Flush publishes pending changes immediately.
func (c *Coalescer) Flush() {
	c.mu.Lock()
	seq, changes, ok := c.takeLocked("manual_flush")
	c.mu.Unlock()

	if ok {
		c.onFlush(seq, changes)
	}
}

// Stop discards pending changes and disarms the timer. A flush already
// running when Stop is called still completes.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stopCh:
		return
	default:
		close(c.stopCh)
	}

	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	c.pending = 0
}

// Sequence returns the last sequence number flushed.
func (c *Coalescer) Sequence() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.seq
}

// takeLocked resets the buffer and allocates the next sequence.
// Must be called with lock held
func (c *Coalescer) takeLocked(reason string) (int64, int, bool) {
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}

	if c.pending == 0 {
		return 0, 0, false
	}

	select {
	case <-c.stopCh:
		return 0, 0, false
	default:
	}

	c.seq++
	changes := c.pending
	c.pending = 0

	log.Debug().
		Str("session_id", c.sessionID).
		Int64("seq", c.seq).
		Int("changes", changes).
		Str("reason", reason).
		Msg("Flushing location updates")

	return c.seq, changes, true
}

// startFlushTimer starts or restarts the flush timer
// Must be called with lock held
func (c *Coalescer) startFlushTimer() {
	if c.flushTimer != nil {
		c.flushTimer.Stop()
	}

	c.flushTimer = time.AfterFunc(c.interval, func() {
		c.mu.Lock()
		seq, changes, ok := c.takeLocked("timer")
		c.mu.Unlock()

		// onFlush runs outside the lock so it may take session locks
		if ok {
			c.onFlush(seq, changes)
		}
	})
}
