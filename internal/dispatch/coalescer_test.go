package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type flushRecorder struct {
	mu      sync.Mutex
	seqs    []int64
	changes []int
}

func (r *flushRecorder) onFlush(seq int64, changes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs = append(r.seqs, seq)
	r.changes = append(r.changes, changes)
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seqs)
}

func TestCoalescerCollapsesBurst(t *testing.T) {
	rec := &flushRecorder{}
	c := NewCoalescer("s1", 30*time.Millisecond, rec.onFlush)

	for range 5 {
		require.NoError(t, c.Add())
	}

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []int64{1}, rec.seqs)
	require.Equal(t, []int{5}, rec.changes)

	require.NoError(t, c.Add())
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 2, c.Sequence())
}

func TestCoalescerManualFlush(t *testing.T) {
	rec := &flushRecorder{}
	c := NewCoalescer("s1", time.Hour, rec.onFlush)

	c.Flush()
	require.Zero(t, rec.count(), "nothing pending")

	require.NoError(t, c.Add())
	c.Flush()
	require.Equal(t, 1, rec.count())
}

func TestCoalescerStopDiscardsPending(t *testing.T) {
	rec := &flushRecorder{}
	c := NewCoalescer("s1", 20*time.Millisecond, rec.onFlush)

	require.NoError(t, c.Add())
	c.Stop()
	c.Stop()

	time.Sleep(60 * time.Millisecond)
	require.Zero(t, rec.count())
	require.ErrorIs(t, c.Add(), ErrCoalescerStopped)

	c.Flush()
	require.Zero(t, rec.count())
}
