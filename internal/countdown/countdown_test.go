package countdown

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountdownFires(t *testing.T) {
	var fired atomic.Int32

	h := Start(20*time.Millisecond, func() {
		fired.Add(1)
	})

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, h.Fired())
	require.False(t, h.Cancel(), "cancel after firing should be a no-op")

	// Should only ever fire once
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load())
}

func TestCountdownCancelBeforeExpiry(t *testing.T) {
	var fired atomic.Int32

	h := Start(100*time.Millisecond, func() {
		fired.Add(1)
	})

	require.True(t, h.Cancel())
	require.False(t, h.Cancel(), "second cancel should report nothing was prevented")

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load())
	require.False(t, h.Fired())
	require.Zero(t, h.Remaining())
}

func TestCountdownZeroDurationFiresImmediately(t *testing.T) {
	done := make(chan struct{})

	Start(0, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero duration countdown did not fire")
	}
}

func TestCountdownRemaining(t *testing.T) {
	h := Start(10*time.Second, func() {})
	defer h.Cancel()

	// Any fraction of a second left still shows as a whole second
	require.Equal(t, 10*time.Second, h.Remaining())

	short := Start(1500*time.Millisecond, func() {})
	defer short.Cancel()
	require.Equal(t, 2*time.Second, short.Remaining())
}

func TestCeilSeconds(t *testing.T) {
	require.Equal(t, time.Second, ceilSeconds(time.Nanosecond))
	require.Equal(t, time.Second, ceilSeconds(time.Second))
	require.Equal(t, 2*time.Second, ceilSeconds(time.Second+time.Millisecond))
	require.Equal(t, 3*time.Second, ceilSeconds(2900*time.Millisecond))
}

func TestCountdownNilHandle(t *testing.T) {
	var h *Handle
	require.False(t, h.Cancel())
	require.False(t, h.Fired())
	require.Zero(t, h.Remaining())
}
