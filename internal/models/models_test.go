package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateHelpers(t *testing.T) {
	assert.True(t, StateCountingDown.IsOpen())
	assert.True(t, StateActive.IsOpen())
	assert.False(t, StateDeactivated.IsOpen())
	assert.True(t, StateDeactivated.IsTerminal())
	assert.True(t, StateExpired.IsTerminal())
	assert.False(t, StateActive.IsTerminal())

	assert.True(t, TriggerVoice.Valid())
	assert.False(t, TriggerType("shake").Valid())
}

func TestValidUserID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"alice", true},
		{"user-123", true},
		{"0190a5b2_x", true},
		{"", false},
		{"*", false},
		{">", false},
		{"alice.smith", false},
		{"alice smith", false},
		{"alice\n", false},
		{strings.Repeat("a", 129), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidUserID(tt.id), tt.id)
	}
}

func TestDispatchKey(t *testing.T) {
	require.Equal(t, "s1/c1", DispatchKey("s1", "c1", MessageAlert, 0))
	require.Equal(t, "s1/c1/update/3", DispatchKey("s1", "c1", MessageLocationUpdate, 3))

	d := NotificationDispatch{SessionID: "s1", ContactID: "c2", Kind: MessageLocationUpdate, Sequence: 1}
	require.Equal(t, "s1/c2/update/1", d.Key())
}

func TestSessionSnapshotIsDeepCopy(t *testing.T) {
	now := time.Now()
	s := &Session{
		ID:                 "s1",
		UserID:             "u1",
		State:              StateActive,
		ActivatedAt:        &now,
		LatestLocation:     &LocationSample{Latitude: 1, CapturedAt: now},
		NotifiedContactIDs: map[string]struct{}{"b": {}, "a": {}},
		Version:            4,
	}

	snap := s.Snapshot([]NotificationDispatch{
		{ContactID: "a", Status: DispatchDelivered, Attempt: 1},
		{ContactID: "c", Status: DispatchFailed, Attempt: 3, LastError: "boom"},
	})

	s.LatestLocation.Latitude = 99
	*s.ActivatedAt = now.Add(time.Hour)
	s.NotifiedContactIDs["z"] = struct{}{}

	require.InDelta(t, 1.0, snap.LatestLocation.Latitude, 0)
	require.True(t, snap.ActivatedAt.Equal(now))
	require.Equal(t, []string{"a", "b"}, snap.NotifiedContactIDs)
	require.EqualValues(t, 4, snap.Version)
	require.Equal(t, []DeliveryFailure{{ContactID: "c", Attempts: 3, LastError: "boom"}}, snap.Failures)
}
