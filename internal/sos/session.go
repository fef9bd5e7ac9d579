package sos

import (
	"slices"
	"sync"
	"time"

	"github.com/wolfeidau/beacon/internal/countdown"
	"github.com/wolfeidau/beacon/internal/dispatch"
	"github.com/wolfeidau/beacon/internal/models"
)

// session is the live state of one SOS episode. Every field below mu is
// guarded by it, and all transitions go through apply while it is held.
type session struct {
	id       string
	userID   string
	userName string // set before the session is published, then read-only

	mu         sync.Mutex
	data       models.Session
	deliveries map[string]models.NotificationDispatch // dispatch key -> latest record
	order      []string                               // dispatch keys in claim order
	contacts   []models.EmergencyContact              // snapshot taken at activation

	countdown   *countdown.Handle
	lifetime    *countdown.Handle
	coalescer   *dispatch.Coalescer
	unsubscribe func()
}

var _ dispatch.Ledger = (*session)(nil)

func newSession(id, userID string, trigger models.TriggerType, clientIP string, now time.Time) *session {
	return &session{
		id:     id,
		userID: userID,
		data: models.Session{
			ID:                 id,
			UserID:             userID,
			State:              models.StateCountingDown,
			TriggerType:        trigger,
			CreatedAt:          now,
			NotifiedContactIDs: make(map[string]struct{}),
			ClientIP:           clientIP,
			Version:            1,
		},
		deliveries: make(map[string]models.NotificationDispatch),
	}
}

// apply moves the session along the transition table.
// Must be called with lock held
func (s *session) apply(event Event, now time.Time) error {
	to, ok := nextState(s.data.State, event)
	if !ok {
		return &StateError{SessionID: s.id, State: s.data.State, Event: event}
	}

	switch to {
	case models.StateActive:
		t := s.notBefore(now, s.data.CreatedAt)
		s.data.ActivatedAt = &t
	case models.StateDeactivated, models.StateExpired:
		t := now
		if s.data.ActivatedAt != nil {
			t = s.notBefore(now, *s.data.ActivatedAt)
		}
		s.data.DeactivatedAt = &t
	}

	s.data.State = to
	s.data.Version++
	return nil
}

// notBefore keeps lifecycle timestamps monotonic if the wall clock steps back.
func (s *session) notBefore(now, floor time.Time) time.Time {
	if now.Before(floor) {
		return floor
	}
	return now
}

func (s *session) state() models.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.data.State
}

func (s *session) snapshot() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	deliveries := make([]models.NotificationDispatch, 0, len(s.order))
	for _, key := range s.order {
		deliveries = append(deliveries, s.deliveries[key])
	}

	return s.data.Snapshot(deliveries)
}

func (s *session) setContacts(contacts []models.EmergencyContact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contacts = slices.Clone(contacts)
}

func (s *session) contactsSnapshot() []models.EmergencyContact {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.contacts)
}

func (s *session) SessionID() string { return s.id }

func (s *session) UserID() string { return s.userID }

func (s *session) DisplayName() string { return s.userName }

// Accepting reports whether the dispatcher may start new work.
func (s *session) Accepting() bool {
	return s.state() == models.StateActive
}

func (s *session) Location() *models.LocationSample {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.LatestLocation == nil {
		return nil
	}
	loc := *s.data.LatestLocation
	return &loc
}

func (s *session) Notified(contactID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.data.NotifiedContactIDs[contactID]
	return ok
}

// Claim registers a pending dispatch unless the key is delivered or in
// flight, or the session has left Active.
func (s *session) Claim(d models.NotificationDispatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.State != models.StateActive {
		return false
	}

	// Alerts are deduplicated per contact across rounds
	if d.Kind == models.MessageAlert {
		if _, ok := s.data.NotifiedContactIDs[d.ContactID]; ok {
			return false
		}
	}

	key := d.Key()
	cur, exists := s.deliveries[key]
	if exists && cur.Status != models.DispatchFailed {
		return false
	}

	if !exists {
		s.order = append(s.order, key)
	}
	s.deliveries[key] = d
	s.data.Version++
	return true
}

// Record stores the outcome of an attempt. In-flight dispatches keep
// recording after the session closes.
func (s *session) Record(d models.NotificationDispatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := d.Key()
	if _, exists := s.deliveries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.deliveries[key] = d

	if d.Status == models.DispatchDelivered && d.Kind == models.MessageAlert {
		s.data.NotifiedContactIDs[d.ContactID] = struct{}{}
	}
	s.data.Version++
}
