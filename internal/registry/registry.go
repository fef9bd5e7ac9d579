// Package registry tracks which users hold an open SOS session.
//
// A slot is held from raise until the session is cancelled, deactivated or
// expires. At most one slot exists per user; different users never contend.
package registry

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrSlotTaken is returned by Reserve when the user already holds a slot.
	ErrSlotTaken = errors.New("registry slot already taken")
	// ErrInvalidKey is returned for empty user or session identifiers.
	ErrInvalidKey = errors.New("user and session identifiers are required")
)

// Registry enforces at most one open session per user.
type Registry interface {
	// Reserve atomically claims the user's slot for sessionID.
	Reserve(ctx context.Context, userID, sessionID string) error
	// Release frees the slot if it is held by sessionID. It is idempotent.
	Release(ctx context.Context, userID, sessionID string) error
	// Lookup returns the session holding the user's slot, if any.
	Lookup(ctx context.Context, userID string) (string, bool, error)
}

// slot is the per-user entry; its mutex serializes mutation for that user only.
type slot struct {
	mu        sync.Mutex
	sessionID string
	refs      int
}

// MemoryRegistry implements Registry with a keyed, lock-per-user map.
// The outer mutex only guards the index of slots and is never held while a
// slot is being mutated.
type MemoryRegistry struct {
	mu    sync.Mutex
	slots map[string]*slot // user ID -> slot
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		slots: make(map[string]*slot),
	}
}

// acquire returns the user's slot, creating it when absent, and pins it so
// it is not removed from the index while in use.
func (r *MemoryRegistry) acquire(userID string) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[userID]
	if !ok {
		s = &slot{}
		r.slots[userID] = s
	}
	s.refs++
	return s
}

// unpin drops the pin taken by acquire and removes empty, unused slots.
func (r *MemoryRegistry) unpin(userID string, s *slot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.refs--
	if s.refs == 0 && s.sessionID == "" {
		delete(r.slots, userID)
	}
}

// Reserve claims the slot for userID.
func (r *MemoryRegistry) Reserve(ctx context.Context, userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return ErrInvalidKey
	}

	s := r.acquire(userID)
	s.mu.Lock()

	if s.sessionID != "" {
		s.mu.Unlock()
		r.unpin(userID, s)
		return ErrSlotTaken
	}
	s.sessionID = sessionID

	s.mu.Unlock()
	r.unpin(userID, s)
	return nil
}

// Release frees the slot if it is held by sessionID.
func (r *MemoryRegistry) Release(ctx context.Context, userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return ErrInvalidKey
	}

	s := r.acquire(userID)
	s.mu.Lock()

	if s.sessionID == sessionID {
		s.sessionID = ""
	}

	s.mu.Unlock()
	r.unpin(userID, s)
	return nil
}

// Lookup returns the session holding the user's slot.
func (r *MemoryRegistry) Lookup(ctx context.Context, userID string) (string, bool, error) {
	s := r.acquire(userID)
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	r.unpin(userID, s)

	return sessionID, sessionID != "", nil
}

// Len returns the number of held slots.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.slots {
		s.mu.Lock()
		if s.sessionID != "" {
			n++
		}
		s.mu.Unlock()
	}
	return n
}
