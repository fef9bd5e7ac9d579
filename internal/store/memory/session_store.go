package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/wolfeidau/beacon/internal/models"
	"github.com/wolfeidau/beacon/internal/store"
)

// SessionStore implements store.SessionStore using in-memory storage.
// Data is lost on restart.
type SessionStore struct {
	mu sync.RWMutex

	sessions       map[string][]byte   // session_id -> encoded snapshot
	versions       map[string]int64    // session_id -> stored version
	sessionsByUser map[string][]string // user_id -> []session_id
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:       make(map[string][]byte),
		versions:       make(map[string]int64),
		sessionsByUser: make(map[string][]string),
	}
}

// Save stores an encoded copy so callers can't mutate the archive through
// shared slices or pointers.
func (s *SessionStore) Save(ctx context.Context, snap models.SessionSnapshot) error {
	if snap.ID == "" || snap.UserID == "" {
		return store.ErrInvalidSession
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.versions[snap.ID]
	if exists && snap.Version < current {
		return nil
	}

	if !exists {
		s.sessionsByUser[snap.UserID] = append(s.sessionsByUser[snap.UserID], snap.ID)
	}
	s.sessions[snap.ID] = raw
	s.versions[snap.ID] = snap.Version

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, exists := s.sessions[sessionID]
	if !exists {
		return models.SessionSnapshot{}, store.ErrSessionNotFound
	}

	var snap models.SessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return models.SessionSnapshot{}, err
	}
	return snap, nil
}

// ListByUser returns up to limit sessions for the user, newest first.
// A limit of zero or less returns all of them.
func (s *SessionStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.SessionSnapshot, error) {
	s.mu.RLock()
	ids := slices.Clone(s.sessionsByUser[userID])
	s.mu.RUnlock()

	out := make([]models.SessionSnapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}

	slices.SortFunc(out, func(a, b models.SessionSnapshot) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
