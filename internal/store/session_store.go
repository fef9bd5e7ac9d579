package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/beacon/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSession  = errors.New("session requires id and user id")
)

// SessionStore archives SOS session snapshots. It is the durable record of
// sessions that reached Active; the engine keeps live state in memory.
type SessionStore interface {
	// Save upserts the snapshot. A snapshot with a lower version than the
	// stored one is ignored, so out of order writes converge on the newest.
	Save(ctx context.Context, snap models.SessionSnapshot) error

	// Get returns the archived snapshot for a session.
	Get(ctx context.Context, sessionID string) (models.SessionSnapshot, error)

	// ListByUser returns a user's sessions, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]models.SessionSnapshot, error)
}
