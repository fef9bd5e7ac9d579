package sos

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/beacon/internal/models"
	"github.com/wolfeidau/beacon/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	dropNotActive = "session_not_active"
	dropStale     = "stale"
)

// IngestLocation offers a sample to a session. It returns true when the
// sample became the session's latest location. Samples are dropped unless
// the session is Active and the sample is strictly newer than the one held.
func (e *Engine) IngestLocation(ctx context.Context, sessionID string, sample models.LocationSample) (bool, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		// Sessions archived by an earlier process are known but closed
		if _, serr := e.store.Get(ctx, sessionID); serr == nil {
			return false, nil
		} else if !errors.Is(serr, store.ErrSessionNotFound) {
			log.Warn().Err(serr).Str("session_id", sessionID).Msg("Failed to check session archive")
		}
		return false, err
	}

	if err := validateSample(sample); err != nil {
		return false, err
	}

	return e.ingest(ctx, s, sample), nil
}

func (e *Engine) ingest(ctx context.Context, s *session, sample models.LocationSample) bool {
	s.mu.Lock()
	reason := s.acceptLocked(sample)
	coalescer := s.coalescer
	s.mu.Unlock()

	if reason != "" {
		e.metrics.LocationsDroppedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		log.Debug().
			Str("session_id", s.id).
			Time("captured_at", sample.CapturedAt).
			Str("reason", reason).
			Msg("Dropped location sample")
		return false
	}

	e.metrics.LocationsAcceptedTotal.Add(ctx, 1)

	if coalescer != nil {
		// Stopped coalescers belong to closed sessions; nothing to send
		_ = coalescer.Add()
	}

	return true
}

// acceptLocked returns the drop reason, or "" when the sample was stored.
// Must be called with lock held
func (s *session) acceptLocked(sample models.LocationSample) string {
	if s.data.State != models.StateActive {
		return dropNotActive
	}

	if cur := s.data.LatestLocation; cur != nil && !sample.CapturedAt.After(cur.CapturedAt) {
		return dropStale
	}

	loc := sample
	s.data.LatestLocation = &loc
	s.data.Version++
	return ""
}

// track subscribes the session to the location source for the user.
func (e *Engine) track(s *session) {
	if e.source == nil {
		return
	}

	cancel, err := e.source.OnSample(s.userID, func(sample models.LocationSample) {
		if err := validateSample(sample); err != nil {
			log.Warn().Err(err).Str("session_id", s.id).Msg("Ignoring invalid streamed location")
			return
		}
		e.ingest(context.Background(), s, sample)
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", s.id).Str("user_id", s.userID).Msg("Failed to subscribe to location source")
		return
	}

	s.mu.Lock()
	if s.data.State != models.StateActive {
		// Closed while subscribing
		s.mu.Unlock()
		cancel()
		return
	}
	s.unsubscribe = cancel
	s.mu.Unlock()
}

func validateSample(sample models.LocationSample) error {
	if sample.CapturedAt.IsZero() {
		return invalidArgument("location sample requires captured_at")
	}
	if sample.Latitude < -90 || sample.Latitude > 90 {
		return invalidArgument("latitude %f out of range", sample.Latitude)
	}
	if sample.Longitude < -180 || sample.Longitude > 180 {
		return invalidArgument("longitude %f out of range", sample.Longitude)
	}
	if sample.Accuracy < 0 {
		return invalidArgument("accuracy must not be negative")
	}
	return nil
}
