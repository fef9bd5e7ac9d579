// Package sos implements the SOS session lifecycle: raise, countdown,
// activation, location tracking, alert dispatch and deactivation.
package sos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/beacon/internal/contacts"
	"github.com/wolfeidau/beacon/internal/countdown"
	"github.com/wolfeidau/beacon/internal/dispatch"
	"github.com/wolfeidau/beacon/internal/location"
	"github.com/wolfeidau/beacon/internal/models"
	"github.com/wolfeidau/beacon/internal/notify"
	"github.com/wolfeidau/beacon/internal/registry"
	"github.com/wolfeidau/beacon/internal/store"
	"github.com/wolfeidau/beacon/internal/store/memory"
	"github.com/wolfeidau/beacon/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config tunes session lifecycle behaviour.
type Config struct {
	// DefaultCountdown applies to manual, voice and auto triggers when the
	// caller does not pick a countdown.
	DefaultCountdown time.Duration
	// TimerCountdown applies to the emergency timer trigger.
	TimerCountdown time.Duration
	// MaxCountdown bounds caller supplied countdowns.
	MaxCountdown time.Duration
	// MaxActiveDuration closes an Active session as Expired. Zero disables it.
	MaxActiveDuration time.Duration
	// HistoryLimit caps History results.
	HistoryLimit int

	Dispatch dispatch.Config
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultCountdown: 3 * time.Second,
		TimerCountdown:   30 * time.Second,
		MaxCountdown:     10 * time.Minute,
		HistoryLimit:     50,
		Dispatch:         dispatch.DefaultConfig(),
	}
}

// ApplyDefaults fills in unset limits. Countdowns are left alone because
// zero means activate immediately.
func (c *Config) ApplyDefaults() {
	if c.MaxCountdown == 0 {
		c.MaxCountdown = 10 * time.Minute
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 50
	}
	c.Dispatch.ApplyDefaults()
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DefaultCountdown < 0 || c.TimerCountdown < 0 {
		return errors.New("countdowns must not be negative")
	}
	if c.DefaultCountdown > c.MaxCountdown || c.TimerCountdown > c.MaxCountdown {
		return fmt.Errorf("default countdowns must not exceed MaxCountdown (%s)", c.MaxCountdown)
	}
	if c.MaxActiveDuration < 0 {
		return errors.New("MaxActiveDuration must not be negative")
	}
	return c.Dispatch.Validate()
}

// Deps are the collaborators the engine consumes.
type Deps struct {
	Registry  registry.Registry
	Directory contacts.Directory
	Channel   notify.Channel
	// Source is optional; without it locations arrive only via IngestLocation.
	Source location.Source
	// Store is optional; defaults to an in-memory archive.
	Store store.SessionStore
}

// Engine owns all live SOS sessions.
type Engine struct {
	cfg        Config
	registry   registry.Registry
	directory  contacts.Directory
	source     location.Source
	store      store.SessionStore
	dispatcher *dispatch.Dispatcher
	metrics    *telemetry.Metrics
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session // session ID -> live or retained session

	closed atomic.Bool
}

// NewEngine wires an engine from its collaborators.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	if deps.Registry == nil {
		return nil, errors.New("session registry is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("contact directory is required")
	}

	dispatcher, err := dispatch.New(deps.Channel, cfg.Dispatch)
	if err != nil {
		return nil, err
	}

	archive := deps.Store
	if archive == nil {
		archive = memory.NewSessionStore()
	}

	return &Engine{
		cfg:        cfg,
		registry:   deps.Registry,
		directory:  deps.Directory,
		source:     deps.Source,
		store:      archive,
		dispatcher: dispatcher,
		metrics:    telemetry.GetMetrics(),
		now:        time.Now,
		sessions:   make(map[string]*session),
	}, nil
}

// RaiseOption customises a Raise call.
type RaiseOption func(*raiseOptions)

type raiseOptions struct {
	clientIP string
	userName string
}

// WithClientIP records the caller's address on the session for audit.
func WithClientIP(ip string) RaiseOption {
	return func(o *raiseOptions) {
		o.clientIP = ip
	}
}

// WithUserName signs alerts with the user's display name. Without it
// alerts are unsigned; the user ID is never shown to contacts.
func WithUserName(name string) RaiseOption {
	return func(o *raiseOptions) {
		o.userName = strings.TrimSpace(name)
	}
}

// DefaultCountdown returns the configured countdown for a trigger type.
func (e *Engine) DefaultCountdown(trigger models.TriggerType) time.Duration {
	if trigger == models.TriggerTimer {
		return e.cfg.TimerCountdown
	}
	return e.cfg.DefaultCountdown
}

// Raise opens a session in CountingDown and returns its ID. A zero
// countdown activates the session before Raise returns. Raise fails with a
// *ConflictError when the user already holds an open session.
func (e *Engine) Raise(ctx context.Context, userID string, trigger models.TriggerType, countdownFor time.Duration, opts ...RaiseOption) (string, error) {
	if e.closed.Load() {
		return "", ErrClosed
	}

	if userID == "" {
		return "", invalidArgument("user id is required")
	}
	if !models.ValidUserID(userID) {
		return "", invalidArgument("user id %q may only contain letters, digits, '-' and '_'", userID)
	}
	if !trigger.Valid() {
		return "", invalidArgument("unknown trigger type %q", trigger)
	}
	if countdownFor < 0 || countdownFor > e.cfg.MaxCountdown {
		return "", invalidArgument("countdown %s must be between 0 and %s", countdownFor, e.cfg.MaxCountdown)
	}

	var ro raiseOptions
	for _, opt := range opts {
		opt(&ro)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	sessionID := id.String()

	if err := e.registry.Reserve(ctx, userID, sessionID); err != nil {
		if errors.Is(err, registry.ErrSlotTaken) {
			e.metrics.SessionConflictsTotal.Add(ctx, 1)

			existing, _, lerr := e.registry.Lookup(ctx, userID)
			if lerr != nil {
				log.Warn().Err(lerr).Str("user_id", userID).Msg("Failed to look up conflicting session")
			}
			return "", &ConflictError{UserID: userID, SessionID: existing}
		}
		return "", fmt.Errorf("failed to reserve session slot: %w", err)
	}

	s := newSession(sessionID, userID, trigger, ro.clientIP, e.now())
	s.userName = ro.userName

	e.mu.Lock()
	e.sessions[sessionID] = s
	e.mu.Unlock()

	e.metrics.SessionsRaisedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", string(trigger))))
	log.Info().
		Str("session_id", sessionID).
		Str("user_id", userID).
		Str("trigger", string(trigger)).
		Dur("countdown", countdownFor).
		Msg("SOS raised")

	if countdownFor == 0 {
		if err := e.activate(ctx, s, EventExpire); err != nil {
			return "", err
		}
		return sessionID, nil
	}

	// Held across Start so the callback observes the handle
	s.mu.Lock()
	s.countdown = countdown.Start(countdownFor, func() { e.expire(s) })
	s.mu.Unlock()

	return sessionID, nil
}

// TriggerNow activates a counting down session without waiting for the countdown.
func (e *Engine) TriggerNow(ctx context.Context, sessionID string) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}
	return e.activate(ctx, s, EventTriggerNow)
}

// Cancel abandons a counting down session. No contact is ever notified and
// the session is discarded.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.apply(EventCancel, e.now()); err != nil {
		s.mu.Unlock()
		return err
	}
	s.countdown.Cancel()
	s.countdown = nil
	s.mu.Unlock()

	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()

	e.release(ctx, s)

	e.metrics.SessionsCancelledTotal.Add(ctx, 1)
	log.Info().
		Str("session_id", sessionID).
		Str("user_id", s.userID).
		Msg("SOS cancelled during countdown")

	return nil
}

// Deactivate resolves an active session. In-flight deliveries complete but
// no new ones start.
func (e *Engine) Deactivate(ctx context.Context, sessionID string) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}
	return e.closeSession(ctx, s, EventDeactivate)
}

// GetSessionState returns a snapshot of a live, retained or archived session.
func (e *Engine) GetSessionState(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	if s, err := e.lookup(sessionID); err == nil {
		return s.snapshot(), nil
	}

	snap, err := e.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return models.SessionSnapshot{}, ErrNotFound
		}
		return models.SessionSnapshot{}, fmt.Errorf("failed to load session: %w", err)
	}
	return snap, nil
}

// ActiveSession returns the user's open session.
func (e *Engine) ActiveSession(ctx context.Context, userID string) (models.SessionSnapshot, error) {
	sessionID, ok, err := e.registry.Lookup(ctx, userID)
	if err != nil {
		return models.SessionSnapshot{}, fmt.Errorf("failed to look up session slot: %w", err)
	}
	if !ok {
		return models.SessionSnapshot{}, ErrNotFound
	}
	return e.GetSessionState(ctx, sessionID)
}

// History returns the user's archived sessions, newest first.
func (e *Engine) History(ctx context.Context, userID string) ([]models.SessionSnapshot, error) {
	if userID == "" {
		return nil, invalidArgument("user id is required")
	}

	snaps, err := e.store.ListByUser(ctx, userID, e.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return snaps, nil
}

// Close stops timers and subscriptions, then waits for in-flight
// deliveries until ctx is done.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.RLock()
	live := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		live = append(live, s)
	}
	e.mu.RUnlock()

	for _, s := range live {
		s.mu.Lock()
		s.countdown.Cancel()
		s.lifetime.Cancel()
		coalescer, unsubscribe := s.coalescer, s.unsubscribe
		s.coalescer, s.unsubscribe = nil, nil
		s.mu.Unlock()

		if coalescer != nil {
			coalescer.Stop()
		}
		if unsubscribe != nil {
			unsubscribe()
		}
	}

	return e.dispatcher.Close(ctx)
}

func (e *Engine) lookup(sessionID string) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// activate moves a counting down session to Active and starts the first
// dispatch round.
func (e *Engine) activate(ctx context.Context, s *session, event Event) error {
	s.mu.Lock()
	if err := s.apply(event, e.now()); err != nil {
		s.mu.Unlock()
		return err
	}

	s.countdown.Cancel()
	s.countdown = nil

	if e.cfg.MaxActiveDuration > 0 {
		s.lifetime = countdown.Start(e.cfg.MaxActiveDuration, func() { e.timeout(s) })
	}

	if interval := e.cfg.Dispatch.LocationUpdateInterval; interval > 0 {
		s.coalescer = dispatch.NewCoalescer(s.id, interval, func(seq int64, changes int) {
			e.flushUpdates(s, seq)
		})
	}
	s.mu.Unlock()

	e.metrics.SessionsActivatedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", string(event))))
	e.metrics.ActiveSessions.Add(ctx, 1)
	log.Info().
		Str("session_id", s.id).
		Str("user_id", s.userID).
		Str("event", string(event)).
		Msg("SOS active")

	list, err := e.directory.ListContacts(ctx, s.userID)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.id).Str("user_id", s.userID).Msg("Failed to list emergency contacts")
	}
	if len(list) == 0 {
		log.Warn().Str("session_id", s.id).Str("user_id", s.userID).Msg("No emergency contacts to notify")
	}
	s.setContacts(list)

	e.track(s)
	e.dispatcher.Alert(ctx, e.ledger(s), list)
	e.archive(ctx, s)

	return nil
}

// expire is the countdown callback. Losing a race with Cancel or
// TriggerNow is expected and leaves the session alone.
func (e *Engine) expire(s *session) {
	if err := e.activate(context.Background(), s, EventExpire); err != nil {
		log.Debug().Err(err).Str("session_id", s.id).Msg("Countdown elapsed after session left countdown")
	}
}

// timeout is the lifetime callback for active sessions.
func (e *Engine) timeout(s *session) {
	if err := e.closeSession(context.Background(), s, EventTimeout); err != nil {
		log.Debug().Err(err).Str("session_id", s.id).Msg("Lifetime elapsed after session closed")
	}
}

// closeSession moves an active session to a terminal state.
func (e *Engine) closeSession(ctx context.Context, s *session, event Event) error {
	s.mu.Lock()
	if err := s.apply(event, e.now()); err != nil {
		s.mu.Unlock()
		return err
	}

	lifetime := s.lifetime
	coalescer, unsubscribe := s.coalescer, s.unsubscribe
	s.lifetime, s.coalescer, s.unsubscribe = nil, nil, nil
	state := s.data.State
	s.mu.Unlock()

	lifetime.Cancel()
	if coalescer != nil {
		coalescer.Stop()
	}
	if unsubscribe != nil {
		unsubscribe()
	}

	e.release(ctx, s)

	e.metrics.ActiveSessions.Add(ctx, -1)
	if state == models.StateExpired {
		e.metrics.SessionsExpiredTotal.Add(ctx, 1)
	} else {
		e.metrics.SessionsDeactivatedTotal.Add(ctx, 1)
	}

	log.Info().
		Str("session_id", s.id).
		Str("user_id", s.userID).
		Str("state", string(state)).
		Msg("SOS closed")

	e.archive(ctx, s)
	return nil
}

func (e *Engine) flushUpdates(s *session, seq int64) {
	e.dispatcher.Update(context.Background(), e.ledger(s), s.contactsSnapshot(), seq)
}

// release frees the user's registry slot. Failures are logged; a
// configured Redis slot TTL reclaims anything left behind.
func (e *Engine) release(ctx context.Context, s *session) {
	if err := e.registry.Release(context.WithoutCancel(ctx), s.userID, s.id); err != nil {
		log.Error().Err(err).Str("session_id", s.id).Str("user_id", s.userID).Msg("Failed to release session slot")
	}
}

// archive writes the session snapshot to the store. Archive failures never
// fail a transition.
func (e *Engine) archive(ctx context.Context, s *session) {
	snap := s.snapshot()
	if err := e.store.Save(context.WithoutCancel(ctx), snap); err != nil {
		e.metrics.ArchiveErrorsTotal.Add(ctx, 1)
		log.Error().Err(err).Str("session_id", s.id).Int64("version", snap.Version).Msg("Failed to archive session")
	}
}

// ledger wraps the session so terminal dispatch outcomes are archived.
func (e *Engine) ledger(s *session) dispatch.Ledger {
	return &archivingLedger{session: s, engine: e}
}

type archivingLedger struct {
	*session
	engine *Engine
}

func (l *archivingLedger) Record(d models.NotificationDispatch) {
	l.session.Record(d)
	if d.Status != models.DispatchPending {
		l.engine.archive(context.Background(), l.session)
	}
}
