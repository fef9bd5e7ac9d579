// Package dispatch fans SOS alerts out to emergency contacts with bounded
// concurrency, per-attempt timeouts, retry and per-contact deduplication.
package dispatch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/beacon/internal/models"
	"github.com/wolfeidau/beacon/internal/notify"
	"github.com/wolfeidau/beacon/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"
)

// Config tunes the dispatcher.
type Config struct {
	// MaxConcurrent bounds attempts in flight across all sessions.
	MaxConcurrent int64
	// AttemptTimeout bounds a single Deliver call.
	AttemptTimeout time.Duration
	// MaxAttempts is the total number of attempts per dispatch, including the first.
	MaxAttempts uint
	// InitialBackoff and MaxBackoff shape the exponential retry delay.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// LocationUpdateInterval coalesces location changes into update rounds.
	// Zero disables location updates.
	LocationUpdateInterval time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:          8,
		AttemptTimeout:         10 * time.Second,
		MaxAttempts:            3,
		InitialBackoff:         2 * time.Second,
		MaxBackoff:             30 * time.Second,
		LocationUpdateInterval: 30 * time.Second,
	}
}

// ApplyDefaults fills in zero values. LocationUpdateInterval is left alone
// because zero is meaningful.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.AttemptTimeout == 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = d.MaxBackoff
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("MaxConcurrent must be >= 1, got %d", c.MaxConcurrent)
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("AttemptTimeout must be > 0, got %s", c.AttemptTimeout)
	}
	if c.MaxAttempts < 1 {
		return errors.New("MaxAttempts must be >= 1")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("MaxBackoff (%s) must be >= InitialBackoff (%s)", c.MaxBackoff, c.InitialBackoff)
	}
	if c.LocationUpdateInterval < 0 {
		return fmt.Errorf("LocationUpdateInterval must be >= 0, got %s", c.LocationUpdateInterval)
	}
	return nil
}

// Ledger is the dispatcher's view of a session. Implementations must be
// safe for concurrent use; every method is called without dispatcher locks.
type Ledger interface {
	SessionID() string
	UserID() string
	// DisplayName is the name the user signs alerts with, or empty.
	DisplayName() string
	// Accepting reports whether new dispatches may start.
	Accepting() bool
	// Location returns the freshest accepted sample, or nil.
	Location() *models.LocationSample
	// Notified reports whether the contact has a delivered alert.
	Notified(contactID string) bool
	// Claim registers a pending dispatch. It returns false when the key is
	// already delivered or in flight.
	Claim(d models.NotificationDispatch) bool
	// Record stores the latest state of a claimed dispatch.
	Record(d models.NotificationDispatch)
}

// Dispatcher delivers alert and location update rounds.
type Dispatcher struct {
	cfg     Config
	channel notify.Channel
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	metrics *telemetry.Metrics
}

// New creates a dispatcher delivering through channel.
func New(channel notify.Channel, cfg Config) (*Dispatcher, error) {
	if channel == nil {
		return nil, errors.New("notification channel is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatch config: %w", err)
	}

	return &Dispatcher{
		cfg:     cfg,
		channel: channel,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		metrics: telemetry.GetMetrics(),
	}, nil
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Alert starts an alert round for every contact not yet notified and
// returns without waiting for delivery.
func (d *Dispatcher) Alert(ctx context.Context, l Ledger, contacts []models.EmergencyContact) {
	d.startRound(ctx, l, contacts, models.MessageAlert, 0)
}

// Update starts a location update round for contacts already notified.
func (d *Dispatcher) Update(ctx context.Context, l Ledger, contacts []models.EmergencyContact, seq int64) {
	d.metrics.LocationUpdatesTotal.Add(ctx, 1)
	d.startRound(ctx, l, contacts, models.MessageLocationUpdate, seq)
}

// Wait blocks until every round and attempt has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close waits for in-flight dispatches or until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher did not drain: %w", ctx.Err())
	}
}

func (d *Dispatcher) startRound(ctx context.Context, l Ledger, contacts []models.EmergencyContact, kind models.MessageKind, seq int64) {
	if !l.Accepting() {
		return
	}

	// Dispatches outlive the request that triggered them.
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go d.round(ctx, l, PrimaryFirst(contacts), kind, seq)
}

func (d *Dispatcher) round(ctx context.Context, l Ledger, contacts []models.EmergencyContact, kind models.MessageKind, seq int64) {
	defer d.wg.Done()

	for _, contact := range contacts {
		if kind == models.MessageLocationUpdate && !l.Notified(contact.ID) {
			continue
		}

		// The semaphore is FIFO so the primary contact goes out first.
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return
		}

		if !l.Accepting() {
			d.sem.Release(1)
			log.Debug().
				Str("session_id", l.SessionID()).
				Str("kind", string(kind)).
				Msg("Session closed, abandoning dispatch round")
			return
		}

		rec := models.NotificationDispatch{
			SessionID: l.SessionID(),
			ContactID: contact.ID,
			Channel:   d.channel.Name(),
			Kind:      kind,
			Sequence:  seq,
			Status:    models.DispatchPending,
			UpdatedAt: time.Now(),
		}
		if !l.Claim(rec) {
			d.sem.Release(1)
			continue
		}

		// The slot acquired here is handed to the first attempt
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(ctx, l, contact, rec)
		}()
	}
}

// deliver runs the attempts for one claimed dispatch. The caller holds a
// semaphore slot for the first attempt; later attempts take their own, so a
// contact waiting out a backoff holds no slot.
func (d *Dispatcher) deliver(ctx context.Context, l Ledger, contact models.EmergencyContact, rec models.NotificationDispatch) {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     d.cfg.InitialBackoff,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         d.cfg.MaxBackoff,
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", string(rec.Kind)),
		attribute.String("channel", rec.Channel),
	)

	held := true
	op := func() (struct{}, error) {
		if !held {
			if err := d.sem.Acquire(ctx, 1); err != nil {
				return struct{}{}, backoff.Permanent(err)
			}
		}
		held = false
		defer d.sem.Release(1)

		rec.Attempt++

		// Rebuilt on every attempt so retries carry the freshest location
		msg := buildMessage(l, contact, rec.Kind, rec.Sequence)

		start := time.Now()
		err := d.attempt(ctx, contact, msg)
		d.metrics.DispatchAttemptsTotal.Add(ctx, 1, attrs)
		d.metrics.DispatchAttemptDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

		if err != nil {
			rec.LastError = err.Error()
			rec.UpdatedAt = time.Now()
			l.Record(rec)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().
				Err(err).
				Str("session_id", rec.SessionID).
				Str("contact_id", rec.ContactID).
				Str("kind", string(rec.Kind)).
				Int("attempt", rec.Attempt).
				Dur("next_retry", next).
				Msg("Delivery attempt failed, will retry")
		}),
	)

	if held {
		d.sem.Release(1)
	}

	rec.UpdatedAt = time.Now()

	if err != nil {
		rec.Status = models.DispatchFailed
		rec.LastError = err.Error()
		l.Record(rec)

		d.metrics.DispatchFailuresTotal.Add(ctx, 1, attrs)
		log.Error().
			Err(err).
			Str("session_id", rec.SessionID).
			Str("contact_id", rec.ContactID).
			Str("kind", string(rec.Kind)).
			Int("attempts", rec.Attempt).
			Msg("Delivery failed permanently")
		return
	}

	rec.Status = models.DispatchDelivered
	rec.LastError = ""
	l.Record(rec)

	d.metrics.DispatchDeliveredTotal.Add(ctx, 1, attrs)
	log.Info().
		Str("session_id", rec.SessionID).
		Str("contact_id", rec.ContactID).
		Str("kind", string(rec.Kind)).
		Int("attempts", rec.Attempt).
		Msg("Delivered message to contact")
}

// attempt runs one Deliver call under the attempt timeout. A channel that
// ignores its context is abandoned when the timeout fires.
func (d *Dispatcher) attempt(ctx context.Context, contact models.EmergencyContact, msg notify.Message) error {
	actx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.channel.Deliver(actx, contact, msg)
	}()

	select {
	case err := <-errCh:
		return err
	case <-actx.Done():
		return fmt.Errorf("attempt timed out after %s: %w", d.cfg.AttemptTimeout, actx.Err())
	}
}

// PrimaryFirst returns a copy of contacts with the primary contact moved to
// the front. The relative order of the rest is kept.
func PrimaryFirst(contacts []models.EmergencyContact) []models.EmergencyContact {
	out := slices.Clone(contacts)
	slices.SortStableFunc(out, func(a, b models.EmergencyContact) int {
		return cmp.Compare(rank(a), rank(b))
	})
	return out
}

func rank(c models.EmergencyContact) int {
	if c.IsPrimary {
		return 0
	}
	return 1
}
