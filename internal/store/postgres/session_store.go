package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/beacon/internal/models"
	"github.com/wolfeidau/beacon/internal/store"
)

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
	cfg  SessionStoreConfig
}

// NewSessionStore opens a pool, optionally migrates, and returns the store.
func NewSessionStore(ctx context.Context, cfg *SessionStoreConfig) (*SessionStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("session store config is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session store config: %w", err)
	}

	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &SessionStore{pool: pool, cfg: *cfg}, nil
}

// Close releases the connection pool.
func (s *SessionStore) Close() {
	s.pool.Close()
}

// Ping verifies connectivity for health checks.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *SessionStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.QueryTimeout)
}

// Save upserts the session row and its dispatch rows in one transaction.
// Rows with a newer version are left untouched.
func (s *SessionStore) Save(ctx context.Context, snap models.SessionSnapshot) error {
	if snap.ID == "" || snap.UserID == "" {
		return store.ErrInvalidSession
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	notified := snap.NotifiedContactIDs
	if notified == nil {
		notified = []string{}
	}

	result, err := tx.Exec(ctx, `
		INSERT INTO sos_sessions (
			session_id, user_id, state, trigger_type,
			created_at, activated_at, deactivated_at,
			latest_location, notified_contact_ids, client_ip, version, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW()
		)
		ON CONFLICT (session_id) DO UPDATE SET
			state = EXCLUDED.state,
			activated_at = EXCLUDED.activated_at,
			deactivated_at = EXCLUDED.deactivated_at,
			latest_location = EXCLUDED.latest_location,
			notified_contact_ids = EXCLUDED.notified_contact_ids,
			version = EXCLUDED.version,
			updated_at = NOW()
		WHERE sos_sessions.version <= EXCLUDED.version
	`,
		snap.ID,
		snap.UserID,
		string(snap.State),
		string(snap.TriggerType),
		snap.CreatedAt,
		snap.ActivatedAt,
		snap.DeactivatedAt,
		snap.LatestLocation,
		notified,
		snap.ClientIP,
		snap.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		log.Debug().
			Str("session_id", snap.ID).
			Int64("version", snap.Version).
			Msg("Skipped stale session snapshot")
		return nil
	}

	batch := &pgx.Batch{}
	for i, d := range snap.Deliveries {
		batch.Queue(`
			INSERT INTO sos_dispatches (
				session_id, dispatch_key, ordinal, contact_id, channel,
				kind, sequence, attempt, status, last_error, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
			)
			ON CONFLICT (session_id, dispatch_key) DO UPDATE SET
				attempt = EXCLUDED.attempt,
				status = EXCLUDED.status,
				last_error = EXCLUDED.last_error,
				updated_at = EXCLUDED.updated_at
		`,
			snap.ID,
			d.Key(),
			i,
			d.ContactID,
			d.Channel,
			string(d.Kind),
			d.Sequence,
			d.Attempt,
			string(d.Status),
			d.LastError,
			d.UpdatedAt,
		)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save dispatches: %w", mapPostgresError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("session_id", snap.ID).
		Str("state", string(snap.State)).
		Int64("version", snap.Version).
		Msg("Archived session")

	return nil
}

const selectSession = `
	SELECT
		session_id, user_id, state, trigger_type,
		created_at, activated_at, deactivated_at,
		latest_location, notified_contact_ids, client_ip, version
	FROM sos_sessions
`

// Get retrieves a session and its dispatches by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (models.SessionSnapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	snap, err := scanSession(s.pool.QueryRow(ctx, selectSession+` WHERE session_id = $1`, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SessionSnapshot{}, store.ErrSessionNotFound
		}
		return models.SessionSnapshot{}, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	if err := s.loadDispatches(ctx, &snap); err != nil {
		return models.SessionSnapshot{}, err
	}

	return snap, nil
}

// ListByUser returns a user's sessions, newest first.
func (s *SessionStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.SessionSnapshot, error) {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, selectSession+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", mapPostgresError(err))
	}

	snaps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.SessionSnapshot, error) {
		return scanSession(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", mapPostgresError(err))
	}

	for i := range snaps {
		if err := s.loadDispatches(ctx, &snaps[i]); err != nil {
			return nil, err
		}
	}

	return snaps, nil
}

func scanSession(row pgx.Row) (models.SessionSnapshot, error) {
	var (
		snap         models.SessionSnapshot
		state        string
		trigger      string
		notifiedList []string
	)

	err := row.Scan(
		&snap.ID,
		&snap.UserID,
		&state,
		&trigger,
		&snap.CreatedAt,
		&snap.ActivatedAt,
		&snap.DeactivatedAt,
		&snap.LatestLocation,
		&notifiedList,
		&snap.ClientIP,
		&snap.Version,
	)
	if err != nil {
		return models.SessionSnapshot{}, err
	}

	snap.State = models.State(state)
	snap.TriggerType = models.TriggerType(trigger)
	snap.NotifiedContactIDs = notifiedList
	if snap.NotifiedContactIDs == nil {
		snap.NotifiedContactIDs = []string{}
	}

	return snap, nil
}

func (s *SessionStore) loadDispatches(ctx context.Context, snap *models.SessionSnapshot) error {
	rows, err := s.pool.Query(ctx, `
		SELECT contact_id, channel, kind, sequence, attempt, status, last_error, updated_at
		FROM sos_dispatches
		WHERE session_id = $1
		ORDER BY ordinal
	`, snap.ID)
	if err != nil {
		return fmt.Errorf("failed to load dispatches: %w", mapPostgresError(err))
	}

	deliveries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.NotificationDispatch, error) {
		var (
			d      models.NotificationDispatch
			kind   string
			status string
		)
		err := row.Scan(&d.ContactID, &d.Channel, &kind, &d.Sequence, &d.Attempt, &status, &d.LastError, &d.UpdatedAt)
		d.SessionID = snap.ID
		d.Kind = models.MessageKind(kind)
		d.Status = models.DispatchStatus(status)
		return d, err
	})
	if err != nil {
		return fmt.Errorf("failed to scan dispatches: %w", mapPostgresError(err))
	}

	snap.Deliveries = deliveries
	snap.Failures = models.FailuresOf(deliveries)
	return nil
}
