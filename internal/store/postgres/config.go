package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName tags archive connections in pg_stat_activity.
const ApplicationName = "beacon-archive"

// SessionStoreConfig configures the PostgreSQL session archive and its pool.
//
// The archive sees one short upsert per session transition and dispatch
// outcome, and History reads. The pool is sized for that trickle rather
// than for request traffic.
type SessionStoreConfig struct {
	// ConnString is the PostgreSQL connection string.
	ConnString string

	// MaxConns caps concurrent archive writes and history reads.
	// Default: 4
	MaxConns int32
	// MinConns keeps connections warm so the first archive write after an
	// idle period does not pay for a handshake. Default: 1
	MinConns int32
	// MaxConnLifetime default: 1h
	MaxConnLifetime time.Duration
	// MaxConnIdleTime default: 15m
	MaxConnIdleTime time.Duration
	// HealthCheckPeriod default: 1m
	HealthCheckPeriod time.Duration
	// ConnectTimeout default: 5s
	ConnectTimeout time.Duration

	// QueryTimeout bounds a single archive statement. An archive write that
	// times out is logged and never fails a transition. Default: 5s
	QueryTimeout time.Duration

	// HistoryLimit caps ListByUser when the caller passes no limit.
	// Default: 100
	HistoryLimit int

	// AutoMigrate applies embedded migrations when the store is opened.
	AutoMigrate bool
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *SessionStoreConfig) ApplyDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 4
	}
	if c.MinConns == 0 {
		c.MinConns = 1
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 15 * time.Minute
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 5 * time.Second
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 100
	}
}

// Validate checks that the configuration is valid.
func (c *SessionStoreConfig) Validate() error {
	if c.ConnString == "" {
		return errors.New("connection string is required")
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("max conns must be >= 1, got %d", c.MaxConns)
	}
	if c.MinConns < 0 || c.MinConns > c.MaxConns {
		return fmt.Errorf("min conns (%d) must be between 0 and max conns (%d)", c.MinConns, c.MaxConns)
	}
	if c.QueryTimeout < 0 || c.ConnectTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("history limit must be >= 1, got %d", c.HistoryLimit)
	}
	return nil
}

// poolConfig translates the archive settings into a pgx pool configuration.
func (c *SessionStoreConfig) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pc.MaxConns = c.MaxConns
	pc.MinConns = c.MinConns
	pc.MaxConnLifetime = c.MaxConnLifetime
	pc.MaxConnIdleTime = c.MaxConnIdleTime
	pc.HealthCheckPeriod = c.HealthCheckPeriod
	pc.ConnConfig.ConnectTimeout = c.ConnectTimeout

	if _, ok := pc.ConnConfig.RuntimeParams["application_name"]; !ok {
		pc.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}

	return pc, nil
}
