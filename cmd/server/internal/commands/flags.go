package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/beacon/internal/dispatch"
	"github.com/wolfeidau/beacon/internal/sos"
	"github.com/wolfeidau/beacon/internal/store/postgres"
)

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"4"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"1"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"15m"`
	QueryTimeout    time.Duration `help:"timeout for a single archive statement" default:"5s"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"BEACON_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) config() *postgres.SessionStoreConfig {
	return &postgres.SessionStoreConfig{
		ConnString:      s.ConnString,
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		MaxConnLifetime: s.MaxConnLifetime,
		MaxConnIdleTime: s.MaxConnIdleTime,
		QueryTimeout:    s.QueryTimeout,
		AutoMigrate:     s.AutoMigrate,
	}
}

// RedisFlags configures the shared session registry.
type RedisFlags struct {
	Addrs    []string      `help:"Redis addresses (one for standalone, several for cluster)" default:"localhost:6379" env:"BEACON_REDIS_ADDRS"`
	Password string        `help:"Redis password" default:"" env:"BEACON_REDIS_PASSWORD"`
	DB       int           `help:"Redis database" default:"0" env:"BEACON_REDIS_DB"`
	Prefix   string        `help:"key prefix for session slots" default:"beacon:sos:slot:" env:"BEACON_REDIS_PREFIX"`
	SlotTTL  time.Duration `help:"reclaim slots abandoned by a crashed instance after this long, held slots are renewed (0 keeps them)" default:"0" env:"BEACON_REDIS_SLOT_TTL"`
}

func (r *RedisFlags) Validate() error {
	if len(r.Addrs) == 0 {
		return errors.New("at least one Redis address is required (--redis-addrs or BEACON_REDIS_ADDRS)")
	}
	if r.SlotTTL < 0 {
		return errors.New("redis slot TTL must not be negative")
	}
	if r.SlotTTL > 0 && r.SlotTTL < time.Second {
		return fmt.Errorf("redis slot TTL must be at least 1s, got %s", r.SlotTTL)
	}
	return nil
}

// NATSFlags configures the device location stream.
type NATSFlags struct {
	URL     string `help:"NATS server URL; empty disables the location stream" default:"" env:"BEACON_NATS_URL"`
	Subject string `help:"subject prefix, the user ID is appended" default:"sos.location." env:"BEACON_NATS_SUBJECT_PREFIX"`
}

// NotifyFlags selects how contacts are reached.
type NotifyFlags struct {
	WebhookURL    string `help:"SMS/voice gateway webhook URL; empty logs messages instead" default:"" env:"BEACON_NOTIFY_WEBHOOK_URL"`
	WebhookAPIKey string `help:"API key sent to the gateway" default:"" env:"BEACON_NOTIFY_WEBHOOK_API_KEY"`
	ContactsFile  string `help:"YAML file seeding emergency contacts" default:"" env:"BEACON_CONTACTS_FILE" type:"path"`
}

// SessionFlags configures session lifecycle and dispatch behaviour.
type SessionFlags struct {
	Countdown         time.Duration `help:"countdown for manual, voice and auto triggers" default:"3s" env:"BEACON_SESSION_COUNTDOWN"`
	TimerCountdown    time.Duration `help:"countdown for the emergency timer trigger" default:"30s" env:"BEACON_SESSION_TIMER_COUNTDOWN"`
	MaxCountdown      time.Duration `help:"largest countdown a caller may request" default:"10m" env:"BEACON_SESSION_MAX_COUNTDOWN"`
	MaxActiveDuration time.Duration `help:"expire active sessions after this long (0 disables)" default:"0" env:"BEACON_SESSION_MAX_ACTIVE"`
	HistoryLimit      int           `help:"maximum sessions returned by history" default:"50" env:"BEACON_SESSION_HISTORY_LIMIT"`

	MaxConcurrent  int64         `help:"maximum deliveries in flight" default:"8" env:"BEACON_DISPATCH_MAX_CONCURRENT"`
	AttemptTimeout time.Duration `help:"timeout for a single delivery attempt" default:"10s" env:"BEACON_DISPATCH_ATTEMPT_TIMEOUT"`
	MaxAttempts    uint          `help:"delivery attempts per contact including the first" default:"3" env:"BEACON_DISPATCH_MAX_ATTEMPTS"`
	InitialBackoff time.Duration `help:"delay before the first retry" default:"2s" env:"BEACON_DISPATCH_INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `help:"upper bound on retry delay" default:"30s" env:"BEACON_DISPATCH_MAX_BACKOFF"`
	UpdateInterval time.Duration `help:"coalescing window for location update messages (0 disables updates)" default:"30s" env:"BEACON_DISPATCH_UPDATE_INTERVAL"`
}

func (f *SessionFlags) config() sos.Config {
	return sos.Config{
		DefaultCountdown:  f.Countdown,
		TimerCountdown:    f.TimerCountdown,
		MaxCountdown:      f.MaxCountdown,
		MaxActiveDuration: f.MaxActiveDuration,
		HistoryLimit:      f.HistoryLimit,
		Dispatch: dispatch.Config{
			MaxConcurrent:          f.MaxConcurrent,
			AttemptTimeout:         f.AttemptTimeout,
			MaxAttempts:            f.MaxAttempts,
			InitialBackoff:         f.InitialBackoff,
			MaxBackoff:             f.MaxBackoff,
			LocationUpdateInterval: f.UpdateInterval,
		},
	}
}
