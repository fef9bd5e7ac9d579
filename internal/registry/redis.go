package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the key only when it still holds the caller's session.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key's TTL only while it still holds the caller's session.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisConfig configures the Redis-backed registry.
type RedisConfig struct {
	// Prefix is prepended to every slot key.
	// Default: "beacon:sos:slot:"
	Prefix string

	// TTL bounds how long a slot survives if the owning process dies without
	// releasing it. Held slots are renewed every TTL/3 so a live session
	// never loses its slot. Zero keeps slots until released.
	TTL time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *RedisConfig) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "beacon:sos:slot:"
	}
}

// RedisRegistry implements Registry on Redis so several engine instances can
// share the one-open-session-per-user rule. SET NX provides the per-user
// atomic reserve.
type RedisRegistry struct {
	client redis.UniversalClient
	cfg    RedisConfig

	mu     sync.Mutex
	leases map[string]lease // slot key -> renewal loop
	wg     sync.WaitGroup
}

type lease struct {
	sessionID string
	stop      context.CancelFunc
}

// NewRedisRegistry creates a registry backed by the given client.
func NewRedisRegistry(client redis.UniversalClient, cfg RedisConfig) *RedisRegistry {
	cfg.ApplyDefaults()
	return &RedisRegistry{
		client: client,
		cfg:    cfg,
		leases: make(map[string]lease),
	}
}

func (r *RedisRegistry) key(userID string) string {
	return r.cfg.Prefix + userID
}

// Reserve claims the slot for userID.
func (r *RedisRegistry) Reserve(ctx context.Context, userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return ErrInvalidKey
	}

	ok, err := r.client.SetNX(ctx, r.key(userID), sessionID, r.cfg.TTL).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve slot: %w", err)
	}
	if !ok {
		return ErrSlotTaken
	}

	r.startLease(userID, sessionID)

	log.Debug().Str("user_id", userID).Str("session_id", sessionID).Msg("Reserved registry slot")
	return nil
}

// Release frees the slot if it is held by sessionID.
func (r *RedisRegistry) Release(ctx context.Context, userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return ErrInvalidKey
	}

	r.stopLease(userID, sessionID)

	if err := releaseScript.Run(ctx, r.client, []string{r.key(userID)}, sessionID).Err(); err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}

	return nil
}

// Lookup returns the session holding the user's slot.
func (r *RedisRegistry) Lookup(ctx context.Context, userID string) (string, bool, error) {
	sessionID, err := r.client.Get(ctx, r.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to lookup slot: %w", err)
	}
	return sessionID, true, nil
}

// Renew extends the TTL of the user's slot while sessionID holds it. It
// reports false once the slot belongs to someone else or is gone.
func (r *RedisRegistry) Renew(ctx context.Context, userID, sessionID string) (bool, error) {
	if r.cfg.TTL <= 0 {
		return true, nil
	}

	n, err := renewScript.Run(ctx, r.client, []string{r.key(userID)}, sessionID, max(r.cfg.TTL.Milliseconds(), 1)).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to renew slot: %w", err)
	}
	return n == 1, nil
}

// Close stops every renewal loop. Slots still held expire after the TTL.
func (r *RedisRegistry) Close() {
	r.mu.Lock()
	for key, l := range r.leases {
		l.stop()
		delete(r.leases, key)
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *RedisRegistry) startLease(userID, sessionID string) {
	if r.cfg.TTL <= 0 {
		return
	}

	ctx, stop := context.WithCancel(context.Background())

	r.mu.Lock()
	if old, ok := r.leases[r.key(userID)]; ok {
		old.stop()
	}
	r.leases[r.key(userID)] = lease{sessionID: sessionID, stop: stop}
	r.mu.Unlock()

	r.wg.Add(1)
	go r.keepAlive(ctx, userID, sessionID)
}

func (r *RedisRegistry) stopLease(userID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.leases[r.key(userID)]; ok && l.sessionID == sessionID {
		l.stop()
		delete(r.leases, r.key(userID))
	}
}

func (r *RedisRegistry) keepAlive(ctx context.Context, userID, sessionID string) {
	defer r.wg.Done()

	ticker := time.NewTicker(max(r.cfg.TTL/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		held, err := r.Renew(ctx, userID, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Retried on the next tick, well before the TTL runs out
			log.Warn().Err(err).Str("user_id", userID).Str("session_id", sessionID).Msg("Failed to renew registry slot")
			continue
		}
		if !held {
			log.Warn().Str("user_id", userID).Str("session_id", sessionID).Msg("Registry slot lost, stopping renewal")
			r.stopLease(userID, sessionID)
			return
		}
	}
}
