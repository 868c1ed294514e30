// ABOUTME: Redis-backed lock store using SET NX and owner-checked Lua scripts
// ABOUTME: Lets multiple supportd instances share one source of truth for ownership

package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "supportd:conv-lock:"

// renewScript extends the TTL only while the caller still owns the key.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the key only while the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements Store on a shared Redis instance. SET NX provides
// the atomic check-and-set for acquisition; renew and release are Lua
// scripts so the owner check and the mutation happen in one step (never
// read-then-write, contenders would race).
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}

	logger.Info("redis lock store connected", "addr", addr, "db", db)
	return &RedisStore{
		client: client,
		logger: logger.With("component", "lockstore"),
	}, nil
}

func lockKey(conversationID string) string {
	return keyPrefix + conversationID
}

// Acquire takes the lock if free or expired. A re-acquire by the current
// owner refreshes the TTL and is reported as granted.
func (s *RedisStore) Acquire(ctx context.Context, conversationID, operatorID string, ttl time.Duration) (*Acquisition, error) {
	key := lockKey(conversationID)

	// Two attempts: the entry can expire between a failed SETNX and the
	// owner lookup, in which case the retry wins the now-free lock.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, key, operatorID, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock for %s: %w", conversationID, err)
		}
		if ok {
			return &Acquisition{Granted: true}, nil
		}

		owner, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue // expired between SETNX and GET
		}
		if err != nil {
			return nil, fmt.Errorf("reading lock owner for %s: %w", conversationID, err)
		}

		if owner == operatorID {
			// Same operator re-asserting ownership: refresh the TTL
			if err := s.Renew(ctx, conversationID, operatorID, ttl); err == nil {
				return &Acquisition{Granted: true}, nil
			}
			continue // lost it mid-renew, try a fresh acquire
		}

		return &Acquisition{Granted: false, Owner: owner}, nil
	}

	// Both attempts raced an expiring entry; report denied with an unknown
	// owner so the caller refreshes and retries.
	return &Acquisition{Granted: false}, nil
}

// Renew extends a held lock or reports it lost.
func (s *RedisStore) Renew(ctx context.Context, conversationID, operatorID string, ttl time.Duration) error {
	res, err := renewScript.Run(ctx, s.client, []string{lockKey(conversationID)}, operatorID, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("renewing lock for %s: %w", conversationID, err)
	}
	if res == 0 {
		return ErrLost
	}
	return nil
}

// Release frees a held lock or reports the caller is not the owner.
func (s *RedisStore) Release(ctx context.Context, conversationID, operatorID string) error {
	res, err := releaseScript.Run(ctx, s.client, []string{lockKey(conversationID)}, operatorID).Int()
	if err != nil {
		return fmt.Errorf("releasing lock for %s: %w", conversationID, err)
	}
	if res == 0 {
		return ErrNotOwner
	}
	return nil
}

// Owner reports the current holder of the lock, or "" if unheld.
func (s *RedisStore) Owner(ctx context.Context, conversationID string) (string, error) {
	owner, err := s.client.Get(ctx, lockKey(conversationID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading lock owner for %s: %w", conversationID, err)
	}
	return owner, nil
}

// Close shuts down the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
