// Package distlock keeps two service replicas from dispatching the same
// campaign at the same time. Redis (SET NX with TTL) is preferred for
// cross-host locking; without Redis it falls back to PostgreSQL advisory
// locks, which are released automatically if the session drops.
package distlock

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Lock interface {
	// Acquire tries to take the lock without blocking. True on success.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this instance still owns it.
	Release(ctx context.Context) error
}

// Factory hands out locks keyed by name using the best available backend.
type Factory struct {
	Redis *redis.Client // optional
	DB    *sql.DB
	TTL   time.Duration
}

func (f *Factory) For(key string) Lock {
	if f.Redis != nil {
		return newRedisLock(f.Redis, key, f.TTL)
	}
	return newAdvisoryLock(f.DB, key)
}

// ---- Redis backend ----

// releaseScript deletes the key only if the ownership value still matches,
// so an expired lock re-acquired by someone else is never released by us.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0`

type redisLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

func newRedisLock(client *redis.Client, key string, ttl time.Duration) *redisLock {
	// The ownership token must be unique per lock instance; an all-zero
	// token shared across replicas would let any of them release any lock.
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("distlock: crypto/rand unavailable: " + err.Error())
	}
	return &redisLock{
		client: client,
		key:    "lock:" + key,
		value:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

func (l *redisLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
}

func (l *redisLock) Release(ctx context.Context) error {
	return l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Err()
}

// ---- PostgreSQL advisory-lock backend ----

type advisoryLock struct {
	db     *sql.DB
	lockID int64
}

func newAdvisoryLock(db *sql.DB, key string) *advisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &advisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *advisoryLock) Acquire(ctx context.Context) (bool, error) {
	var acquired bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired)
	return acquired, err
}

func (l *advisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
