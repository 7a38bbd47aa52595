package trust

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// VerificationCache is the server-side record of PIN verifications per
// (account, device fingerprint).
type VerificationCache interface {
	Record(ctx context.Context, accountID uuid.UUID, fingerprint string) error
	IsVerified(ctx context.Context, accountID uuid.UUID, fingerprint string) (bool, error)
	Revoke(ctx context.Context, accountID uuid.UUID, fingerprint string) error
}

func verificationKey(accountID uuid.UUID, fingerprint string) string {
	return accountID.String() + ":" + fingerprint
}

// MemoryVerificationCache keeps verifications in process memory.
type MemoryVerificationCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryVerificationCache(ttl time.Duration) *MemoryVerificationCache {
	if ttl <= 0 {
		ttl = DefaultPinVerifiedMarkerTTL
	}
	return &MemoryVerificationCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (c *MemoryVerificationCache) Record(ctx context.Context, accountID uuid.UUID, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[verificationKey(accountID, fingerprint)] = c.now().Add(c.ttl)
	return nil
}

func (c *MemoryVerificationCache) IsVerified(ctx context.Context, accountID uuid.UUID, fingerprint string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	expiresAt, ok := c.entries[verificationKey(accountID, fingerprint)]
	return ok && c.now().Before(expiresAt), nil
}

func (c *MemoryVerificationCache) Revoke(ctx context.Context, accountID uuid.UUID, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, verificationKey(accountID, fingerprint))
	return nil
}

const redisVerificationPrefix = "hris:pin_verified:"

// RedisVerificationCache shares verifications across instances.
type RedisVerificationCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisVerificationCache(client redis.Cmdable, ttl time.Duration) *RedisVerificationCache {
	if ttl <= 0 {
		ttl = DefaultPinVerifiedMarkerTTL
	}
	return &RedisVerificationCache{client: client, ttl: ttl}
}

func (c *RedisVerificationCache) Record(ctx context.Context, accountID uuid.UUID, fingerprint string) error {
	return c.client.Set(ctx, redisVerificationPrefix+verificationKey(accountID, fingerprint), time.Now().UTC().Format(time.RFC3339), c.ttl).Err()
}

func (c *RedisVerificationCache) IsVerified(ctx context.Context, accountID uuid.UUID, fingerprint string) (bool, error) {
	n, err := c.client.Exists(ctx, redisVerificationPrefix+verificationKey(accountID, fingerprint)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisVerificationCache) Revoke(ctx context.Context, accountID uuid.UUID, fingerprint string) error {
	return c.client.Del(ctx, redisVerificationPrefix+verificationKey(accountID, fingerprint)).Err()
}
