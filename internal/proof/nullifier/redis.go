package nullifier

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry enforces consumption with SET NX, which is atomic at the
// server, so the replay guarantee holds across all instances sharing the
// Redis. Expiry rides on the key TTL; PruneExpired is a no-op.
type RedisRegistry struct {
	client redis.Cmdable
}

func NewRedisRegistry(client redis.Cmdable) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func redisKey(nullifierHash, verifierDID string) string {
	return "nullifier:" + nullifierHash + ":" + verifierDID
}

func (r *RedisRegistry) Consume(ctx context.Context, nullifierHash, verifierDID string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// Expired proofs are rejected before the registry is consulted;
		// still keep a short tombstone in case of clock skew.
		ttl = time.Minute
	}
	won, err := r.client.SetNX(ctx, redisKey(nullifierHash, verifierDID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("nullifier setnx: %w", err)
	}
	return won, nil
}

func (r *RedisRegistry) PruneExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
