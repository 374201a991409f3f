package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "anchorid/pkg/domain"
	"anchorid/pkg/platform/sentinel"
)

// RedisNonceStore keeps login nonces in Redis so any instance can redeem a
// challenge issued by another. Expiry rides on the key TTL; GETDEL makes
// consumption atomic.
type RedisNonceStore struct {
	client redis.Cmdable
}

func NewRedisNonceStore(client redis.Cmdable) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func nonceKey(address id.WalletAddress) string {
	return "login_nonce:" + string(address)
}

func (s *RedisNonceStore) SaveNonce(ctx context.Context, address id.WalletAddress, nonce string, ttl time.Duration) error {
	if err := s.client.Set(ctx, nonceKey(address), nonce, ttl).Err(); err != nil {
		return fmt.Errorf("save nonce: %w", err)
	}
	return nil
}

func (s *RedisNonceStore) ConsumeNonce(ctx context.Context, address id.WalletAddress) (string, error) {
	nonce, err := s.client.GetDel(ctx, nonceKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume nonce: %w", err)
	}
	return nonce, nil
}
