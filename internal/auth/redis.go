package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "oauth-state-"

// RedisStateStore keeps pending logins in Redis, for deployments that run
// more than one instance behind the public callback URL.
type RedisStateStore struct {
	client redis.Cmdable
	now    func() time.Time
}

var _ StateStore = &RedisStateStore{}

func NewRedisStateStore(client redis.Cmdable) *RedisStateStore {
	return &RedisStateStore{client: client, now: time.Now}
}

func (s *RedisStateStore) Issue(ctx context.Context, login PendingLogin) error {
	data, err := json.Marshal(login)
	if err != nil {
		return fmt.Errorf("encode pending login: %w", err)
	}
	ttl := login.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("pending login already expired")
	}
	return s.client.Set(ctx, stateKeyPrefix+login.State, data, ttl).Err()
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (*PendingLogin, error) {
	data, err := s.client.GetDel(ctx, stateKeyPrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	var login PendingLogin
	if err := json.Unmarshal(data, &login); err != nil {
		return nil, fmt.Errorf("decode pending login: %w", err)
	}
	if s.now().After(login.ExpiresAt) {
		return nil, ErrStateNotFound
	}
	return &login, nil
}
