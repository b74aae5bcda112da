package listctl

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "listctl:"

// RedisStore is a Store shared by every process that points at the same Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func versionKey(namespace string) string {
	return redisPrefix + namespace + ":version"
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.client.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, redisPrefix+key, value, ttl).Err()
}

// Version returns the namespace version, initialising it when missing.
func (s *RedisStore) Version(ctx context.Context, namespace string) (int64, error) {
	key := versionKey(namespace)
	ver, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := s.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return s.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := s.client.Set(ctx, key, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// Bump moves the namespace to a new version. Pages cached under the old
// version expire on their own TTL.
func (s *RedisStore) Bump(ctx context.Context, namespace string) error {
	ver, err := s.client.Incr(ctx, versionKey(namespace)).Result()
	if err != nil {
		return err
	}
	if ver == 1 {
		// the key was missing; 1 is the initial version readers may already hold
		return s.client.Incr(ctx, versionKey(namespace)).Err()
	}
	return nil
}
