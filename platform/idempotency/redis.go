package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore ProcessedEventsStore поверх Redis. Ключи живут ttl и удаляются самим Redis.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore создаёт store. prefix отделяет ключи разных координаторов.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(eventID string) string {
	return fmt.Sprintf("processed:%s:%s", s.prefix, eventID)
}

func (s *RedisStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	// SETNX: повторная отметка не продлевает ttl исходной записи
	if err := s.rdb.SetNX(ctx, s.key(eventID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis mark processed: %w", err)
	}
	return nil
}

func (s *RedisStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis is processed: %w", err)
	}
	return n > 0, nil
}
