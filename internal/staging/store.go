// Package staging holds in-flight editable report artifacts in a key-value
// store with per-key expiry.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sessionscribe/sessionscribe/internal/config"
)

// Store is the staging contract. Values are UTF-8 text; a missing key is
// reported through found=false, never as an empty string. Writes set or renew
// the key's TTL; reads never extend it.
type Store interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Delete(ctx context.Context, keys ...string) error
}

// SubjectKey names the subject entry for a staged report.
func SubjectKey(reportID string) string {
	return "subject:" + reportID
}

// MessageKey names the body entry for a staged report.
func MessageKey(reportID string) string {
	return "message:" + reportID
}

// DefaultSubject is the date-stamped subject a report carries until the user
// edits it. Recomputed at send time when the subject key has expired.
func DefaultSubject(now time.Time) string {
	return "Session report " + now.Format("2006-01-02")
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// RedisStore implements Store on a redis client. Independent keys need no
// cross-key locking; concurrent writes to one key resolve last-write-wins.
type RedisStore struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisStore(rdb *redis.Client, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{rdb: rdb, logger: logger}
}

func (s *RedisStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("staging put %s: %w", key, err)
	}
	s.logger.Debug("staging.put", "key", key, "value_len", len(value), "ttl", ttl)
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("staging get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("staging delete: %w", err)
	}
	s.logger.Debug("staging.delete", "keys", keys)
	return nil
}
