package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "soulverse/pkg/logx"
)

type redisStore struct {
	rdb *redis.Client
	log logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("storage.url is required for redis driver")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(rdb, log), nil
}

// NewRedis wraps an existing client. The store owns rdb.
func NewRedis(rdb *redis.Client, log logx.Logger) Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &redisStore{rdb: rdb, log: log}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.rdb.Set(ctx, key, val, ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor uint64
		total  int
	)
	match := globEscape(prefix) + "*"
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return total, err
		}
		if len(keys) > 0 {
			n, err := s.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return total, err
			}
			total += int(n)
		}
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

// PruneExpired is a no-op: redis expires keys itself.
func (s *redisStore) PruneExpired(context.Context) (int, error) { return 0, nil }

func (s *redisStore) Close() error { return s.rdb.Close() }

func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
