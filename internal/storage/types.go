package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrEmptyKey = errors.New("storage: empty key")
)

// Config configures storage.
type Config struct {
	Driver      string
	Path        string        // sqlite only
	URL         string        // redis only, e.g. redis://localhost:6379/0
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is a TTL key-value store. A zero ttl means the entry does not expire.
// Get never returns expired entries.
type Store interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	// DeletePrefix removes every key starting with prefix and returns the count.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// PruneExpired drops expired entries. Backends with native expiry return 0.
	PruneExpired(ctx context.Context) (int, error)
	Close() error
}

func expiry(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now.Add(ttl).UnixMilli()
}
