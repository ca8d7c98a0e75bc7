package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	val   []byte
	until int64 // unix milli; 0 = no expiry
}

// Memory is a process-local Store.
type Memory struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{m: map[string]memEntry{}, now: time.Now}
}

func (s *Memory) expired(e memEntry, now int64) bool {
	return e.until != 0 && e.until <= now
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	if s.expired(e, s.now().UnixMilli()) {
		delete(s.m, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.val...), true, nil
}

func (s *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	s.m[key] = memEntry{val: append([]byte(nil), val...), until: expiry(s.now(), ttl)}
	s.mu.Unlock()
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return false, nil
	}
	delete(s.m, key)
	return !s.expired(e, s.now().UnixMilli()), nil
}

func (s *Memory) DeletePrefix(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UnixMilli()
	n := 0
	for k, e := range s.m {
		if strings.HasPrefix(k, prefix) {
			if !s.expired(e, now) {
				n++
			}
			delete(s.m, k)
		}
	}
	return n, nil
}

func (s *Memory) PruneExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UnixMilli()
	n := 0
	for k, e := range s.m {
		if s.expired(e, now) {
			delete(s.m, k)
			n++
		}
	}
	return n, nil
}

func (s *Memory) Close() error { return nil }
