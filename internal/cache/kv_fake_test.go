package cache_test

import (
	"context"
	"sync"
	"time"

	"boiler-telemetry/internal/cache"
)

// memoryKV 记录每个键的值和 TTL；过期行为由 miniredis 测试覆盖
type memoryKV struct {
	mu     sync.Mutex
	values map[string][]byte
	ttls   map[string]time.Duration
	setErr error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{
		values: make(map[string][]byte),
		ttls:   make(map[string]time.Duration),
	}
}

func (m *memoryKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (m *memoryKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = append([]byte(nil), value...)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryKV) ttl(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}
