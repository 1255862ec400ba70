package redis

import (
	"context"
	"path"
	"sync"
	"time"

	"mail_assistant_client/pkg/errorx"
)

type memoryEntry struct {
	value    string
	expireAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// MemoryCache 进程内存储，语义与 RedisCache 一致
// SubmitTask 同步执行
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
}

// NewMemoryCache 创建进程内存储
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string]memoryEntry)}
}

func (m *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expireAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.data[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	entry, ok := m.data[key]
	m.mu.RUnlock()
	if !ok || entry.expired(time.Now()) {
		return "", nil
	}
	return entry.value, nil
}

func (m *MemoryCache) GetOrError(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	entry, ok := m.data[key]
	m.mu.RUnlock()
	if !ok || entry.expired(time.Now()) {
		return "", errorx.Newf(errorx.CodeNotFound, "memory key %s not found", key)
	}
	return entry.value, nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// DeleteByPattern 模式语法与 path.Match 相同（Redis glob 的子集）
func (m *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return errorx.Wrapf(err, errorx.CodeInvalidParam, "bad pattern %s", pattern)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.data, key)
		}
	}
	return nil
}

func (m *MemoryCache) SubmitTask(action func()) {
	if action != nil {
		action()
	}
}

func (m *MemoryCache) Close() error { return nil }

var _ AsyncCacheService = (*MemoryCache)(nil)
