package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const defaultMemoryTTL = 24 * time.Hour

type memoryItem struct {
	value    []byte
	expireAt time.Time
}

// MemoryCache implements Service and Locker in process. Values are stored as
// JSON so Get decodes into dest the same way the Redis cache does.
type MemoryCache struct {
	mu   sync.Mutex
	data map[string]memoryItem
	now  func() time.Time
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]memoryItem),
		now:  time.Now,
	}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = defaultMemoryTTL
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.data[key] = memoryItem{value: data, expireAt: mc.now().Add(expiration)}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, ok := mc.live(key)
	mc.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(item.value, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		delete(mc.data, k)
	}
	return nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.live(key); ok {
		return false, nil
	}
	mc.data[key] = memoryItem{value: []byte(`"locked"`), expireAt: mc.now().Add(ttl)}
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// live returns an unexpired item, dropping it if expired. Caller holds mu.
func (mc *MemoryCache) live(key string) (memoryItem, bool) {
	item, ok := mc.data[key]
	if !ok {
		return memoryItem{}, false
	}
	if mc.now().After(item.expireAt) {
		delete(mc.data, key)
		return memoryItem{}, false
	}
	return item, true
}

var (
	_ Service = (*MemoryCache)(nil)
	_ Locker  = (*MemoryCache)(nil)
)
