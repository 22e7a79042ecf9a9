package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// localCache 基于 golang-lru 的本地缓存
// LRU 本身只有统一 TTL，单项过期时间记录在 entry 里
type localCache struct {
	config LocalConfig
	lru    *expirable.LRU[string, entry]
	mu     sync.Mutex
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewLocalCache 创建本地缓存
func NewLocalCache(config LocalConfig) Cache {
	config = config.withDefaults()
	return &localCache{
		config: config,
		// 兜底 TTL 取较大值，单项 TTL 更短时由 entry 控制
		lru: expirable.NewLRU[string, entry](config.MaxSize, nil, 24*time.Hour),
	}
}

func (lc *localCache) expiry(expiration time.Duration) time.Time {
	if expiration <= 0 {
		expiration = lc.config.DefaultExpiration
	}
	return time.Now().Add(expiration)
}

// get 调用方需持有锁
func (lc *localCache) get(key string) (entry, bool) {
	e, ok := lc.lru.Get(key)
	if !ok {
		return entry{}, false
	}
	if e.expired(time.Now()) {
		lc.lru.Remove(key)
		return entry{}, false
	}
	return e, true
}

func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	e, ok := lc.get(key)
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.lru.Add(key, entry{value: value, expiresAt: lc.expiry(expiration)})
	return nil
}

func (lc *localCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if _, ok := lc.get(key); ok {
		return false, nil
	}
	lc.lru.Add(key, entry{value: value, expiresAt: lc.expiry(expiration)})
	return true, nil
}

func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.lru.Remove(key)
	return nil
}

func (lc *localCache) Exists(ctx context.Context, key string) bool {
	_, ok := lc.Get(ctx, key)
	return ok
}

// Close 本地缓存不需要关闭连接
func (lc *localCache) Close() error {
	lc.lru.Purge()
	return nil
}
