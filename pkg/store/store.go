package store

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	// NoExpiration は期限なしの保存を表します。
	NoExpiration         = cache.NoExpiration
	cacheCleanupInterval = 10 * time.Minute
)

// KV はセッションや設定を保存するキー・バリューストアの契約なのだ。
// Get は値がなければ ok=false を返し、エラーにはしません。
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore は go-cache を使ったプロセス内のストアです。
type MemoryStore struct {
	c   *cache.Cache
	ttl time.Duration
}

// NewMemoryStore は MemoryStore を生成します。ttl に NoExpiration を渡すと期限なしなのだ。
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl == 0 {
		ttl = NoExpiration
	}
	return &MemoryStore{c: cache.New(ttl, cacheCleanupInterval), ttl: ttl}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.c.Set(key, append([]byte(nil), value...), m.ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}
