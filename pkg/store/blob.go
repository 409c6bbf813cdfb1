package store

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// MediaPrefix は動画ハンドルの先頭に付くパスです。
const MediaPrefix = "/media/"

// Blob は一時保存されたメディアなのだ。
type Blob struct {
	Data     []byte
	MimeType string
}

// BlobStore は生成した動画を一時的に保持し、ハンドルで参照できるようにします。
type BlobStore struct {
	c *cache.Cache
}

// NewBlobStore は ttl で期限切れになる BlobStore を生成します。
func NewBlobStore(ttl time.Duration) *BlobStore {
	if ttl <= 0 {
		ttl = NoExpiration
	}
	return &BlobStore{c: cache.New(ttl, cacheCleanupInterval)}
}

// Put はデータを保存して "/media/<uuid>" 形式のハンドルを返します。
func (b *BlobStore) Put(data []byte, mimeType string) string {
	id := uuid.NewString()
	b.c.SetDefault(id, Blob{Data: data, MimeType: mimeType})
	return MediaPrefix + id
}

// Get はハンドルまたは ID からデータを取り出すのだ。
func (b *BlobStore) Get(handle string) (Blob, bool) {
	id := strings.TrimPrefix(strings.TrimPrefix(handle, MediaPrefix), "/")
	v, ok := b.c.Get(id)
	if !ok {
		return Blob{}, false
	}
	blob, ok := v.(Blob)
	return blob, ok
}
