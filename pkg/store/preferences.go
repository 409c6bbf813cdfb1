package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

const (
	customCharactersKey = "customCharacters"
	webhookURLKey       = "n8n_webhook_url"
)

// Preferences はセッションをまたいで残る設定です。
// カスタムキャラクターの読み直しと保存は mu の下で行うのだ。
type Preferences struct {
	kv      KV
	catalog *domain.Catalog
	mu      sync.Mutex
}

// NewPreferences は Preferences を生成します。
func NewPreferences(kv KV, catalog *domain.Catalog) *Preferences {
	return &Preferences{kv: kv, catalog: catalog}
}

// SaveCustomCharacters はライブラリからカスタム部分だけを取り出して保存するのだ。
// カスタムキャラクターがいなければキーを削除します。
func (p *Preferences) SaveCustomCharacters(ctx context.Context, lib domain.CharacterLibrary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saveCustom(ctx, lib)
}

// UpdateLibrary は保存済みのライブラリを読み直して fn で変更し、保存してから返します。
// fn がエラーを返した場合は何も保存しないのだ。
func (p *Preferences) UpdateLibrary(ctx context.Context, fn func(lib domain.CharacterLibrary) error) (domain.CharacterLibrary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lib, err := p.Library(ctx)
	if err != nil {
		return nil, fmt.Errorf("カスタムキャラクターの読み込みに失敗しました: %w", err)
	}
	if err := fn(lib); err != nil {
		return nil, err
	}
	if err := p.saveCustom(ctx, lib); err != nil {
		return nil, fmt.Errorf("カスタムキャラクターの保存に失敗しました: %w", err)
	}
	return lib, nil
}

func (p *Preferences) saveCustom(ctx context.Context, lib domain.CharacterLibrary) error {
	custom := p.catalog.CustomSubset(lib)
	if len(custom) == 0 {
		return p.kv.Delete(ctx, customCharactersKey)
	}
	b, err := json.Marshal(custom)
	if err != nil {
		return fmt.Errorf("カスタムキャラクターのエンコードに失敗しました: %w", err)
	}
	return p.kv.Set(ctx, customCharactersKey, b)
}

// LoadCustomCharacters は保存されたカスタムキャラクターを返します。壊れていれば無視します。
func (p *Preferences) LoadCustomCharacters(ctx context.Context) (map[string]string, error) {
	custom := map[string]string{}
	ok, err := loadJSON(ctx, p.kv, customCharactersKey, &custom)
	if err != nil {
		return nil, err
	}
	if !ok || custom == nil {
		return map[string]string{}, nil
	}
	return custom, nil
}

// Library は既定のライブラリに保存済みのカスタムキャラクターを重ねたものを返すのだ。
func (p *Preferences) Library(ctx context.Context) (domain.CharacterLibrary, error) {
	custom, err := p.LoadCustomCharacters(ctx)
	if err != nil {
		return nil, err
	}
	return p.catalog.MergeCustom(p.catalog.Library(), custom), nil
}

// WebhookURL は保存された Webhook URL を返します。未設定なら空文字です。
func (p *Preferences) WebhookURL(ctx context.Context) (string, error) {
	b, ok, err := p.kv.Get(ctx, webhookURLKey)
	if err != nil || !ok {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// SetWebhookURL は URL を保存します。空白だけなら削除するのだ。
func (p *Preferences) SetWebhookURL(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return p.ClearWebhookURL(ctx)
	}
	return p.kv.Set(ctx, webhookURLKey, []byte(url))
}

// ClearWebhookURL は Webhook URL を削除します。
func (p *Preferences) ClearWebhookURL(ctx context.Context) error {
	return p.kv.Delete(ctx, webhookURLKey)
}
