package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// FileStore はキーごとに1ファイルで保存する永続ストアです。CLI の設定保存に使うのだ。
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore はディレクトリを作成して FileStore を返します。
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("保存ディレクトリの作成に失敗しました: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+".json")
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ファイルの読み込みに失敗しました: %w", err)
	}
	return b, true, nil
}

// Set は一時ファイルに書いてから rename します。
func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("ファイルの書き込みに失敗しました: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("ファイルの置き換えに失敗しました: %w", err)
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ファイルの削除に失敗しました: %w", err)
	}
	return nil
}
