package publisher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// OutputWriter はデータを外部ストレージに保存するためのインターフェースです。
type OutputWriter interface {
	Write(ctx context.Context, path string, data []byte) error
}

// FileWriter はローカルファイルシステムに書き出す OutputWriter なのだ。
type FileWriter struct{}

// NewFileWriter は FileWriter を生成します。
func NewFileWriter() *FileWriter {
	return &FileWriter{}
}

// Write は親ディレクトリを作成してからファイルを書き込みます。
func (FileWriter) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ディレクトリの作成に失敗しました: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("ファイルの書き込みに失敗しました: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
