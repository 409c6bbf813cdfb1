package publisher

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveOutputPath は、ベースとなるディレクトリパスとファイル名から最終的な出力パスを生成します。
// ファイル名がディレクトリの外を指す場合はエラーなのだ。
func ResolveOutputPath(baseDir, fileName string) (string, error) {
	if strings.Contains(strings.ToLower(baseDir), "://") {
		return "", fmt.Errorf("ローカルディレクトリ以外には書き出せません: %s", baseDir)
	}
	if baseDir == "" {
		baseDir = "."
	}
	full := filepath.Join(baseDir, fileName)
	rel, err := filepath.Rel(baseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("出力ディレクトリの外を指すファイル名です: %s", fileName)
	}
	return full, nil
}
