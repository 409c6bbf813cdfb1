package workflow

import (
	"context"
)

// Reporter は進捗イベントを受け取る契約です。
// 実装はブロックしてはいけないのだ。
type Reporter interface {
	Report(ctx context.Context, ev Event)
}

// MediaStore は生成した動画を一時保存してハンドルを返す契約です。
type MediaStore interface {
	Put(data []byte, mimeType string) string
}
