package workflow

import (
	"time"
)

// デフォルト値の定義なのだ
const (
	DefaultAPIDelay     = 1200 * time.Millisecond
	DefaultSceneAspect  = "16:9"
	DefaultSessionTTL   = 12 * time.Hour
	DefaultWorkspaceTTL = 2 * time.Hour
)

// Config はオーケストレーターの動作設定です。
type Config struct {
	// APIDelay は生成呼び出しの間に挟む固定の待機時間なのだ。0 なら待ちません。
	APIDelay time.Duration
	// SceneAspect は参照画像なしでシーンを生成する時の縦横比です。
	SceneAspect string
}

// DefaultConfig は推奨されるデフォルト設定を返すのだ。
func DefaultConfig() Config {
	return Config{
		APIDelay:    DefaultAPIDelay,
		SceneAspect: DefaultSceneAspect,
	}
}
