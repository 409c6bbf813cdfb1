package builder

import (
	"errors"

	"github.com/shouni/go-http-kit/httpkit"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/auth"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/publisher"
	"github.com/shouni/go-storyboard-kit/pkg/store"
	"github.com/shouni/go-storyboard-kit/pkg/webhook"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// CLI の各コマンドと HTTP サーバーはこれを受け取って動くのだ。
type AppContext struct {
	Config       *config.Config          // Configは、環境変数から読み込まれたグローバルな設定です（APIキー、保存先など）。
	Catalog      *domain.Catalog         // Catalogは、組み込みキャラクターとベーススタイルの定義です。
	Durable      store.KV                // Durableは、カスタムキャラクターや Webhook URL を残す永続ストアです。
	Sessions     store.KV                // Sessionsは、セッションごとの計画と肖像を置く TTL 付きストアです。
	Preferences  *store.Preferences      // Preferencesは、セッションをまたぐ設定の読み書きを担います。
	Media        *store.BlobStore        // Mediaは、生成した動画を一時保持するストアです。
	Manager      *workflow.Manager       // Managerは、セッション ID ごとのワークスペースを管理します。
	Orchestrator *workflow.Orchestrator  // Orchestratorは、生成の順序制御を担います。
	Auth         *auth.Service           // Authは、Supabase 未設定なら nil なのだ。
	Webhook      *webhook.Dispatcher     // Webhookは、ユーザーのライフサイクルイベントを通知します。
	Publisher    *publisher.Publisher    // Publisherは、計画と画像をファイルに書き出します。
	httpClient   httpkit.HTTPClient      // httpClient は外部APIとの通信に使う共通クライアント
	closers      []func() error
}

// Close は接続を閉じ、送信中の Webhook を待つのだ。
func (a *AppContext) Close() error {
	if a.Webhook != nil {
		a.Webhook.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// addCloser は Close で呼ぶ後始末を登録します。
func (a *AppContext) addCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}
