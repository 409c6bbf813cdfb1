package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shouni/go-http-kit/httpkit"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// DefaultTimeout は1回の通知に許す時間です。
const DefaultTimeout = 10 * time.Second

// URLSource は通知先 URL を返します。空文字なら通知しないのだ。
type URLSource interface {
	WebhookURL(ctx context.Context) (string, error)
}

// URLSourceFunc は関数を URLSource として使うためのアダプターです。
type URLSourceFunc func(ctx context.Context) (string, error)

func (f URLSourceFunc) WebhookURL(ctx context.Context) (string, error) {
	return f(ctx)
}

// Dispatcher はユーザーのライフサイクルイベントを外部の自動化サービスへ送ります。
//
// 送信は呼び出し元を待たせません。失敗はログに残すだけで、元の操作の結果は変わらないのだ。
type Dispatcher struct {
	urls    URLSource
	client  httpkit.Requester
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewDispatcher は Dispatcher を生成します。client が nil なら既定のクライアントを使います。
// 既定のクライアントはローカルやプライベートの宛先へ送らないのだ。
func NewDispatcher(urls URLSource, client httpkit.Requester) *Dispatcher {
	if client == nil {
		client = httpkit.New(DefaultTimeout)
	}
	return &Dispatcher{
		urls:    urls,
		client:  client,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
}

// Send はイベントをバックグラウンドで通知します。URL が未設定なら何もしないのだ。
func (d *Dispatcher) Send(ctx context.Context, event domain.WebhookEvent, user domain.User) {
	if d == nil || d.urls == nil {
		return
	}
	url, err := d.urls.WebhookURL(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Webhook URL の取得に失敗しました", "event", event, "error", err)
		return
	}
	if url == "" {
		return
	}

	payload := domain.NewWebhookPayload(event, user, d.now())
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// リクエスト元が終わっても通知は続けるのだ
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.post(sendCtx, url, payload); err != nil {
			slog.WarnContext(sendCtx, "Webhook の送信に失敗しました", "event", event, "url", url, "error", err)
			return
		}
		slog.DebugContext(sendCtx, "Webhook を送信しました", "event", event, "user", user.Email)
	}()
}

// Wait は送信中の通知がすべて終わるまで待ちます。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) post(ctx context.Context, url string, payload domain.WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ペイロードのエンコードに失敗しました: %w", err)
	}
	if _, err := d.client.PostRawBodyAndFetchBytes(ctx, url, body, "application/json"); err != nil {
		return fmt.Errorf("Webhook の POST に失敗しました: %w", err)
	}
	return nil
}
