package generator

import (
	"context"

	"github.com/shouni/gemini-image-kit/ports"
)

// PlanRequest は制作計画生成の入力です。
type PlanRequest struct {
	SystemInstruction string
	UserPrompt        string
}

// VideoRequest はシーンのアニメーション生成の入力なのだ。
type VideoRequest struct {
	Prompt     string
	Image      []byte
	MimeType   string
	Credential string // プロバイダー B でユーザーが指定したキー
}

// VideoResult は生成された動画のデータです。
type VideoResult struct {
	Data     []byte
	MimeType string
}

// PlanGenerator は構造化された制作計画のテキスト（JSON）を返す契約です。
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, req PlanRequest) (string, error)
}

// ImageGenerator はプロンプトと任意の参照画像から画像を1枚生成する契約です。
// Images の ReferenceURL には data URL 形式の肖像を渡すのだ。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ports.ImagePageRequest) (*ports.ImageResponse, error)
}

// VideoGenerator は開始画像とプロンプトから動画を生成する契約です。
type VideoGenerator interface {
	GenerateVideo(ctx context.Context, req VideoRequest) (*VideoResult, error)
}

// KeyProber は動画生成に必要な課金キーが使えるかを確認するのだ。
type KeyProber interface {
	HasBillingKey(ctx context.Context) bool
}
