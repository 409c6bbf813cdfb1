package generator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shouni/go-gemini-client/gemini"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
)

const (
	// DefaultPlanModel は制作計画の生成に使うモデルです。
	DefaultPlanModel = "gemini-2.5-pro"
	// DefaultImageModel は画像生成に使うモデルです。
	DefaultImageModel = "gemini-2.5-flash-image"
	// DefaultVideoModel はプロバイダー A の動画モデルなのだ。
	DefaultVideoModel = "veo-3.1-fast-generate-preview"
	// DefaultTemperature は計画と画像の生成で使う温度です。
	DefaultTemperature = float32(1.0)
)

// NewAIClient は計画と画像の生成で共有する gemini クライアントを初期化します。
// temperature が 0 以下ならモデルの既定値を使うのだ。
func NewAIClient(ctx context.Context, apiKey string, temperature float32) (gemini.GenerativeModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, apperr.Credential(msgMissingGeminiKey, nil)
	}
	clientConfig := gemini.Config{APIKey: apiKey}
	if temperature > 0 {
		clientConfig.Temperature = genai.Ptr(temperature)
	}
	aiClient, err := gemini.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return aiClient, nil
}

// NewGeminiClient は動画生成用の genai クライアントを生成します。
// Veo の長時間オペレーションとファイルのダウンロードはこちらを使うのだ。
// キーが空の場合は外部呼び出しを行わずに認証エラーを返します。
func NewGeminiClient(ctx context.Context, apiKey string, httpClient *http.Client) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, apperr.Credential(msgMissingGeminiKey, nil)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini クライアントの初期化に失敗しました: %w", err)
	}
	return client, nil
}

// waitLimiter は limiter が設定されていれば待機するのだ。
func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("レート制限の待機中にエラーが発生しました: %w", err)
	}
	return nil
}

// GeminiPlanGenerator は Gemini で制作計画の JSON を生成します。
type GeminiPlanGenerator struct {
	client  gemini.GenerativeModel
	model   string
	limiter *rate.Limiter
}

// NewGeminiPlanGenerator は GeminiPlanGenerator を生成します。limiter は nil でも構いません。
func NewGeminiPlanGenerator(client gemini.GenerativeModel, model string, limiter *rate.Limiter) *GeminiPlanGenerator {
	if model == "" {
		model = DefaultPlanModel
	}
	return &GeminiPlanGenerator{client: client, model: model, limiter: limiter}
}

// GeneratePlan はシステム指示を付けて計画を要求します。
// 応答は JSON として後段で検証されるのだ。
func (g *GeminiPlanGenerator) GeneratePlan(ctx context.Context, req PlanRequest) (string, error) {
	if err := waitLimiter(ctx, g.limiter); err != nil {
		return "", err
	}

	parts := []*genai.Part{{Text: req.UserPrompt}}
	opts := gemini.GenerateOptions{SystemPrompt: req.SystemInstruction}

	slog.Info("制作計画を生成します", "model", g.model, "prompt_len", len(req.UserPrompt))
	resp, err := g.client.GenerateWithParts(ctx, g.model, parts, opts)
	if err != nil {
		return "", classifyGeminiError(err, "generate-plan", false)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", apperr.Upstream("A IA retornou uma resposta vazia.", nil)
	}
	return text, nil
}

// responseText は応答の最初の候補からテキストを取り出します。
func responseText(resp *gemini.Response) string {
	if resp == nil || resp.RawResponse == nil {
		return ""
	}
	return resp.RawResponse.Text()
}
