package generator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/shouni/go-http-kit/httpkit"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
)

const (
	// DefaultOpenAIModel は代替の計画生成バックエンドで使うモデルです。
	DefaultOpenAIModel = openai.GPT4oMini
	// DefaultSimulatedVideoDelay はプロバイダー B の擬似的な処理時間なのだ。
	DefaultSimulatedVideoDelay = 8 * time.Second
	// PlaceholderVideoURL はプロバイダー B が返すサンプル動画です。
	PlaceholderVideoURL = "https://videos.pexels.com/video-files/3209828/3209828-sd_640_360_30fps.mp4"
)

// OpenAIPlanGenerator は OpenAI の chat completion で制作計画を生成します。
type OpenAIPlanGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIPlanGenerator は OpenAIPlanGenerator を生成します。
// baseURL は空ならデフォルトのエンドポイントを使うのだ。
func NewOpenAIPlanGenerator(apiKey, model, baseURL string, httpClient httpkit.Doer) (*OpenAIPlanGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, apperr.Credential(msgMissingOpenAIKey, nil)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIPlanGenerator{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// GeneratePlan は JSON オブジェクト形式で応答を要求します。
func (g *OpenAIPlanGenerator) GeneratePlan(ctx context.Context, req PlanRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	slog.Info("制作計画を生成します", "model", g.model, "backend", "openai")
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", classifyOpenAIError(err, "generate-plan")
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", apperr.Upstream("A IA retornou uma resposta vazia.", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIVideoGenerator はプロバイダー B の代用実装です。
// ユーザーのキーを確認して一定時間待ったあと、固定のサンプル動画を取得するのだ。
type OpenAIVideoGenerator struct {
	client   httpkit.Requester
	videoURL string
	delay    time.Duration
}

// NewOpenAIVideoGenerator は OpenAIVideoGenerator を生成します。
func NewOpenAIVideoGenerator(client httpkit.Requester, videoURL string, delay time.Duration) *OpenAIVideoGenerator {
	if client == nil {
		client = httpkit.New(httpkit.DefaultHTTPTimeout)
	}
	if videoURL == "" {
		videoURL = PlaceholderVideoURL
	}
	if delay < 0 {
		delay = 0
	}
	return &OpenAIVideoGenerator{client: client, videoURL: videoURL, delay: delay}
}

// GenerateVideo は開始画像を使わずにサンプル動画を返します。
func (g *OpenAIVideoGenerator) GenerateVideo(ctx context.Context, req VideoRequest) (*VideoResult, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return nil, apperr.Validation(msgMissingOpenAIKey)
	}

	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	data, err := g.client.FetchBytes(ctx, g.videoURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.Upstream(msgNoVideoLink, err)
	}
	if len(data) == 0 {
		return nil, apperr.Upstream(msgNoVideoLink, nil)
	}

	slog.Info("サンプル動画を取得しました", "provider", "openai", "bytes", len(data))
	return &VideoResult{Data: data, MimeType: videoMimeType}, nil
}
