package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
)

const (
	// DefaultVideoPollInterval は長時間オペレーションを確認する間隔です。
	DefaultVideoPollInterval = 5 * time.Second
	videoResolution          = "720p"
	videoAspectRatio         = "16:9"
	videoMimeType            = "video/mp4"
)

// VeoVideoGenerator は Veo で開始画像から動画を生成するのだ。
type VeoVideoGenerator struct {
	client       *genai.Client
	model        string
	pollInterval time.Duration
}

// NewVeoVideoGenerator は VeoVideoGenerator を生成します。
// 動画は課金キーのクライアントで呼び出す必要があります。
func NewVeoVideoGenerator(client *genai.Client, model string, pollInterval time.Duration) *VeoVideoGenerator {
	if model == "" {
		model = DefaultVideoModel
	}
	if pollInterval <= 0 {
		pollInterval = DefaultVideoPollInterval
	}
	return &VeoVideoGenerator{client: client, model: model, pollInterval: pollInterval}
}

// GenerateVideo はオペレーションの完了までポーリングしてから動画をダウンロードします。
func (g *VeoVideoGenerator) GenerateVideo(ctx context.Context, req VideoRequest) (*VideoResult, error) {
	if g.client == nil {
		return nil, apperr.KeySelection(msgVideoKeyRequired, nil)
	}
	if len(req.Image) == 0 {
		return nil, apperr.Validation(msgInvalidStartImage)
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = defaultImageMimeType
	}

	start := time.Now()
	op, err := g.client.Models.GenerateVideos(ctx, g.model, req.Prompt,
		&genai.Image{ImageBytes: req.Image, MIMEType: mimeType},
		&genai.GenerateVideosConfig{
			NumberOfVideos: 1,
			Resolution:     videoResolution,
			AspectRatio:    videoAspectRatio,
		},
	)
	if err != nil {
		return nil, classifyGeminiError(err, "generate-video", true)
	}

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		op, err = g.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, classifyGeminiError(err, "poll-video", true)
		}
		slog.Debug("動画生成の状態を確認しました", "operation", op.Name, "done", op.Done)
	}

	if len(op.Error) > 0 {
		return nil, operationError(op.Error)
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return nil, apperr.Upstream(msgNoVideoLink, nil)
	}

	generated := op.Response.GeneratedVideos[0]
	data := generated.Video.VideoBytes
	if len(data) == 0 {
		data, err = g.client.Files.Download(ctx, genai.NewDownloadURIFromGeneratedVideo(generated), nil)
		if err != nil {
			return nil, classifyGeminiError(err, "download-video", true)
		}
	}
	outMime := generated.Video.MIMEType
	if outMime == "" {
		outMime = videoMimeType
	}

	slog.Info("動画を生成しました", "model", g.model, "bytes", len(data), "elapsed", time.Since(start).Round(time.Millisecond))
	return &VideoResult{Data: data, MimeType: outMime}, nil
}

// operationError はオペレーションの error フィールドを分類付きエラーにするのだ。
func operationError(opErr map[string]any) error {
	msg, _ := opErr["message"].(string)
	code := 0
	switch v := opErr["code"].(type) {
	case float64:
		code = int(v)
	case int:
		code = v
	}
	cause := fmt.Errorf("video operation failed: code=%d message=%s", code, msg)

	switch {
	case code == 429 || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return apperr.Limit(msgLimitReached, cause)
	case code == 404 || strings.Contains(msg, "Requested entity was not found"):
		return apperr.KeySelection(msgVideoKeyRequired, cause)
	}
	if msg == "" {
		msg = msgNoVideoLink
	}
	return apperr.Upstream(msg, cause)
}

// BillingKeyProber は課金キーで動画モデルにアクセスできるかを確認します。
type BillingKeyProber struct {
	client *genai.Client
	model  string
}

// NewBillingKeyProber は BillingKeyProber を生成します。client が nil の場合は常に false なのだ。
func NewBillingKeyProber(client *genai.Client, model string) *BillingKeyProber {
	if model == "" {
		model = DefaultVideoModel
	}
	return &BillingKeyProber{client: client, model: model}
}

// HasBillingKey はキーが設定されていて、モデル情報を取得できる場合に true を返します。
func (p *BillingKeyProber) HasBillingKey(ctx context.Context) bool {
	if p == nil || p.client == nil {
		return false
	}
	if _, err := p.client.Models.Get(ctx, p.model, nil); err != nil {
		slog.WarnContext(ctx, "課金キーで動画モデルを参照できませんでした", "model", p.model, "error", err)
		return false
	}
	return true
}
