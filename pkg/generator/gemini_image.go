package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	imagekit "github.com/shouni/gemini-image-kit/generator"
	"github.com/shouni/gemini-image-kit/ports"
	"github.com/shouni/go-gemini-client/gemini"
	"golang.org/x/time/rate"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
)

// DefaultImageCacheTTL は File API のアップロード結果を保持する時間です。
const DefaultImageCacheTTL = time.Hour

// NewImageKit は gemini-image-kit の画像生成器を組み立てます。
// 参照画像は data URL で渡され、http(s) の参照だけ downloader に委譲するのだ。
func NewImageKit(aiClient gemini.GenerativeModel, downloader ports.Downloader, cache ports.ImageCacher, cacheTTL time.Duration) (ports.ImageGenerator, error) {
	resolver := NewDataURLResolver(downloader)
	core, err := imagekit.NewGeminiImageCore(aiClient, resolver, resolver, cache, cacheTTL, false)
	if err != nil {
		return nil, fmt.Errorf("GeminiImageCoreの初期化に失敗したのだ: %w", err)
	}
	imgGen, err := imagekit.NewGeminiGenerator(core)
	if err != nil {
		return nil, fmt.Errorf("GeminiGeneratorの初期化に失敗したのだ: %w", err)
	}
	return imgGen, nil
}

// GeminiImageGenerator は Gemini の画像モデルで1枚の画像を生成します。
type GeminiImageGenerator struct {
	kit     ports.ImageGenerator
	model   string
	limiter *rate.Limiter
}

// NewGeminiImageGenerator は GeminiImageGenerator を生成します。
func NewGeminiImageGenerator(kit ports.ImageGenerator, model string, limiter *rate.Limiter) *GeminiImageGenerator {
	if model == "" {
		model = DefaultImageModel
	}
	return &GeminiImageGenerator{kit: kit, model: model, limiter: limiter}
}

// GenerateImage は参照画像をテキストより前に並べて送信するのだ。
// 参照画像があるとモデル側でアスペクト比を決めるので、比率指定は参照なしの時だけ付けます。
func (g *GeminiImageGenerator) GenerateImage(ctx context.Context, req ports.ImagePageRequest) (*ports.ImageResponse, error) {
	if err := validateReferences(req.Images); err != nil {
		return nil, err
	}
	if req.Model == "" {
		req.Model = g.model
	}
	if len(req.Images) > 0 {
		req.AspectRatio = ""
	}
	if err := waitLimiter(ctx, g.limiter); err != nil {
		return nil, err
	}

	slog.Info("画像を生成します",
		"model", req.Model,
		"references", len(req.Images),
		"aspect_ratio", req.AspectRatio,
	)
	resp, err := g.kit.GenerateMangaPage(ctx, req)
	if err != nil {
		return nil, classifyImageError(err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, apperr.NoImage(msgNoImage)
	}
	if resp.MimeType == "" {
		resp.MimeType = defaultImageMimeType
	}
	return resp, nil
}

// validateReferences は data URL の参照が画像として読めるかを事前に確かめます。
// 読めない参照は kit 側で黙って捨てられるので、ここで弾くのだ。
func validateReferences(images []ports.ImageURI) error {
	for _, img := range images {
		if !strings.HasPrefix(img.ReferenceURL, "data:") {
			continue
		}
		_, data, err := DecodeDataURL(img.ReferenceURL)
		if err != nil {
			return apperr.New(apperr.KindValidation, msgInvalidReference, err)
		}
		if !strings.HasPrefix(http.DetectContentType(data), "image/") {
			return apperr.New(apperr.KindValidation, msgInvalidReference, errors.New("参照データが画像ではありません"))
		}
	}
	return nil
}

// kit が画像を返せなかった時のエラー文言です。
var noImageMarkers = []string{
	"no image data found",
	"no content found",
	"invalid or empty response",
	"FinishReason",
}

// classifyImageError は画像が含まれない応答を no_image に、それ以外を API エラーとして分類します。
func classifyImageError(err error) error {
	msg := err.Error()
	for _, marker := range noImageMarkers {
		if strings.Contains(msg, marker) {
			return apperr.New(apperr.KindNoImage, msgNoImage, err)
		}
	}
	return classifyGeminiError(err, "generate-image", false)
}
