package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/store"
)

// Options はパブリッシュ動作を制御する設定項目です。
type Options struct {
	OutputDir string
	// Script が true なら台本の Markdown も書き出すのだ
	Script bool
	// Videos があれば動画ハンドルの中身も videos/ に書き出します
	Videos VideoSource
}

// VideoSource は動画ハンドルから中身を取り出します。store.BlobStore が実装するのだ。
type VideoSource interface {
	Get(handle string) (store.Blob, bool)
}

// PublishResult はパブリッシュ処理の結果として生成されたファイルの情報を保持します。
type PublishResult struct {
	PlanPath   string   // エクスポートした計画 JSON のパス
	ScriptPath string   // 台本 Markdown のパス。書き出していなければ空
	ImagePaths []string // 保存された全画像のパスリスト
	VideoPaths []string // 保存された動画のパスリスト
}

const (
	defaultScriptName   = "roteiro.md"
	defaultImageDirName = "images"
	defaultVideoDirName = "videos"
)

// Export は計画を動画ハンドル抜きのインデント付き JSON にするのだ。
func Export(plan *domain.ProductionPlan) ([]byte, error) {
	if plan == nil {
		return nil, fmt.Errorf("エクスポートする計画がありません")
	}
	b, err := json.MarshalIndent(plan.WithoutVideos(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("計画のエンコードに失敗しました: %w", err)
	}
	return b, nil
}

// Publisher は制作計画とその画像をファイルとして書き出します。
type Publisher struct {
	writer OutputWriter
}

// NewPublisher は Publisher を生成します。
func NewPublisher(writer OutputWriter) *Publisher {
	return &Publisher{writer: writer}
}

// Publish は画像の保存、計画 JSON の書き出し、台本の生成を一括して実行するのだ。
func (p *Publisher) Publish(ctx context.Context, plan *domain.ProductionPlan, opts Options) (PublishResult, error) {
	result := PublishResult{}

	data, err := Export(plan)
	if err != nil {
		return result, err
	}

	planPath, err := ResolveOutputPath(opts.OutputDir, plan.ExportFileName())
	if err != nil {
		return result, err
	}
	imgDir, err := ResolveOutputPath(opts.OutputDir, defaultImageDirName)
	if err != nil {
		return result, err
	}

	images, err := p.saveImages(ctx, plan, imgDir)
	if err != nil {
		return result, fmt.Errorf("画像の書き込みに失敗しました: %w", err)
	}
	for _, name := range sortedKeys(images) {
		result.ImagePaths = append(result.ImagePaths, images[name])
	}

	if opts.Videos != nil {
		videoDir, err := ResolveOutputPath(opts.OutputDir, defaultVideoDirName)
		if err != nil {
			return result, err
		}
		if result.VideoPaths, err = p.saveVideos(ctx, plan, opts.Videos, videoDir); err != nil {
			return result, fmt.Errorf("動画の書き込みに失敗しました: %w", err)
		}
	}

	if err := p.writer.Write(ctx, planPath, data); err != nil {
		return result, fmt.Errorf("計画ファイルの書き込みに失敗しました: %w", err)
	}
	result.PlanPath = planPath

	if opts.Script {
		// 台本からは出力ディレクトリからの相対パスで画像を参照します
		relative := make(map[string]string, len(images))
		for name, full := range images {
			relative[name] = path.Join(defaultImageDirName, filepath.Base(full))
		}
		scriptPath, err := ResolveOutputPath(opts.OutputDir, defaultScriptName)
		if err != nil {
			return result, err
		}
		if err := p.writer.Write(ctx, scriptPath, []byte(BuildScript(plan, relative))); err != nil {
			return result, fmt.Errorf("台本の書き込みに失敗しました: %w", err)
		}
		result.ScriptPath = scriptPath
	}

	slog.InfoContext(ctx, "制作計画を書き出しました", "title", plan.Titulo, "path", planPath, "images", len(result.ImagePaths))
	return result, nil
}

// saveImages は data URL の画像をデコードして保存し、ファイル名から保存先への対応を返します。
// data URL 以外のハンドルは書き出せないので飛ばすのだ。
func (p *Publisher) saveImages(ctx context.Context, plan *domain.ProductionPlan, baseDir string) (map[string]string, error) {
	saved := map[string]string{}

	save := func(stem, url string) error {
		if url == "" {
			return nil
		}
		mimeType, data, err := generator.DecodeDataURL(url)
		if err != nil {
			slog.WarnContext(ctx, "画像を書き出せないので飛ばします", "name", stem, "error", err)
			return nil
		}
		name := stem + extensionFor(mimeType)
		fullPath, err := ResolveOutputPath(baseDir, name)
		if err != nil {
			return fmt.Errorf("出力パスの解決に失敗しました: %w", err)
		}
		if err := p.writer.Write(ctx, fullPath, data); err != nil {
			return fmt.Errorf("画像の書き込みに失敗しました %s: %w", fullPath, err)
		}
		saved[stem] = fullPath
		return nil
	}

	for _, scene := range plan.Cenas {
		if err := save(sceneImageStem(scene.ID), scene.ImageURL); err != nil {
			return nil, err
		}
	}
	if t := plan.YoutubeThumbnail; t != nil {
		if err := save(thumbnailStem(domain.AspectLandscape), t.ImageURL16x9); err != nil {
			return nil, err
		}
		if err := save(thumbnailStem(domain.AspectPortrait), t.ImageURL9x16); err != nil {
			return nil, err
		}
	}
	return saved, nil
}

// saveVideos は期限内の動画ハンドルだけを書き出すのだ。
func (p *Publisher) saveVideos(ctx context.Context, plan *domain.ProductionPlan, videos VideoSource, baseDir string) ([]string, error) {
	var paths []string
	for _, scene := range plan.Cenas {
		if scene.VideoURL == "" {
			continue
		}
		blob, ok := videos.Get(scene.VideoURL)
		if !ok {
			slog.WarnContext(ctx, "動画の期限が切れているので飛ばします", "scene", scene.ID)
			continue
		}
		fullPath, err := ResolveOutputPath(baseDir, fmt.Sprintf("scene_%d.mp4", scene.ID))
		if err != nil {
			return nil, err
		}
		if err := p.writer.Write(ctx, fullPath, blob.Data); err != nil {
			return nil, fmt.Errorf("動画の書き込みに失敗しました %s: %w", fullPath, err)
		}
		paths = append(paths, fullPath)
	}
	return paths, nil
}

func sceneImageStem(id int) string {
	return fmt.Sprintf("scene_%d", id)
}

func thumbnailStem(ratio domain.AspectRatio) string {
	if ratio == domain.AspectPortrait {
		return "thumbnail_9x16"
	}
	return "thumbnail_16x9"
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	return ".png"
}
