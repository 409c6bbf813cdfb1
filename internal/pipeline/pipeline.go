package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/publisher"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

// ExecuteGenerate は概要から制作計画を生成し、計画と画像を書き出すのだ。
// 途中で失敗しても、そこまでの計画は書き出してからエラーを返します。
func ExecuteGenerate(ctx context.Context, app *builder.AppContext, opts config.GenerateOptions) (publisher.PublishResult, error) {
	idea, err := resolveIdea(opts)
	if err != nil {
		return publisher.PublishResult{}, err
	}

	ws, err := app.Manager.Workspace(ctx, sessionOrDefault(opts.SessionID))
	if err != nil {
		return publisher.PublishResult{}, err
	}
	if len(opts.Characters) > 0 {
		if err := ws.SetSelection(opts.Characters); err != nil {
			return publisher.PublishResult{}, err
		}
	}

	slog.InfoContext(ctx, "制作計画の生成を開始します",
		"session", ws.ID(),
		"characters", ws.Selection(),
		"animate", opts.Animate,
	)

	out := app.Orchestrator.Run(ctx, ws, workflow.Brief{
		Idea:      idea,
		Audience:  opts.Audience,
		Language:  opts.Language,
		Animate:   opts.Animate,
		Provider:  domain.VideoProvider(opts.Provider),
		OpenAIKey: opts.OpenAIKey,
	})

	var result publisher.PublishResult
	if out.Plan != nil {
		result, err = publishPlan(ctx, app, out.Plan, opts.OutputDir, opts.Script)
		if err != nil {
			return result, err
		}
	}
	if out.Status != workflow.StatusCompleted {
		return result, fmt.Errorf("生成が中断されました (%s): %w", out.Status, out.Err)
	}
	return result, nil
}

// ExecuteRegenerate は保存済みの計画から1シーンまたは1枚のサムネイルだけを作り直します。
func ExecuteRegenerate(ctx context.Context, app *builder.AppContext, opts config.RegenerateOptions) (publisher.PublishResult, error) {
	ws, err := app.Manager.Workspace(ctx, sessionOrDefault(opts.SessionID))
	if err != nil {
		return publisher.PublishResult{}, err
	}
	if ws.Plan() == nil {
		return publisher.PublishResult{}, apperr.NotFound("Nenhum plano de produção salvo. Execute 'generate' primeiro.")
	}

	switch {
	case opts.Thumbnail != "":
		ratio, ok := domain.ParseAspectRatio(opts.Thumbnail)
		if !ok {
			return publisher.PublishResult{}, apperr.Validation(fmt.Sprintf("Proporção inválida: %s", opts.Thumbnail))
		}
		if _, err := app.Orchestrator.RegenerateThumbnail(ctx, ws, ratio); err != nil {
			return publisher.PublishResult{}, err
		}
	case opts.SceneID > 0 && opts.Animate:
		if _, err := app.Orchestrator.AnimateScene(ctx, ws, opts.SceneID, domain.VideoProvider(opts.Provider), opts.OpenAIKey); err != nil {
			return publisher.PublishResult{}, err
		}
	case opts.SceneID > 0:
		if _, err := app.Orchestrator.RegenerateScene(ctx, ws, opts.SceneID); err != nil {
			return publisher.PublishResult{}, err
		}
	default:
		return publisher.PublishResult{}, apperr.Validation("Informe --scene ou --thumbnail.")
	}

	return publishPlan(ctx, app, ws.Plan(), opts.OutputDir, false)
}

// ExecuteExport は保存済みの計画を書き出すだけなのだ。
func ExecuteExport(ctx context.Context, app *builder.AppContext, sessionID, outputDir string, script bool) (publisher.PublishResult, error) {
	ws, err := app.Manager.Workspace(ctx, sessionOrDefault(sessionID))
	if err != nil {
		return publisher.PublishResult{}, err
	}
	plan := ws.Plan()
	if plan == nil {
		return publisher.PublishResult{}, apperr.NotFound("Nenhum plano de produção salvo.")
	}
	return publishPlan(ctx, app, plan, outputDir, script)
}

func publishPlan(ctx context.Context, app *builder.AppContext, plan *domain.ProductionPlan, outputDir string, script bool) (publisher.PublishResult, error) {
	if outputDir == "" {
		outputDir = config.DefaultOutputDir
	}
	result, err := app.Publisher.Publish(ctx, plan, publisher.Options{
		OutputDir: outputDir,
		Script:    script,
		Videos:    app.Media,
	})
	if err != nil {
		return result, fmt.Errorf("計画の書き出しに失敗しました: %w", err)
	}
	return result, nil
}

// resolveIdea はフラグ、ファイル、標準入力の順にストーリーの概要を決めるのだ。
func resolveIdea(opts config.GenerateOptions) (string, error) {
	idea := strings.TrimSpace(opts.Idea)
	if idea != "" || opts.IdeaFile == "" {
		return idea, nil
	}

	var r io.Reader
	if opts.IdeaFile == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(opts.IdeaFile)
		if err != nil {
			return "", fmt.Errorf("概要ファイル '%s' の読み込みに失敗しました: %w", opts.IdeaFile, err)
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("概要の読み込みに失敗しました: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func sessionOrDefault(id string) string {
	if strings.TrimSpace(id) == "" {
		return config.DefaultCLISessionID
	}
	return id
}
