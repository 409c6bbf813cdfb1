package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/gemini-image-kit/ports"
	"golang.org/x/sync/singleflight"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/parser"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
)

// Args は Orchestrator の依存関係です。
// PlanGen と ImageGen が nil の場合、生成は認証エラーになるのだ。
type Args struct {
	Config   Config
	PlanGen  generator.PlanGenerator
	ImageGen generator.ImageGenerator
	Videos   map[domain.VideoProvider]generator.VideoGenerator
	Prober   generator.KeyProber
	Prompts  prompts.PromptBuilder
	Media    MediaStore
	Reporter Reporter
}

// Orchestrator はストーリーの概要から制作計画を作り、画像と動画で埋めていきます。
// 生成の呼び出しは常に1つずつ順番に行うのだ。
type Orchestrator struct {
	cfg      Config
	planGen  generator.PlanGenerator
	imageGen generator.ImageGenerator
	videos   map[domain.VideoProvider]generator.VideoGenerator
	prober   generator.KeyProber
	prompts  prompts.PromptBuilder
	media    MediaStore
	reporter Reporter

	portraitGroup singleflight.Group
}

// New は Orchestrator を初期化します。
func New(args Args) (*Orchestrator, error) {
	if args.Prompts == nil {
		pb, err := prompts.NewTextPromptBuilder()
		if err != nil {
			return nil, fmt.Errorf("TextPromptBuilder の新規作成に失敗しました: %w", err)
		}
		args.Prompts = pb
	}
	if args.Media == nil && len(args.Videos) > 0 {
		return nil, fmt.Errorf("動画生成を使う場合は MediaStore が必須です")
	}
	if args.Reporter == nil {
		args.Reporter = nopReporter{}
	}
	if args.Config.SceneAspect == "" {
		args.Config.SceneAspect = DefaultSceneAspect
	}
	if args.Config.APIDelay < 0 {
		args.Config.APIDelay = 0
	}

	return &Orchestrator{
		cfg:      args.Config,
		planGen:  args.PlanGen,
		imageGen: args.ImageGen,
		videos:   args.Videos,
		prober:   args.Prober,
		prompts:  args.Prompts,
		media:    args.Media,
		reporter: args.Reporter,
	}, nil
}

// Run は概要から制作計画を生成し、サムネイル、シーン画像、必要なら動画までを順番に作ります。
//
// 途中で失敗した場合は残りの処理を中止しますが、完了した部分は計画に残るのだ。
// 結果の状態は Outcome で返し、利用上限やキーの再選択は専用の状態になります。
func (o *Orchestrator) Run(ctx context.Context, ws *Workspace, brief Brief) Outcome {
	start := time.Now()
	brief = brief.withDefaults()

	plan, err := o.run(ctx, ws, brief)
	out := newOutcome(plan, err)
	if err != nil {
		ws.clearBusyFlags(ctx)
		out.Plan = ws.Plan()
		o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StageError, Message: out.Message, Status: out.Status})
		return out
	}

	slog.InfoContext(ctx, "制作計画の生成が完了しました",
		"session", ws.ID(),
		"scenes", len(plan.Cenas),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StageDone, Message: progressDone, Status: out.Status, Plan: plan})
	return out
}

func (o *Orchestrator) run(ctx context.Context, ws *Workspace, brief Brief) (*domain.ProductionPlan, error) {
	selected := ws.Selection()
	if err := o.checkPreconditions(ctx, brief, selected); err != nil {
		return nil, err
	}

	// 前回の計画は破棄して、最新の状態から作り直すのだ。
	ws.setPlan(ctx, nil)

	portraits, err := o.preparePortraits(ctx, ws, selected)
	if err != nil {
		return nil, err
	}
	ws.setPortraits(ctx, portraits)

	if err := o.generatePlan(ctx, ws, brief); err != nil {
		return nil, err
	}
	if err := o.generateThumbnails(ctx, ws); err != nil {
		return nil, err
	}

	plan := ws.Plan()
	for _, scene := range plan.Cenas {
		imageURL, err := o.renderScene(ctx, ws, scene.ID, portraits)
		if err != nil {
			return nil, err
		}
		if brief.Animate {
			if err := o.animate(ctx, ws, scene.ID, imageURL, brief.Provider, brief.OpenAIKey); err != nil {
				return nil, err
			}
		}
		if err := o.pause(ctx); err != nil {
			return nil, err
		}
	}
	return ws.Plan(), nil
}

// checkPreconditions は外部呼び出しの前に入力とキーを確認します。
func (o *Orchestrator) checkPreconditions(ctx context.Context, brief Brief, selected []string) error {
	if strings.TrimSpace(brief.Idea) == "" || len(selected) == 0 {
		return apperr.Validation(msgMissingBrief)
	}

	if brief.Animate {
		if !brief.Provider.Valid() {
			return apperr.Validation(msgUnknownProvider)
		}
		if o.videos[brief.Provider] == nil {
			return apperr.Validation(msgVideoUnavailable)
		}
	}

	if brief.Animate && brief.Provider == domain.ProviderGemini {
		if o.prober == nil || !o.prober.HasBillingKey(ctx) {
			return apperr.KeySelection(msgBillingKeyRequired, nil)
		}
	} else if brief.Animate && brief.Provider == domain.ProviderOpenAI && strings.TrimSpace(brief.OpenAIKey) == "" {
		return apperr.Credential(msgMissingOpenAIKey, nil)
	}

	if o.planGen == nil || o.imageGen == nil {
		return apperr.Credential(msgMissingBaseKey, nil)
	}
	return nil
}

// preparePortraits は選択された組み込みキャラクターの肖像を用意するのだ。
// キャッシュにあれば再利用し、なければ生成して次の呼び出しまで待機します。
func (o *Orchestrator) preparePortraits(ctx context.Context, ws *Workspace, selected []string) (map[string]string, error) {
	o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StagePortraits, Message: progressPortraits})

	lib := ws.Library()
	portraits := make(map[string]string)
	for _, name := range selected {
		if !ws.Catalog().IsPredefined(name) {
			continue
		}
		if url, ok := ws.cachedPortrait(name); ok {
			portraits[name] = url
			continue
		}

		o.reporter.Report(ctx, Event{
			SessionID: ws.ID(),
			Stage:     StagePortraits,
			Message:   fmt.Sprintf(progressPortraitFmt, name),
			Character: name,
		})
		url, err := o.portrait(ctx, ws, name, prompts.PortraitPrompt(lib[name], lib.BaseStyle()))
		if err != nil {
			return nil, err
		}
		portraits[name] = url
		if err := o.pause(ctx); err != nil {
			return nil, err
		}
	}
	return portraits, nil
}

// portrait はキャラクター単位で重複を抑えて肖像を生成し、キャッシュに保存するのだ。
func (o *Orchestrator) portrait(ctx context.Context, ws *Workspace, name, prompt string) (string, error) {
	if url, ok := ws.cachedPortrait(name); ok {
		return url, nil
	}

	val, err, _ := o.portraitGroup.Do(ws.ID()+"\x00"+name, func() (interface{}, error) {
		// 待機中に他の呼び出しが生成を終えている可能性があるので再確認します。
		if url, ok := ws.cachedPortrait(name); ok {
			return url, nil
		}
		url, err := o.generateImage(ctx, prompt, nil, "")
		if err != nil {
			return nil, err
		}
		ws.setCachedPortrait(name, url)
		return url, nil
	})
	if err != nil {
		return "", err
	}

	url, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("unexpected return type from singleflight: %T", val)
	}
	return url, nil
}

// generatePlan は計画テキストを生成して解析し、シーンに ID を振ります。
func (o *Orchestrator) generatePlan(ctx context.Context, ws *Workspace, brief Brief) error {
	o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StagePlan, Message: progressPlan})

	data := prompts.NewTemplateData(brief.Idea, brief.Audience, brief.Language, ws.Library())
	userPrompt, err := o.prompts.Build(prompts.ModePlan, data)
	if err != nil {
		return fmt.Errorf("計画プロンプトの構築に失敗しました: %w", err)
	}

	raw, err := o.planGen.GeneratePlan(ctx, generator.PlanRequest{
		SystemInstruction: o.prompts.SystemInstruction(prompts.ModePlan),
		UserPrompt:        userPrompt,
	})
	if err != nil {
		return err
	}

	plan, err := parser.ParsePlan(raw)
	if err != nil {
		return err
	}
	plan.AssignSceneIDs()
	ws.setPlan(ctx, plan)

	o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StagePlan, Message: plan.Titulo, Plan: plan.Clone()})
	return nil
}

// generateThumbnails は 16:9、9:16 の順にサムネイルを生成するのだ。
func (o *Orchestrator) generateThumbnails(ctx context.Context, ws *Workspace) error {
	plan := ws.Plan()
	if plan == nil || plan.YoutubeThumbnail == nil {
		return nil
	}
	for _, ratio := range []domain.AspectRatio{domain.AspectLandscape, domain.AspectPortrait} {
		o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StageThumbnail, Message: fmt.Sprintf(progressThumbnailFmt, ratio)})
		if err := o.renderThumbnail(ctx, ws, ratio); err != nil {
			return err
		}
	}
	return nil
}

// renderThumbnail は1つの縦横比のサムネイルを生成します。失敗時は処理中フラグだけ戻すのだ。
func (o *Orchestrator) renderThumbnail(ctx context.Context, ws *Workspace, ratio domain.AspectRatio) error {
	var prompt string
	err := ws.mutatePlan(ctx, func(plan *domain.ProductionPlan) error {
		if plan.YoutubeThumbnail == nil {
			return apperr.NotFound(msgNoThumbnail)
		}
		prompt = plan.YoutubeThumbnail.Prompt(ratio)
		plan.YoutubeThumbnail.SetGenerating(ratio, true)
		return nil
	})
	if err != nil {
		return err
	}

	base := ws.Library().BaseStyle()
	url, genErr := o.generateImage(ctx, prompts.ThumbnailPrompt(prompt, base), nil, string(ratio))

	err = ws.mutatePlan(ctx, func(plan *domain.ProductionPlan) error {
		if plan.YoutubeThumbnail == nil {
			return nil
		}
		if genErr == nil {
			plan.YoutubeThumbnail.SetImage(ratio, url)
		}
		plan.YoutubeThumbnail.SetGenerating(ratio, false)
		return nil
	})
	if genErr != nil {
		return genErr
	}
	return err
}

// renderScene はシーンの画像を生成して計画に書き込みます。
// portraits が nil ならワークスペースの肖像を使うのだ。
func (o *Orchestrator) renderScene(ctx context.Context, ws *Workspace, id int, portraits map[string]string) (string, error) {
	var promptText string
	err := ws.mutatePlan(ctx, func(plan *domain.ProductionPlan) error {
		scene := plan.Scene(id)
		if scene == nil {
			return apperr.NotFound(msgSceneNotFound)
		}
		promptText = scene.PromptImagem
		scene.IsGenerating = true
		return nil
	})
	if err != nil {
		return "", err
	}
	o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StageSceneImage, Message: fmt.Sprintf(progressSceneFmt, id), SceneID: id})

	composed := prompts.ComposeScene(promptText, ws.sceneCast(portraits))
	slog.DebugContext(ctx, "シーンのプロンプトを合成しました", "scene", id, "references", composed.Referenced)

	url, genErr := o.generateImage(ctx, composed.Text, composed.References, o.cfg.SceneAspect)

	var snapshot *domain.ProductionPlan
	err = ws.mutatePlan(ctx, func(plan *domain.ProductionPlan) error {
		scene := plan.Scene(id)
		if scene == nil {
			return nil
		}
		if genErr == nil {
			scene.ImageURL = url
		}
		scene.IsGenerating = false
		snapshot = plan.Clone()
		return nil
	})
	if genErr != nil {
		return "", genErr
	}
	if err != nil {
		return "", err
	}
	o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StageSceneImage, SceneID: id, Plan: snapshot})
	return url, nil
}

// animate はシーンの画像から動画を生成してハンドルを保存するのだ。
func (o *Orchestrator) animate(ctx context.Context, ws *Workspace, id int, imageURL string, provider domain.VideoProvider, credential string) error {
	videoGen := o.videos[provider]
	if videoGen == nil || o.media == nil {
		return apperr.Validation(msgVideoUnavailable)
	}
	mimeType, image, err := generator.DecodeDataURL(imageURL)
	if err != nil {
		return apperr.New(apperr.KindValidation, msgSceneWithoutImage, err)
	}

	var directorPrompt string
	err = ws.mutatePlan(ctx, func(plan *domain.ProductionPlan) error {
		scene := plan.Scene(id)
		if scene == nil {
			return apperr.NotFound(msgSceneNotFound)
		}
		directorPrompt = scene.PromptDiretor
		scene.IsAnimating = true
		return nil
	})
	if err != nil {
		return err
	}
	o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StageSceneVideo, Message: fmt.Sprintf(progressAnimateFmt, id), SceneID: id})

	start := time.Now()
	res, genErr := videoGen.GenerateVideo(ctx, generator.VideoRequest{
		Prompt:     directorPrompt,
		Image:      image,
		MimeType:   mimeType,
		Credential: credential,
	})
	var handle string
	if genErr == nil {
		handle = o.media.Put(res.Data, res.MimeType)
	}

	var snapshot *domain.ProductionPlan
	err = ws.mutatePlan(ctx, func(plan *domain.ProductionPlan) error {
		scene := plan.Scene(id)
		if scene == nil {
			return nil
		}
		if genErr == nil {
			scene.VideoURL = handle
		}
		scene.IsAnimating = false
		snapshot = plan.Clone()
		return nil
	})
	if genErr != nil {
		slog.WarnContext(ctx, "シーンのアニメーションに失敗しました", "session", ws.ID(), "scene", id, "provider", provider, "error", genErr)
		return genErr
	}
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "シーンをアニメーション化しました", "scene", id, "provider", provider, "elapsed", time.Since(start).Round(time.Millisecond))
	o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StageSceneVideo, SceneID: id, Plan: snapshot})
	return nil
}

// generateImage は画像を1枚生成して data URL で返します。
func (o *Orchestrator) generateImage(ctx context.Context, prompt string, references []string, aspect string) (string, error) {
	if o.imageGen == nil {
		return "", apperr.Credential(msgMissingBaseKey, nil)
	}
	images := make([]ports.ImageURI, 0, len(references))
	for _, ref := range references {
		images = append(images, ports.ImageURI{ReferenceURL: ref})
	}
	resp, err := o.imageGen.GenerateImage(ctx, ports.ImagePageRequest{
		GenerationOptions: ports.GenerationOptions{Prompt: prompt, AspectRatio: aspect},
		Images:            images,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Data) == 0 {
		return "", apperr.NoImage("Nenhuma imagem foi gerada pela API.")
	}
	return generator.DataURL(resp.MimeType, resp.Data), nil
}

// pause は次の生成呼び出しまで固定時間待つのだ。
func (o *Orchestrator) pause(ctx context.Context) error {
	if o.cfg.APIDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(o.cfg.APIDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isCanceled はキャンセル由来のエラーかどうかを返します。
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
