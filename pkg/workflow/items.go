package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/atomic"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
)

// RegenerateScene は1つのシーンの画像だけを作り直します。
// 他のシーンには触れず、失敗した場合は以前の画像を残して処理中フラグだけ戻すのだ。
func (o *Orchestrator) RegenerateScene(ctx context.Context, ws *Workspace, id int) (*domain.Scene, error) {
	if o.imageGen == nil {
		return nil, apperr.Credential(msgMissingBaseKey, nil)
	}
	if _, err := o.renderScene(ctx, ws, id, nil); err != nil {
		o.reportItemError(ctx, ws, id, err)
		return nil, err
	}
	if err := o.pause(ctx); err != nil {
		return nil, err
	}
	return ws.scene(id)
}

// RegenerateThumbnail は指定した縦横比のサムネイルだけを作り直します。
func (o *Orchestrator) RegenerateThumbnail(ctx context.Context, ws *Workspace, ratio domain.AspectRatio) (*domain.YouTubeThumbnail, error) {
	if o.imageGen == nil {
		return nil, apperr.Credential(msgMissingBaseKey, nil)
	}
	plan := ws.Plan()
	if plan == nil {
		return nil, apperr.NotFound(msgNoPlan)
	}
	if plan.YoutubeThumbnail == nil {
		return nil, apperr.NotFound(msgNoThumbnail)
	}

	o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StageThumbnail, Message: fmt.Sprintf(progressThumbnailFmt, ratio)})
	if err := o.renderThumbnail(ctx, ws, ratio); err != nil {
		o.reportItemError(ctx, ws, 0, err)
		return nil, err
	}

	thumb := *ws.Plan().YoutubeThumbnail
	return &thumb, nil
}

// AnimateScene は1つのシーンを手動でアニメーション化するのだ。
// 動画の失敗はこのシーンだけに留まり、以前の動画は残ります。
func (o *Orchestrator) AnimateScene(ctx context.Context, ws *Workspace, id int, provider domain.VideoProvider, credential string) (*domain.Scene, error) {
	if provider == "" {
		provider = domain.ProviderGemini
	}
	if !provider.Valid() {
		return nil, apperr.Validation(msgUnknownProvider)
	}
	switch provider {
	case domain.ProviderGemini:
		if o.prober == nil || !o.prober.HasBillingKey(ctx) {
			return nil, apperr.KeySelection(msgBillingKeyRequired, nil)
		}
	case domain.ProviderOpenAI:
		if strings.TrimSpace(credential) == "" {
			return nil, apperr.Credential(msgMissingOpenAIKey, nil)
		}
	}

	scene, err := ws.scene(id)
	if err != nil {
		return nil, err
	}
	if scene.ImageURL == "" {
		return nil, apperr.Validation(msgSceneWithoutImage)
	}

	if err := o.animate(ctx, ws, id, scene.ImageURL, provider, credential); err != nil {
		o.reportItemError(ctx, ws, id, err)
		return nil, err
	}
	return ws.scene(id)
}

// PreviewCharacter は作成画面の特徴から説明文と肖像を生成します。
// 保存はせず、AddCustomCharacter に渡すペイロードを返すのだ。
func (o *Orchestrator) PreviewCharacter(ctx context.Context, ws *Workspace, traits domain.CharacterTraits) (*domain.NewCharacterPayload, error) {
	name := strings.TrimSpace(traits.Name)
	if name == "" || name == domain.BaseStyleKey {
		return nil, apperr.Validation(msgInvalidCharacterName)
	}
	lib := ws.Library()
	if lib.HasFold(name) {
		return nil, apperr.Validation(msgDuplicateCharacter)
	}

	traits.Name = name
	desc := traits.Description()
	o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StageCharacter, Character: name, Message: fmt.Sprintf(progressPortraitFmt, name)})

	url, err := o.generateImage(ctx, prompts.GalleryPortraitPrompt(desc, lib.BaseStyle()), nil, "")
	if err != nil {
		return nil, err
	}
	return &domain.NewCharacterPayload{Name: name, Description: desc, ImageURL: url}, nil
}

// FillMissingPortraits はギャラリー表示のため、キャッシュにないキャラクターの肖像を順に生成します。
//
// 失敗したキャラクターには失敗マーカーを入れて次へ進むのだ。
// cancel が立つと次のキャラクターへ進まず、立った後に届いた結果はキャッシュに書きません。
// 実行中の呼び出し自体は中断しません。
func (o *Orchestrator) FillMissingPortraits(ctx context.Context, ws *Workspace, cancel *atomic.Bool) (int, error) {
	if cancel == nil {
		cancel = atomic.NewBool(false)
	}
	if o.imageGen == nil {
		return 0, apperr.Credential(msgMissingBaseKey, nil)
	}

	lib := ws.Library()
	generated := 0
	for _, name := range ws.Names() {
		if cancel.Load() {
			break
		}
		if err := ctx.Err(); err != nil {
			return generated, err
		}
		if ws.hasCacheEntry(name) {
			continue
		}

		o.reporter.Report(ctx, Event{SessionID: ws.ID(), Stage: StageCharacter, Character: name, Message: fmt.Sprintf(progressPortraitFmt, name)})
		url, err := o.generateImage(ctx, prompts.GalleryPortraitPrompt(lib[name], lib.BaseStyle()), nil, "")
		if cancel.Load() {
			break
		}
		switch {
		case err == nil:
			ws.setCachedPortrait(name, url)
			generated++
		case isCanceled(err):
			return generated, err
		default:
			slog.WarnContext(ctx, "ギャラリーの肖像生成に失敗しました", "session", ws.ID(), "character", name, "error", err)
			ws.setCachedPortrait(name, prompts.PortraitErrorMarker)
		}

		if err := o.pause(ctx); err != nil {
			return generated, err
		}
	}
	return generated, nil
}

// reportItemError は単体操作の失敗を通知します。
func (o *Orchestrator) reportItemError(ctx context.Context, ws *Workspace, sceneID int, err error) {
	out := newOutcome(nil, err)
	o.reporter.Report(ctx, Event{
		SessionID: ws.ID(),
		Stage:     StageError,
		SceneID:   sceneID,
		Message:   out.Message,
		Status:    out.Status,
	})
}
