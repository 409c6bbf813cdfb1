package workflow

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/shouni/gemini-image-kit/ports"
	"go.uber.org/atomic"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
)

// runCompleted は完了済みの計画を用意するヘルパーなのだ。
func runCompleted(t *testing.T, h *harness) *domain.ProductionPlan {
	t.Helper()
	out := h.orch.Run(context.Background(), h.ws, defaultBrief())
	if out.Status != StatusCompleted {
		t.Fatalf("準備の実行に失敗したのだ: %s %s", out.Status, out.Message)
	}
	return out.Plan
}

func TestRegenerateScene(t *testing.T) {
	ctx := context.Background()

	t.Run("対象のシーンだけを置き換えるのだ", func(t *testing.T) {
		h := newHarness(t)
		before := runCompleted(t, h)
		h.imageGen.prefix = "novo"

		scene, err := h.orch.RegenerateScene(ctx, h.ws, 2)
		if err != nil {
			t.Fatalf("再生成に失敗したのだ: %v", err)
		}
		if scene.ImageURL == before.Cenas[1].ImageURL || scene.IsGenerating {
			t.Errorf("シーン2が更新されていないのだ: %+v", scene)
		}

		after := h.ws.Plan()
		for _, i := range []int{0, 2} {
			if !reflect.DeepEqual(after.Cenas[i], before.Cenas[i]) {
				t.Errorf("シーン %d が変わってしまったのだ:\n%+v\n%+v", i+1, before.Cenas[i], after.Cenas[i])
			}
		}

		last := h.imageGen.requests()[len(h.imageGen.requests())-1]
		if len(last.Images) != 1 || !strings.HasPrefix(last.Prompt, "(person 1) ilumina o vale") {
			t.Errorf("再生成でも同じ置換規則を使うはずなのだ: %+v", last)
		}
	})

	t.Run("失敗しても以前の画像を残すのだ", func(t *testing.T) {
		h := newHarness(t)
		before := runCompleted(t, h)
		h.imageGen.setFail(func(int, ports.ImagePageRequest) error {
			return apperr.Limit("Limite de uso da API atingido.", nil)
		})

		_, err := h.orch.RegenerateScene(ctx, h.ws, 1)
		if !apperr.Is(err, apperr.KindLimit) {
			t.Fatalf("期待値 limit, 実際の値 %v", err)
		}
		after := h.ws.Plan()
		if !reflect.DeepEqual(after.Cenas, before.Cenas) {
			t.Error("失敗した再生成でシーンが変わったのだ")
		}
	})

	t.Run("存在しないシーン", func(t *testing.T) {
		h := newHarness(t)
		runCompleted(t, h)
		if _, err := h.orch.RegenerateScene(ctx, h.ws, 99); !apperr.Is(err, apperr.KindNotFound) {
			t.Errorf("期待値 not_found, 実際の値 %v", err)
		}
	})

	t.Run("計画がない場合", func(t *testing.T) {
		h := newHarness(t)
		if _, err := h.orch.RegenerateScene(ctx, h.ws, 1); !apperr.Is(err, apperr.KindNotFound) {
			t.Errorf("期待値 not_found, 実際の値 %v", err)
		}
	})
}

func TestRegenerateThumbnail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	before := runCompleted(t, h)
	h.imageGen.prefix = "novo"

	thumb, err := h.orch.RegenerateThumbnail(ctx, h.ws, domain.AspectPortrait)
	if err != nil {
		t.Fatalf("サムネイルの再生成に失敗したのだ: %v", err)
	}
	if thumb.ImageURL9x16 == before.YoutubeThumbnail.ImageURL9x16 {
		t.Error("9:16 が更新されていないのだ")
	}
	if thumb.ImageURL16x9 != before.YoutubeThumbnail.ImageURL16x9 {
		t.Error("16:9 が変わってしまったのだ")
	}
	if !reflect.DeepEqual(h.ws.Plan().Cenas, before.Cenas) {
		t.Error("シーンが変わってしまったのだ")
	}

	h.imageGen.setFail(func(int, ports.ImagePageRequest) error { return errors.New("boom") })
	if _, err := h.orch.RegenerateThumbnail(ctx, h.ws, domain.AspectLandscape); err == nil {
		t.Fatal("失敗が返っていないのだ")
	}
	got := h.ws.Plan().YoutubeThumbnail
	if got.IsGenerating16x9 || got.ImageURL16x9 != before.YoutubeThumbnail.ImageURL16x9 {
		t.Errorf("失敗時の状態が違うのだ: %+v", got)
	}
}

func TestAnimateScene(t *testing.T) {
	ctx := context.Background()

	t.Run("課金キーがなければ呼び出さないのだ", func(t *testing.T) {
		h := newHarness(t)
		runCompleted(t, h)
		h.prober.ok = false
		if _, err := h.orch.AnimateScene(ctx, h.ws, 1, domain.ProviderGemini, ""); !apperr.Is(err, apperr.KindKeySelection) {
			t.Fatalf("期待値 key_selection, 実際の値 %v", err)
		}
		if len(h.videos[domain.ProviderGemini].calls) != 0 {
			t.Error("動画生成が呼ばれたのだ")
		}
	})

	t.Run("1シーンだけ動画を付けるのだ", func(t *testing.T) {
		h := newHarness(t)
		runCompleted(t, h)
		scene, err := h.orch.AnimateScene(ctx, h.ws, 2, domain.ProviderGemini, "")
		if err != nil {
			t.Fatalf("アニメーションに失敗したのだ: %v", err)
		}
		if scene.VideoURL == "" || scene.IsAnimating {
			t.Errorf("シーンの状態が違うのだ: %+v", scene)
		}
		plan := h.ws.Plan()
		if plan.Cenas[0].VideoURL != "" || plan.Cenas[2].VideoURL != "" {
			t.Error("他のシーンに動画が付いたのだ")
		}
	})

	t.Run("失敗は対象シーンに留まるのだ", func(t *testing.T) {
		h := newHarness(t)
		runCompleted(t, h)
		if _, err := h.orch.AnimateScene(ctx, h.ws, 1, domain.ProviderOpenAI, "sk"); err != nil {
			t.Fatalf("準備のアニメーションに失敗したのだ: %v", err)
		}
		previous := h.ws.Plan().Cenas[0].VideoURL

		h.videos[domain.ProviderOpenAI].err = errors.New("timeout")
		if _, err := h.orch.AnimateScene(ctx, h.ws, 1, domain.ProviderOpenAI, "sk"); err == nil {
			t.Fatal("失敗が返っていないのだ")
		}
		s := h.ws.Plan().Cenas[0]
		if s.VideoURL != previous || s.IsAnimating {
			t.Errorf("以前の動画が残っていないのだ: %+v", s)
		}
	})

	t.Run("OpenAI のキーが必要なのだ", func(t *testing.T) {
		h := newHarness(t)
		runCompleted(t, h)
		if _, err := h.orch.AnimateScene(ctx, h.ws, 1, domain.ProviderOpenAI, " "); !apperr.Is(err, apperr.KindCredential) {
			t.Errorf("期待値 credential, 実際の値 %v", err)
		}
	})
}

func TestPreviewCharacter(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	traits := domain.CharacterTraits{Name: " Noé ", Body: "robusto", HairLength: "curto", HairStyle: "grisalho", Clothing: "uma túnica marrom"}
	payload, err := h.orch.PreviewCharacter(ctx, h.ws, traits)
	if err != nil {
		t.Fatalf("プレビューに失敗したのだ: %v", err)
	}
	if payload.Name != "Noé" || !strings.HasPrefix(payload.Description, "um(a) Noé em estilo 3D cartoon") {
		t.Errorf("ペイロードが違うのだ: %+v", payload)
	}
	if !strings.HasPrefix(payload.ImageURL, "data:image/png;base64,") {
		t.Errorf("肖像が data URL ではないのだ: %q", payload.ImageURL)
	}
	req := h.imageGen.requests()[0]
	if !strings.HasSuffix(req.Prompt, ", character portrait, white background") {
		t.Errorf("作成画面のプロンプトが違うのだ: %q", req.Prompt)
	}

	if _, err := h.orch.PreviewCharacter(ctx, h.ws, domain.CharacterTraits{Name: "eva"}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("重複した名前は validation のはずなのだ: %v", err)
	}
	if _, err := h.orch.PreviewCharacter(ctx, h.ws, domain.CharacterTraits{}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("空の名前は validation のはずなのだ: %v", err)
	}
}

func TestFillMissingPortraits(t *testing.T) {
	ctx := context.Background()

	t.Run("失敗はマーカーにして続けるのだ", func(t *testing.T) {
		h := newHarness(t)
		lib := h.ws.Library()
		h.imageGen.setFail(func(_ int, req ports.ImagePageRequest) error {
			if strings.HasPrefix(req.Prompt, lib["Eva"]) {
				return errors.New("boom")
			}
			return nil
		})

		n, err := h.orch.FillMissingPortraits(ctx, h.ws, atomic.NewBool(false))
		if err != nil {
			t.Fatalf("補完に失敗したのだ: %v", err)
		}
		total := len(h.ws.Names())
		if n != total-1 {
			t.Errorf("生成数が違うのだ: %d / %d", n, total)
		}
		cache := h.ws.ImageCache()
		if cache["Eva"] != prompts.PortraitErrorMarker {
			t.Errorf("失敗マーカーがないのだ: %q", cache["Eva"])
		}
		if len(cache) != total {
			t.Errorf("全員分のキャッシュがないのだ: %d", len(cache))
		}

		// 失敗マーカーも含めてキャッシュ済みなので2回目は何もしないのだ
		calls := len(h.imageGen.requests())
		if n, _ := h.orch.FillMissingPortraits(ctx, h.ws, nil); n != 0 || len(h.imageGen.requests()) != calls {
			t.Error("キャッシュ済みのキャラクターを再生成したのだ")
		}
	})

	t.Run("キャンセル後は結果を書かないのだ", func(t *testing.T) {
		h := newHarness(t)
		cancel := atomic.NewBool(false)
		h.imageGen.hook = func(n int) {
			if n == 1 {
				cancel.Store(true)
			}
		}

		n, err := h.orch.FillMissingPortraits(ctx, h.ws, cancel)
		if err != nil {
			t.Fatalf("補完に失敗したのだ: %v", err)
		}
		if n != 1 || len(h.ws.ImageCache()) != 1 {
			t.Errorf("キャンセル後に書き込まれたのだ: n=%d cache=%v", n, h.ws.ImageCache())
		}
		if len(h.imageGen.requests()) != 2 {
			t.Errorf("キャンセル後に次の呼び出しをしたのだ: %d", len(h.imageGen.requests()))
		}
	})

	t.Run("失敗マーカーは実行時の肖像に使わないのだ", func(t *testing.T) {
		h := newHarness(t)
		h.ws.setCachedPortrait("Davi (Jovem)", prompts.PortraitErrorMarker)
		runCompleted(t, h)
		if p := h.ws.Portraits()["Davi (Jovem)"]; p == prompts.PortraitErrorMarker || p == "" {
			t.Errorf("失敗マーカーが肖像として使われたのだ: %q", p)
		}
	})
}
