package prompts

import (
	"strings"
	"testing"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

func TestTextPromptBuilder_Build(t *testing.T) {
	pb, err := NewTextPromptBuilder()
	if err != nil {
		t.Fatalf("初期化に失敗したのだ: %v", err)
	}

	lib := domain.DefaultCatalog().Library()
	data := NewTemplateData("Davi enfrenta Golias", domain.DefaultAudience, domain.DefaultLanguage, lib)

	got, err := pb.Build(ModePlan, data)
	if err != nil {
		t.Fatalf("プロンプト生成に失敗したのだ: %v", err)
	}

	for _, want := range []string{
		"- Ideia da História: Davi enfrenta Golias",
		"- Público-Alvo: Infantil de 6 a 10 anos",
		"- Idioma: Português (Brasil)",
		"- Davi (Jovem): um jovem pastor",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("%q が含まれていないのだ:\n%s", want, got)
		}
	}
	if strings.Contains(got, domain.BaseStyleKey) {
		t.Error("予約キーがキャラクター一覧に出ているのだ")
	}

	if !strings.Contains(pb.SystemInstruction(ModePlan), `"cenas"`) {
		t.Error("システム指示に JSON 構造が含まれていないのだ")
	}

	if _, err := pb.Build("unknown", data); err == nil {
		t.Error("不明なモードでエラーにならないのだ")
	}
	if got := pb.SystemInstruction("unknown"); got != "" {
		t.Errorf("不明なモードのシステム指示が空ではないのだ: %q", got)
	}

	t.Run("概要が空なら組み立てないのだ", func(t *testing.T) {
		empty := NewTemplateData("  ", domain.DefaultAudience, domain.DefaultLanguage, lib)
		if _, err := pb.Build(ModePlan, empty); err == nil {
			t.Error("空の概要でエラーにならないのだ")
		}
	})

	t.Run("前後の空白は落とすのだ", func(t *testing.T) {
		if got != strings.TrimSpace(got) {
			t.Error("プロンプトの前後に空白が残っているのだ")
		}
	})

	t.Run("登録されたモードは計画だけなのだ", func(t *testing.T) {
		if len(pb.modes) != 1 {
			t.Errorf("モードの数が違うのだ: %d", len(pb.modes))
		}
		if _, ok := pb.modes[ModePlan]; !ok {
			t.Error("計画のモードがないのだ")
		}
	})
}
