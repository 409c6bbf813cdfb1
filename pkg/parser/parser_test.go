package parser

import (
	"strings"
	"testing"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
)

const planJSON = `{
  "titulo": "Davi e o Gigante",
  "youtube_thumbnail": {"prompt_16_9": "wide", "prompt_9_16": "tall", "descricao_youtube": "#davi"},
  "cenas": [
    {"dialogo": "[Davi (Jovem)] (sussurrando) Eu consigo.", "prompt_imagem": "[Davi (Jovem)] no vale", "prompt_diretor": "zoom lento"},
    {"dialogo": "Narrador: e a pedra voou!", "prompt_imagem": "uma pedra no ar", "prompt_diretor": "câmera lenta"}
  ]
}`

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"素の JSON", planJSON},
		{"コードブロック", "Aqui está:\n```json\n" + planJSON + "\n```\nBom trabalho!"},
		{"前後に説明文", "Claro! " + planJSON + " Espero que goste."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan(tt.raw)
			if err != nil {
				t.Fatalf("パースに失敗したのだ: %v", err)
			}
			if plan.Titulo != "Davi e o Gigante" {
				t.Errorf("タイトルが違うのだ: %s", plan.Titulo)
			}
			if len(plan.Cenas) != 2 || plan.Cenas[1].PromptDiretor != "câmera lenta" {
				t.Errorf("シーンが正しくパースされていないのだ: %+v", plan.Cenas)
			}
			if plan.YoutubeThumbnail == nil || plan.YoutubeThumbnail.Prompt9x16 != "tall" {
				t.Error("サムネイルが正しくパースされていないのだ")
			}
		})
	}
}

func TestParsePlan_Errors(t *testing.T) {
	t.Run("不正なJSONは upstream エラーなのだ", func(t *testing.T) {
		_, err := ParsePlan("isso não é json " + strings.Repeat("x", 300))
		if !apperr.Is(err, apperr.KindUpstream) {
			t.Fatalf("upstream エラーになっていないのだ: %v", err)
		}
		if !strings.Contains(err.Error(), "...") {
			t.Error("応答抜粋が切り詰められていないのだ")
		}
	})

	t.Run("シーンなしはエラーなのだ", func(t *testing.T) {
		if _, err := ParsePlan(`{"titulo": "vazio", "cenas": []}`); err == nil {
			t.Error("シーンなしでエラーにならないのだ")
		}
	})

	t.Run("サムネイルは省略可能なのだ", func(t *testing.T) {
		plan, err := ParsePlan(`{"titulo": "t", "cenas": [{"dialogo": "d", "prompt_imagem": "p", "prompt_diretor": "x"}]}`)
		if err != nil {
			t.Fatal(err)
		}
		if plan.YoutubeThumbnail != nil {
			t.Error("サムネイルがないはずなのだ")
		}
	})
}
