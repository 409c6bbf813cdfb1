package prompts

import (
	"reflect"
	"strings"
	"testing"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

func TestReplacePlaceholder(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		char   string
		repl   string
		want   string
	}{
		{"すべての出現を置換", "[Eva] e [Eva]", "Eva", "(X)", "(X) e (X)"},
		{"括弧を含む名前もリテラル一致", "[Davi (Jovem)] corre", "Davi (Jovem)", "(person 1)", "(person 1) corre"},
		{"大文字小文字は区別する", "[eva] sorri", "Eva", "(X)", "[eva] sorri"},
		{"名前がなければ変化なし", "um campo vazio", "Eva", "(X)", "um campo vazio"},
		{"置換文字列の $ はそのまま", "[Eva]", "Eva", "($1 moeda)", "($1 moeda)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReplacePlaceholder(tt.prompt, tt.char, tt.repl); got != tt.want {
				t.Errorf("期待値 %q, 実際の値 %q", tt.want, got)
			}
		})
	}

	t.Run("置換は冪等なのだ", func(t *testing.T) {
		once := ReplacePlaceholder("[Eva] canta", "Eva", "(mulher)")
		twice := ReplacePlaceholder(once, "Eva", "(mulher)")
		if once != twice {
			t.Errorf("2回目で結果が変わったのだ: %q -> %q", once, twice)
		}
	})
}

func newCast(selected []string, portraits map[string]string) SceneCast {
	catalog := domain.DefaultCatalog()
	lib := catalog.Library()
	lib["Golias"] = "um gigante filisteu"
	return SceneCast{
		Selected:  selected,
		Catalog:   catalog,
		Library:   lib,
		Portraits: portraits,
	}
}

func TestComposeScene(t *testing.T) {
	base := domain.DefaultBaseStyle

	t.Run("参照画像ありの場合は person 表記と説明文に置換するのだ", func(t *testing.T) {
		cast := newCast(
			[]string{"Deus (Luz Divina)", "Davi (Jovem)", "Golias"},
			map[string]string{"Davi (Jovem)": "data:image/png;base64,DAVI", "Deus (Luz Divina)": "data:image/png;base64,DEUS"},
		)
		got := ComposeScene("[Davi (Jovem)] enfrenta [Golias] sob [Deus (Luz Divina)]", cast)

		want := "(person 2) enfrenta (um gigante filisteu) sob (person 1), " + base
		if got.Text != want {
			t.Errorf("期待値 %q,\n実際の値 %q", want, got.Text)
		}
		if !reflect.DeepEqual(got.References, []string{"data:image/png;base64,DEUS", "data:image/png;base64,DAVI"}) {
			t.Errorf("参照画像の順序が違うのだ: %v", got.References)
		}
		if !reflect.DeepEqual(got.Referenced, []string{"Deus (Luz Divina)", "Davi (Jovem)"}) {
			t.Errorf("参照キャラクターが違うのだ: %v", got.Referenced)
		}
	})

	t.Run("参照がなければ全員を説明文に置換するのだ", func(t *testing.T) {
		cast := newCast([]string{"Eva", "Golias"}, map[string]string{})
		got := ComposeScene("[Eva] e [Golias]", cast)

		if len(got.References) != 0 {
			t.Errorf("参照画像があってはいけないのだ: %v", got.References)
		}
		if !strings.HasPrefix(got.Text, "(uma mulher em estilo 3D cartoon") || !strings.Contains(got.Text, "(um gigante filisteu)") {
			t.Errorf("説明文への置換ができていないのだ: %q", got.Text)
		}
	})

	t.Run("失敗マーカーの肖像は参照にしないのだ", func(t *testing.T) {
		cast := newCast([]string{"Eva"}, map[string]string{"Eva": PortraitErrorMarker})
		got := ComposeScene("[Eva]", cast)
		if len(got.References) != 0 {
			t.Error("失敗マーカーが参照画像になっているのだ")
		}
	})

	t.Run("未選択のキャラクターは置換しないのだ", func(t *testing.T) {
		cast := newCast([]string{"Eva"}, nil)
		got := ComposeScene("[Adão] e [Eva]", cast)
		if !strings.HasPrefix(got.Text, "[Adão] e (") {
			t.Errorf("未選択のキャラクターが置換されたのだ: %q", got.Text)
		}
	})

	t.Run("カスタムキャラクターは参照画像にならないのだ", func(t *testing.T) {
		cast := newCast([]string{"Golias"}, map[string]string{"Golias": "data:image/png;base64,GOL"})
		got := ComposeScene("[Golias] ri", cast)
		if len(got.References) != 0 {
			t.Error("カスタムキャラクターの肖像が参照になっているのだ")
		}
	})
}

func TestPromptHelpers(t *testing.T) {
	if got := PortraitPrompt("desc", "base"); got != "desc, character portrait, base, simple background" {
		t.Errorf("肖像プロンプトが違うのだ: %q", got)
	}
	if got := ThumbnailPrompt("thumb", "base"); got != "thumb, base" {
		t.Errorf("サムネイルプロンプトが違うのだ: %q", got)
	}
	if got := GalleryPortraitPrompt("desc", "base"); got != "desc, base, character portrait, white background" {
		t.Errorf("ギャラリープロンプトが違うのだ: %q", got)
	}
}
