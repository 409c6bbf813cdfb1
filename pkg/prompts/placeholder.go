package prompts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// PortraitErrorMarker は生成に失敗した肖像のキャッシュ値なのだ。参照画像としては使いません。
const PortraitErrorMarker = "error"

// Placeholder はキャラクター名のプレースホルダー表記 "[Name]" を返します。
func Placeholder(name string) string {
	return "[" + name + "]"
}

// placeholderPattern は名前をリテラルとして扱う正規表現を作るのだ。
func placeholderPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`\[` + regexp.QuoteMeta(name) + `\]`)
}

// ReplacePlaceholder は "[name]" のすべての出現を replacement に置き換えます。
// 一致は大文字小文字を区別する完全一致で、名前が含まれなければ prompt をそのまま返すのだ。
func ReplacePlaceholder(prompt, name, replacement string) string {
	if !strings.Contains(prompt, Placeholder(name)) {
		return prompt
	}
	return placeholderPattern(name).ReplaceAllLiteralString(prompt, replacement)
}

// ScenePrompt はシーン画像生成リクエストの材料なのだ。
type ScenePrompt struct {
	// Text はベーススタイルまで付与した最終プロンプトです。
	Text string
	// References は (person i) の順に並んだ肖像画像なのだ。空ならテキストのみで生成します。
	References []string
	// Referenced は References に対応するキャラクター名です。
	Referenced []string
}

// SceneCast はシーンの置換に必要なキャラクター情報をまとめたものです。
type SceneCast struct {
	Selected  []string
	Catalog   *domain.Catalog
	Library   domain.CharacterLibrary
	Portraits map[string]string
}

// usablePortrait は参照画像として使える肖像かどうかを返します。
func usablePortrait(url string) bool {
	return url != "" && url != PortraitErrorMarker
}

// ComposeScene はシーンの画像プロンプトのプレースホルダーを置換します。
//
// 肖像を持つ組み込みキャラクターがプロンプト内で参照されていれば、
// それらを選択順に "(person 1)", "(person 2)" … へ置き換え、肖像を参照画像にするのだ。
// それ以外の選択済みキャラクターは説明文 "(desc)" に置き換えます。
// 参照がなければ、すべての選択済みキャラクターを説明文に置き換えてテキストのみで生成します。
func ComposeScene(scenePrompt string, cast SceneCast) ScenePrompt {
	var inScene []string
	var refs []string
	for _, name := range cast.Selected {
		if cast.Catalog == nil || !cast.Catalog.IsPredefined(name) {
			continue
		}
		if !strings.Contains(scenePrompt, Placeholder(name)) {
			continue
		}
		portrait := cast.Portraits[name]
		if !usablePortrait(portrait) {
			continue
		}
		inScene = append(inScene, name)
		refs = append(refs, portrait)
	}

	text := scenePrompt
	referenced := make(map[string]struct{}, len(inScene))
	for i, name := range inScene {
		text = ReplacePlaceholder(text, name, fmt.Sprintf("(person %d)", i+1))
		referenced[name] = struct{}{}
	}
	for _, name := range cast.Selected {
		if _, ok := referenced[name]; ok {
			continue
		}
		if !cast.Library.Has(name) {
			continue
		}
		text = ReplacePlaceholder(text, name, "("+cast.Library[name]+")")
	}

	return ScenePrompt{
		Text:       WithBaseStyle(text, cast.Library.BaseStyle()),
		References: refs,
		Referenced: inScene,
	}
}

// WithBaseStyle はプロンプトの末尾にベーススタイルを付与するのだ。
func WithBaseStyle(prompt, baseStyle string) string {
	return prompt + ", " + baseStyle
}

// PortraitPrompt は一括生成時のキャラクター肖像プロンプトです。
func PortraitPrompt(description, baseStyle string) string {
	return description + ", character portrait, " + baseStyle + ", simple background"
}

// ThumbnailPrompt はサムネイルのプロンプトです。
func ThumbnailPrompt(prompt, baseStyle string) string {
	return WithBaseStyle(prompt, baseStyle)
}

// GalleryPortraitPrompt はキャラクター作成とギャラリー補完で使う肖像プロンプトなのだ。
func GalleryPortraitPrompt(description, baseStyle string) string {
	return description + ", " + baseStyle + ", character portrait, white background"
}
