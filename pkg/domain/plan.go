package domain

import (
	"regexp"
	"strings"
)

// AspectRatio はサムネイルの縦横比です。
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
)

// DefaultExportFileName はタイトルが空の場合に使うエクスポート名なのだ。
const DefaultExportFileName = "plano_de_producao.json"

var whitespaceRun = regexp.MustCompile(`\s+`)

// ProductionPlan は1本のストーリーの制作計画全体です。
// 生成 AI の応答からまとめて作られ、画像や動画の完了に合わせて段階的に埋まっていきます。
type ProductionPlan struct {
	Titulo           string            `json:"titulo"`
	YoutubeThumbnail *YouTubeThumbnail `json:"youtube_thumbnail,omitempty"`
	Cenas            []Scene           `json:"cenas"`
}

// Scene は計画の1シーンなのだ。ID は作成時に振られ、以後変わりません。
type Scene struct {
	ID            int    `json:"id"`
	Dialogo       string `json:"dialogo"`
	PromptImagem  string `json:"prompt_imagem"`
	PromptDiretor string `json:"prompt_diretor"`
	ImageURL      string `json:"imageUrl,omitempty"`
	IsGenerating  bool   `json:"isGenerating,omitempty"`
	VideoURL      string `json:"videoUrl,omitempty"`
	IsAnimating   bool   `json:"isAnimating,omitempty"`
}

// YouTubeThumbnail は2種類の縦横比のサムネイルを保持します。
// 縦横比ごとに独立して再生成できるのだ。
type YouTubeThumbnail struct {
	Prompt16x9       string `json:"prompt_16_9"`
	Prompt9x16       string `json:"prompt_9_16"`
	DescricaoYoutube string `json:"descricao_youtube"`
	ImageURL16x9     string `json:"imageUrl_16_9,omitempty"`
	ImageURL9x16     string `json:"imageUrl_9_16,omitempty"`
	IsGenerating16x9 bool   `json:"isGenerating_16_9,omitempty"`
	IsGenerating9x16 bool   `json:"isGenerating_9_16,omitempty"`
}

// Prompt は縦横比に対応するプロンプトを返します。
func (t *YouTubeThumbnail) Prompt(ratio AspectRatio) string {
	if ratio == AspectPortrait {
		return t.Prompt9x16
	}
	return t.Prompt16x9
}

// Image は縦横比に対応する画像ハンドルを返します。
func (t *YouTubeThumbnail) Image(ratio AspectRatio) string {
	if ratio == AspectPortrait {
		return t.ImageURL9x16
	}
	return t.ImageURL16x9
}

// SetImage は縦横比に対応する画像ハンドルを設定します。
func (t *YouTubeThumbnail) SetImage(ratio AspectRatio, url string) {
	if ratio == AspectPortrait {
		t.ImageURL9x16 = url
		return
	}
	t.ImageURL16x9 = url
}

// SetGenerating は縦横比に対応する処理中フラグを設定します。
func (t *YouTubeThumbnail) SetGenerating(ratio AspectRatio, busy bool) {
	if ratio == AspectPortrait {
		t.IsGenerating9x16 = busy
		return
	}
	t.IsGenerating16x9 = busy
}

// ParseAspectRatio は文字列を AspectRatio に変換するのだ。"16x9" 表記も受け付けます。
func ParseAspectRatio(s string) (AspectRatio, bool) {
	switch strings.ReplaceAll(strings.TrimSpace(s), "x", ":") {
	case string(AspectLandscape):
		return AspectLandscape, true
	case string(AspectPortrait):
		return AspectPortrait, true
	}
	return "", false
}

// AssignSceneIDs は入力順に 1 から連番を振り、全シーンを画像生成待ちにします。
func (p *ProductionPlan) AssignSceneIDs() {
	for i := range p.Cenas {
		p.Cenas[i].ID = i + 1
		p.Cenas[i].IsGenerating = true
	}
}

// Scene は ID からシーンへのポインタを返すのだ。見つからなければ nil です。
func (p *ProductionPlan) Scene(id int) *Scene {
	for i := range p.Cenas {
		if p.Cenas[i].ID == id {
			return &p.Cenas[i]
		}
	}
	return nil
}

// Clone は計画のディープコピーを返します。
func (p *ProductionPlan) Clone() *ProductionPlan {
	if p == nil {
		return nil
	}
	copied := *p
	if p.YoutubeThumbnail != nil {
		thumb := *p.YoutubeThumbnail
		copied.YoutubeThumbnail = &thumb
	}
	copied.Cenas = make([]Scene, len(p.Cenas))
	copy(copied.Cenas, p.Cenas)
	return &copied
}

// WithoutVideos は動画ハンドルを取り除いたエクスポート用のコピーを返すのだ。
// 動画ハンドルは一時的なもので、永続的な URL ではないからです。
func (p *ProductionPlan) WithoutVideos() *ProductionPlan {
	copied := p.Clone()
	if copied == nil {
		return nil
	}
	for i := range copied.Cenas {
		copied.Cenas[i].VideoURL = ""
		copied.Cenas[i].IsAnimating = false
	}
	return copied
}

// ExportFileName はタイトルの空白を "_" に置き換えたファイル名を返します。
func (p *ProductionPlan) ExportFileName() string {
	title := strings.TrimSpace(p.Titulo)
	if title == "" {
		return DefaultExportFileName
	}
	return whitespaceRun.ReplaceAllString(title, "_") + ".json"
}
