package prompts

import (
	"fmt"
	"strings"
	"text/template"
)

// PromptBuilder は、AIプロンプトを構築する契約です。
type PromptBuilder interface {
	Build(mode string, data TemplateData) (string, error)
	SystemInstruction(mode string) string
}

// modeSource はモードごとのシステム指示とユーザープロンプトの組なのだ。
type modeSource struct {
	system string
	user   string
}

// sources に登録されたモードだけが使えます。現在は ModePlan (制作計画) のみなのだ。
var sources = map[string]modeSource{
	ModePlan: {system: PlanSystemPrompt, user: PlanUserPrompt},
}

type compiledMode struct {
	system string
	user   *template.Template
}

// TextPromptBuilder は埋め込みの Markdown から制作計画のプロンプトを組み立てます。
// 扱うモードは ModePlan だけで、画像用のプロンプトは ComposeScene などの関数で作るのだ。
type TextPromptBuilder struct {
	modes map[string]compiledMode
}

// NewTextPromptBuilder は埋め込みテンプレートを解析して TextPromptBuilder を作ります。
func NewTextPromptBuilder() (*TextPromptBuilder, error) {
	modes := make(map[string]compiledMode, len(sources))
	for mode, src := range sources {
		system := strings.TrimSpace(src.system)
		if system == "" || strings.TrimSpace(src.user) == "" {
			return nil, fmt.Errorf("モード '%s' の埋め込みプロンプトが空です", mode)
		}
		tmpl, err := template.New(mode).Option("missingkey=error").Parse(src.user)
		if err != nil {
			return nil, fmt.Errorf("モード '%s' のテンプレート解析に失敗しました: %w", mode, err)
		}
		modes[mode] = compiledMode{system: system, user: tmpl}
	}
	return &TextPromptBuilder{modes: modes}, nil
}

// Build はモードのユーザープロンプトにデータを流し込みます。
// 概要が空のままでは計画を作れないので、テンプレートを実行する前に弾くのだ。
func (b *TextPromptBuilder) Build(mode string, data TemplateData) (string, error) {
	m, ok := b.modes[mode]
	if !ok {
		return "", fmt.Errorf("不明なモードです: '%s'", mode)
	}
	if strings.TrimSpace(data.Idea) == "" {
		return "", fmt.Errorf("ストーリーの概要が空です")
	}

	var sb strings.Builder
	if err := m.user.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("モード '%s' のプロンプト生成に失敗しました: %w", mode, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

// SystemInstruction はモードのシステム指示を返します。不明なモードなら空文字なのだ。
func (b *TextPromptBuilder) SystemInstruction(mode string) string {
	return b.modes[mode].system
}
