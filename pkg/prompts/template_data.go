package prompts

import (
	_ "embed"
	"sort"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

const (
	ModePlan = "plan"
)

// CharacterLine はプロンプトに列挙するキャラクター1人分なのだ。
type CharacterLine struct {
	Name        string
	Description string
}

// TemplateData は制作計画プロンプトのテンプレートに渡すデータ構造です。
type TemplateData struct {
	Idea       string
	Audience   string
	Language   string
	Characters []CharacterLine
}

var (
	//go:embed plan_system.md
	PlanSystemPrompt string
	//go:embed plan_user.md
	PlanUserPrompt string
)

// NewTemplateData はライブラリ全体からテンプレートデータを作ります。
// 予約キーは除外し、名前順に並べるのだ。
func NewTemplateData(idea, audience, language string, lib domain.CharacterLibrary) TemplateData {
	descs := lib.Descriptions()
	names := make([]string, 0, len(descs))
	for name := range descs {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]CharacterLine, 0, len(names))
	for _, name := range names {
		lines = append(lines, CharacterLine{Name: name, Description: descs[name]})
	}
	return TemplateData{
		Idea:       idea,
		Audience:   audience,
		Language:   language,
		Characters: lines,
	}
}
