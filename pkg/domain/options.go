package domain

// VideoProvider はシーンのアニメーションを担当するプロバイダーです。
type VideoProvider string

const (
	ProviderGemini VideoProvider = "gemini"
	ProviderOpenAI VideoProvider = "openai"
)

// Valid は既知のプロバイダーかどうかを返すのだ。
func (p VideoProvider) Valid() bool {
	return p == ProviderGemini || p == ProviderOpenAI
}

// Option は選択肢の値と表示ラベルの組です。
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// DefaultLanguage と DefaultAudience はフォームの初期値なのだ。
const (
	DefaultLanguage = "Português (Brasil)"
	DefaultAudience = "Infantil de 6 a 10 anos"
)

// Languages は台本の言語の選択肢です。
var Languages = []Option{
	{Value: "Português (Brasil)", Label: "🇧🇷 Português (Brasil)"},
	{Value: "English", Label: "🇺🇸 English"},
	{Value: "Español", Label: "🇪🇸 Español"},
}

// Audiences は対象視聴者の選択肢です。
var Audiences = []Option{
	{Value: "Infantil de 0 a 2 anos", Label: "👶 Infantil (0-2 anos)"},
	{Value: "Infantil de 3 a 5 anos", Label: "🧒 Infantil (3-5 anos)"},
	{Value: "Infantil de 6 a 10 anos", Label: "👧 Infantil (6-10 anos)"},
	{Value: "Adolescente de 11 a 15 anos", Label: "🧑 Adolescente (11-15 anos)"},
	{Value: "Jovem de 16 a 29 anos", Label: "🧑‍🎓 Jovem (16-29 anos)"},
}
