package publisher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// tagRegex は台詞中のキャラクタープレースホルダー [名前] に一致します。
var tagRegex = regexp.MustCompile(`\[([^\]]+)\]`)

// BuildScript は計画を読み合わせ用の Markdown 台本にします。
// images はファイル名の語幹から画像の相対パスへの対応で、ない画像は載せないのだ。
func BuildScript(plan *domain.ProductionPlan, images map[string]string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s\n\n", plan.Titulo))

	if t := plan.YoutubeThumbnail; t != nil {
		sb.WriteString("## YouTube\n\n")
		if t.DescricaoYoutube != "" {
			sb.WriteString(t.DescricaoYoutube + "\n\n")
		}
		for _, ratio := range []domain.AspectRatio{domain.AspectLandscape, domain.AspectPortrait} {
			if img, ok := images[thumbnailStem(ratio)]; ok {
				sb.WriteString(fmt.Sprintf("![Thumbnail %s](%s)\n\n", ratio, img))
			}
		}
	}

	for _, scene := range plan.Cenas {
		sb.WriteString(fmt.Sprintf("## Cena %d\n\n", scene.ID))
		if img, ok := images[sceneImageStem(scene.ID)]; ok {
			sb.WriteString(fmt.Sprintf("![Cena %d](%s)\n\n", scene.ID, img))
		}
		if text := speakable(scene.Dialogo); text != "" {
			sb.WriteString(fmt.Sprintf("> %s\n\n", text))
		}
		if scene.PromptDiretor != "" {
			sb.WriteString(fmt.Sprintf("- direção: %s\n\n", strings.TrimSpace(scene.PromptDiretor)))
		}
	}
	return sb.String()
}

// speakable は台詞から角括弧を外して1行にまとめるのだ。
func speakable(dialogue string) string {
	text := tagRegex.ReplaceAllString(dialogue, "$1")
	return strings.Join(strings.Fields(text), " ")
}
