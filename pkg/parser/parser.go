package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

const excerptLen = 200

// ParsePlan は AI の応答テキストから制作計画を取り出します。
// コードブロック、最も外側の {} の順に JSON を探し、どちらもなければ全体を JSON とみなすのだ。
func ParsePlan(raw string) (*domain.ProductionPlan, error) {
	rawJSON := ExtractJSON(raw)

	var plan domain.ProductionPlan
	if err := json.Unmarshal([]byte(rawJSON), &plan); err != nil {
		return nil, apperr.Upstream(
			"A resposta da IA não é um plano de produção válido.",
			fmt.Errorf("AIからの応答に含まれるJSONの解析に失敗しました (応答抜粋: %q): %w", truncateString(raw, excerptLen), err),
		)
	}
	if len(plan.Cenas) == 0 {
		return nil, apperr.Upstream(
			"O plano de produção retornado não contém cenas.",
			fmt.Errorf("応答に cenas が含まれていないのだ (応答抜粋: %q)", truncateString(raw, excerptLen)),
		)
	}
	return &plan, nil
}

// ExtractJSON は応答テキストから JSON 部分を切り出すのだ。
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if matches := jsonBlockRegex.FindStringSubmatch(raw); len(matches) > 1 {
		return matches[1]
	}

	firstBracket := strings.Index(raw, "{")
	lastBracket := strings.LastIndex(raw, "}")
	if firstBracket != -1 && lastBracket > firstBracket {
		return raw[firstBracket : lastBracket+1]
	}
	return raw
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
