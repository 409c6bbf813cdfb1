package domain

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CharacterTraits はキャラクター作成フォームの入力項目なのだ。
type CharacterTraits struct {
	Name       string `json:"name"`
	Body       string `json:"body"`
	HairLength string `json:"hairLength"`
	HairStyle  string `json:"hairStyle"`
	Face       string `json:"face"`
	Clothing   string `json:"clothing"`
}

// Description はフォーム入力から外見の説明文を組み立てます。
// 空の項目は省略し、髪は HairStyle がある場合だけ長さと一緒に出力するのだ。
func (t CharacterTraits) Description() string {
	parts := []string{fmt.Sprintf("um(a) %s em estilo 3D cartoon", strings.TrimSpace(t.Name))}
	if t.Body != "" {
		parts = append(parts, "corpo "+t.Body)
	}
	if t.HairStyle != "" {
		parts = append(parts, fmt.Sprintf("cabelo %s %s", t.HairLength, t.HairStyle))
	}
	if t.Face != "" {
		parts = append(parts, t.Face)
	}
	if t.Clothing != "" {
		parts = append(parts, "vestindo "+t.Clothing)
	}
	return strings.Join(parts, ", ") + "."
}

// NewCharacterPayload はカスタムキャラクター登録時の入力です。
type NewCharacterPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

// catalogFile は YAML オーバーレイファイルの構造なのだ。
type catalogFile struct {
	BaseStyle  string            `yaml:"base_style"`
	Characters map[string]string `yaml:"characters"`
}

// LoadCatalog は組み込み Catalog に YAML ファイルの定義を重ねて返します。
// path が空なら組み込みのみです。
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("キャラクターファイルの読み込みに失敗したのだ: %w", err)
	}
	return c.overlay(data)
}

// ParseCatalog は YAML のバイト列を組み込み Catalog に重ねます。
func ParseCatalog(data []byte) (*Catalog, error) {
	return DefaultCatalog().overlay(data)
}

func (c *Catalog) overlay(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("キャラクター設定のデコードに失敗したのだ: %w", err)
	}

	if f.BaseStyle != "" {
		c.baseStyle = f.BaseStyle
	}
	names := make([]string, 0, len(f.Characters))
	for name := range f.Characters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" || trimmed == BaseStyleKey {
			continue
		}
		c.add(trimmed, f.Characters[name])
	}
	return c, nil
}
