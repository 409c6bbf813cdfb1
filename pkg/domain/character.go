package domain

import (
	"sort"
	"strings"
)

// BaseStyleKey はライブラリ内でベーススタイルを保持する予約キーなのだ。
// このキーは選択可能なキャラクターとして扱われません。
const BaseStyleKey = "estilo_base"

// DefaultBaseStyle はすべての画像プロンプトの末尾に付与される共通スタイルです。
const DefaultBaseStyle = "fofo, vibrante, estilo 3D cartoon, iluminação suave, renderização de alta qualidade, cinematic, wide shot, ensuring characters are fully visible and not cropped."

// CharacterLibrary はキャラクター名から外見の説明文への対応表です。
// BaseStyleKey だけは例外でベーススタイル文字列を保持します。
type CharacterLibrary map[string]string

// builtinCharacters は組み込みキャラクターの定義順リストなのだ。
var builtinCharacters = []struct {
	Name        string
	Description string
}{
	{"Adão", "um homem em estilo 3D cartoon, pele clara, cabelo castanho curto, barba por fazer, vestindo uma simples túnica de folhas."},
	{"Eva", "uma mulher em estilo 3D cartoon, pele clara, longos cabelos castanhos, vestindo uma simples túnica de folhas."},
	{"Davi (Jovem)", "um jovem pastor em estilo 3D cartoon, cabelo cacheado ruivo, sardas, segurando um cajado ou uma funda."},
	{"Davi (Rei)", "um rei em estilo 3D cartoon, com barba ruiva, vestindo túnicas reais e uma coroa simples."},
	{"Sansão", "um homem musculoso em estilo 3D cartoon, com longos cabelos pretos e uma expressão confiante."},
	{"Ester", "uma rainha persa em estilo 3D cartoon, linda, com vestes reais elegantes e joias."},
	{"Samuel", "um profeta idoso em estilo 3D cartoon, com barba branca, túnicas simples e olhos sábios."},
	{"Deus (Luz Divina)", "uma luz dourada brilhante e quente vindo de cima, raios de luz suaves, sem forma física."},
	{"Serpente", "uma serpente astuta em estilo 3D cartoon, com escamas verdes brilhantes e olhos amarelos penetrantes."},
}

// BaseStyle はベーススタイル文字列を返します。
func (l CharacterLibrary) BaseStyle() string {
	return l[BaseStyleKey]
}

// Has は名前が完全一致で登録済みかどうかを返すのだ。予約キーは false です。
func (l CharacterLibrary) Has(name string) bool {
	if name == BaseStyleKey {
		return false
	}
	_, ok := l[name]
	return ok
}

// HasFold は大文字小文字を無視して名前の重複を判定します。
func (l CharacterLibrary) HasFold(name string) bool {
	target := strings.ToLower(strings.TrimSpace(name))
	for n := range l {
		if n == BaseStyleKey {
			continue
		}
		if strings.ToLower(n) == target {
			return true
		}
	}
	return false
}

// Descriptions は予約キーを除いた名前と説明文のコピーを返すのだ。
func (l CharacterLibrary) Descriptions() map[string]string {
	out := make(map[string]string, len(l))
	for name, desc := range l {
		if name == BaseStyleKey {
			continue
		}
		out[name] = desc
	}
	return out
}

// Clone はライブラリの防御的コピーを返します。
func (l CharacterLibrary) Clone() CharacterLibrary {
	copied := make(CharacterLibrary, len(l))
	for k, v := range l {
		copied[k] = v
	}
	return copied
}

// Catalog は組み込み（predefined）キャラクターの集合とその表示順を保持します。
// predefined とカスタムの区別はすべてこの Catalog を基準に判定するのだ。
type Catalog struct {
	baseStyle  string
	order      []string
	predefined map[string]string
}

// DefaultCatalog は組み込みキャラクターだけの Catalog を返します。
func DefaultCatalog() *Catalog {
	c := &Catalog{
		baseStyle:  DefaultBaseStyle,
		predefined: make(map[string]string, len(builtinCharacters)),
	}
	for _, b := range builtinCharacters {
		c.add(b.Name, b.Description)
	}
	return c
}

func (c *Catalog) add(name, desc string) {
	if _, exists := c.predefined[name]; !exists {
		c.order = append(c.order, name)
	}
	c.predefined[name] = desc
}

// Library は Catalog から初期状態のライブラリを組み立てるのだ。
func (c *Catalog) Library() CharacterLibrary {
	lib := make(CharacterLibrary, len(c.predefined)+1)
	for name, desc := range c.predefined {
		lib[name] = desc
	}
	lib[BaseStyleKey] = c.baseStyle
	return lib
}

// IsPredefined は名前が組み込みキャラクターかどうかを返します。
func (c *Catalog) IsPredefined(name string) bool {
	_, ok := c.predefined[name]
	return ok
}

// PredefinedNames は組み込みキャラクター名を定義順で返します。
func (c *Catalog) PredefinedNames() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Names はライブラリ内の選択可能な名前を返すのだ。
// 組み込みキャラクターを定義順に並べ、カスタムキャラクターは名前順で後ろに続けます。
func (c *Catalog) Names(lib CharacterLibrary) []string {
	names := make([]string, 0, len(lib))
	for _, name := range c.order {
		if lib.Has(name) {
			names = append(names, name)
		}
	}
	var custom []string
	for name := range lib {
		if name == BaseStyleKey || c.IsPredefined(name) {
			continue
		}
		custom = append(custom, name)
	}
	sort.Strings(custom)
	return append(names, custom...)
}

// CustomSubset はライブラリから組み込みキャラクターと予約キーを除いた部分集合を返します。
func (c *Catalog) CustomSubset(lib CharacterLibrary) CharacterLibrary {
	custom := make(CharacterLibrary)
	for name, desc := range lib {
		if name == BaseStyleKey || c.IsPredefined(name) {
			continue
		}
		custom[name] = desc
	}
	return custom
}

// MergeCustom は保存済みのカスタムキャラクターをライブラリへ取り込むのだ。
// 組み込みキャラクターと予約キーは上書きしません。
func (c *Catalog) MergeCustom(lib, custom CharacterLibrary) CharacterLibrary {
	merged := lib.Clone()
	for name, desc := range custom {
		if name == BaseStyleKey || c.IsPredefined(name) || strings.TrimSpace(name) == "" {
			continue
		}
		merged[name] = desc
	}
	return merged
}
