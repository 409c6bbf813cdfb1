package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
	"github.com/shouni/go-storyboard-kit/pkg/store"
)

// DefaultSelection は新しいワークスペースで最初から選ばれているキャラクターです。
var DefaultSelection = []string{"Davi (Jovem)", "Deus (Luz Divina)"}

// Workspace は1ユーザーセッション分の状態を保持するコンテキストオブジェクトなのだ。
//
// 変更はすべて mu の下で最新の状態から導出します。
// 計画と肖像は変更のたびにセッションストアへ保存されます。
type Workspace struct {
	id      string
	catalog *domain.Catalog
	session *store.SessionState
	prefs   *store.Preferences

	mu         sync.Mutex
	library    domain.CharacterLibrary
	selected   []string
	imageCache map[string]string // ギャラリーと作成画面の肖像。失敗は PortraitErrorMarker
	portraits  map[string]string // 直近の実行で使った肖像
	plan       *domain.ProductionPlan
}

// NewWorkspace は既定の状態で Workspace を生成します。保存済みの状態は Restore で読み込むのだ。
func NewWorkspace(id string, catalog *domain.Catalog, session *store.SessionState, prefs *store.Preferences) *Workspace {
	if catalog == nil {
		catalog = domain.DefaultCatalog()
	}
	ws := &Workspace{
		id:         id,
		catalog:    catalog,
		session:    session,
		prefs:      prefs,
		library:    catalog.Library(),
		imageCache: map[string]string{},
		portraits:  map[string]string{},
	}
	for _, name := range DefaultSelection {
		if ws.library.Has(name) {
			ws.selected = append(ws.selected, name)
		}
	}
	return ws
}

// ID はセッション ID を返します。
func (w *Workspace) ID() string {
	return w.id
}

// Catalog は組み込みキャラクターの定義を返します。
func (w *Workspace) Catalog() *domain.Catalog {
	return w.catalog
}

// Restore は保存済みのカスタムキャラクター、計画、肖像を読み込みます。
// 壊れた保存データは存在しないものとして扱うのだ。
func (w *Workspace) Restore(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.prefs != nil {
		lib, err := w.prefs.Library(ctx)
		if err != nil {
			return fmt.Errorf("カスタムキャラクターの読み込みに失敗しました: %w", err)
		}
		w.library = lib
	}
	if w.session != nil {
		plan, err := w.session.LoadPlan(ctx)
		if err != nil {
			return fmt.Errorf("制作計画の読み込みに失敗しました: %w", err)
		}
		portraits, err := w.session.LoadPortraits(ctx)
		if err != nil {
			return fmt.Errorf("肖像の読み込みに失敗しました: %w", err)
		}
		w.plan = plan
		w.portraits = portraits
	}
	return nil
}

// NewStory は計画と実行時の肖像を破棄します。ライブラリと選択はそのままなのだ。
func (w *Workspace) NewStory(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.plan = nil
	w.portraits = map[string]string{}
	w.persistSessionLocked(ctx)
}

// Library はライブラリのコピーを返します。
func (w *Workspace) Library() domain.CharacterLibrary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.library.Clone()
}

// Names は選択可能なキャラクター名を表示順で返すのだ。
func (w *Workspace) Names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.catalog.Names(w.library)
}

// Selection は選択中のキャラクター名を選択順で返します。
func (w *Workspace) Selection() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.selected)
}

// Select はキャラクターを選択に追加します。既に選択済みなら何もしないのだ。
func (w *Workspace) Select(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.library.Has(name) {
		return apperr.NotFound(fmt.Sprintf("Personagem não encontrado: %s", name))
	}
	if !slices.Contains(w.selected, name) {
		w.selected = append(w.selected, name)
	}
	return nil
}

// Deselect はキャラクターを選択から外します。
func (w *Workspace) Deselect(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selected = slices.DeleteFunc(w.selected, func(n string) bool { return n == name })
}

// SetSelection は選択をまとめて置き換えます。重複は最初の1つだけ残すのだ。
func (w *Workspace) SetSelection(names []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := make([]string, 0, len(names))
	for _, name := range names {
		if !w.library.Has(name) {
			return apperr.NotFound(fmt.Sprintf("Personagem não encontrado: %s", name))
		}
		if !slices.Contains(next, name) {
			next = append(next, name)
		}
	}
	w.selected = next
	return nil
}

// AddCustomCharacter はカスタムキャラクターを追加して選択し、肖像をキャッシュします。
// 名前は大文字小文字を無視して一意でなければなりません。
func (w *Workspace) AddCustomCharacter(ctx context.Context, payload domain.NewCharacterPayload) error {
	name := strings.TrimSpace(payload.Name)
	if name == "" || strings.TrimSpace(payload.Description) == "" {
		return apperr.Validation(msgInvalidCharacterName)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.updateLibraryLocked(ctx, func(lib domain.CharacterLibrary) error {
		if name == domain.BaseStyleKey || lib.HasFold(name) {
			return apperr.Validation(msgDuplicateCharacter)
		}
		lib[name] = payload.Description
		return nil
	})
	if err != nil {
		return err
	}

	if !slices.Contains(w.selected, name) {
		w.selected = append(w.selected, name)
	}
	if payload.ImageURL != "" {
		w.imageCache[name] = payload.ImageURL
	}
	return nil
}

// DeleteCustomCharacter はカスタムキャラクターを削除するのだ。
// ライブラリ、選択、両方の肖像キャッシュから取り除きます。組み込みキャラクターは削除できません。
func (w *Workspace) DeleteCustomCharacter(ctx context.Context, name string) error {
	if w.catalog.IsPredefined(name) || name == domain.BaseStyleKey {
		return apperr.Forbidden(msgPredefinedCharacter)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.updateLibraryLocked(ctx, func(lib domain.CharacterLibrary) error {
		if !lib.Has(name) {
			return apperr.NotFound(fmt.Sprintf("Personagem não encontrado: %s", name))
		}
		delete(lib, name)
		return nil
	})
	if err != nil {
		return err
	}

	w.selected = slices.DeleteFunc(w.selected, func(n string) bool { return n == name })
	delete(w.imageCache, name)
	if _, ok := w.portraits[name]; ok {
		delete(w.portraits, name)
		w.persistSessionLocked(ctx)
	}
	return nil
}

// ImageCache はギャラリー用の肖像キャッシュのコピーを返します。
func (w *Workspace) ImageCache() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneMap(w.imageCache)
}

// Portraits は直近の実行で使った肖像のコピーを返すのだ。
func (w *Workspace) Portraits() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneMap(w.portraits)
}

// Plan は計画のスナップショットを返します。計画がなければ nil です。
func (w *Workspace) Plan() *domain.ProductionPlan {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.plan.Clone()
}

// UpdateScene はユーザーの編集で台詞とプロンプトを置き換えます。
// ID と生成済みのメディアは変わらないのだ。
func (w *Workspace) UpdateScene(ctx context.Context, edited domain.Scene) (*domain.Scene, error) {
	var updated domain.Scene
	err := w.mutatePlan(ctx, func(plan *domain.ProductionPlan) error {
		scene := plan.Scene(edited.ID)
		if scene == nil {
			return apperr.NotFound(msgSceneNotFound)
		}
		scene.Dialogo = edited.Dialogo
		scene.PromptImagem = edited.PromptImagem
		scene.PromptDiretor = edited.PromptDiretor
		updated = *scene
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// scene は ID に対応するシーンのコピーを返します。
func (w *Workspace) scene(id int) (*domain.Scene, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.plan == nil {
		return nil, apperr.NotFound(msgNoPlan)
	}
	s := w.plan.Scene(id)
	if s == nil {
		return nil, apperr.NotFound(msgSceneNotFound)
	}
	copied := *s
	return &copied, nil
}

// cachedPortrait は使える肖像がキャッシュにあれば返します。
func (w *Workspace) cachedPortrait(name string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	url, ok := w.imageCache[name]
	if !ok || url == "" || url == prompts.PortraitErrorMarker {
		return "", false
	}
	return url, true
}

// hasCacheEntry は失敗マーカーも含めてキャッシュに項目があるかを返すのだ。
func (w *Workspace) hasCacheEntry(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.imageCache[name]
	return ok
}

func (w *Workspace) setCachedPortrait(name, url string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.library.Has(name) {
		w.imageCache[name] = url
	}
}

// setPortraits は実行時の肖像を置き換えて保存します。
func (w *Workspace) setPortraits(ctx context.Context, portraits map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.portraits = cloneMap(portraits)
	w.persistSessionLocked(ctx)
}

// setPlan は計画を置き換えて保存します。
func (w *Workspace) setPlan(ctx context.Context, plan *domain.ProductionPlan) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.plan = plan.Clone()
	w.persistSessionLocked(ctx)
}

// mutatePlan は最新の計画に fn を適用して保存するのだ。
// 計画がなければ not_found、fn がエラーを返した場合は何も保存しません。
func (w *Workspace) mutatePlan(ctx context.Context, fn func(plan *domain.ProductionPlan) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.plan == nil {
		return apperr.NotFound(msgNoPlan)
	}
	next := w.plan.Clone()
	if err := fn(next); err != nil {
		return err
	}
	w.plan = next
	w.persistSessionLocked(ctx)
	return nil
}

// clearBusyFlags は実行が中断された時に残った処理中フラグを下ろすのだ。
// 生成済みの画像と動画はそのまま残ります。
func (w *Workspace) clearBusyFlags(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.plan == nil {
		return
	}
	for i := range w.plan.Cenas {
		w.plan.Cenas[i].IsGenerating = false
		w.plan.Cenas[i].IsAnimating = false
	}
	if t := w.plan.YoutubeThumbnail; t != nil {
		t.IsGenerating16x9 = false
		t.IsGenerating9x16 = false
	}
	w.persistSessionLocked(ctx)
}

// sceneCast はシーン合成に使うキャラクター情報のスナップショットを返します。
func (w *Workspace) sceneCast(portraits map[string]string) prompts.SceneCast {
	w.mu.Lock()
	defer w.mu.Unlock()
	if portraits == nil {
		portraits = cloneMap(w.portraits)
	}
	return prompts.SceneCast{
		Selected:  slices.Clone(w.selected),
		Catalog:   w.catalog,
		Library:   w.library.Clone(),
		Portraits: portraits,
	}
}

// persistSessionLocked は計画と肖像をセッションストアへ書き込みます。
// 保存の失敗はログに残すだけで、画面の状態は変えないのだ。
func (w *Workspace) persistSessionLocked(ctx context.Context) {
	if w.session == nil {
		return
	}
	if err := w.session.SavePlan(ctx, w.plan); err != nil {
		slog.WarnContext(ctx, "制作計画の保存に失敗しました", "session", w.id, "error", err)
	}
	if err := w.session.SavePortraits(ctx, w.portraits); err != nil {
		slog.WarnContext(ctx, "肖像の保存に失敗しました", "session", w.id, "error", err)
	}
}

// updateLibraryLocked は fn でライブラリを変更して w.library を置き換えます。
// 保存先がある場合は他のセッションが保存した最新の内容に fn を当てるのだ。
func (w *Workspace) updateLibraryLocked(ctx context.Context, fn func(lib domain.CharacterLibrary) error) error {
	if w.prefs == nil {
		lib := w.library.Clone()
		if err := fn(lib); err != nil {
			return err
		}
		w.library = lib
		return nil
	}
	lib, err := w.prefs.UpdateLibrary(ctx, fn)
	if err != nil {
		return err
	}
	w.library = lib
	return nil
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
