package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/store"
)

const cacheCleanupInterval = 15 * time.Minute

// ManagerArgs は Manager の初期化に必要な依存関係です。
type ManagerArgs struct {
	Catalog     *domain.Catalog
	Sessions    store.KV
	Preferences *store.Preferences
	// IdleTTL を過ぎて使われなかったワークスペースはメモリから外れます。保存済みの状態は残るのだ。
	IdleTTL time.Duration
}

// Manager はセッション ID ごとの Workspace を管理します。
type Manager struct {
	catalog  *domain.Catalog
	sessions store.KV
	prefs    *store.Preferences
	active   *cache.Cache
	mu       sync.Mutex
}

// NewManager は Manager を初期化します。
func NewManager(args ManagerArgs) (*Manager, error) {
	if args.Sessions == nil {
		return nil, fmt.Errorf("セッションストアは必須です")
	}
	if args.Catalog == nil {
		args.Catalog = domain.DefaultCatalog()
	}
	if args.IdleTTL <= 0 {
		args.IdleTTL = DefaultWorkspaceTTL
	}
	return &Manager{
		catalog:  args.Catalog,
		sessions: args.Sessions,
		prefs:    args.Preferences,
		active:   cache.New(args.IdleTTL, cacheCleanupInterval),
	}, nil
}

// NewSessionID は新しいセッション ID を発行するのだ。
func (m *Manager) NewSessionID() string {
	return uuid.NewString()
}

// Workspace はセッションのワークスペースを返します。
// メモリになければ保存済みの状態から復元します。
func (m *Manager) Workspace(ctx context.Context, sessionID string) (*Workspace, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("セッション ID が空です")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.active.Get(sessionID); ok {
		if ws, ok := v.(*Workspace); ok {
			m.active.SetDefault(sessionID, ws)
			return ws, nil
		}
	}

	ws := NewWorkspace(sessionID, m.catalog, store.NewSessionState(m.sessions, sessionID), m.prefs)
	if err := ws.Restore(ctx); err != nil {
		return nil, fmt.Errorf("ワークスペースの復元に失敗しました: %w", err)
	}
	m.active.SetDefault(sessionID, ws)
	return ws, nil
}

// Drop はワークスペースをメモリから外します。保存済みの状態は消しません。
func (m *Manager) Drop(sessionID string) {
	m.active.Delete(sessionID)
}
