package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

const (
	planKey      = "productionPlan"
	portraitsKey = "characterPortraits"
)

// SessionState は1セッション分の制作計画と肖像を保存します。
// 壊れたデータは存在しないものとして扱い、削除するのだ。
type SessionState struct {
	kv        KV
	sessionID string
}

// NewSessionState は SessionState を生成します。
func NewSessionState(kv KV, sessionID string) *SessionState {
	return &SessionState{kv: kv, sessionID: sessionID}
}

func (s *SessionState) key(name string) string {
	if s.sessionID == "" {
		return name
	}
	return "session:" + s.sessionID + ":" + name
}

// SavePlan は計画を保存します。nil の場合はエントリを削除するのだ。
func (s *SessionState) SavePlan(ctx context.Context, plan *domain.ProductionPlan) error {
	if plan == nil {
		return s.kv.Delete(ctx, s.key(planKey))
	}
	return s.saveJSON(ctx, planKey, plan)
}

// LoadPlan は保存された計画を返します。なければ nil です。
func (s *SessionState) LoadPlan(ctx context.Context) (*domain.ProductionPlan, error) {
	var plan domain.ProductionPlan
	ok, err := s.loadJSON(ctx, planKey, &plan)
	if err != nil || !ok {
		return nil, err
	}
	return &plan, nil
}

// SavePortraits は肖像のマップを保存します。空なら削除します。
func (s *SessionState) SavePortraits(ctx context.Context, portraits map[string]string) error {
	if len(portraits) == 0 {
		return s.kv.Delete(ctx, s.key(portraitsKey))
	}
	return s.saveJSON(ctx, portraitsKey, portraits)
}

// LoadPortraits は保存された肖像を返します。なければ空のマップなのだ。
func (s *SessionState) LoadPortraits(ctx context.Context) (map[string]string, error) {
	portraits := map[string]string{}
	ok, err := s.loadJSON(ctx, portraitsKey, &portraits)
	if err != nil {
		return nil, err
	}
	if !ok || portraits == nil {
		return map[string]string{}, nil
	}
	return portraits, nil
}

// Clear はセッションの保存内容をすべて削除します。
func (s *SessionState) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key(planKey)); err != nil {
		return err
	}
	return s.kv.Delete(ctx, s.key(portraitsKey))
}

func (s *SessionState) saveJSON(ctx context.Context, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s のエンコードに失敗しました: %w", name, err)
	}
	return s.kv.Set(ctx, s.key(name), b)
}

func (s *SessionState) loadJSON(ctx context.Context, name string, v any) (bool, error) {
	return loadJSON(ctx, s.kv, s.key(name), v)
}

// loadJSON はキーの値をデコードします。デコードできなければ削除して ok=false を返すのだ。
func loadJSON(ctx context.Context, kv KV, key string, v any) (bool, error) {
	b, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		slog.WarnContext(ctx, "保存データが壊れているため破棄します", "key", key, "error", err)
		if delErr := kv.Delete(ctx, key); delErr != nil {
			return false, delErr
		}
		return false, nil
	}
	return true, nil
}
