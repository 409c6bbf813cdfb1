package workflow

import (
	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// Brief はストーリー生成の入力です。
type Brief struct {
	Idea      string               `json:"idea"`
	Audience  string               `json:"audience"`
	Language  string               `json:"language"`
	Animate   bool                 `json:"animate"`
	Provider  domain.VideoProvider `json:"provider"`
	OpenAIKey string               `json:"openaiKey,omitempty"`
}

// withDefaults は空の項目を既定値で埋めたコピーを返すのだ。
func (b Brief) withDefaults() Brief {
	if b.Audience == "" {
		b.Audience = domain.DefaultAudience
	}
	if b.Language == "" {
		b.Language = domain.DefaultLanguage
	}
	if b.Provider == "" {
		b.Provider = domain.ProviderGemini
	}
	return b
}

// Status は1回の実行の結果状態です。
type Status string

const (
	StatusCompleted            Status = "completed"
	StatusLimitReached         Status = "limit_reached"
	StatusKeySelectionRequired Status = "key_selection_required"
	StatusFailed               Status = "failed"
)

// Outcome は実行結果なのだ。失敗しても途中までの計画は Plan に残ります。
type Outcome struct {
	Status  Status                 `json:"status"`
	Kind    apperr.Kind            `json:"kind,omitempty"`
	Message string                 `json:"message,omitempty"`
	Plan    *domain.ProductionPlan `json:"plan,omitempty"`
	Err     error                  `json:"-"`
}

// newOutcome はエラーの分類から Outcome を組み立てます。
func newOutcome(plan *domain.ProductionPlan, err error) Outcome {
	if err == nil {
		return Outcome{Status: StatusCompleted, Plan: plan}
	}
	out := Outcome{
		Status:  StatusFailed,
		Kind:    apperr.KindOf(err),
		Message: apperr.Message(err),
		Plan:    plan,
		Err:     err,
	}
	switch out.Kind {
	case apperr.KindLimit:
		out.Status = StatusLimitReached
	case apperr.KindKeySelection:
		out.Status = StatusKeySelectionRequired
	}
	return out
}

// Stage は進捗イベントの段階です。
type Stage string

const (
	StagePortraits  Stage = "portraits"
	StagePlan       Stage = "plan"
	StageThumbnail  Stage = "thumbnail"
	StageSceneImage Stage = "scene_image"
	StageSceneVideo Stage = "scene_video"
	StageCharacter  Stage = "character"
	StageDone       Stage = "done"
	StageError      Stage = "error"
)

// Event は進捗通知の1件なのだ。
type Event struct {
	SessionID string                 `json:"sessionId"`
	Stage     Stage                  `json:"stage"`
	Message   string                 `json:"message,omitempty"`
	SceneID   int                    `json:"sceneId,omitempty"`
	Character string                 `json:"character,omitempty"`
	Status    Status                 `json:"status,omitempty"`
	Plan      *domain.ProductionPlan `json:"plan,omitempty"`
}
