package domain

import "time"

// Role はユーザーの権限です。
type Role string

const (
	RoleTenant     Role = "tenant"
	RoleSuperadmin Role = "superadmin"
)

// Status はユーザーの状態です。
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPending  Status = "pending"
)

// User はバックエンドが所有するユーザー情報なのだ。クライアントは読み取りと状態遷移の要求だけを行います。
type User struct {
	ID     string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role,omitempty"`
	Status Status `json:"status,omitempty"`
	Phone  string `json:"phone,omitempty"`
	DDI    string `json:"ddi,omitempty"`
}

// IsAdmin は管理画面を使えるかどうかを返します。
func (u User) IsAdmin() bool {
	return u.Role == RoleSuperadmin
}

// CanUseStudio はスタジオ機能を使えるかどうかを返すのだ。有効化済みのユーザーだけです。
func (u User) CanUseStudio() bool {
	return u.Status == StatusActive
}

// ValidRole は既知のロールかどうかを返します。
func ValidRole(r Role) bool {
	return r == RoleTenant || r == RoleSuperadmin
}

// ValidStatus は既知のステータスかどうかを返します。
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusInactive, StatusPending:
		return true
	}
	return false
}

// WebhookEvent は外部通知するユーザーのライフサイクルイベントなのだ。
type WebhookEvent string

const (
	EventUserCreated     WebhookEvent = "user.created"
	EventUserInvited     WebhookEvent = "user.invited"
	EventUserActivated   WebhookEvent = "user.activated"
	EventUserDeactivated WebhookEvent = "user.deactivated"
)

// WebhookPayload は Webhook で送信する JSON 本文です。
type WebhookPayload struct {
	Event     WebhookEvent `json:"event"`
	Timestamp string       `json:"timestamp"`
	User      User         `json:"user"`
}

// NewWebhookPayload は ISO8601 のタイムスタンプ付きでペイロードを作ります。
func NewWebhookPayload(event WebhookEvent, user User, now time.Time) WebhookPayload {
	return WebhookPayload{
		Event:     event,
		Timestamp: now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		User:      user,
	}
}
