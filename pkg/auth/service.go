package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// MinPasswordLength は管理者がユーザーを作成する時のパスワードの最小長です。
const MinPasswordLength = 6

const (
	functionCreateUser     = "create-user"
	functionSendInvitation = "send-invitation"
)

const (
	msgNotSignedIn       = "Sessão inválida. Faça login novamente."
	msgProfileNotFound   = "Perfil de usuário não encontrado. Entre em contato com o administrador."
	msgUserNotFound      = "Usuário não encontrado."
	msgAdminOnly         = "Acesso restrito a administradores."
	msgPasswordTooShort  = "A senha deve ter pelo menos 6 caracteres."
	msgInvalidEmail      = "Informe um e-mail válido."
	msgInvalidRole       = "Função de usuário inválida."
	msgInvalidStatus     = "Status de usuário inválido."
	msgPendingActivation = "Sua conta está aguardando ativação por um administrador."
)

// Authenticator は認証バックエンドの操作です。SupabaseClient が実装します。
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password, phone, ddi string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	GetUser(ctx context.Context, token string) (*AuthUser, error)
	InvokeFunction(ctx context.Context, token, name string, body any) (json.RawMessage, error)
}

// Notifier はユーザーのライフサイクルイベントを通知します。
type Notifier interface {
	Send(ctx context.Context, event domain.WebhookEvent, user domain.User)
}

// Identity はログイン中のユーザーとそのトークンなのだ。
type Identity struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	User         domain.User `json:"user"`
}

// Pending は管理者による有効化待ちかどうかを返します。
func (i Identity) Pending() bool {
	return i.User.Status == domain.StatusPending
}

// Service はログイン、サインアップ、ユーザー管理をまとめたサービスです。
type Service struct {
	auth     Authenticator
	profiles ProfileRepository
	notifier Notifier
}

// NewService は Service を生成します。notifier は nil でも構いません。
func NewService(auth Authenticator, profiles ProfileRepository, notifier Notifier) (*Service, error) {
	if auth == nil {
		return nil, fmt.Errorf("認証クライアントは必須です")
	}
	if profiles == nil {
		return nil, fmt.Errorf("プロフィールリポジトリは必須です")
	}
	return &Service{auth: auth, profiles: profiles, notifier: notifier}, nil
}

// Login はサインインしてプロフィールを読み込みます。
// 認証に成功してもプロフィールがなければサインアウトさせて unauthorized を返すのだ。
func (s *Service) Login(ctx context.Context, email, password string) (*Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("Informe e-mail e senha.")
	}

	sess, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	user, err := s.profileFor(ctx, sess.AccessToken, sess.User)
	if err != nil {
		if apperr.Is(err, apperr.KindUnauthorized) {
			slog.WarnContext(ctx, "認証済みユーザーのプロフィールがありません", "user_id", sess.User.ID)
			if err := s.auth.SignOut(ctx, sess.AccessToken); err != nil {
				slog.WarnContext(ctx, "サインアウトに失敗しました", "error", err)
			}
		}
		return nil, err
	}
	return &Identity{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken, User: *user}, nil
}

// Signup はユーザーを登録します。プロフィールはバックエンドのトリガーが tenant / pending で作るのだ。
// DDI の明示的な更新に失敗しても登録自体は成功として扱います。
func (s *Service) Signup(ctx context.Context, email, password, phone, ddi string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperr.Validation("Informe uma senha.")
	}

	sess, err := s.auth.SignUp(ctx, email, password, phone, ddi)
	if err != nil {
		return nil, err
	}

	if err := s.profiles.UpdateDDI(WithAccessToken(ctx, sess.AccessToken), sess.User.ID, ddi); err != nil {
		slog.WarnContext(ctx, "DDI を明示的に更新できませんでした", "user_id", sess.User.ID, "error", err)
	}

	user := domain.User{
		ID:     sess.User.ID,
		Email:  firstNonEmpty(sess.User.Email, email),
		Phone:  firstNonEmpty(sess.User.Metadata("phone"), phone),
		DDI:    firstNonEmpty(sess.User.Metadata("ddi"), ddi),
		Role:   domain.RoleTenant,
		Status: domain.StatusPending,
	}
	s.notify(ctx, domain.EventUserCreated, user)
	return &user, nil
}

// Logout はトークンを無効化します。
func (s *Service) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return s.auth.SignOut(ctx, token)
}

// CurrentUser はトークンの持ち主をプロフィール付きで返します。
func (s *Service) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	authUser, err := s.auth.GetUser(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.profileFor(ctx, token, *authUser)
}

// RequireStudio はスタジオを使えるユーザーだけを通すのだ。
func (s *Service) RequireStudio(ctx context.Context, token string) (*domain.User, error) {
	user, err := s.CurrentUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if !user.CanUseStudio() {
		return nil, apperr.Forbidden(msgPendingActivation)
	}
	return user, nil
}

// RequireAdmin は superadmin だけを通します。
func (s *Service) RequireAdmin(ctx context.Context, token string) (*domain.User, error) {
	user, err := s.CurrentUser(ctx, token)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, apperr.Forbidden(msgAdminOnly)
	}
	return user, nil
}

// ListUsers は全ユーザーを返します。
func (s *Service) ListUsers(ctx context.Context, token string) ([]domain.User, error) {
	if _, err := s.RequireAdmin(ctx, token); err != nil {
		return nil, err
	}
	return s.profiles.List(WithAccessToken(ctx, token))
}

// SetStatus はユーザーを有効化または無効化して通知します。
func (s *Service) SetStatus(ctx context.Context, token, id string, status domain.Status) (*domain.User, error) {
	if status != domain.StatusActive && status != domain.StatusInactive {
		return nil, apperr.Validation(msgInvalidStatus)
	}
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation(msgUserNotFound)
	}
	if _, err := s.RequireAdmin(ctx, token); err != nil {
		return nil, err
	}

	user, err := s.profiles.UpdateStatus(WithAccessToken(ctx, token), id, status)
	if err != nil {
		return nil, err
	}
	event := domain.EventUserDeactivated
	if status == domain.StatusActive {
		event = domain.EventUserActivated
	}
	s.notify(ctx, event, *user)
	return user, nil
}

// CreateUser はバックエンド関数経由でユーザーを作成します。
func (s *Service) CreateUser(ctx context.Context, token, email, password string, role domain.Role) error {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if len(password) < MinPasswordLength {
		return apperr.Validation(msgPasswordTooShort)
	}
	if !domain.ValidRole(role) {
		return apperr.Validation(msgInvalidRole)
	}
	if _, err := s.RequireAdmin(ctx, token); err != nil {
		return err
	}

	body := map[string]string{"email": email, "password": password, "role": string(role)}
	if err := s.invoke(ctx, token, functionCreateUser, body, "Erro do servidor ao criar usuário"); err != nil {
		return err
	}
	s.notify(ctx, domain.EventUserCreated, domain.User{Email: email, Role: role, Status: domain.StatusPending})
	return nil
}

// InviteUser はバックエンド関数経由で招待メールを送ります。
func (s *Service) InviteUser(ctx context.Context, token, email string, role domain.Role) error {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if !domain.ValidRole(role) {
		return apperr.Validation(msgInvalidRole)
	}
	if _, err := s.RequireAdmin(ctx, token); err != nil {
		return err
	}

	body := map[string]string{"email": email, "role": string(role)}
	if err := s.invoke(ctx, token, functionSendInvitation, body, "Erro do servidor ao convidar usuário"); err != nil {
		return err
	}
	s.notify(ctx, domain.EventUserInvited, domain.User{Email: email, Role: role})
	return nil
}

// invoke は関数を呼び出し、本文の error フィールドも失敗として扱うのだ。
func (s *Service) invoke(ctx context.Context, token, name string, body any, serverErrPrefix string) error {
	raw, err := s.auth.InvokeFunction(ctx, token, name, body)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.Upstream(fmt.Sprintf("A função de backend '%s' não foi encontrada. Certifique-se de que ela foi implantada no Supabase.", name), err)
	}
	if err != nil {
		return apperr.Upstream(fmt.Sprintf("Falha na comunicação com o backend: %s", apperr.Message(err)), err)
	}

	var result struct {
		Error string `json:"error"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &result)
	}
	if result.Error != "" {
		return apperr.Upstream(fmt.Sprintf("%s: %s", serverErrPrefix, result.Error), nil)
	}
	return nil
}

// profileFor は認証ユーザーにプロフィールを重ねます。プロフィールがなければ unauthorized です。
func (s *Service) profileFor(ctx context.Context, token string, authUser AuthUser) (*domain.User, error) {
	profile, err := s.profiles.Get(WithAccessToken(ctx, token), authUser.ID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, apperr.Unauthorized(msgProfileNotFound, nil)
	}
	user := *profile
	user.ID = authUser.ID
	if authUser.Email != "" {
		user.Email = authUser.Email
	}
	return &user, nil
}

func (s *Service) notify(ctx context.Context, event domain.WebhookEvent, user domain.User) {
	if s.notifier != nil {
		s.notifier.Send(ctx, event, user)
	}
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation(msgInvalidEmail)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.Validation(msgInvalidEmail)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
