package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

const (
	profilesPath    = "/rest/v1/profiles"
	profileColumns  = "id,email,role,status,phone,ddi"
	pgrstObjectJSON = "application/vnd.pgrst.object+json"
)

// ProfileRepository はユーザープロフィールの保存先です。
// Get は見つからなければ nil, nil を返すのだ。
type ProfileRepository interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) (*domain.User, error)
	UpdateDDI(ctx context.Context, id, ddi string) error
}

type accessTokenKey struct{}

// WithAccessToken は行レベルセキュリティ用のアクセストークンをコンテキストに載せます。
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken はコンテキストのアクセストークンを返します。なければ空文字です。
func AccessToken(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

// SupabaseProfileRepository は PostgREST の profiles テーブルを使うリポジトリなのだ。
type SupabaseProfileRepository struct {
	client *SupabaseClient
}

// NewSupabaseProfileRepository は SupabaseProfileRepository を生成します。
func NewSupabaseProfileRepository(client *SupabaseClient) *SupabaseProfileRepository {
	return &SupabaseProfileRepository{client: client}
}

func (r *SupabaseProfileRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	q := url.Values{"select": {profileColumns}, "id": {"eq." + id}}
	var u domain.User
	err := r.client.do(ctx, request{
		method:  http.MethodGet,
		path:    profilesPath,
		query:   q,
		token:   AccessToken(ctx),
		headers: map[string]string{"Accept": pgrstObjectJSON},
	}, &u)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return &u, nil
}

func (r *SupabaseProfileRepository) List(ctx context.Context) ([]domain.User, error) {
	q := url.Values{"select": {profileColumns}, "order": {"email.asc"}}
	var users []domain.User
	err := r.client.do(ctx, request{method: http.MethodGet, path: profilesPath, query: q, token: AccessToken(ctx)}, &users)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

func (r *SupabaseProfileRepository) UpdateStatus(ctx context.Context, id string, status domain.Status) (*domain.User, error) {
	q := url.Values{"id": {"eq." + id}, "select": {profileColumns}}
	var u domain.User
	err := r.client.do(ctx, request{
		method: http.MethodPatch,
		path:   profilesPath,
		query:  q,
		token:  AccessToken(ctx),
		headers: map[string]string{
			"Accept": pgrstObjectJSON,
			"Prefer": "return=representation",
		},
		body: map[string]string{"status": string(status)},
	}, &u)
	if err != nil {
		return nil, fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	return &u, nil
}

func (r *SupabaseProfileRepository) UpdateDDI(ctx context.Context, id, ddi string) error {
	q := url.Values{"id": {"eq." + id}}
	err := r.client.do(ctx, request{
		method:  http.MethodPatch,
		path:    profilesPath,
		query:   q,
		token:   AccessToken(ctx),
		headers: map[string]string{"Prefer": "return=minimal"},
		body:    map[string]string{"ddi": ddi},
	}, nil)
	if err != nil {
		return fmt.Errorf("DDI の更新に失敗しました: %w", err)
	}
	return nil
}
