package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shouni/go-http-kit/httpkit"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
)

// codeObjectNotFound は PostgREST が単一行の取得で行がなかった時に返すコードなのだ。
const codeObjectNotFound = "PGRST116"

// AuthUser は GoTrue が返すユーザー情報です。
type AuthUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Metadata は user_metadata の文字列値を返します。
func (u AuthUser) Metadata(key string) string {
	if v, ok := u.UserMetadata[key].(string); ok {
		return v
	}
	return ""
}

// Session はサインイン結果のトークンとユーザーです。
// メール確認が必要な設定ではサインアップ直後の AccessToken は空になるのだ。
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	User         AuthUser `json:"user"`
}

// SupabaseClient は GoTrue、PostgREST、Edge Functions を HTTP で呼び出すクライアントです。
type SupabaseClient struct {
	baseURL    *url.URL
	anonKey    string
	httpClient httpkit.Requester
}

// NewSupabaseClient は SupabaseClient を生成します。URL と anon キーは必須です。
// httpClient が nil の場合は既定の httpkit クライアントを使うのだ。
func NewSupabaseClient(rawURL, anonKey string, httpClient httpkit.Requester) (*SupabaseClient, error) {
	if strings.TrimSpace(rawURL) == "" || strings.TrimSpace(anonKey) == "" {
		return nil, apperr.Credential("As credenciais do Supabase não foram definidas.", nil)
	}
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperr.Validation(fmt.Sprintf("URL do Supabase inválida: %s", rawURL))
	}
	if httpClient == nil {
		httpClient = httpkit.New(httpkit.DefaultHTTPTimeout)
	}
	return &SupabaseClient{baseURL: u, anonKey: anonKey, httpClient: httpClient}, nil
}

// SignIn はメールアドレスとパスワードでサインインします。
func (c *SupabaseClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	q := url.Values{"grant_type": {"password"}}

	var s Session
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/token", query: q, body: body}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SignUp はユーザーを登録します。phone と ddi はプロフィール作成トリガー用のメタデータとして渡すのだ。
func (c *SupabaseClient) SignUp(ctx context.Context, email, password, phone, ddi string) (*Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"phone": phone, "ddi": ddi},
	}

	// 自動確認ならセッション、メール確認待ちならユーザーだけが返ります
	var resp struct {
		Session
		AuthUser
	}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/signup", body: body}, &resp); err != nil {
		return nil, err
	}
	s := resp.Session
	if s.User.ID == "" {
		s.User = resp.AuthUser
	}
	if s.User.ID == "" {
		return nil, apperr.Upstream("O cadastro não retornou um usuário.", nil)
	}
	return &s, nil
}

// SignOut はアクセストークンを無効化します。
func (c *SupabaseClient) SignOut(ctx context.Context, token string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/logout", token: token}, nil)
}

// GetUser はアクセストークンの持ち主を返します。
func (c *SupabaseClient) GetUser(ctx context.Context, token string) (*AuthUser, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperr.Unauthorized(msgNotSignedIn, nil)
	}
	var u AuthUser
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", token: token}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// InvokeFunction は Edge Function を呼び出して応答本文をそのまま返すのだ。
func (c *SupabaseClient) InvokeFunction(ctx context.Context, token, name string, body any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{method: http.MethodPost, path: "/functions/v1/" + url.PathEscape(name), token: token, body: body}, &raw)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

type request struct {
	method  string
	path    string
	query   url.Values
	token   string
	headers map[string]string
	body    any
}

// do はリクエストを送り、2xx なら out へデコードします。
// それ以外のステータスは apperr の種別に変換するのだ。
func (c *SupabaseClient) do(ctx context.Context, r request, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + r.path
	u.RawQuery = r.query.Encode()

	var reader io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("リクエスト本文のエンコードに失敗しました: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	token := r.token
	if token == "" {
		token = c.anonKey
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	// 5xx と通信エラーは httpkit が再試行し、4xx はそのまま返ってくるのだ
	data, err := c.httpClient.DoRequest(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var httpErr *httpkit.NonRetryableHTTPError
		if errors.As(err, &httpErr) {
			return classifyResponse(httpErr.StatusCode, httpErr.Body)
		}
		return apperr.Upstream(fmt.Sprintf("Falha na comunicação com o backend: %v", err), err)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("応答のデコードに失敗しました: %w", err)
	}
	return nil
}

// errorBody は GoTrue、PostgREST、Edge Functions のエラー形式をまとめて受けるのだ。
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func (e errorBody) code() string {
	return strings.Trim(string(e.Code), `"`)
}

func (e errorBody) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func classifyResponse(status int, data []byte) error {
	var body errorBody
	_ = json.Unmarshal(data, &body)

	msg := body.text()
	if msg == "" {
		msg = fmt.Sprintf("Falha na comunicação com o backend (status %d).", status)
	}
	cause := fmt.Errorf("supabase: status %d: %s", status, msg)

	if body.code() == codeObjectNotFound {
		return apperr.New(apperr.KindNotFound, msg, cause)
	}
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperr.New(apperr.KindValidation, msg, cause)
	case http.StatusUnauthorized:
		return apperr.New(apperr.KindUnauthorized, msg, cause)
	case http.StatusForbidden:
		return apperr.New(apperr.KindForbidden, msg, cause)
	case http.StatusNotFound:
		return apperr.New(apperr.KindNotFound, msg, cause)
	case http.StatusTooManyRequests:
		return apperr.New(apperr.KindLimit, msg, cause)
	}
	return apperr.Upstream(msg, cause)
}
