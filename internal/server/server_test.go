package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shouni/gemini-image-kit/ports"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/auth"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/store"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

const testPlanJSON = `{
  "titulo": "Davi e o Gigante",
  "youtube_thumbnail": {"prompt_16_9": "capa larga", "prompt_9_16": "capa vertical", "descricao_youtube": "Coragem #fé"},
  "cenas": [
    {"dialogo": "[Davi (Jovem)] olha.", "prompt_imagem": "[Davi (Jovem)] no vale", "prompt_diretor": "câmera lenta"},
    {"dialogo": "A luz brilha.", "prompt_imagem": "[Deus (Luz Divina)] ilumina", "prompt_diretor": "zoom"}
  ]
}`

func init() {
	gin.SetMode(gin.TestMode)
}

type stubPlanGen struct{}

func (stubPlanGen) GeneratePlan(context.Context, generator.PlanRequest) (string, error) {
	return testPlanJSON, nil
}

type stubImageGen struct {
	mu sync.Mutex
	n  int
}

func (g *stubImageGen) GenerateImage(context.Context, ports.ImagePageRequest) (*ports.ImageResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return &ports.ImageResponse{Data: []byte(fmt.Sprintf("img-%d", g.n)), MimeType: "image/png"}, nil
}

type testEnv struct {
	srv    *Server
	router *gin.Engine
	hub    *Hub
	media  *store.BlobStore
}

func newTestEnv(t *testing.T, authService *auth.Service) *testEnv {
	t.Helper()
	catalog := domain.DefaultCatalog()
	prefs := store.NewPreferences(store.NewMemoryStore(0), catalog)
	media := store.NewBlobStore(0)
	hub := NewHub()

	orch, err := workflow.New(workflow.Args{
		Config:   workflow.Config{APIDelay: 0},
		PlanGen:  stubPlanGen{},
		ImageGen: &stubImageGen{},
		Media:    media,
		Reporter: hub,
	})
	if err != nil {
		t.Fatalf("オーケストレーターを作れないのだ: %v", err)
	}
	manager, err := workflow.NewManager(workflow.ManagerArgs{
		Catalog:     catalog,
		Sessions:    store.NewMemoryStore(0),
		Preferences: prefs,
	})
	if err != nil {
		t.Fatalf("Manager を作れないのだ: %v", err)
	}

	srv := New(&builder.AppContext{
		Catalog:      catalog,
		Preferences:  prefs,
		Media:        media,
		Manager:      manager,
		Orchestrator: orch,
		Auth:         authService,
	}, hub)
	t.Cleanup(srv.Shutdown)
	return &testEnv{srv: srv, router: srv.Router(), hub: hub, media: media}
}

// do はリクエストを投げて応答を返すのだ。headers は "Key", "Value" の順に並べます。
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("本文をエンコードできないのだ: %v", err)
		}
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("応答を読めないのだ: %v (%s)", err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("ステータスが違うのだ: got %d, want %d (%s)", w.Code, want, w.Body.String())
	}
}

func expectKind(t *testing.T, w *httptest.ResponseRecorder, want apperr.Kind) {
	t.Helper()
	if got := decode[errorResponse](t, w); got.Kind != want {
		t.Errorf("エラー種別が違うのだ: got %q, want %q", got.Kind, want)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindCredential, http.StatusUnauthorized},
		{apperr.KindKeySelection, http.StatusPreconditionRequired},
		{apperr.KindLimit, http.StatusTooManyRequests},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindUnauthorized, http.StatusUnauthorized},
		{apperr.KindForbidden, http.StatusForbidden},
		{apperr.KindNoImage, http.StatusBadGateway},
		{apperr.KindUpstream, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := statusFor(tt.kind); got != tt.want {
				t.Errorf("statusFor(%s) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestServer_SessionAndCharacters(t *testing.T) {
	e := newTestEnv(t, nil)

	w := e.do(t, http.MethodPost, "/api/session", nil)
	expectStatus(t, w, http.StatusCreated)
	sid := w.Header().Get(SessionHeader)
	if sid == "" {
		t.Fatal("セッション ID がヘッダーで返っていないのだ")
	}

	t.Run("一覧には既定の選択が含まれる", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/api/characters", nil, SessionHeader, sid)
		expectStatus(t, w, http.StatusOK)
		got := decode[struct {
			Characters []characterView `json:"characters"`
			Selection  []string        `json:"selection"`
		}](t, w)
		if len(got.Selection) != 2 || got.Selection[0] != "Davi (Jovem)" {
			t.Errorf("既定の選択が違うのだ: %v", got.Selection)
		}
		if len(got.Characters) == 0 || !got.Characters[0].Predefined {
			t.Errorf("組み込みキャラクターが返っていないのだ: %+v", got.Characters)
		}
	})

	t.Run("カスタムキャラクターの追加と削除", func(t *testing.T) {
		payload := domain.NewCharacterPayload{Name: "Golias", Description: "um gigante"}
		expectStatus(t, e.do(t, http.MethodPost, "/api/characters", payload, SessionHeader, sid), http.StatusCreated)

		dup := e.do(t, http.MethodPost, "/api/characters", domain.NewCharacterPayload{Name: "golias", Description: "outro"}, SessionHeader, sid)
		expectStatus(t, dup, http.StatusBadRequest)
		expectKind(t, dup, apperr.KindValidation)

		pre := e.do(t, http.MethodDelete, "/api/characters/Eva", nil, SessionHeader, sid)
		expectStatus(t, pre, http.StatusForbidden)
		expectKind(t, pre, apperr.KindForbidden)

		expectStatus(t, e.do(t, http.MethodDelete, "/api/characters/Golias", nil, SessionHeader, sid), http.StatusNoContent)
		expectStatus(t, e.do(t, http.MethodDelete, "/api/characters/Golias", nil, SessionHeader, sid), http.StatusNotFound)
	})

	t.Run("選択の置き換え", func(t *testing.T) {
		w := e.do(t, http.MethodPut, "/api/selection", selectionRequest{Characters: []string{"Eva", "Eva"}}, SessionHeader, sid)
		expectStatus(t, w, http.StatusOK)
		got := decode[map[string][]string](t, w)
		if len(got["selection"]) != 1 {
			t.Errorf("重複が除かれていないのだ: %v", got["selection"])
		}
		expectStatus(t, e.do(t, http.MethodPut, "/api/selection", selectionRequest{Characters: []string{"Ninguém"}}, SessionHeader, sid), http.StatusNotFound)
	})

	t.Run("ヘッダーがなければ新しいセッションを発行する", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/api/plan", nil)
		expectStatus(t, w, http.StatusOK)
		if got := w.Header().Get(SessionHeader); got == "" || got == sid {
			t.Errorf("新しいセッション ID になっていないのだ: %q", got)
		}
	})
}

func TestServer_PlanFlow(t *testing.T) {
	e := newTestEnv(t, nil)
	sid := "sessao-1"

	w := e.do(t, http.MethodPost, "/api/plan", workflow.Brief{Idea: "Davi enfrenta Golias"}, SessionHeader, sid)
	expectStatus(t, w, http.StatusAccepted)
	job := decode[Job](t, w)
	if job.State != jobRunning || job.Kind != jobPlan {
		t.Fatalf("ジョブの初期状態が違うのだ: %+v", job)
	}
	e.srv.Wait()

	w = e.do(t, http.MethodGet, "/api/jobs/"+job.ID, nil, SessionHeader, sid)
	expectStatus(t, w, http.StatusOK)
	done := decode[Job](t, w)
	if done.State != jobDone || done.Outcome == nil || done.Outcome.Status != workflow.StatusCompleted {
		t.Fatalf("生成が完了していないのだ: %+v", done)
	}
	expectStatus(t, e.do(t, http.MethodGet, "/api/jobs/"+job.ID, nil, SessionHeader, "other"), http.StatusNotFound)

	w = e.do(t, http.MethodGet, "/api/plan", nil, SessionHeader, sid)
	expectStatus(t, w, http.StatusOK)
	got := decode[struct {
		Plan *domain.ProductionPlan `json:"plan"`
	}](t, w)
	if got.Plan == nil || len(got.Plan.Cenas) != 2 {
		t.Fatalf("計画が保存されていないのだ: %+v", got.Plan)
	}
	for _, sc := range got.Plan.Cenas {
		if sc.ImageURL == "" || sc.IsGenerating {
			t.Errorf("シーン %d の画像がないのだ", sc.ID)
		}
	}

	t.Run("シーンの編集", func(t *testing.T) {
		edited := domain.Scene{ID: 99, Dialogo: "Novo diálogo", PromptImagem: "novo", PromptDiretor: "plano fechado"}
		w := e.do(t, http.MethodPut, "/api/plan/scenes/1", edited, SessionHeader, sid)
		expectStatus(t, w, http.StatusOK)
		sc := decode[domain.Scene](t, w)
		if sc.ID != 1 || sc.Dialogo != "Novo diálogo" || sc.ImageURL == "" {
			t.Errorf("編集結果が違うのだ: %+v", sc)
		}
		expectStatus(t, e.do(t, http.MethodPut, "/api/plan/scenes/abc", edited, SessionHeader, sid), http.StatusBadRequest)
	})

	t.Run("単体の再生成", func(t *testing.T) {
		before := got.Plan.Cenas[1].ImageURL
		w := e.do(t, http.MethodPost, "/api/plan/scenes/2/regenerate", nil, SessionHeader, sid)
		expectStatus(t, w, http.StatusOK)
		if sc := decode[domain.Scene](t, w); sc.ImageURL == before {
			t.Error("画像が変わっていないのだ")
		}
		expectStatus(t, e.do(t, http.MethodPost, "/api/plan/scenes/42/regenerate", nil, SessionHeader, sid), http.StatusNotFound)

		w = e.do(t, http.MethodPost, "/api/plan/thumbnail/9x16/regenerate", nil, SessionHeader, sid)
		expectStatus(t, w, http.StatusOK)
		if th := decode[domain.YouTubeThumbnail](t, w); th.ImageURL9x16 == "" {
			t.Error("縦長サムネイルがないのだ")
		}
		expectStatus(t, e.do(t, http.MethodPost, "/api/plan/thumbnail/4x3/regenerate", nil, SessionHeader, sid), http.StatusBadRequest)
	})

	t.Run("課金キーなしのアニメーションはジョブで失敗する", func(t *testing.T) {
		w := e.do(t, http.MethodPost, "/api/plan/scenes/1/animate", animateRequest{Provider: domain.ProviderGemini}, SessionHeader, sid)
		expectStatus(t, w, http.StatusAccepted)
		job := decode[Job](t, w)
		e.srv.Wait()
		w = e.do(t, http.MethodGet, "/api/jobs/"+job.ID, nil, SessionHeader, sid)
		if done := decode[Job](t, w); done.ErrorKind != apperr.KindKeySelection {
			t.Errorf("キー選択のエラーになっていないのだ: %+v", done)
		}
		bad := e.do(t, http.MethodPost, "/api/plan/scenes/1/animate", map[string]string{"provider": "sora"}, SessionHeader, sid)
		expectStatus(t, bad, http.StatusBadRequest)
	})

	t.Run("実行中のセッションでは単体の生成を受け付けないのだ", func(t *testing.T) {
		e.srv.busy.Store(sid, "job-em-andamento")
		before := e.do(t, http.MethodGet, "/api/plan", nil, SessionHeader, sid).Body.String()

		for _, path := range []string{
			"/api/plan/scenes/2/regenerate",
			"/api/plan/thumbnail/16x9/regenerate",
			"/api/plan/scenes/1/animate",
		} {
			w := e.do(t, http.MethodPost, path, animateRequest{Provider: domain.ProviderOpenAI, OpenAIKey: "sk-test"}, SessionHeader, sid)
			expectStatus(t, w, http.StatusConflict)
			expectKind(t, w, kindBusy)
		}
		if after := e.do(t, http.MethodGet, "/api/plan", nil, SessionHeader, sid).Body.String(); after != before {
			t.Error("409 のあとで計画が変わっているのだ")
		}

		e.srv.busy.Delete(sid)
		expectStatus(t, e.do(t, http.MethodPost, "/api/plan/scenes/2/regenerate", nil, SessionHeader, sid), http.StatusOK)
		if _, running := e.srv.busy.Load(sid); running {
			t.Error("再生成のあとで実行中の印が残っているのだ")
		}
	})

	t.Run("アニメーションのジョブが終われば実行中の印は外れるのだ", func(t *testing.T) {
		w := e.do(t, http.MethodPost, "/api/plan/scenes/1/animate", animateRequest{Provider: domain.ProviderGemini}, SessionHeader, sid)
		expectStatus(t, w, http.StatusAccepted)
		e.srv.Wait()
		if _, running := e.srv.busy.Load(sid); running {
			t.Error("ジョブの終了後も実行中の印が残っているのだ")
		}
	})

	t.Run("エクスポート", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/api/plan/export", nil, SessionHeader, sid)
		expectStatus(t, w, http.StatusOK)
		if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "Davi_e_o_Gigante.json") {
			t.Errorf("ファイル名が違うのだ: %s", cd)
		}
	})

	t.Run("新しいストーリー", func(t *testing.T) {
		expectStatus(t, e.do(t, http.MethodDelete, "/api/plan", nil, SessionHeader, sid), http.StatusNoContent)
		w := e.do(t, http.MethodGet, "/api/plan", nil, SessionHeader, sid)
		if p := decode[map[string]any](t, w)["plan"]; p != nil {
			t.Errorf("計画が残っているのだ: %v", p)
		}
		expectStatus(t, e.do(t, http.MethodGet, "/api/plan/export", nil, SessionHeader, sid), http.StatusNotFound)
	})
}

func TestServer_FillPortraits(t *testing.T) {
	e := newTestEnv(t, nil)
	sid := "galeria"

	w := e.do(t, http.MethodPost, "/api/characters/fill", nil, SessionHeader, sid)
	expectStatus(t, w, http.StatusAccepted)
	job := decode[Job](t, w)
	e.srv.Wait()

	w = e.do(t, http.MethodGet, "/api/jobs/"+job.ID, nil, SessionHeader, sid)
	done := decode[Job](t, w)
	if done.State != jobDone || done.Generated == 0 {
		t.Fatalf("肖像が生成されていないのだ: %+v", done)
	}

	w = e.do(t, http.MethodGet, "/api/characters", nil, SessionHeader, sid)
	got := decode[struct {
		Characters []characterView `json:"characters"`
	}](t, w)
	for _, c := range got.Characters {
		if c.ImageURL == "" {
			t.Errorf("%s の肖像がないのだ", c.Name)
		}
	}

	w = e.do(t, http.MethodDelete, "/api/characters/fill", nil, SessionHeader, sid)
	expectStatus(t, w, http.StatusOK)
	if decode[map[string]bool](t, w)["canceled"] {
		t.Error("実行中でないのに取り消したことになっているのだ")
	}
}

func TestServer_LocalMode(t *testing.T) {
	e := newTestEnv(t, nil)

	t.Run("認証が無効なら管理 API は 503", func(t *testing.T) {
		expectStatus(t, e.do(t, http.MethodGet, "/api/admin/users", nil), http.StatusServiceUnavailable)
		expectStatus(t, e.do(t, http.MethodPost, "/api/auth/login", loginRequest{Email: "a@b.c", Password: "x"}), http.StatusServiceUnavailable)
		expectStatus(t, e.do(t, http.MethodPost, "/api/auth/logout", nil), http.StatusNoContent)
	})

	t.Run("Webhook URL の設定", func(t *testing.T) {
		expectStatus(t, e.do(t, http.MethodPut, "/api/webhook", webhookRequest{URL: "ftp://n8n.local/hook"}), http.StatusBadRequest)
		expectStatus(t, e.do(t, http.MethodPut, "/api/webhook", webhookRequest{URL: "https://n8n.local/webhook/1"}), http.StatusOK)

		w := e.do(t, http.MethodGet, "/api/webhook", nil)
		if got := decode[map[string]string](t, w)["url"]; got != "https://n8n.local/webhook/1" {
			t.Errorf("URL が保存されていないのだ: %q", got)
		}
		expectStatus(t, e.do(t, http.MethodDelete, "/api/webhook", nil), http.StatusNoContent)
		w = e.do(t, http.MethodGet, "/api/webhook", nil)
		if got := decode[map[string]string](t, w)["url"]; got != "" {
			t.Errorf("URL が消えていないのだ: %q", got)
		}
	})

	t.Run("オプション", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/api/options", nil)
		expectStatus(t, w, http.StatusOK)
		got := decode[map[string]any](t, w)
		if got["authEnabled"] != false || got["defaultLanguage"] != domain.DefaultLanguage {
			t.Errorf("オプションが違うのだ: %v", got)
		}
	})

	t.Run("メディア", func(t *testing.T) {
		handle := e.media.Put([]byte("MP4"), "video/mp4")
		w := e.do(t, http.MethodGet, handle, nil)
		expectStatus(t, w, http.StatusOK)
		if w.Body.String() != "MP4" || w.Header().Get("Content-Type") != "video/mp4" {
			t.Errorf("メディアの中身が違うのだ: %q %s", w.Body.String(), w.Header().Get("Content-Type"))
		}
		expectStatus(t, e.do(t, http.MethodGet, "/media/unknown", nil), http.StatusNotFound)
	})
}

// fakeAuth は固定のトークンでユーザーを返す認証バックエンドなのだ。
type fakeAuth struct {
	users map[string]auth.AuthUser // トークン -> ユーザー
}

func (f *fakeAuth) SignIn(context.Context, string, string) (*auth.Session, error) {
	return nil, apperr.Unauthorized("Credenciais inválidas.", nil)
}

func (f *fakeAuth) SignUp(context.Context, string, string, string, string) (*auth.Session, error) {
	return nil, apperr.Validation("indisponível")
}

func (f *fakeAuth) SignOut(context.Context, string) error { return nil }

func (f *fakeAuth) GetUser(_ context.Context, token string) (*auth.AuthUser, error) {
	u, ok := f.users[token]
	if !ok {
		return nil, apperr.Unauthorized("Sessão inválida.", nil)
	}
	return &u, nil
}

func (f *fakeAuth) InvokeFunction(context.Context, string, string, any) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

type fakeProfiles struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (f *fakeProfiles) Get(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeProfiles) List(context.Context) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeProfiles) UpdateStatus(_ context.Context, id string, status domain.Status) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFound("Usuário não encontrado.")
	}
	u.Status = status
	f.users[id] = u
	return &u, nil
}

func (f *fakeProfiles) UpdateDDI(context.Context, string, string) error { return nil }

func TestServer_AuthEnabled(t *testing.T) {
	authn := &fakeAuth{users: map[string]auth.AuthUser{
		"tok-admin": {ID: "admin", Email: "admin@studio.com"},
		"tok-ana":   {ID: "ana", Email: "ana@studio.com"},
		"tok-pend":  {ID: "pend", Email: "pend@studio.com"},
	}}
	profiles := &fakeProfiles{users: map[string]domain.User{
		"admin": {ID: "admin", Role: domain.RoleSuperadmin, Status: domain.StatusActive},
		"ana":   {ID: "ana", Role: domain.RoleTenant, Status: domain.StatusActive},
		"pend":  {ID: "pend", Role: domain.RoleTenant, Status: domain.StatusPending},
	}}
	svc, err := auth.NewService(authn, profiles, nil)
	if err != nil {
		t.Fatalf("認証サービスを作れないのだ: %v", err)
	}
	e := newTestEnv(t, svc)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
		kind   apperr.Kind
	}{
		{"トークンなしのスタジオ", http.MethodGet, "/api/characters", "", nil, http.StatusUnauthorized, apperr.KindUnauthorized},
		{"有効化待ちのスタジオ", http.MethodGet, "/api/characters", "tok-pend", nil, http.StatusForbidden, apperr.KindForbidden},
		{"有効なユーザーのスタジオ", http.MethodGet, "/api/characters", "tok-ana", nil, http.StatusOK, ""},
		{"一般ユーザーの管理 API", http.MethodGet, "/api/admin/users", "tok-ana", nil, http.StatusForbidden, apperr.KindForbidden},
		{"一般ユーザーの Webhook 設定", http.MethodGet, "/api/webhook", "tok-ana", nil, http.StatusForbidden, apperr.KindForbidden},
		{"管理者のユーザー一覧", http.MethodGet, "/api/admin/users", "tok-admin", nil, http.StatusOK, ""},
		{"不正なステータス", http.MethodPut, "/api/admin/users/pend/status", "tok-admin", statusRequest{Status: domain.StatusPending}, http.StatusBadRequest, apperr.KindValidation},
		{"有効化", http.MethodPut, "/api/admin/users/pend/status", "tok-admin", statusRequest{Status: domain.StatusActive}, http.StatusOK, ""},
		{"短いパスワード", http.MethodPost, "/api/admin/users", "tok-admin", createUserRequest{Email: "novo@studio.com", Password: "123"}, http.StatusBadRequest, apperr.KindValidation},
		{"招待", http.MethodPost, "/api/admin/invitations", "tok-admin", inviteRequest{Email: "novo@studio.com"}, http.StatusAccepted, ""},
		{"ログイン失敗", http.MethodPost, "/api/auth/login", "", loginRequest{Email: "ana@studio.com", Password: "errada"}, http.StatusUnauthorized, apperr.KindUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.token != "" {
				headers = []string{"Authorization", "Bearer " + tt.token}
			}
			w := e.do(t, tt.method, tt.path, tt.body, headers...)
			expectStatus(t, w, tt.want)
			if tt.kind != "" {
				expectKind(t, w, tt.kind)
			}
		})
	}

	// 有効化した後はスタジオを使えるのだ
	w := e.do(t, http.MethodGet, "/api/auth/me", nil, "Authorization", "Bearer tok-pend")
	expectStatus(t, w, http.StatusOK)
}

func TestHub_Report(t *testing.T) {
	e := newTestEnv(t, nil)
	ts := httptest.NewServer(e.router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=s1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket に接続できないのだ: %v", err)
	}
	defer conn.Close()

	read := func() workflow.Event {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev workflow.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("イベントを受信できないのだ: %v", err)
		}
		return ev
	}

	if ev := read(); ev.Stage != StageConnected {
		t.Fatalf("最初のイベントが接続通知ではないのだ: %+v", ev)
	}

	e.hub.Report(context.Background(), workflow.Event{SessionID: "s2", Stage: workflow.StagePlan})
	e.hub.Report(context.Background(), workflow.Event{SessionID: "s1", Stage: workflow.StageSceneImage, SceneID: 3})

	// 別セッションのイベントは届かないので、次に読めるのは s1 のものなのだ
	if ev := read(); ev.SessionID != "s1" || ev.SceneID != 3 {
		t.Errorf("受信したイベントが違うのだ: %+v", ev)
	}
	if e.hub.ClientCount() != 1 {
		t.Errorf("接続数が違うのだ: %d", e.hub.ClientCount())
	}

	e.hub.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Close 後も接続が残っているのだ")
	}
}
