package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/atomic"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/auth"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/store"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

const (
	jobTTL             = time.Hour
	jobCleanupInterval = 10 * time.Minute
	shutdownTimeout    = 15 * time.Second
	readHeaderTimeout  = 10 * time.Second
)

// Server は HTTP API のハンドラー群です。
type Server struct {
	manager *workflow.Manager
	orch    *workflow.Orchestrator
	auth    *auth.Service // nil なら認証なしのローカルモードなのだ
	prefs   *store.Preferences
	media   *store.BlobStore
	hub     *Hub

	jobs  *cache.Cache
	fills sync.Map // セッション ID -> *atomic.Bool
	busy  sync.Map // セッション ID -> 実行中の job ID

	// baseCtx は非同期ジョブの親コンテキストです。Shutdown で取り消されます。
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New は AppContext と Hub から Server を組み立てます。
// Hub は BuildAppContext に Reporter として渡したものと同じでなければなりません。
func New(app *builder.AppContext, hub *Hub) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		manager: app.Manager,
		orch:    app.Orchestrator,
		auth:    app.Auth,
		prefs:   app.Preferences,
		media:   app.Media,
		hub:     hub,
		jobs:    cache.New(jobTTL, jobCleanupInterval),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Router は全てのルートを登録した gin エンジンを返すのだ。
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), corsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/media/*handle", s.handleMedia)
	r.GET("/ws", s.handleWS)

	api := r.Group("/api")
	api.GET("/options", s.handleOptions)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/signup", s.handleSignup)
		authGroup.POST("/logout", s.handleLogout)
		authGroup.GET("/me", s.requireUser(false), s.handleMe)
	}

	admin := api.Group("/admin", s.requireAuthService(), s.requireUser(true))
	{
		admin.GET("/users", s.handleListUsers)
		admin.POST("/users", s.handleCreateUser)
		admin.POST("/invitations", s.handleInviteUser)
		admin.PUT("/users/:id/status", s.handleSetStatus)
	}

	hook := api.Group("/webhook", s.requireUser(true))
	{
		hook.GET("", s.handleGetWebhook)
		hook.PUT("", s.handleSetWebhook)
		hook.DELETE("", s.handleClearWebhook)
	}

	api.POST("/session", s.requireUser(false), s.handleNewSession)

	studio := api.Group("", s.requireUser(false), s.sessionMiddleware())
	{
		studio.GET("/characters", s.handleListCharacters)
		studio.POST("/characters", s.handleAddCharacter)
		studio.DELETE("/characters/:name", s.handleDeleteCharacter)
		studio.POST("/characters/preview", s.handlePreviewCharacter)
		studio.POST("/characters/fill", s.handleStartFill)
		studio.DELETE("/characters/fill", s.handleCancelFill)
		studio.PUT("/selection", s.handleSetSelection)

		studio.POST("/plan", s.handleRunPlan)
		studio.GET("/plan", s.handleGetPlan)
		studio.DELETE("/plan", s.handleNewStory)
		studio.GET("/plan/export", s.handleExportPlan)
		studio.PUT("/plan/scenes/:id", s.handleUpdateScene)
		studio.POST("/plan/scenes/:id/regenerate", s.handleRegenerateScene)
		studio.POST("/plan/scenes/:id/animate", s.handleAnimateScene)
		studio.POST("/plan/thumbnail/:ratio/regenerate", s.handleRegenerateThumbnail)
		studio.GET("/jobs/:id", s.handleGetJob)
	}
	return r
}

// ListenAndServe は ctx が終わるまでサーバーを動かし、その後グレースフルに停止するのだ。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP サーバーを起動します", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP サーバーの起動に失敗しました: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("HTTP サーバーを停止します")
	err := srv.Shutdown(shutdownCtx)
	s.Shutdown()
	return err
}

// Shutdown は実行中のジョブを取り消し、終わるまで待ちます。
func (s *Server) Shutdown() {
	s.cancel()
	s.fills.Range(func(_, v any) bool {
		v.(*atomic.Bool).Store(true)
		return true
	})
	s.wg.Wait()
}

// Wait は実行中の非同期処理が終わるまで待つのだ。
func (s *Server) Wait() {
	s.wg.Wait()
}

// goAsync は非同期処理を baseCtx の下で起動します。
func (s *Server) goAsync(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.baseCtx)
	}()
}

func (s *Server) handleOptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"languages":       domain.Languages,
		"audiences":       domain.Audiences,
		"defaultLanguage": domain.DefaultLanguage,
		"defaultAudience": domain.DefaultAudience,
		"providers":       []domain.VideoProvider{domain.ProviderGemini, domain.ProviderOpenAI},
		"authEnabled":     s.auth != nil,
	})
}

func (s *Server) handleMedia(c *gin.Context) {
	blob, ok := s.media.Get(c.Param("handle"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, blob.MimeType, blob.Data)
}

func (s *Server) handleWS(c *gin.Context) {
	id := c.Query("session")
	if id == "" {
		id = c.GetHeader(SessionHeader)
	}
	if id == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Sessão não informada.", Kind: apperr.KindValidation})
		return
	}
	s.hub.ServeWS(c.Writer, c.Request, id)
}
