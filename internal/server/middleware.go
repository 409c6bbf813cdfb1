package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

// SessionHeader はセッション ID を運ぶヘッダーです。
const SessionHeader = "X-Session-ID"

const (
	ctxWorkspace = "storyboard.workspace"
	ctxUser      = "storyboard.user"
	ctxToken     = "storyboard.token"

	maxSessionIDLength = 128
)

// requestLogger はリクエストごとに1行のログを出すのだ。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP リクエスト",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+SessionHeader)
		h.Set("Access-Control-Expose-Headers", SessionHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// sessionMiddleware はヘッダーのセッション ID からワークスペースを用意します。
// ヘッダーがなければ新しい ID を発行して応答ヘッダーで返すのだ。
func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(SessionHeader))
		if len(id) > maxSessionIDLength {
			respondError(c, apperr.Validation("Identificador de sessão inválido."))
			return
		}
		if id == "" {
			id = s.manager.NewSessionID()
		}
		ws, err := s.manager.Workspace(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header(SessionHeader, id)
		c.Set(ctxWorkspace, ws)
		c.Next()
	}
}

// requireUser は Bearer トークンのユーザーを確認します。
// 認証が無効な場合は誰でも通すのだ。admin が true なら管理者だけを通します。
func (s *Server) requireUser(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.auth == nil {
			c.Next()
			return
		}
		token := bearerToken(c)
		var (
			user *domain.User
			err  error
		)
		if admin {
			user, err = s.auth.RequireAdmin(c.Request.Context(), token)
		} else {
			user, err = s.auth.RequireStudio(c.Request.Context(), token)
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(ctxUser, user)
		c.Set(ctxToken, token)
		c.Next()
	}
}

// requireAuthService は認証が設定されていない場合に 503 を返します。
func (s *Server) requireAuthService() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.auth == nil {
			s.authDisabled(c)
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func workspaceFrom(c *gin.Context) *workflow.Workspace {
	return c.MustGet(ctxWorkspace).(*workflow.Workspace)
}
