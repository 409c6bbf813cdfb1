package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	DDI      string `json:"ddi"`
}

type createUserRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

type inviteRequest struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

type statusRequest struct {
	Status domain.Status `json:"status"`
}

type webhookRequest struct {
	URL string `json:"url"`
}

// handleLogin はログインします。有効化待ちのユーザーにはトークンと一緒に pending を返すのだ。
func (s *Server) handleLogin(c *gin.Context) {
	if s.auth == nil {
		s.authDisabled(c)
		return
	}
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	id, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  id.AccessToken,
		"refresh_token": id.RefreshToken,
		"user":          id.User,
		"pending":       id.Pending(),
	})
}

func (s *Server) handleSignup(c *gin.Context) {
	if s.auth == nil {
		s.authDisabled(c)
		return
	}
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := s.auth.Signup(c.Request.Context(), req.Email, req.Password, req.Phone, req.DDI)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "pending": true})
}

func (s *Server) handleLogout(c *gin.Context) {
	if s.auth == nil {
		c.Status(http.StatusNoContent)
		return
	}
	if err := s.auth.Logout(c.Request.Context(), bearerToken(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMe(c *gin.Context) {
	v, ok := c.Get(ctxUser)
	if !ok {
		// 認証なしのローカルモード
		c.JSON(http.StatusOK, gin.H{"user": nil, "authEnabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": v.(*domain.User), "authEnabled": true})
}

func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.auth.ListUsers(c.Request.Context(), c.GetString(ctxToken))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleTenant
	}
	if err := s.auth.CreateUser(c.Request.Context(), c.GetString(ctxToken), req.Email, req.Password, req.Role); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"email": strings.TrimSpace(req.Email), "role": req.Role})
}

func (s *Server) handleInviteUser(c *gin.Context) {
	var req inviteRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleTenant
	}
	if err := s.auth.InviteUser(c.Request.Context(), c.GetString(ctxToken), req.Email, req.Role); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"email": strings.TrimSpace(req.Email), "role": req.Role})
}

func (s *Server) handleSetStatus(c *gin.Context) {
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := s.auth.SetStatus(c.Request.Context(), c.GetString(ctxToken), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleGetWebhook(c *gin.Context) {
	u, err := s.prefs.WebhookURL(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": u})
}

func (s *Server) handleSetWebhook(c *gin.Context) {
	var req webhookRequest
	if !bindJSON(c, &req) {
		return
	}
	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		s.handleClearWebhook(c)
		return
	}
	if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		respondError(c, apperr.Validation("Informe uma URL de webhook válida (http ou https)."))
		return
	}
	if err := s.prefs.SetWebhookURL(c.Request.Context(), raw); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": raw})
}

func (s *Server) handleClearWebhook(c *gin.Context) {
	if err := s.prefs.ClearWebhookURL(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) authDisabled(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{
		Error: "Autenticação não configurada neste servidor.",
		Kind:  apperr.KindUpstream,
	})
}
