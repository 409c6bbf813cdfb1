package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
)

// errorResponse はエラー時の JSON 本文です。
type errorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

// statusFor はエラー種別を HTTP ステータスに対応付けます。
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindCredential, apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindKeySelection:
		return http.StatusPreconditionRequired
	case apperr.KindLimit:
		return http.StatusTooManyRequests
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

// respondError はエラーを分類して返し、リクエストを打ち切るのだ。
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "リクエストの処理に失敗しました",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	msg := apperr.Message(err)
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		// 分類されていない内部エラーの詳細は返しません
		msg = "Ocorreu um erro inesperado. Tente novamente."
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Kind: kind})
}

// bindJSON は本文を読み込み、失敗したら 400 を返します。
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, apperr.Validation("Corpo da requisição inválido."))
		return false
	}
	return true
}
