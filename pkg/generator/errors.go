package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
)

// ユーザーに表示するメッセージなのだ。
const (
	msgLimitReached      = "Limite de uso da API atingido. Faça upgrade do seu plano para continuar gerando."
	msgInvalidKey        = "Chave de API inválida ou sem permissão para este modelo. Para gerar vídeos, por favor, selecione uma chave de API associada a um projeto com faturamento ativado."
	msgVideoKeyRequired  = "Chave de API inválida ou sem permissão para o modelo de vídeo. Por favor, selecione uma chave de API válida com um projeto faturável."
	msgMissingGeminiKey  = "Chave de API da Gemini (GEMINI_API_KEY) não encontrada. Configure-a para gerar roteiros e imagens."
	msgMissingOpenAIKey  = "A chave de API da OpenAI é necessária."
	msgNoImage           = "Nenhuma imagem foi gerada pela API."
	msgInvalidReference  = "URL de imagem de referência inválida."
	msgInvalidStartImage = "URL da imagem base é inválida."
	msgNoVideoLink       = "Falha ao obter o link de download do vídeo."
)

// classifyGeminiError は genai のエラーを分類付きエラーに変換します。
// video が true の場合、認証系のエラーはキー再選択が必要な状態として扱うのだ。
func classifyGeminiError(err error, op string, video bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
			return apperr.Limit(msgLimitReached, err)
		case apiErr.Code == http.StatusNotFound && video:
			return apperr.KeySelection(msgVideoKeyRequired, err)
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden ||
			strings.Contains(apiErr.Message, "API key not valid"):
			if video {
				return apperr.KeySelection(msgInvalidKey, err)
			}
			return apperr.Credential(msgInvalidKey, err)
		}
	}

	// gemini クライアントが APIError を包まずに文字列化した場合
	msg := err.Error()
	switch {
	case strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return apperr.Limit(msgLimitReached, err)
	case strings.Contains(msg, "API key not valid"):
		if video {
			return apperr.KeySelection(msgInvalidKey, err)
		}
		return apperr.Credential(msgInvalidKey, err)
	}

	return apperr.Upstream(fmt.Sprintf("Falha na comunicação com a API de IA (%s).", op), err)
}

// classifyOpenAIError は go-openai のエラーを分類付きエラーに変換します。
func classifyOpenAIError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch status {
	case http.StatusTooManyRequests:
		return apperr.Limit(msgLimitReached, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.Credential("Chave de API da OpenAI inválida.", err)
	}
	return apperr.Upstream(fmt.Sprintf("Falha na comunicação com a API da OpenAI (%s).", op), err)
}
