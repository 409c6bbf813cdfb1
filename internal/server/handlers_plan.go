package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/publisher"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

type animateRequest struct {
	Provider  domain.VideoProvider `json:"provider"`
	OpenAIKey string               `json:"openaiKey"`
}

// handleRunPlan は制作計画の生成をバックグラウンドで始めます。
// 進捗は WebSocket に流れ、結果はジョブで確認できるのだ。
func (s *Server) handleRunPlan(c *gin.Context) {
	var brief workflow.Brief
	if !bindJSON(c, &brief) {
		return
	}
	ws := workspaceFrom(c)
	if !s.acquire(c, ws) {
		return
	}

	job := s.startJob(ws, jobPlan, func(ctx context.Context) jobResult {
		defer s.busy.Delete(ws.ID())
		out := s.orch.Run(ctx, ws, brief)
		return jobResult{Outcome: &out, Err: out.Err}
	})
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleGetPlan(c *gin.Context) {
	ws := workspaceFrom(c)
	_, running := s.busy.Load(ws.ID())
	c.JSON(http.StatusOK, gin.H{
		"plan":      ws.Plan(),
		"portraits": ws.Portraits(),
		"running":   running,
	})
}

func (s *Server) handleNewStory(c *gin.Context) {
	ws := workspaceFrom(c)
	if _, running := s.busy.Load(ws.ID()); running {
		c.JSON(http.StatusConflict, errorResponse{Error: msgPlanRunning, Kind: kindBusy})
		return
	}
	ws.NewStory(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (s *Server) handleExportPlan(c *gin.Context) {
	plan := workspaceFrom(c).Plan()
	if plan == nil {
		respondError(c, apperr.NotFound("Nenhum plano de produção para exportar."))
		return
	}
	data, err := publisher.Export(plan)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, plan.ExportFileName()))
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (s *Server) handleUpdateScene(c *gin.Context) {
	id, ok := sceneID(c)
	if !ok {
		return
	}
	var edited domain.Scene
	if !bindJSON(c, &edited) {
		return
	}
	edited.ID = id
	scene, err := workspaceFrom(c).UpdateScene(c.Request.Context(), edited)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scene)
}

func (s *Server) handleRegenerateScene(c *gin.Context) {
	id, ok := sceneID(c)
	if !ok {
		return
	}
	ws := workspaceFrom(c)
	if !s.acquire(c, ws) {
		return
	}
	defer s.busy.Delete(ws.ID())

	scene, err := s.orch.RegenerateScene(c.Request.Context(), ws, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scene)
}

// handleAnimateScene は動画生成に数分かかるのでジョブとして実行するのだ。
// 実行中はセッションを占有します。
func (s *Server) handleAnimateScene(c *gin.Context) {
	id, ok := sceneID(c)
	if !ok {
		return
	}
	var req animateRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	if req.Provider != "" && !req.Provider.Valid() {
		respondError(c, apperr.Validation("Provedor de animação desconhecido."))
		return
	}

	ws := workspaceFrom(c)
	if !s.acquire(c, ws) {
		return
	}
	job := s.startJob(ws, jobAnimate, func(ctx context.Context) jobResult {
		defer s.busy.Delete(ws.ID())
		_, err := s.orch.AnimateScene(ctx, ws, id, req.Provider, req.OpenAIKey)
		return jobResult{Err: err}
	})
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleRegenerateThumbnail(c *gin.Context) {
	ratio, ok := domain.ParseAspectRatio(c.Param("ratio"))
	if !ok {
		respondError(c, apperr.Validation(fmt.Sprintf("Proporção inválida: %s", c.Param("ratio"))))
		return
	}
	ws := workspaceFrom(c)
	if !s.acquire(c, ws) {
		return
	}
	defer s.busy.Delete(ws.ID())

	thumb, err := s.orch.RegenerateThumbnail(c.Request.Context(), ws, ratio)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thumb)
}

// acquire はセッションの実行権を取ります。取れなければ 409 を返すのだ。
func (s *Server) acquire(c *gin.Context, ws *workflow.Workspace) bool {
	if _, loaded := s.busy.LoadOrStore(ws.ID(), true); loaded {
		c.JSON(http.StatusConflict, errorResponse{Error: msgPlanRunning, Kind: kindBusy})
		return false
	}
	return true
}

func sceneID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		respondError(c, apperr.Validation("Identificador de cena inválido."))
		return 0, false
	}
	return id, true
}
