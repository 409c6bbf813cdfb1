package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/atomic"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

// characterView はギャラリーに表示するキャラクター1件です。
type characterView struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Predefined    bool   `json:"predefined"`
	Selected      bool   `json:"selected"`
	ImageURL      string `json:"imageUrl,omitempty"`
	PortraitError bool   `json:"portraitError,omitempty"`
}

type selectionRequest struct {
	Characters []string `json:"characters"`
}

func (s *Server) handleNewSession(c *gin.Context) {
	id := s.manager.NewSessionID()
	ws, err := s.manager.Workspace(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header(SessionHeader, id)
	c.JSON(http.StatusCreated, gin.H{
		"sessionId": id,
		"selection": ws.Selection(),
	})
}

func (s *Server) handleListCharacters(c *gin.Context) {
	ws := workspaceFrom(c)
	lib := ws.Library()
	cache := ws.ImageCache()
	selected := make(map[string]bool)
	for _, name := range ws.Selection() {
		selected[name] = true
	}

	names := ws.Names()
	views := make([]characterView, 0, len(names))
	for _, name := range names {
		v := characterView{
			Name:        name,
			Description: lib[name],
			Predefined:  ws.Catalog().IsPredefined(name),
			Selected:    selected[name],
		}
		switch url := cache[name]; url {
		case prompts.PortraitErrorMarker:
			v.PortraitError = true
		default:
			v.ImageURL = url
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, gin.H{
		"characters": views,
		"selection":  ws.Selection(),
		"baseStyle":  lib.BaseStyle(),
	})
}

func (s *Server) handleAddCharacter(c *gin.Context) {
	var payload domain.NewCharacterPayload
	if !bindJSON(c, &payload) {
		return
	}
	ws := workspaceFrom(c)
	if err := ws.AddCustomCharacter(c.Request.Context(), payload); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": payload.Name, "selection": ws.Selection()})
}

func (s *Server) handleDeleteCharacter(c *gin.Context) {
	ws := workspaceFrom(c)
	if err := ws.DeleteCustomCharacter(c.Request.Context(), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePreviewCharacter(c *gin.Context) {
	var traits domain.CharacterTraits
	if !bindJSON(c, &traits) {
		return
	}
	payload, err := s.orch.PreviewCharacter(c.Request.Context(), workspaceFrom(c), traits)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleSetSelection(c *gin.Context) {
	var req selectionRequest
	if !bindJSON(c, &req) {
		return
	}
	ws := workspaceFrom(c)
	if err := ws.SetSelection(req.Characters); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selection": ws.Selection()})
}

// handleStartFill はギャラリーの肖像の補完をバックグラウンドで始めます。
// 同じセッションで実行中なら新しく始めずにその job を返すのだ。
func (s *Server) handleStartFill(c *gin.Context) {
	ws := workspaceFrom(c)
	flag := atomic.NewBool(false)
	if _, loaded := s.fills.LoadOrStore(ws.ID(), flag); loaded {
		c.JSON(http.StatusConflict, errorResponse{Error: msgFillRunning, Kind: kindBusy})
		return
	}

	job := s.startJob(ws, jobFill, func(ctx context.Context) jobResult {
		defer s.fills.Delete(ws.ID())
		n, err := s.orch.FillMissingPortraits(ctx, ws, flag)
		return jobResult{Generated: n, Err: err}
	})
	c.JSON(http.StatusAccepted, job)
}

// handleCancelFill は補完を止めます。実行中の1件は最後まで待ちますが結果は捨てられるのだ。
func (s *Server) handleCancelFill(c *gin.Context) {
	ws := workspaceFrom(c)
	v, ok := s.fills.Load(ws.ID())
	if ok {
		v.(*atomic.Bool).Store(true)
	}
	c.JSON(http.StatusOK, gin.H{"canceled": ok})
}

// reportDone は非同期処理の終了を進捗として流します。
func (s *Server) reportDone(ctx context.Context, ws *workflow.Workspace, msg string) {
	s.hub.Report(ctx, workflow.Event{SessionID: ws.ID(), Stage: workflow.StageDone, Message: msg})
}
