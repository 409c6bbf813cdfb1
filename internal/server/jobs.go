package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shouni/go-storyboard-kit/pkg/apperr"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

// jobKind は非同期ジョブの種類です。
type jobKind string

const (
	jobPlan    jobKind = "plan"
	jobAnimate jobKind = "animate"
	jobFill    jobKind = "fill"
)

// jobState はジョブの進行状態なのだ。
type jobState string

const (
	jobRunning jobState = "running"
	jobDone    jobState = "done"
)

// kindBusy は同じセッションで処理が実行中の場合に返す種別です。
const kindBusy apperr.Kind = "busy"

const (
	msgPlanRunning = "Já existe uma geração em andamento nesta sessão."
	msgFillRunning = "A galeria já está sendo preenchida."
	msgJobNotFound = "Tarefa não encontrada."
)

// jobResult は非同期処理の結果です。
type jobResult struct {
	Outcome   *workflow.Outcome
	Generated int
	Err       error
}

// Job はクライアントに返すジョブの状態なのだ。
type Job struct {
	ID         string            `json:"jobId"`
	SessionID  string            `json:"sessionId"`
	Kind       jobKind           `json:"kind"`
	State      jobState          `json:"state"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
	Outcome    *workflow.Outcome `json:"outcome,omitempty"`
	Generated  int               `json:"generated,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  apperr.Kind       `json:"errorKind,omitempty"`
}

// startJob は fn をバックグラウンドで実行し、開始時点のジョブを返します。
// 状態は完了時に丸ごと差し替えるので、読み手はロックなしで参照できるのだ。
func (s *Server) startJob(ws *workflow.Workspace, kind jobKind, fn func(ctx context.Context) jobResult) Job {
	job := Job{
		ID:        uuid.NewString(),
		SessionID: ws.ID(),
		Kind:      kind,
		State:     jobRunning,
		StartedAt: time.Now(),
	}
	s.jobs.SetDefault(job.ID, job)

	s.goAsync(func(ctx context.Context) {
		res := fn(ctx)

		done := job
		now := time.Now()
		done.State = jobDone
		done.FinishedAt = &now
		done.Outcome = res.Outcome
		done.Generated = res.Generated
		if res.Err != nil {
			done.Error = apperr.Message(res.Err)
			done.ErrorKind = apperr.KindOf(res.Err)
		}
		s.jobs.SetDefault(job.ID, done)

		slog.Info("ジョブが終了しました",
			"job", job.ID,
			"kind", kind,
			"session", job.SessionID,
			"elapsed", now.Sub(job.StartedAt),
			"error", done.Error,
		)
		if kind == jobFill && res.Err == nil {
			s.reportDone(ctx, ws, "")
		}
	})
	return job
}

func (s *Server) handleGetJob(c *gin.Context) {
	v, ok := s.jobs.Get(c.Param("id"))
	if !ok {
		respondError(c, apperr.NotFound(msgJobNotFound))
		return
	}
	job := v.(Job)
	// 他のセッションのジョブは見せません
	if job.SessionID != workspaceFrom(c).ID() {
		respondError(c, apperr.NotFound(msgJobNotFound))
		return
	}
	c.JSON(http.StatusOK, job)
}
