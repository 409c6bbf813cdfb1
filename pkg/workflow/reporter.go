package workflow

import (
	"context"
	"log/slog"
)

// LogReporter は進捗を slog に出力するのだ。
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter は LogReporter を生成します。logger が nil ならデフォルトを使います。
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger.With("component", "workflow")}
}

func (r *LogReporter) Report(ctx context.Context, ev Event) {
	attrs := []any{"session", ev.SessionID, "stage", ev.Stage}
	if ev.SceneID > 0 {
		attrs = append(attrs, "scene", ev.SceneID)
	}
	if ev.Character != "" {
		attrs = append(attrs, "character", ev.Character)
	}
	if ev.Stage == StageError {
		r.logger.WarnContext(ctx, ev.Message, append(attrs, "status", ev.Status)...)
		return
	}
	r.logger.InfoContext(ctx, ev.Message, attrs...)
}

// MultiReporter は複数の Reporter に同じイベントを配ります。
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, ev Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, ev)
		}
	}
}

// ReporterFunc は関数を Reporter として使うためのアダプタなのだ。
type ReporterFunc func(ctx context.Context, ev Event)

func (f ReporterFunc) Report(ctx context.Context, ev Event) {
	f(ctx, ev)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, Event) {}
