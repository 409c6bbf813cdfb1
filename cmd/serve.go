package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/internal/server"
)

var serveAddr string

// serveCmd は、HTTP API と進捗配信の WebSocket を起動するのだ。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Inicia a API HTTP do estúdio",
	RunE:  serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "待ち受けアドレス（未指定なら LISTEN_ADDR）なのだ。")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}
	if cfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY が未設定なので、生成リクエストは認証エラーになるのだ")
	}

	hub := server.NewHub()
	app, err := builder.BuildAppContext(cmd.Context(), cfg, hub)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗しました: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("後始末に失敗しました", "error", err)
		}
	}()

	srv := server.New(app, hub)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.ListenAddr)
	})

	slog.Info("スタジオを起動したのだ！",
		"addr", cfg.ListenAddr,
		"session_store", cfg.SessionStore,
		"auth", app.Auth != nil,
	)
	return g.Wait()
}
