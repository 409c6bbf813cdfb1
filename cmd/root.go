package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

const appName = "storyboard"

// appFlags は全コマンド共通のフラグなのだ。指定されたものだけが環境変数の設定を上書きします。
var appFlags struct {
	LogFormat   string
	Verbose     bool
	Model       string
	ImageModel  string
	VideoModel  string
	DataDir     string
	APIDelay    time.Duration
	HTTPTimeout time.Duration
}

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Estúdio de produção de histórias com IA",
	Long: `概要から制作計画（台本、サムネイル、シーン画像、動画）を生成するツールなのだ。
CLI で1回ずつ実行することも、serve で HTTP API として動かすこともできます。`,
	SilenceUsage:      true,
	PersistentPreRunE: preRunAppE,
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	// --- ログ ---
	rootCmd.PersistentFlags().StringVar(&appFlags.LogFormat, "log-format", "text", "ログの形式（text または json）なのだ。")
	rootCmd.PersistentFlags().BoolVarP(&appFlags.Verbose, "verbose", "v", false, "デバッグログを出力するのだ。")

	// --- AIモデル・挙動設定 ---
	rootCmd.PersistentFlags().StringVar(&appFlags.Model, "model", "", "台本生成に使う Gemini モデル名なのだ。")
	rootCmd.PersistentFlags().StringVar(&appFlags.ImageModel, "image-model", "", "画像生成に使う Gemini モデル名なのだ。")
	rootCmd.PersistentFlags().StringVar(&appFlags.VideoModel, "video-model", "", "動画生成に使う Veo モデル名なのだ。")
	rootCmd.PersistentFlags().DurationVar(&appFlags.APIDelay, "api-delay", workflow.DefaultAPIDelay, "生成呼び出しの間の待機時間なのだ。")
	rootCmd.PersistentFlags().DurationVar(&appFlags.HTTPTimeout, "http-timeout", config.DefaultHTTPTimeout, "外部 API のタイムアウトなのだ。")

	// --- 保存先 ---
	rootCmd.PersistentFlags().StringVar(&appFlags.DataDir, "data-dir", "", "カスタムキャラクターやセッションを置くディレクトリなのだ。")
}

// preRunAppE は、コマンド実行前にロガーを設定するのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if appFlags.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(appFlags.LogFormat) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("未対応のログ形式です: %s", appFlags.LogFormat)
	}
	slog.SetDefault(slog.New(handler).With("app", appName))
	return nil
}

// loadConfig は環境変数の設定に、明示されたフラグを重ねて返します。
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.LoadConfig()
	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.GeminiModel = appFlags.Model
	}
	if flags.Changed("image-model") {
		cfg.GeminiImageModel = appFlags.ImageModel
	}
	if flags.Changed("video-model") {
		cfg.GeminiVideoModel = appFlags.VideoModel
	}
	if flags.Changed("api-delay") {
		cfg.APIDelay = appFlags.APIDelay
	}
	if flags.Changed("http-timeout") {
		cfg.HTTPTimeout = appFlags.HTTPTimeout
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = appFlags.DataDir
	}
	return cfg
}

// withCLIApp は CLI 用の AppContext を組み立てて fn を実行するのだ。
// セッションはファイルに置くので、generate の結果を後続のコマンドで使えます。
func withCLIApp(cmd *cobra.Command, fn func(ctx context.Context, app *builder.AppContext) error) error {
	cfg := loadConfig(cmd)
	cfg.SessionStore = "file"
	cfg.SessionTTL = 0

	ctx := cmd.Context()
	app, err := builder.BuildAppContext(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗しました: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("後始末に失敗しました", "error", err)
		}
	}()
	return fn(ctx, app)
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addAppFlags(rootCmd)
	rootCmd.AddCommand(
		generateCmd,
		regenerateCmd,
		exportCmd,
		serveCmd,
		charactersCmd,
		usersCmd,
		webhookCmd,
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
