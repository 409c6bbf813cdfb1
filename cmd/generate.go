package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/pipeline"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/publisher"
)

var generateOpts config.GenerateOptions

// generateCmd は、概要から制作計画と画像を一括で生成するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Gera o plano de produção completo a partir de uma ideia",
	Long: `ストーリーの概要から台本、サムネイル、シーン画像を生成し、出力ディレクトリに書き出すのだ。
--animate を付けると各シーンの動画も生成します。結果はセッションに残るので regenerate で続きができます。`,
	PreRunE: requireGeminiKey,
	RunE:    generateCommand,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&generateOpts.Idea, "idea", "", "ストーリーの概要なのだ。")
	f.StringVarP(&generateOpts.IdeaFile, "idea-file", "f", "", "概要を書いたファイルのパス（'-'で標準入力なのだ）。")
	f.StringVar(&generateOpts.Audience, "audience", domain.DefaultAudience, "対象の視聴者なのだ。")
	f.StringVar(&generateOpts.Language, "language", domain.DefaultLanguage, "台本の言語なのだ。")
	f.StringSliceVarP(&generateOpts.Characters, "character", "c", nil, "登場させるキャラクター名（複数指定可）なのだ。")
	f.BoolVar(&generateOpts.Animate, "animate", false, "シーンの動画も生成するのだ。")
	f.StringVar(&generateOpts.Provider, "provider", string(domain.ProviderGemini), "動画のプロバイダー（gemini または openai）なのだ。")
	f.StringVar(&generateOpts.OpenAIKey, "openai-key", os.Getenv("OPENAI_API_KEY"), "openai プロバイダーで使う API キーなのだ。")
	f.StringVarP(&generateOpts.OutputDir, "output-dir", "o", config.DefaultOutputDir, "書き出し先のディレクトリなのだ。")
	f.BoolVar(&generateOpts.Script, "script", true, "Markdown の台本も書き出すのだ。")
	f.StringVar(&generateOpts.SessionID, "session", config.DefaultCLISessionID, "保存に使うセッション名なのだ。")
}

// requireGeminiKey は、生成 API を使うコマンドの前に API キーを確認するのだ。
func requireGeminiKey(cmd *cobra.Command, args []string) error {
	if config.LoadConfig().GeminiAPIKey == "" {
		return fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須なのだ")
	}
	return nil
}

func generateCommand(cmd *cobra.Command, args []string) error {
	if generateOpts.Idea == "" && generateOpts.IdeaFile == "" {
		if !isStdin() {
			return fmt.Errorf("概要（--idea または --idea-file）を指定してほしいのだ")
		}
		generateOpts.IdeaFile = "-"
	}

	return withCLIApp(cmd, func(ctx context.Context, app *builder.AppContext) error {
		slog.Info("制作計画の生成パイプラインを起動するのだ！",
			"plan_model", app.Config.GeminiModel,
			"image_model", app.Config.GeminiImageModel,
			"output", generateOpts.OutputDir)

		res, err := pipeline.ExecuteGenerate(ctx, app, generateOpts)
		printResult(cmd, res)
		if err != nil {
			return fmt.Errorf("パイプライン実行中にエラーが発生したのだ: %w", err)
		}
		slog.Info("すべての生成工程が完了したのだ！")
		return nil
	})
}

// printResult は書き出したファイルを標準出力に並べます。
func printResult(cmd *cobra.Command, res publisher.PublishResult) {
	out := cmd.OutOrStdout()
	if res.PlanPath != "" {
		fmt.Fprintln(out, res.PlanPath)
	}
	if res.ScriptPath != "" {
		fmt.Fprintln(out, res.ScriptPath)
	}
	for _, p := range res.ImagePaths {
		fmt.Fprintln(out, p)
	}
	for _, p := range res.VideoPaths {
		fmt.Fprintln(out, p)
	}
}

func isStdin() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
