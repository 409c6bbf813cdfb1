package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/pipeline"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

var regenerateOpts config.RegenerateOptions

// regenerateCmd は、保存済みの計画の1シーンまたはサムネイルだけを作り直すのだ。
var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Refaz a imagem de uma cena ou thumbnail do plano salvo",
	Example: `  storyboard regenerate --scene 3
  storyboard regenerate --thumbnail 9:16
  storyboard regenerate --scene 2 --animate --provider openai`,
	PreRunE: requireGeminiKey,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(cmd, func(ctx context.Context, app *builder.AppContext) error {
			res, err := pipeline.ExecuteRegenerate(ctx, app, regenerateOpts)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		})
	},
}

func init() {
	f := regenerateCmd.Flags()
	f.IntVar(&regenerateOpts.SceneID, "scene", 0, "作り直すシーンの ID なのだ。")
	f.StringVar(&regenerateOpts.Thumbnail, "thumbnail", "", "作り直すサムネイルの縦横比（16:9 または 9:16）なのだ。")
	f.BoolVar(&regenerateOpts.Animate, "animate", false, "画像ではなくシーンの動画を生成するのだ。")
	f.StringVar(&regenerateOpts.Provider, "provider", string(domain.ProviderGemini), "動画のプロバイダーなのだ。")
	f.StringVar(&regenerateOpts.OpenAIKey, "openai-key", os.Getenv("OPENAI_API_KEY"), "openai プロバイダーで使う API キーなのだ。")
	f.StringVarP(&regenerateOpts.OutputDir, "output-dir", "o", config.DefaultOutputDir, "書き出し先のディレクトリなのだ。")
	f.StringVar(&regenerateOpts.SessionID, "session", config.DefaultCLISessionID, "セッション名なのだ。")
	regenerateCmd.MarkFlagsMutuallyExclusive("scene", "thumbnail")
}

// exportCmd は、保存済みの計画をもう一度書き出すのだ。
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Exporta o plano salvo em JSON (e roteiro em Markdown)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(cmd, func(ctx context.Context, app *builder.AppContext) error {
			res, err := pipeline.ExecuteExport(ctx, app, exportFlags.session, exportFlags.outputDir, exportFlags.script)
			if err != nil {
				return fmt.Errorf("エクスポートに失敗しました: %w", err)
			}
			printResult(cmd, res)
			return nil
		})
	},
}

var exportFlags struct {
	session   string
	outputDir string
	script    bool
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFlags.session, "session", config.DefaultCLISessionID, "セッション名なのだ。")
	f.StringVarP(&exportFlags.outputDir, "output-dir", "o", config.DefaultOutputDir, "書き出し先のディレクトリなのだ。")
	f.BoolVar(&exportFlags.script, "script", true, "Markdown の台本も書き出すのだ。")
}
