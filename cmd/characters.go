package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

var characterFlags struct {
	session     string
	description string
	portrait    bool
	traits      domain.CharacterTraits
}

// charactersCmd は、キャラクターライブラリを操作するのだ。
var charactersCmd = &cobra.Command{
	Use:     "characters",
	Aliases: []string{"chars"},
	Short:   "Gerencia a biblioteca de personagens",
}

var charactersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lista os personagens disponíveis",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(cmd, func(ctx context.Context, app *builder.AppContext) error {
			ws, err := app.Manager.Workspace(ctx, characterFlags.session)
			if err != nil {
				return err
			}
			lib := ws.Library()
			selected := make(map[string]bool)
			for _, n := range ws.Selection() {
				selected[n] = true
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NOME\tTIPO\tSELECIONADO\tDESCRIÇÃO")
			for _, name := range ws.Names() {
				kind := "personalizado"
				if app.Catalog.IsPredefined(name) {
					kind = "predefinido"
				}
				mark := ""
				if selected[name] {
					mark = "✓"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, kind, mark, lib[name])
			}
			return tw.Flush()
		})
	},
}

var charactersAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Adiciona um personagem personalizado",
	Long: `カスタムキャラクターを追加するのだ。--description で説明文を直接渡すか、
--body や --hair-style などの特徴から説明文を組み立てます。--portrait を付けると肖像も生成します。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(cmd, func(ctx context.Context, app *builder.AppContext) error {
			ws, err := app.Manager.Workspace(ctx, characterFlags.session)
			if err != nil {
				return err
			}

			traits := characterFlags.traits
			traits.Name = args[0]
			payload := domain.NewCharacterPayload{Name: args[0], Description: characterFlags.description}
			if characterFlags.portrait {
				preview, err := app.Orchestrator.PreviewCharacter(ctx, ws, traits)
				if err != nil {
					return err
				}
				payload = *preview
				if characterFlags.description != "" {
					payload.Description = characterFlags.description
				}
			} else if payload.Description == "" {
				payload.Description = traits.Description()
			}

			if err := ws.AddCustomCharacter(ctx, payload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", payload.Name, payload.Description)
			return nil
		})
	},
}

var charactersDeleteCmd = &cobra.Command{
	Use:     "delete NAME",
	Aliases: []string{"rm"},
	Short:   "Remove um personagem personalizado",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(cmd, func(ctx context.Context, app *builder.AppContext) error {
			ws, err := app.Manager.Workspace(ctx, characterFlags.session)
			if err != nil {
				return err
			}
			return ws.DeleteCustomCharacter(ctx, args[0])
		})
	},
}

func init() {
	charactersCmd.PersistentFlags().StringVar(&characterFlags.session, "session", config.DefaultCLISessionID, "セッション名なのだ。")

	f := charactersAddCmd.Flags()
	f.StringVar(&characterFlags.description, "description", "", "キャラクターの説明文なのだ。")
	f.BoolVar(&characterFlags.portrait, "portrait", false, "肖像を生成してキャッシュするのだ。")
	f.StringVar(&characterFlags.traits.Body, "body", "", "体型なのだ。")
	f.StringVar(&characterFlags.traits.HairLength, "hair-length", "", "髪の長さなのだ。")
	f.StringVar(&characterFlags.traits.HairStyle, "hair-style", "", "髪型なのだ。")
	f.StringVar(&characterFlags.traits.Face, "face", "", "顔の特徴なのだ。")
	f.StringVar(&characterFlags.traits.Clothing, "clothing", "", "服装なのだ。")

	charactersCmd.AddCommand(charactersListCmd, charactersAddCmd, charactersDeleteCmd)
}
