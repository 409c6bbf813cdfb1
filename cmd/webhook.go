package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/builder"
)

// webhookCmd は、ユーザーイベントの通知先 URL を管理するのだ。
var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Configura a URL do webhook (n8n)",
}

var webhookGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Mostra a URL configurada",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(cmd, func(ctx context.Context, app *builder.AppContext) error {
			u, err := app.Preferences.WebhookURL(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		})
	},
}

var webhookSetCmd = &cobra.Command{
	Use:   "set URL",
	Short: "Define a URL do webhook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := url.Parse(args[0])
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("http または https の URL を指定してほしいのだ: %s", args[0])
		}
		return withCLIApp(cmd, func(ctx context.Context, app *builder.AppContext) error {
			return app.Preferences.SetWebhookURL(ctx, args[0])
		})
	},
}

var webhookClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove a URL do webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCLIApp(cmd, func(ctx context.Context, app *builder.AppContext) error {
			return app.Preferences.ClearWebhookURL(ctx)
		})
	},
}

func init() {
	webhookCmd.AddCommand(webhookGetCmd, webhookSetCmd, webhookClearCmd)
}
