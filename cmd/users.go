package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/pkg/auth"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// tokenEnv は管理コマンドで使うアクセストークンの環境変数なのだ。
const tokenEnv = "STORYBOARD_TOKEN"

var userFlags struct {
	token    string
	email    string
	password string
	role     string
}

// usersCmd は、Supabase のユーザーを管理するのだ。管理者のトークンが必要です。
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Administra usuários (requer Supabase)",
}

var usersLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Faz login e imprime o token de acesso",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAuth(cmd, func(ctx context.Context, svc *auth.Service) error {
			id, err := svc.Login(ctx, userFlags.email, userFlags.password)
			if err != nil {
				return err
			}
			if id.Pending() {
				fmt.Fprintln(cmd.ErrOrStderr(), "Sua conta está aguardando ativação por um administrador.")
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.AccessToken)
			return nil
		})
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lista os usuários",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAuth(cmd, func(ctx context.Context, svc *auth.Service) error {
			users, err := svc.ListUsers(ctx, userFlags.token)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tE-MAIL\tFUNÇÃO\tSTATUS\tTELEFONE")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s%s\n", u.ID, u.Email, u.Role, u.Status, u.DDI, u.Phone)
			}
			return tw.Flush()
		})
	},
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Cria um usuário",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAuth(cmd, func(ctx context.Context, svc *auth.Service) error {
			return svc.CreateUser(ctx, userFlags.token, userFlags.email, userFlags.password, domain.Role(userFlags.role))
		})
	},
}

var usersInviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Envia um convite por e-mail",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAuth(cmd, func(ctx context.Context, svc *auth.Service) error {
			return svc.InviteUser(ctx, userFlags.token, userFlags.email, domain.Role(userFlags.role))
		})
	},
}

var usersStatusCmd = &cobra.Command{
	Use:       "status USER_ID active|inactive",
	Short:     "Ativa ou desativa um usuário",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(domain.StatusActive), string(domain.StatusInactive)},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAuth(cmd, func(ctx context.Context, svc *auth.Service) error {
			user, err := svc.SetStatus(ctx, userFlags.token, args[0], domain.Status(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", user.Email, user.Status)
			return nil
		})
	},
}

// withAuth は認証サービスが使える場合だけ fn を実行するのだ。
func withAuth(cmd *cobra.Command, fn func(ctx context.Context, svc *auth.Service) error) error {
	return withCLIApp(cmd, func(ctx context.Context, app *builder.AppContext) error {
		if app.Auth == nil {
			return errors.New("SUPABASE_URL と SUPABASE_ANON_KEY を設定してほしいのだ")
		}
		return fn(ctx, app.Auth)
	})
}

func init() {
	usersCmd.PersistentFlags().StringVar(&userFlags.token, "token", os.Getenv(tokenEnv), "管理者のアクセストークン（未指定なら "+tokenEnv+"）なのだ。")

	usersLoginCmd.Flags().StringVar(&userFlags.email, "email", "", "メールアドレスなのだ。")
	usersLoginCmd.Flags().StringVar(&userFlags.password, "password", "", "パスワードなのだ。")

	usersCreateCmd.Flags().StringVar(&userFlags.email, "email", "", "作成するユーザーのメールアドレスなのだ。")
	usersCreateCmd.Flags().StringVar(&userFlags.password, "password", "", "初期パスワード（6文字以上）なのだ。")
	usersCreateCmd.Flags().StringVar(&userFlags.role, "role", string(domain.RoleTenant), "tenant または superadmin なのだ。")

	usersInviteCmd.Flags().StringVar(&userFlags.email, "email", "", "招待するメールアドレスなのだ。")
	usersInviteCmd.Flags().StringVar(&userFlags.role, "role", string(domain.RoleTenant), "tenant または superadmin なのだ。")

	usersCmd.AddCommand(usersLoginCmd, usersListCmd, usersCreateCmd, usersInviteCmd, usersStatusCmd)
}
