package cmds

import (
	"fmt"

	"github.com/go-go-golems/docqa/pkg/backend"
	"github.com/go-go-golems/docqa/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewLoginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the token for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")

			env, err := newEnvironment()
			if err != nil {
				return err
			}
			domain, _ := cmd.Flags().GetString("domain")
			if domain == "" {
				domain = env.settings.Tenant
			}

			if err := askIfEmpty(ctx, &username, "Username or email", false); err != nil {
				return err
			}
			if err := askIfEmpty(ctx, &password, "Password", true); err != nil {
				return err
			}

			resp, err := env.client.Login(ctx, backend.LoginRequest{
				Username: username,
				Password: password,
				Domain:   domain,
				URL:      env.settings.ViewerBaseURL,
			})
			if err != nil {
				return err
			}

			path := config.DefaultCredentialsPath()
			err = config.SaveCredentials(path, &config.Credentials{
				Username: username,
				Tenant:   domain,
				Token:    resp.Token,
			})
			if err != nil {
				return errors.Wrap(err, "could not save credentials")
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", username, domain)
			return err
		},
	}
	cmd.Flags().String("username", "", "User id or email")
	cmd.Flags().String("password", "", "Password (asked if omitted)")
	cmd.Flags().String("domain", "", "Tenant domain (default: --tenant)")
	return cmd
}

func NewRegisterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			req := backend.RegisterRequest{}
			req.UserID, _ = cmd.Flags().GetString("userid")
			req.Email, _ = cmd.Flags().GetString("email")
			req.Password, _ = cmd.Flags().GetString("password")
			req.Confirm, _ = cmd.Flags().GetString("confirm")
			req.Domain, _ = cmd.Flags().GetString("domain")

			env, err := newEnvironment()
			if err != nil {
				return err
			}
			if req.Domain == "" {
				req.Domain = env.settings.Tenant
			}

			if isInteractive() {
				if err := askIfEmpty(ctx, &req.Password, "Password", true); err != nil {
					return err
				}
				if err := askIfEmpty(ctx, &req.Confirm, "Confirm password", true); err != nil {
					return err
				}
			}

			if err := env.client.Register(ctx, req); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "registered %s, you can now log in\n", req.UserID)
			return err
		},
	}
	cmd.Flags().String("userid", "", "User id")
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().String("password", "", "Password (asked if omitted)")
	cmd.Flags().String("confirm", "", "Password confirmation (asked if omitted)")
	cmd.Flags().String("domain", "", "Tenant domain (default: --tenant)")
	return cmd
}

func NewForgotPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password <email>",
		Short: "Request a password reset email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			if err := env.client.ForgotPassword(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "reset instructions sent to %s\n", args[0])
			return err
		},
	}
}
