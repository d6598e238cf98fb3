package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nhle/todo-sync/internal/logging"
	"github.com/nhle/todo-sync/internal/session"
)

// withSession runs fn against a started session provider for the
// configured backend.
func (o *RootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, p *session.Provider) error) error {
	ctx := cmd.Context()
	logger := o.clientLogger(cmd)

	e, err := o.openEnv(ctx, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	p := session.New(e.client.Auth(), logger)
	defer p.Close()
	if err := p.Start(ctx); err != nil {
		logger.Debug("no session restored", "err", err)
	}
	return fn(ctx, p)
}

func (o *RootOptions) clientLogger(cmd *cobra.Command) *log.Logger {
	return logging.New(cmd.ErrOrStderr(), o.cfg.Log, o.Verbose)
}

// NewAuthCommand creates the auth command group.
func NewAuthCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the signed-in account",
	}

	cmd.AddCommand(newSignUpCommand(opts))
	cmd.AddCommand(newSignInCommand(opts))
	cmd.AddCommand(newSignOutCommand(opts))
	cmd.AddCommand(newResetPasswordCommand(opts))
	cmd.AddCommand(newOAuthCommand(opts))
	cmd.AddCommand(newWhoAmICommand(opts))

	return cmd
}

func newSignUpCommand(opts *RootOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm := password
			if password == "" {
				var err error
				if password, confirm, err = promptNewPassword(); err != nil {
					return err
				}
			}
			if err := session.ValidateSignUp(email, password, confirm); err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, p *session.Provider) error {
				if err := p.SignUp(ctx, strings.TrimSpace(email), password); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registration successful! Signed in as %s\n", signedInAs(p))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newSignInCommand(opts *RootOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				var err error
				if password, err = promptPassword("Password"); err != nil {
					return err
				}
			}
			if err := session.ValidateSignIn(email, password); err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, p *session.Provider) error {
				if err := p.SignIn(ctx, strings.TrimSpace(email), password); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", signedInAs(p))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newSignOutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, p *session.Provider) error {
				if p.User() == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
					return nil
				}
				if err := p.SignOut(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func newResetPasswordCommand(opts *RootOptions) *cobra.Command {
	var email, token, password string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Request a reset token, or set a new password with one",
		Long: "With --email, mails a password reset token to the account.\n" +
			"With --token, sets a new password using a token received by mail.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				if err := session.ValidateReset(email); err != nil {
					return err
				}
				return opts.withSession(cmd, func(ctx context.Context, p *session.Provider) error {
					if err := p.ResetPassword(ctx, strings.TrimSpace(email)); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Check your email for a password reset token.")
					return nil
				})
			}

			confirm := password
			if password == "" {
				var err error
				if password, confirm, err = promptNewPassword(); err != nil {
					return err
				}
			}
			if err := session.ValidateNewPassword(password, confirm); err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, p *session.Provider) error {
				if err := p.UpdatePassword(ctx, token, password); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password updated. Sign in with your new password.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&token, "token", "", "reset token from the mail")
	cmd.Flags().StringVarP(&password, "password", "p", "", "new password (prompted when empty)")
	cmd.MarkFlagsOneRequired("email", "token")
	cmd.MarkFlagsMutuallyExclusive("email", "token")

	return cmd
}

func newOAuthCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "oauth <provider>",
		Short: "Print the sign-in URL of an OAuth provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, p *session.Provider) error {
				url, err := p.SignInWithOAuth(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Open this URL in your browser to continue:")
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}
}

func newWhoAmICommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd, func(ctx context.Context, p *session.Provider) error {
				if p.User() == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), signedInAs(p))
				return nil
			})
		},
	}
}

func signedInAs(p *session.Provider) string {
	u := p.User()
	if u == nil {
		return "nobody"
	}
	return fmt.Sprintf("%s (%s)", u.Email, u.ID)
}

func promptPassword(title string) (string, error) {
	var password string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Run()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return password, nil
}

func promptNewPassword() (string, string, error) {
	var password, confirm string
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password),
		huh.NewInput().
			Title("Confirm password").
			EchoMode(huh.EchoModePassword).
			Value(&confirm),
	)).Run()
	if err != nil {
		return "", "", fmt.Errorf("reading password: %w", err)
	}
	return password, confirm, nil
}
