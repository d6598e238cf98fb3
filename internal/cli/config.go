package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/nhle/todo-sync/internal/credential"
	"github.com/nhle/todo-sync/internal/model"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and write the configuration",
	}

	cmd.AddCommand(newConfigInitCommand(opts))
	cmd.AddCommand(newConfigShowCommand(opts))
	cmd.AddCommand(newSetIMAPPasswordCommand(opts))

	return cmd
}

func newConfigInitCommand(opts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := os.Stat(opts.ConfigPath)
			if err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", opts.ConfigPath)
			}
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("checking %s: %w", opts.ConfigPath, err)
			}
			if err := model.SaveConfig(opts.ConfigPath, opts.cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", opts.ConfigPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

func newConfigShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *opts.cfg
			cfg.Auth.OAuth = redactSecrets(cfg.Auth.OAuth)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			return enc.Close()
		},
	}
}

// redactSecrets returns a copy of providers without client secrets.
func redactSecrets(providers map[string]model.OAuthProviderConfig) map[string]model.OAuthProviderConfig {
	out := make(map[string]model.OAuthProviderConfig, len(providers))
	for name, p := range providers {
		if p.ClientSecret != "" {
			p.ClientSecret = "********"
		}
		out[name] = p
	}
	return out
}

func newSetIMAPPasswordCommand(opts *RootOptions) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "set-imap-password",
		Short: "Store the password of the reset-mail IMAP mailbox in the keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := opts.credentials()
			if err != nil {
				return err
			}
			if remove {
				if err := creds.Delete(credential.KeyIMAPPassword); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "IMAP password removed")
				return nil
			}

			password, err := promptPassword("IMAP password for " + opts.cfg.Mail.IMAP.Username)
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password is empty")
			}
			if err := creds.Set(credential.KeyIMAPPassword, password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "IMAP password saved")
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "clear", false, "remove the stored password")

	return cmd
}
