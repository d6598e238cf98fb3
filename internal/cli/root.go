// Package cli wires the todo command line: the terminal UI, the HTTP
// server and one-shot auth and todo commands.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nhle/todo-sync/internal/credential"
	"github.com/nhle/todo-sync/internal/model"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool

	cfg *model.AppConfig

	// openCredentials opens the secret store kept next to the config.
	openCredentials func(dir string) (credential.Store, error)
}

// NewRootCommand creates the root command. Without a subcommand it starts
// the terminal UI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.openCredentials == nil {
		opts.openCredentials = func(dir string) (credential.Store, error) {
			return credential.OpenKeyring(dir)
		}
	}

	cmd := &cobra.Command{
		Use:   "todo",
		Short: "A synchronized todo list",
		Long: "todo keeps a per-user todo list in sync with a backend, either the\n" +
			"embedded one or a remote `todo serve`, and updates live as rows change.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", model.DefaultConfigPath(), "config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAuthCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewDoneCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))

	return cmd
}

// credentials opens the secret store under the config directory.
func (o *RootOptions) credentials() (credential.Store, error) {
	dir := filepath.Join(filepath.Dir(o.ConfigPath), "keyring")
	creds, err := o.openCredentials(dir)
	if err != nil {
		return nil, fmt.Errorf("opening credentials: %w", err)
	}
	return creds, nil
}
