package cli

import (
	"fmt"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/todo-sync/internal/app"
	"github.com/nhle/todo-sync/internal/logging"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/internal/session"
	appsync "github.com/nhle/todo-sync/internal/sync"
)

// runTUI starts the terminal UI. The UI owns the terminal, so logs go to
// the rotating log file.
func runTUI(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()

	logger, logFile, err := logging.NewFile(opts.cfg.Log, opts.Verbose)
	if err != nil {
		return err
	}
	defer logFile.Close()

	e, err := opts.openEnv(ctx, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	updates := appsync.NewUpdates()
	todos := appsync.New(e.gateway, appsync.Options{
		Logger:   logger,
		OnChange: updates.Push,
	})
	defer todos.Close()

	provider := session.New(e.client.Auth(), logger)
	defer provider.Close()
	unbind := app.Bind(ctx, provider, todos)
	defer unbind()

	m := app.New(ctx, app.Deps{
		Session:   provider,
		Todos:     todos,
		Updates:   updates,
		Providers: providerNames(opts.cfg.Auth.OAuth),
		Logger:    logger,
	})

	logger.Info("starting", "mode", opts.cfg.Backend.Mode)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}

// providerNames lists the configured OAuth providers in a stable order.
func providerNames(providers map[string]model.OAuthProviderConfig) []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
