package cli

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/todo-sync/internal/logging"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/internal/server"
)

// NewServeCommand creates the serve command, which exposes the embedded
// backend over HTTP for remote clients.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the backend over HTTP",
		Long: "Serve the auth API, the todos table and realtime change events\n" +
			"for clients configured with backend.mode: remote.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				opts.cfg.Server.Addr = addr
			}
			logger := logging.New(cmd.ErrOrStderr(), opts.cfg.Log, opts.Verbose)
			return serve(cmd.Context(), opts, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

// serve runs the server until ctx is cancelled.
func serve(ctx context.Context, opts *RootOptions, logger *log.Logger) error {
	creds, err := opts.credentials()
	if err != nil {
		return err
	}
	svc, st, err := openService(opts.cfg, creds, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := server.New(svc, server.Config{
		Addr:           opts.cfg.Server.Addr,
		AllowedOrigins: opts.cfg.Server.AllowedOrigins,
		Logger:         logger,
	})
	if err := srv.Start(); err != nil {
		return err
	}
	logger.Info("serving", "addr", srv.Addr(), "database", opts.cfg.Backend.DatabasePath,
		"mail", mailTarget(opts.cfg.Mail))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return srv.Stop()
	})
	return g.Wait()
}

func mailTarget(cfg model.MailConfig) string {
	if cfg.IMAP.Host != "" {
		return "imap://" + cfg.IMAP.Host + "/" + cfg.IMAP.Mailbox
	}
	return cfg.OutboxDir
}
