package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/nhle/todo-sync/internal/baas"
	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/backend/local"
	"github.com/nhle/todo-sync/internal/backend/remote"
	"github.com/nhle/todo-sync/internal/credential"
	"github.com/nhle/todo-sync/internal/gateway"
	"github.com/nhle/todo-sync/internal/mailer"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/internal/store"
)

// env is what a client command works with: a backend client for the
// configured mode and the gateway over it.
type env struct {
	client  backend.Client
	gateway *gateway.Gateway
	closers []io.Closer
}

// openEnv connects to the backend selected by the config.
func (o *RootOptions) openEnv(ctx context.Context, logger *log.Logger) (*env, error) {
	creds, err := o.credentials()
	if err != nil {
		return nil, err
	}

	e := &env{}
	switch o.cfg.Backend.Mode {
	case model.BackendRemote:
		c, err := remote.New(o.cfg.Backend.URL, creds, remote.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		e.client = c
	default:
		svc, st, err := openService(o.cfg, creds, logger)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, st)
		e.client = local.New(ctx, svc, creds, logger)
	}
	e.closers = append(e.closers, e.client)

	e.gateway = gateway.New(e.client,
		gateway.WithTimeout(o.cfg.Backend.Timeout),
		gateway.WithLogger(logger),
	)
	return e, nil
}

// Close releases the client before the store it runs on.
func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openService opens the SQLite store and the BaaS on top of it. The
// caller closes the store.
func openService(cfg *model.AppConfig, creds credential.Store, logger *log.Logger) (*baas.Service, *store.SQLiteStore, error) {
	dbPath := cfg.Backend.DatabasePath
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, nil, err
	}

	m, err := mailer.New(cfg.Mail.From, delivery(cfg.Mail, creds, logger), logger)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	svc := baas.New(st, cfg.Auth, baas.WithMailer(m), baas.WithLogger(logger))
	return svc, st, nil
}

// delivery appends to the configured IMAP mailbox, or writes to the
// outbox directory when no IMAP host is set.
func delivery(cfg model.MailConfig, creds credential.Store, logger *log.Logger) mailer.Delivery {
	if cfg.IMAP.Host == "" {
		return mailer.OutboxDelivery{Dir: cfg.OutboxDir}
	}
	password, err := creds.Get(credential.KeyIMAPPassword)
	if err != nil {
		logger.Warn("no IMAP password stored", "host", cfg.IMAP.Host, "err", err)
	}
	return mailer.NewIMAPDelivery(
		cfg.IMAP.Host,
		cfg.IMAP.Port,
		cfg.IMAP.Username,
		password,
		cfg.IMAP.Mailbox,
		cfg.IMAP.TLS,
	)
}
