package mailer

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// IMAPDelivery appends each message to a mailbox on an IMAP server.
type IMAPDelivery struct {
	host     string
	port     string
	username string
	password string
	mailbox  string
	tls      bool
}

// NewIMAPDelivery creates an IMAP delivery target. An empty mailbox means
// INBOX.
func NewIMAPDelivery(
	host, port, username, password, mailbox string, tls bool,
) *IMAPDelivery {
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &IMAPDelivery{
		host:     host,
		port:     port,
		username: username,
		password: password,
		mailbox:  mailbox,
		tls:      tls,
	}
}

// connect establishes a connection to the IMAP server and authenticates.
// The caller must log out of the returned client.
func (d *IMAPDelivery) connect() (*imapclient.Client, error) {
	addr := d.host + ":" + d.port

	var client *imapclient.Client
	var err error

	if d.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(d.username, d.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("IMAP authentication failed for %s: %w", d.username, err)
	}

	return client, nil
}

// Deliver implements Delivery.
func (d *IMAPDelivery) Deliver(ctx context.Context, _ string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := d.connect()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	cmd := client.Append(d.mailbox, int64(len(raw)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagSeen},
	})
	if _, err := cmd.Write(raw); err != nil {
		return fmt.Errorf("writing message to %s: %w", d.mailbox, err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("closing append to %s: %w", d.mailbox, err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("appending message to %s: %w", d.mailbox, err)
	}
	return nil
}
