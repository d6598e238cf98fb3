// Package mailer composes and delivers the transactional mails sent by the
// auth service, such as password reset links.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/emersion/go-message/mail"
)

// Message is a plain-text mail to a single recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Delivery hands a composed RFC 5322 message to its destination.
type Delivery interface {
	Deliver(ctx context.Context, messageID string, raw []byte) error
}

// Mailer composes messages and passes them to a Delivery.
type Mailer struct {
	from     *mail.Address
	delivery Delivery
	logger   *log.Logger
}

// New creates a Mailer sending as from. If logger is nil, the default
// logger is used.
func New(from string, delivery Delivery, logger *log.Logger) (*Mailer, error) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parsing sender address %q: %w", from, err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Mailer{from: addr, delivery: delivery, logger: logger}, nil
}

// Send composes msg and delivers it.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("parsing recipient address %q: %w", msg.To, err)
	}

	id, raw, err := m.compose(to, msg)
	if err != nil {
		return err
	}

	if err := m.delivery.Deliver(ctx, id, raw); err != nil {
		return fmt.Errorf("delivering mail to %s: %w", to.Address, err)
	}
	m.logger.Debug("mail delivered", "to", to.Address, "subject", msg.Subject, "message_id", id)
	return nil
}

// compose renders msg as a single-part text/plain mail and returns its
// Message-ID alongside the raw bytes.
func (m *Mailer) compose(to *mail.Address, msg Message) (string, []byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{m.from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(msg.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return "", nil, fmt.Errorf("generating message id: %w", err)
	}
	id, err := h.MessageID()
	if err != nil {
		return "", nil, fmt.Errorf("reading message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return "", nil, fmt.Errorf("creating mail writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return "", nil, fmt.Errorf("writing mail body: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", nil, fmt.Errorf("closing mail writer: %w", err)
	}
	return id, buf.Bytes(), nil
}

// OutboxDelivery writes each message to <dir>/<message-id>.eml.
type OutboxDelivery struct {
	Dir string
}

// Deliver implements Delivery.
func (d OutboxDelivery) Deliver(_ context.Context, messageID string, raw []byte) error {
	if err := os.MkdirAll(d.Dir, 0o700); err != nil {
		return fmt.Errorf("creating outbox %s: %w", d.Dir, err)
	}
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(messageID) + ".eml"
	path := filepath.Join(d.Dir, name)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
