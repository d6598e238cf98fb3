package testutil

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/nhle/todo-sync/internal/mailer"
)

var resetTokenPattern = regexp.MustCompile(`--token (\S+)`)

// Outbox records mails instead of delivering them.
type Outbox struct {
	mu   sync.Mutex
	sent []mailer.Message
}

// Send records msg.
func (o *Outbox) Send(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

// Messages returns the recorded mails.
func (o *Outbox) Messages() []mailer.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mailer.Message(nil), o.sent...)
}

// ResetToken extracts the reset token from the last recorded mail.
func (o *Outbox) ResetToken(t testing.TB) string {
	t.Helper()
	msgs := o.Messages()
	if len(msgs) == 0 {
		t.Fatal("no mail sent")
	}
	m := resetTokenPattern.FindStringSubmatch(msgs[len(msgs)-1].Body)
	if len(m) != 2 {
		t.Fatalf("mail body carries no reset token: %q", msgs[len(msgs)-1].Body)
	}
	return m[1]
}
