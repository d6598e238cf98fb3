package mailer_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/todo-sync/internal/mailer"
	"github.com/nhle/todo-sync/tests/testutil"
)

type recordingDelivery struct {
	ids  []string
	raws [][]byte
	err  error
}

func (d *recordingDelivery) Deliver(_ context.Context, id string, raw []byte) error {
	d.ids = append(d.ids, id)
	d.raws = append(d.raws, raw)
	return d.err
}

func TestMailer_Send(t *testing.T) {
	delivery := &recordingDelivery{}
	m, err := mailer.New("todo-sync <no-reply@example.com>", delivery, testutil.Logger(t))
	require.NoError(t, err)

	err = m.Send(context.Background(), mailer.Message{
		To:      "alice@example.com",
		Subject: "Reset your password",
		Body:    "Use token abc to reset your password.",
	})
	require.NoError(t, err)
	require.Len(t, delivery.raws, 1)

	r, err := mail.CreateReader(bytes.NewReader(delivery.raws[0]))
	require.NoError(t, err)

	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Reset your password", subject)

	to, err := r.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "alice@example.com", to[0].Address)

	from, err := r.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "no-reply@example.com", from[0].Address)

	id, err := r.Header.MessageID()
	require.NoError(t, err)
	assert.Equal(t, delivery.ids[0], id)

	part, err := r.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, "Use token abc to reset your password.", string(body))
}

func TestMailer_InvalidAddresses(t *testing.T) {
	_, err := mailer.New("not an address", &recordingDelivery{}, nil)
	assert.Error(t, err)

	delivery := &recordingDelivery{}
	m, err := mailer.New("no-reply@example.com", delivery, testutil.Logger(t))
	require.NoError(t, err)

	err = m.Send(context.Background(), mailer.Message{To: "nope", Subject: "x"})
	assert.Error(t, err)
	assert.Empty(t, delivery.raws, "nothing is delivered for a bad recipient")
}

func TestMailer_DeliveryError(t *testing.T) {
	boom := errors.New("boom")
	m, err := mailer.New("no-reply@example.com", &recordingDelivery{err: boom}, testutil.Logger(t))
	require.NoError(t, err)

	err = m.Send(context.Background(), mailer.Message{To: "a@example.com", Subject: "x"})
	assert.ErrorIs(t, err, boom)
}

func TestOutboxDelivery(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outbox")
	m, err := mailer.New("no-reply@example.com", mailer.OutboxDelivery{Dir: dir}, testutil.Logger(t))
	require.NoError(t, err)

	require.NoError(t, m.Send(context.Background(), mailer.Message{
		To:      "bob@example.com",
		Subject: "Hello",
		Body:    "hi",
	}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".eml", filepath.Ext(entries[0].Name()))

	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	r, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Hello", subject)
}
