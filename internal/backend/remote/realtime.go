package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/nhle/todo-sync/internal/backend"
)

// maxReconnectDelay caps the backoff between realtime reconnects.
const maxReconnectDelay = 30 * time.Second

type realtime Client

// Subscribe opens a websocket to the realtime endpoint and waits for the
// server's acknowledgement. ctx bounds the handshake only; the connection
// lives until the subscription is closed. A dropped connection is dialed
// again with backoff for as long as the client holds a session.
func (r *realtime) Subscribe(ctx context.Context, table string, handler backend.ChangeHandler) (backend.Subscription, error) {
	c := (*Client)(r)

	c.subsMu.Lock()
	closed := c.closed
	c.subsMu.Unlock()
	if closed {
		return nil, errors.New("client closed")
	}

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &subscription{
		client:     c,
		table:      table,
		ctx:        connCtx,
		cancel:     cancel,
		dispatcher: backend.NewDispatcher(handler),
		done:       make(chan struct{}),
	}
	conn, err := s.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	s.conn = conn

	c.subsMu.Lock()
	if c.closed {
		c.subsMu.Unlock()
		cancel()
		_ = conn.CloseNow()
		return nil, errors.New("client closed")
	}
	c.subs[s] = struct{}{}
	c.subsMu.Unlock()

	go s.run()
	return s, nil
}

func (c *Client) realtimeURL(table string) string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + backend.PathRealtime + "?" + url.Values{"table": {table}}.Encode()
}

// subscription reads change frames on its own goroutine and hands them to
// a dispatcher.
type subscription struct {
	client     *Client
	table      string
	ctx        context.Context
	cancel     context.CancelFunc
	dispatcher *backend.Dispatcher
	done       chan struct{}
	once       sync.Once

	// conn is replaced by run on reconnect and read by Close after run
	// has returned.
	conn *websocket.Conn
}

// connect dials the realtime endpoint with the current token and waits
// for the acknowledgement. The connection lives on s.ctx; ctx ending
// before the handshake completes cancels s.ctx.
func (s *subscription) connect(ctx context.Context) (*websocket.Conn, error) {
	c := s.client
	token := c.token()
	if token == "" {
		return nil, backend.ErrSessionMissing
	}

	stop := context.AfterFunc(ctx, s.cancel)
	conn, resp, err := websocket.Dial(s.ctx, c.realtimeURL(s.table), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	})
	if err != nil {
		stop()
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			body, _ := io.ReadAll(resp.Body)
			return nil, decodeError(resp.StatusCode, body)
		}
		return nil, fmt.Errorf("connecting realtime: %w", err)
	}

	var ack backend.RealtimeMessage
	if err := wsjson.Read(s.ctx, conn, &ack); err != nil {
		stop()
		_ = conn.CloseNow()
		return nil, fmt.Errorf("waiting for realtime acknowledgement: %w", err)
	}
	if !stop() {
		_ = conn.CloseNow()
		return nil, ctx.Err()
	}
	if ack.Type != backend.MessageSystem || ack.Status != "ok" {
		_ = conn.CloseNow()
		return nil, fmt.Errorf("realtime subscription rejected: %s %s", ack.Type, ack.Status)
	}
	return conn, nil
}

func (s *subscription) run() {
	defer close(s.done)
	for {
		err := s.read()
		if s.ctx.Err() != nil {
			return
		}
		s.client.logger.Warn("realtime connection lost", "table", s.table, "err", err)
		if !s.reconnect() {
			return
		}
	}
}

// read dispatches change frames until the connection fails.
func (s *subscription) read() error {
	for {
		var msg backend.RealtimeMessage
		if err := wsjson.Read(s.ctx, s.conn, &msg); err != nil {
			return err
		}
		if msg.Type == backend.MessageChange && msg.Event != nil {
			s.dispatcher.Dispatch(*msg.Event)
		}
	}
}

// reconnect dials again with exponential backoff. It gives up when the
// subscription is closed or the client no longer holds a session the
// server accepts. Changes committed while disconnected are not replayed.
func (s *subscription) reconnect() bool {
	_ = s.conn.CloseNow()
	delay := s.client.reconnectDelay
	for attempt := 1; ; attempt++ {
		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(delay):
		}

		conn, err := s.connect(s.ctx)
		switch {
		case err == nil:
			s.conn = conn
			s.client.logger.Info("realtime reconnected", "table", s.table, "attempts", attempt)
			return true
		case s.ctx.Err() != nil:
			return false
		case errors.Is(err, backend.ErrSessionMissing):
			s.client.logger.Warn("realtime stopped, session ended", "table", s.table)
			return false
		}
		s.client.logger.Debug("realtime reconnect failed", "attempt", attempt, "err", err)
		delay = min(delay*2, maxReconnectDelay)
	}
}

// Close stops delivery and closes the connection. It must not be called
// from the handler.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.dispatcher.Close()
		s.cancel()
		<-s.done
		_ = s.conn.CloseNow()

		s.client.subsMu.Lock()
		delete(s.client.subs, s)
		s.client.subsMu.Unlock()
	})
	return nil
}
