package server

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/model"
)

// handleRealtime streams todo changes to one websocket client. The bearer
// token is checked before the upgrade; afterwards only events whose old
// or new row belongs to that user are sent.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	session, err := s.requireSession(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	table := r.URL.Query().Get("table")
	if table == "" {
		table = model.TodosTable
	}
	if table != model.TodosTable {
		s.writeError(w, r, validationError("unknown table %q", table))
		return
	}

	// Hijacked connections are not tracked by http.Server.Shutdown, so
	// Stop waits for them on wg.
	s.wg.Add(1)
	defer s.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	s.addClient(conn)
	defer s.removeClient(conn)

	// Subscribe before the acknowledgement so that every change committed
	// after the client sees it is delivered.
	feed := s.svc.Subscribe(realtimeBuffer)
	defer feed.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	// CloseRead discards client frames and cancels ctx once the client
	// goes away.
	ctx = conn.CloseRead(ctx)

	userID := session.User.ID
	if err := s.send(ctx, conn, backend.RealtimeMessage{
		Type:   backend.MessageSystem,
		Table:  table,
		Status: "ok",
	}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-feed.Events():
			if !ok {
				return
			}
			if !evt.VisibleTo(userID) {
				continue
			}
			if err := s.send(ctx, conn, backend.RealtimeMessage{
				Type:  backend.MessageChange,
				Table: table,
				Event: &evt,
			}); err != nil {
				s.logger.Debug("realtime write failed", "user_id", userID, "err", err)
				return
			}
		}
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, msg backend.RealtimeMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
