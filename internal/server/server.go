// Package server exposes the BaaS over HTTP: auth endpoints, the todos
// table as a REST resource and a realtime websocket that streams row
// changes visible to the connected user.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"

	"github.com/nhle/todo-sync/internal/baas"
	"github.com/nhle/todo-sync/internal/backend"
)

const (
	shutdownTimeout = 5 * time.Second
	writeTimeout    = 5 * time.Second
	maxBodyBytes    = 1 << 20

	// realtimeBuffer is the feed buffer of one websocket client.
	realtimeBuffer = 64
)

// Config holds server configuration.
type Config struct {
	// Addr to listen on, e.g. ":8080". Port 0 picks a free port.
	Addr string

	// AllowedOrigins are host patterns (path.Match syntax) for browser
	// origins allowed by CORS and the websocket handshake.
	AllowedOrigins []string

	Logger *log.Logger
}

// Server serves one baas.Service.
type Server struct {
	svc     *baas.Service
	addr    string
	origins []string
	logger  *log.Logger

	listener net.Listener
	server   *http.Server

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server for svc. It does not listen until Start.
func New(svc *baas.Service, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		svc:     svc,
		addr:    cfg.Addr,
		origins: cfg.AllowedOrigins,
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handler returns the HTTP handler with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+backend.PathSignUp, s.handleSignUp)
	mux.HandleFunc("POST "+backend.PathToken, s.handleToken)
	mux.HandleFunc("GET "+backend.PathUser, s.handleUser)
	mux.HandleFunc("POST "+backend.PathLogout, s.handleLogout)
	mux.HandleFunc("POST "+backend.PathRecover, s.handleRecover)
	mux.HandleFunc("POST "+backend.PathVerify, s.handleVerify)
	mux.HandleFunc("GET "+backend.PathAuthorize, s.handleAuthorize)

	mux.HandleFunc("GET "+backend.PathTodos, s.handleSelect)
	mux.HandleFunc("POST "+backend.PathTodos, s.handleInsert)
	mux.HandleFunc("PATCH "+backend.PathTodos, s.handleUpdate)
	mux.HandleFunc("DELETE "+backend.PathTodos, s.handleDelete)

	mux.HandleFunc("GET "+backend.PathRealtime, s.handleRealtime)
	mux.HandleFunc("GET "+backend.PathHealth, s.handleHealth)

	return s.logRequests(s.cors(mux))
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", "err", err)
		}
	}()
	return nil
}

// Stop closes every websocket client and shuts the server down, waiting
// for in-flight requests up to a timeout.
func (s *Server) Stop() error {
	s.logger.Info("stopping server")
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Info("server stopped")
	return nil
}

// Addr returns the listening address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected realtime clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) addClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	s.clients[conn] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.logger.Debug("realtime client connected", "clients", n)
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, ok := s.clients[conn]; !ok {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	n := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Debug("realtime client disconnected", "clients", n)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}
