package testutil

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/nhle/todo-sync/internal/baas"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/internal/server"
)

// NewService returns a BaaS service over a fresh in-memory store with the
// default auth settings and a cheap password hash cost.
func NewService(t testing.TB, opts ...baas.Option) *baas.Service {
	t.Helper()
	return NewServiceWithConfig(t, model.DefaultAppConfig().Auth, opts...)
}

// NewServiceWithConfig is NewService with explicit auth settings.
func NewServiceWithConfig(t testing.TB, cfg model.AuthConfig, opts ...baas.Option) *baas.Service {
	t.Helper()
	opts = append([]baas.Option{
		baas.WithPasswordCost(bcrypt.MinCost),
		baas.WithLogger(Logger(t)),
	}, opts...)
	return baas.New(NewTestStore(t), cfg, opts...)
}

// StartServer serves svc on a free local port until the test ends and
// returns the server with its base URL.
func StartServer(t testing.TB, svc *baas.Service) (*server.Server, string) {
	t.Helper()
	srv := server.New(svc, server.Config{Addr: "127.0.0.1:0", Logger: Logger(t)})
	if err := srv.Start(); err != nil {
		t.Fatalf("starting server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, "http://" + srv.Addr()
}
