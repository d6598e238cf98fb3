package model_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/todo-sync/internal/model"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := model.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	def := model.DefaultAppConfig()
	assert.Equal(t, model.BackendLocal, cfg.Backend.Mode)
	assert.Equal(t, def.Backend.Timeout, cfg.Backend.Timeout)
	assert.Equal(t, 6, cfg.Auth.MinPasswordLength)
	assert.NotNil(t, cfg.Auth.OAuth)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
backend:
  mode: remote
  url: http://todo.example.com
  timeout: 3s
auth:
  oauth:
    github:
      client_id: abc
      auth_url: https://github.com/login/oauth/authorize
      token_url: https://github.com/login/oauth/access_token
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("TODO_SYNC_SERVER_ADDR", "0.0.0.0:9000")

	cfg, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, model.BackendRemote, cfg.Backend.Mode)
	assert.Equal(t, "http://todo.example.com", cfg.Backend.URL)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	require.Contains(t, cfg.Auth.OAuth, "github")
	assert.Equal(t, "abc", cfg.Auth.OAuth["github"].ClientID)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown mode", "backend:\n  mode: cloud\n"},
		{"remote without url", "backend:\n  mode: remote\n  url: \"\"\n"},
		{"password length", "auth:\n  min_password_length: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
			_, err := model.LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := model.DefaultAppConfig()
	cfg.Backend.Mode = model.BackendRemote
	cfg.Server.AllowedOrigins = []string{"localhost:*"}

	require.NoError(t, model.SaveConfig(path, cfg))

	loaded, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, model.BackendRemote, loaded.Backend.Mode)
	assert.Equal(t, []string{"localhost:*"}, loaded.Server.AllowedOrigins)
}
