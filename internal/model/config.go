package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend modes.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// BackendConfig selects and configures the BaaS the client talks to.
type BackendConfig struct {
	// Mode is "local" (embedded SQLite BaaS) or "remote" (todo serve over HTTP).
	Mode string `mapstructure:"mode" yaml:"mode"`

	// URL is the base URL of the remote BaaS (remote mode only).
	URL string `mapstructure:"url" yaml:"url"`

	// DatabasePath is the SQLite file used by the embedded BaaS and by
	// the server.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// Timeout bounds every gateway call. Zero disables the bound.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ServerConfig configures `todo serve`.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// OAuthProviderConfig holds the client registration for one OAuth provider.
type OAuthProviderConfig struct {
	ClientID     string   `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret"`
	AuthURL      string   `mapstructure:"auth_url" yaml:"auth_url"`
	TokenURL     string   `mapstructure:"token_url" yaml:"token_url"`
	Scopes       []string `mapstructure:"scopes" yaml:"scopes"`
}

// AuthConfig holds authentication policy.
type AuthConfig struct {
	MinPasswordLength int                            `mapstructure:"min_password_length" yaml:"min_password_length"`
	SessionTTL        time.Duration                  `mapstructure:"session_ttl" yaml:"session_ttl"`
	ResetTTL          time.Duration                  `mapstructure:"reset_ttl" yaml:"reset_ttl"`
	RedirectURL       string                         `mapstructure:"redirect_url" yaml:"redirect_url"`
	OAuth             map[string]OAuthProviderConfig `mapstructure:"oauth" yaml:"oauth"`
}

// IMAPConfig holds the mailbox password-reset mails are appended to.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Mailbox  string `mapstructure:"mailbox" yaml:"mailbox"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
}

// MailConfig configures password-reset mail delivery. When IMAP.Host is
// set mails are appended to that mailbox, otherwise they are written to
// OutboxDir.
type MailConfig struct {
	From      string     `mapstructure:"from" yaml:"from"`
	OutboxDir string     `mapstructure:"outbox_dir" yaml:"outbox_dir"`
	IMAP      IMAPConfig `mapstructure:"imap" yaml:"imap"`
}

// LogConfig configures the application log.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Backend BackendConfig `mapstructure:"backend" yaml:"backend"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Mail    MailConfig    `mapstructure:"mail" yaml:"mail"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// configDir returns ~/.config/todo-sync, falling back to the working
// directory when the home directory is unknown.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "todo-sync")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/todo-sync/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	dir := configDir()
	return &AppConfig{
		Backend: BackendConfig{
			Mode:         BackendLocal,
			URL:          "http://127.0.0.1:8787",
			DatabasePath: filepath.Join(dir, "todos.db"),
			Timeout:      15 * time.Second,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8787",
		},
		Auth: AuthConfig{
			MinPasswordLength: 6,
			SessionTTL:        7 * 24 * time.Hour,
			ResetTTL:          time.Hour,
			RedirectURL:       "http://127.0.0.1:8787/auth/v1/callback",
			OAuth:             map[string]OAuthProviderConfig{},
		},
		Mail: MailConfig{
			From:      "todo-sync <no-reply@localhost>",
			OutboxDir: filepath.Join(dir, "outbox"),
			IMAP: IMAPConfig{
				Port:    "993",
				Mailbox: "INBOX",
				TLS:     true,
			},
		},
		Log: LogConfig{
			File:       filepath.Join(dir, "todo-sync.log"),
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with TODO_SYNC_ override file values
// (e.g. TODO_SYNC_BACKEND_MODE=remote). If the file does not exist, the
// defaults are returned.
func LoadConfig(path string) (*AppConfig, error) {
	def := DefaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TODO_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values and so that
	// AutomaticEnv can see every key.
	v.SetDefault("backend.mode", def.Backend.Mode)
	v.SetDefault("backend.url", def.Backend.URL)
	v.SetDefault("backend.database_path", def.Backend.DatabasePath)
	v.SetDefault("backend.timeout", def.Backend.Timeout)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.allowed_origins", def.Server.AllowedOrigins)
	v.SetDefault("auth.min_password_length", def.Auth.MinPasswordLength)
	v.SetDefault("auth.session_ttl", def.Auth.SessionTTL)
	v.SetDefault("auth.reset_ttl", def.Auth.ResetTTL)
	v.SetDefault("auth.redirect_url", def.Auth.RedirectURL)
	v.SetDefault("mail.from", def.Mail.From)
	v.SetDefault("mail.outbox_dir", def.Mail.OutboxDir)
	v.SetDefault("mail.imap.host", def.Mail.IMAP.Host)
	v.SetDefault("mail.imap.port", def.Mail.IMAP.Port)
	v.SetDefault("mail.imap.username", def.Mail.IMAP.Username)
	v.SetDefault("mail.imap.mailbox", def.Mail.IMAP.Mailbox)
	v.SetDefault("mail.imap.tls", def.Mail.IMAP.TLS)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.max_size_mb", def.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", def.Log.MaxBackups)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Auth.OAuth == nil {
		cfg.Auth.OAuth = map[string]OAuthProviderConfig{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the values a user is likely to get wrong.
func (c *AppConfig) Validate() error {
	switch c.Backend.Mode {
	case BackendLocal, BackendRemote:
	default:
		return fmt.Errorf("backend.mode must be %q or %q, got %q",
			BackendLocal, BackendRemote, c.Backend.Mode)
	}
	if c.Backend.Mode == BackendRemote && c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required in remote mode")
	}
	if c.Auth.MinPasswordLength < 1 {
		return fmt.Errorf("auth.min_password_length must be positive")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("backend", cfg.Backend)
	v.Set("server", cfg.Server)
	v.Set("auth", cfg.Auth)
	v.Set("mail", cfg.Mail)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
